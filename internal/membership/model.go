package membership

import "time"

// ReasonHasOutstandingLoans rejects deleting a user who still holds a book.
const ReasonHasOutstandingLoans = "HAS_OUTSTANDING_LOANS"

// User は users テーブルの1行。PasswordHash はレスポンスに出さない
type User struct {
	ID               string    `db:"id"`
	Username         string    `db:"username"`
	Email            string    `db:"email"`
	PasswordHash     string    `db:"password_hash"`
	DateOfMembership time.Time `db:"date_of_membership"`
	IsActive         bool      `db:"is_active"`
	IsStaff          bool      `db:"is_staff"`
	CreatedAt        time.Time `db:"created_at"`
}

// 部分更新用。nil のフィールドは変更しない
type UserPatch struct {
	Username     *string
	Email        *string
	PasswordHash *string
	IsActive     *bool
}
