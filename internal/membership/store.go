package membership

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"library-backend/internal/platform/apperr"
	"library-backend/internal/platform/db"
	"library-backend/internal/platform/web"
)

// Repository is the persistence contract for users.
// Lookups of a missing id or username return sql.ErrNoRows.
type Repository interface {
	Insert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context, p web.Page) ([]User, int64, error)
	Update(ctx context.Context, id string, in UserPatch) (*User, error)
	Delete(ctx context.Context, id string) (int64, error)
}

type Store struct{ db *sqlx.DB }

func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

const userColumns = `id, username, email, password_hash, date_of_membership, is_active, is_staff, created_at`

func (s *Store) Insert(ctx context.Context, u *User) error {
	q := s.db.Rebind(`
	INSERT INTO users (` + userColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		u.ID, u.Username, u.Email, u.PasswordHash, u.DateOfMembership, u.IsActive, u.IsStaff, u.CreatedAt)
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) List(ctx context.Context, p web.Page) ([]User, int64, error) {
	p = p.Normalize()
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM users
	ORDER BY created_at ` + p.Order + `, id ` + p.Order + ` LIMIT ? OFFSET ?`)

	out := []User{}
	if err := s.db.SelectContext(ctx, &out, q, p.Limit, p.Offset); err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) Update(ctx context.Context, id string, in UserPatch) (*User, error) {
	sets := []string{}
	args := []any{}
	if in.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *in.Username)
	}
	if in.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *in.Email)
	}
	if in.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *in.PasswordHash)
	}
	if in.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *in.IsActive)
	}
	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}
	args = append(args, id)

	q := s.db.Rebind(`UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, err
	}
	// MySQL は値が同じだと affected=0 になるので、存在確認は再取得で行う
	return s.GetByID(ctx, id)
}

// outstandingLoansSQL は最新のトランザクションが CHECKOUT のまま残っている (user, book) の数
const outstandingLoansSQL = `
	SELECT COUNT(*) FROM transactions t
	WHERE t.user_id = ? AND t.transaction_type = 'CHECKOUT'
	AND NOT EXISTS (
		SELECT 1 FROM transactions n
		WHERE n.user_id = t.user_id AND n.book_id = t.book_id
		AND (n.transaction_date > t.transaction_date
			OR (n.transaction_date = t.transaction_date AND n.id > t.id))
	)`

// Delete removes the user and, by cascade, their transactions.
// A user who still holds a book is refused with HAS_OUTSTANDING_LOANS.
func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	var n int64
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		var found string
		q := tx.Rebind(`SELECT id FROM users WHERE id = ?` + db.ForUpdate(tx))
		if err := tx.GetContext(ctx, &found, q, id); err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}

		var outstanding int
		if err := tx.GetContext(ctx, &outstanding, tx.Rebind(outstandingLoansSQL), id); err != nil {
			return err
		}
		if outstanding > 0 {
			return apperr.Violation(ReasonHasOutstandingLoans, "user still has books checked out")
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE id = ?`), id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
