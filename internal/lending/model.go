package lending

import (
	"database/sql"
	"time"
)

type TxType string

const (
	TypeCheckout TxType = "CHECKOUT"
	TypeReturn   TxType = "RETURN"
)

// 業務ルール違反の理由コード
const (
	ReasonAlreadyCheckedOut = "ALREADY_CHECKED_OUT"
	ReasonNoCopies          = "NO_COPIES_AVAILABLE"
	ReasonNotCheckedOut     = "NOT_CHECKED_OUT"
	ReasonUserInactive      = "USER_INACTIVE"
)

const DefaultLoanPeriodDays = 14

// Transaction は transactions テーブルの1行。作成後は更新しない
type Transaction struct {
	ID              string       `db:"id"`
	UserID          string       `db:"user_id"`
	BookID          string       `db:"book_id"`
	Type            TxType       `db:"transaction_type"`
	TransactionDate time.Time    `db:"transaction_date"`
	DueDate         sql.NullTime `db:"due_date"` // CHECKOUT のみ
}

// Record is a Transaction joined with the title of its book.
type Record struct {
	Transaction
	BookTitle string `db:"book_title"`
}
