package lending

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"library-backend/internal/platform/apperr"
	"library-backend/internal/platform/db"
	"library-backend/internal/platform/web"
)

// Repository is the persistence contract of the lending engine.
// ExecCheckout and ExecReturn apply the whole transition in one DB transaction
// and report rejected transitions as *apperr.APIError.
type Repository interface {
	ExecCheckout(ctx context.Context, r *Record) error
	ExecReturn(ctx context.Context, r *Record) error
	History(ctx context.Context, userID string) ([]Record, error)
	ListByUser(ctx context.Context, userID string, p web.Page) ([]Record, int64, error)
	GetForUser(ctx context.Context, userID, id string) (*Record, error)
}

type Store struct{ db *sqlx.DB }

func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

const recordColumns = `t.id, t.user_id, t.book_id, t.transaction_type, t.transaction_date, t.due_date, b.title AS book_title`

type lockedBook struct {
	Title           string `db:"title"`
	CopiesAvailable int    `db:"copies_available"`
}

// lockBook は books 行をロックして在庫数を読む（SQLite は IMMEDIATE Tx で代替）
func lockBook(ctx context.Context, tx *sqlx.Tx, bookID string) (*lockedBook, error) {
	var b lockedBook
	q := tx.Rebind(`SELECT title, copies_available FROM books WHERE id = ?` + db.ForUpdate(tx))
	if err := tx.GetContext(ctx, &b, q, bookID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("book not found")
		}
		return nil, err
	}
	return &b, nil
}

// userIsActive returns NotFound when the user does not exist.
func userIsActive(ctx context.Context, tx *sqlx.Tx, userID string) (bool, error) {
	var active bool
	err := tx.GetContext(ctx, &active, tx.Rebind(`SELECT is_active FROM users WHERE id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperr.NotFound("user not found")
	}
	return active, err
}

// pairState は (user, book) の最新トランザクション種別。履歴なしは ""
func pairState(ctx context.Context, tx *sqlx.Tx, userID, bookID string) (TxType, error) {
	var t TxType
	q := tx.Rebind(`
	SELECT transaction_type FROM transactions
	WHERE user_id = ? AND book_id = ?
	ORDER BY transaction_date DESC, id DESC
	LIMIT 1`)
	err := tx.GetContext(ctx, &t, q, userID, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return t, err
}

// adjustCopies applies delta to copies_available. A decrement only matches while
// copies remain, so it returns false instead of going negative.
func adjustCopies(ctx context.Context, tx *sqlx.Tx, bookID string, delta int) (bool, error) {
	q := `UPDATE books SET copies_available = copies_available + ? WHERE id = ?`
	if delta < 0 {
		q += ` AND copies_available >= ?`
	}
	args := []any{delta, bookID}
	if delta < 0 {
		args = append(args, -delta)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	q := tx.Rebind(`
	INSERT INTO transactions (id, user_id, book_id, transaction_type, transaction_date, due_date)
	VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := tx.ExecContext(ctx, q, t.ID, t.UserID, t.BookID, string(t.Type), t.TransactionDate, t.DueDate)
	return err
}

// ---- Transactional Methods ----

// ExecCheckout: ロック → 利用者確認 → 貸出中チェック → 在庫チェック → 在庫減算 → 記録
func (s *Store) ExecCheckout(ctx context.Context, r *Record) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		// 1. Lock book row
		book, err := lockBook(ctx, tx, r.BookID)
		if err != nil {
			return err
		}

		// 2. Borrower must exist and be active
		active, err := userIsActive(ctx, tx, r.UserID)
		if err != nil {
			return err
		}
		if !active {
			return apperr.Violation(ReasonUserInactive, "user account is inactive")
		}

		// 3. Outstanding checkout for this pair
		state, err := pairState(ctx, tx, r.UserID, r.BookID)
		if err != nil {
			return err
		}
		if state == TypeCheckout {
			return apperr.Violation(ReasonAlreadyCheckedOut, "You have already checked out this book")
		}

		// 4. Stock check + conditional decrement
		if book.CopiesAvailable <= 0 {
			return apperr.Violation(ReasonNoCopies, "No copies available")
		}
		ok, err := adjustCopies(ctx, tx, r.BookID, -1)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Violation(ReasonNoCopies, "No copies available")
		}

		// 5. Insert transaction
		r.BookTitle = book.Title
		return insertTransaction(ctx, tx, &r.Transaction)
	})
}

// ExecReturn: ロック → 貸出中チェック → 在庫加算 → 記録
func (s *Store) ExecReturn(ctx context.Context, r *Record) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		book, err := lockBook(ctx, tx, r.BookID)
		if err != nil {
			return err
		}
		if _, err := userIsActive(ctx, tx, r.UserID); err != nil {
			return err
		}

		state, err := pairState(ctx, tx, r.UserID, r.BookID)
		if err != nil {
			return err
		}
		if state != TypeCheckout {
			return apperr.Violation(ReasonNotCheckedOut, "You have not checked out this book")
		}

		ok, err := adjustCopies(ctx, tx, r.BookID, 1)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("book not found")
		}

		r.BookTitle = book.Title
		return insertTransaction(ctx, tx, &r.Transaction)
	})
}

// History returns every transaction of the user, newest first, inside one
// read-only transaction. Unknown users are NotFound.
func (s *Store) History(ctx context.Context, userID string) ([]Record, error) {
	out := []Record{}
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := userIsActive(ctx, tx, userID); err != nil {
			return err
		}
		q := tx.Rebind(`SELECT ` + recordColumns + `
		FROM transactions t
		JOIN books b ON b.id = t.book_id
		WHERE t.user_id = ?
		ORDER BY t.transaction_date DESC, t.id DESC`)
		return tx.SelectContext(ctx, &out, q, userID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string, p web.Page) ([]Record, int64, error) {
	p = p.Normalize()
	q := s.db.Rebind(`SELECT ` + recordColumns + `
	FROM transactions t
	JOIN books b ON b.id = t.book_id
	WHERE t.user_id = ?
	ORDER BY t.transaction_date ` + p.Order + `, t.id ` + p.Order + `
	LIMIT ? OFFSET ?`)

	out := []Record{}
	if err := s.db.SelectContext(ctx, &out, q, userID, p.Limit, p.Offset); err != nil {
		return nil, 0, err
	}
	var total int64
	countQ := s.db.Rebind(`SELECT COUNT(*) FROM transactions WHERE user_id = ?`)
	if err := s.db.GetContext(ctx, &total, countQ, userID); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetForUser returns sql.ErrNoRows when id does not exist or belongs to another user.
func (s *Store) GetForUser(ctx context.Context, userID, id string) (*Record, error) {
	var r Record
	q := s.db.Rebind(`SELECT ` + recordColumns + `
	FROM transactions t
	JOIN books b ON b.id = t.book_id
	WHERE t.id = ? AND t.user_id = ?`)
	if err := s.db.GetContext(ctx, &r, q, id, userID); err != nil {
		return nil, err
	}
	return &r, nil
}
