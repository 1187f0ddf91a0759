package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/text/cases"

	"library-backend/internal/platform/web"
)

// Repository is the persistence contract of the catalog.
// Lookups of a missing id return sql.ErrNoRows.
type Repository interface {
	Insert(ctx context.Context, b *Book) error
	GetByID(ctx context.Context, id string) (*Book, error)
	List(ctx context.Context, f BookFilter, p web.Page) ([]Book, int64, error)
	Update(ctx context.Context, id string, in BookPatch, now time.Time) (*Book, error)
	Delete(ctx context.Context, id string) (int64, error)
}

type Store struct{ db *sqlx.DB }

func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

const bookColumns = `id, title, author, isbn, published_date, copies_available, created_at, updated_at`

func (s *Store) Insert(ctx context.Context, b *Book) error {
	q := s.db.Rebind(`
	INSERT INTO books (` + bookColumns + `, title_key, author_key)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		b.ID, b.Title, b.Author, b.ISBN, b.PublishedDate, b.CopiesAvailable, b.CreatedAt, b.UpdatedAt,
		foldKey(b.Title), foldKey(b.Author))
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (*Book, error) {
	var b Book
	q := s.db.Rebind(`SELECT ` + bookColumns + ` FROM books WHERE id = ?`)
	if err := s.db.GetContext(ctx, &b, q, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// foldKey は title_key / author_key に保存する検索用の正規化文字列。
// 検索語も同じ関数で畳む（SQL の LOWER は使わない）
func foldKey(s string) string {
	// Caser はゴルーチン間で共有できない
	return cases.Fold().String(s)
}

// likeContains は大文字小文字を無視した部分一致パターンを作る（ESCAPE '!'）
func likeContains(s string) string {
	s = foldKey(strings.TrimSpace(s))
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(s) + "%"
}

func buildWhere(f BookFilter) (string, []any) {
	where := "WHERE 1=1"
	args := []any{}
	if f.Available != nil {
		if *f.Available {
			where += " AND copies_available > 0"
		} else {
			where += " AND copies_available = 0"
		}
	}
	if f.CopiesAvailable != nil {
		where += " AND copies_available = ?"
		args = append(args, *f.CopiesAvailable)
	}
	if f.Title != "" {
		where += " AND title_key LIKE ? ESCAPE '!'"
		args = append(args, likeContains(f.Title))
	}
	if f.Author != "" {
		where += " AND author_key LIKE ? ESCAPE '!'"
		args = append(args, likeContains(f.Author))
	}
	if f.ISBN != "" {
		where += " AND isbn LIKE ? ESCAPE '!'"
		args = append(args, likeContains(f.ISBN))
	}
	if f.Search != "" {
		p := likeContains(f.Search)
		where += " AND (title_key LIKE ? ESCAPE '!' OR author_key LIKE ? ESCAPE '!' OR isbn LIKE ? ESCAPE '!')"
		args = append(args, p, p, p)
	}
	return where, args
}

func (s *Store) List(ctx context.Context, f BookFilter, p web.Page) ([]Book, int64, error) {
	p = p.Normalize()
	where, args := buildWhere(f)

	// 一覧取得用 SQL（order は Normalize 済みの ASC/DESC のみ）
	selectSQL := s.db.Rebind(`SELECT ` + bookColumns + ` FROM books ` + where +
		` ORDER BY created_at ` + p.Order + `, id ` + p.Order + ` LIMIT ? OFFSET ?`)
	queryArgs := append(append([]any{}, args...), p.Limit, p.Offset)

	out := []Book{}
	if err := s.db.SelectContext(ctx, &out, selectSQL, queryArgs...); err != nil {
		return nil, 0, err
	}

	var total int64
	countSQL := s.db.Rebind(`SELECT COUNT(*) FROM books ` + where)
	if err := s.db.GetContext(ctx, &total, countSQL, args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) Update(ctx context.Context, id string, in BookPatch, now time.Time) (*Book, error) {
	// 動的アップデート
	sets := []string{}
	args := []any{}
	if in.Title != nil {
		sets = append(sets, "title = ?", "title_key = ?")
		args = append(args, *in.Title, foldKey(*in.Title))
	}
	if in.Author != nil {
		sets = append(sets, "author = ?", "author_key = ?")
		args = append(args, *in.Author, foldKey(*in.Author))
	}
	if in.ISBN != nil {
		sets = append(sets, "isbn = ?")
		args = append(args, *in.ISBN)
	}
	if in.PublishedDate != nil {
		sets = append(sets, "published_date = ?")
		args = append(args, *in.PublishedDate)
	}
	if in.CopiesAvailable != nil {
		sets = append(sets, "copies_available = ?")
		args = append(args, *in.CopiesAvailable)
	}
	if len(sets) == 0 {
		// 変更なしでも現行値を返す
		return s.GetByID(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now, id)

	q := s.db.Rebind(`UPDATE books SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetByID(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM books WHERE id = ?`), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
