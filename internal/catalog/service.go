package catalog

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"library-backend/internal/platform/apperr"
	"library-backend/internal/platform/clock"
	"library-backend/internal/platform/db"
	"library-backend/internal/platform/web"
)

const (
	isbnLength   = 13
	maxTextField = 200
)

type Service struct {
	store Repository
	clock clock.Clock
	id    clock.IDGen
	log   logrus.FieldLogger
}

func NewService(conn *sqlx.DB, log logrus.FieldLogger) *Service {
	return NewServiceWith(NewStore(conn), clock.Real(), clock.ULID(), log)
}

func NewServiceWith(store Repository, c clock.Clock, id clock.IDGen, log logrus.FieldLogger) *Service {
	return &Service{store: store, clock: c, id: id, log: log}
}

// NormalizeISBN strips hyphens and spaces. The result must be 13 digits.
func NormalizeISBN(s string) (string, error) {
	s = strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(s))
	if len(s) != isbnLength {
		return "", apperr.Invalid("isbn must be 13 digits")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", apperr.Invalid("isbn must be 13 digits")
		}
	}
	return s, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, apperr.Invalid("invalid published_date format, expected YYYY-MM-DD")
	}
	return t, nil
}

func checkText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperr.Invalid(field + " is required")
	}
	if utf8.RuneCountInString(v) > maxTextField {
		return "", apperr.Invalid(field + " must be at most 200 characters")
	}
	return v, nil
}

// ===== Books =====

func (s *Service) CreateBook(ctx context.Context, in CreateBookRequest) (BookResponse, error) {
	title, err := checkText("title", in.Title)
	if err != nil {
		return BookResponse{}, err
	}
	author, err := checkText("author", in.Author)
	if err != nil {
		return BookResponse{}, err
	}
	isbn, err := NormalizeISBN(in.ISBN)
	if err != nil {
		return BookResponse{}, err
	}
	published, err := parseDate(in.PublishedDate)
	if err != nil {
		return BookResponse{}, err
	}
	if in.CopiesAvailable == nil {
		return BookResponse{}, apperr.Invalid("copies_available is required")
	}
	if *in.CopiesAvailable < 0 {
		return BookResponse{}, apperr.Invalid("copies_available must be >= 0")
	}

	now := s.clock.Now()
	b := &Book{
		ID:              s.id.NewULID(now),
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		PublishedDate:   published,
		CopiesAvailable: *in.CopiesAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, b); err != nil {
		if db.IsUniqueViolation(err) {
			return BookResponse{}, apperr.Invalid("book with this isbn already exists")
		}
		return BookResponse{}, err
	}

	s.log.WithFields(logrus.Fields{"book_id": b.ID, "isbn": b.ISBN}).Info("book created")
	return toResponse(b), nil
}

func (s *Service) GetBook(ctx context.Context, id string) (BookResponse, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return BookResponse{}, apperr.NotFound("book not found")
		}
		return BookResponse{}, err
	}
	return toResponse(b), nil
}

func (s *Service) ListBooks(ctx context.Context, f BookFilter, p web.Page) (ListBooksResult, error) {
	p = p.Normalize()
	rows, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListBooksResult{}, err
	}
	items := make([]BookResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	return ListBooksResult{Items: items, Total: total, NextOffset: p.NextOffset(total)}, nil
}

func (s *Service) UpdateBook(ctx context.Context, id string, in UpdateBookRequest) (BookResponse, error) {
	var patch BookPatch
	if in.Title != nil {
		v, err := checkText("title", *in.Title)
		if err != nil {
			return BookResponse{}, err
		}
		patch.Title = &v
	}
	if in.Author != nil {
		v, err := checkText("author", *in.Author)
		if err != nil {
			return BookResponse{}, err
		}
		patch.Author = &v
	}
	if in.ISBN != nil {
		v, err := NormalizeISBN(*in.ISBN)
		if err != nil {
			return BookResponse{}, err
		}
		patch.ISBN = &v
	}
	if in.PublishedDate != nil {
		v, err := parseDate(*in.PublishedDate)
		if err != nil {
			return BookResponse{}, err
		}
		patch.PublishedDate = &v
	}
	if in.CopiesAvailable != nil {
		if *in.CopiesAvailable < 0 {
			return BookResponse{}, apperr.Invalid("copies_available must be >= 0")
		}
		patch.CopiesAvailable = in.CopiesAvailable
	}

	b, err := s.store.Update(ctx, id, patch, s.clock.Now())
	if err != nil {
		if isNoRows(err) {
			return BookResponse{}, apperr.NotFound("book not found")
		}
		if db.IsUniqueViolation(err) {
			return BookResponse{}, apperr.Invalid("book with this isbn already exists")
		}
		return BookResponse{}, err
	}
	return toResponse(b), nil
}

func (s *Service) DeleteBook(ctx context.Context, id string) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("book not found")
	}
	s.log.WithField("book_id", id).Info("book deleted")
	return nil
}
