package lending

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"library-backend/internal/platform/apperr"
	"library-backend/internal/platform/clock"
	"library-backend/internal/platform/web"
)

type Service struct {
	store      Repository
	clock      clock.Clock
	id         clock.IDGen
	log        logrus.FieldLogger
	loanPeriod int // 日数
}

func NewService(conn *sqlx.DB, log logrus.FieldLogger) *Service {
	return NewServiceWith(NewStore(conn), clock.Real(), clock.ULID(), log)
}

func NewServiceWith(store Repository, c clock.Clock, id clock.IDGen, log logrus.FieldLogger) *Service {
	return &Service{store: store, clock: c, id: id, log: log, loanPeriod: DefaultLoanPeriodDays}
}

// WithLoanPeriod sets the number of days between checkout and due date.
func (s *Service) WithLoanPeriod(days int) *Service {
	if days > 0 {
		s.loanPeriod = days
	}
	return s
}

// DueDate is the UTC calendar day of at plus the loan period.
func (s *Service) DueDate(at time.Time) time.Time {
	y, m, d := at.UTC().Date()
	return time.Date(y, m, d+s.loanPeriod, 0, 0, 0, 0, time.UTC)
}

func (s *Service) newRecord(userID, bookID string, typ TxType) *Record {
	now := s.clock.Now()
	r := &Record{Transaction: Transaction{
		ID:              s.id.NewULID(now),
		UserID:          userID,
		BookID:          bookID,
		Type:            typ,
		TransactionDate: now,
	}}
	if typ == TypeCheckout {
		r.DueDate = sql.NullTime{Time: s.DueDate(now), Valid: true}
	}
	return r
}

// 貸出
func (s *Service) Checkout(ctx context.Context, userID, bookID string) (ActionResponse, error) {
	if userID == "" || bookID == "" {
		return ActionResponse{}, apperr.Invalid("user and book are required")
	}
	r := s.newRecord(userID, bookID, TypeCheckout)
	if err := s.store.ExecCheckout(ctx, r); err != nil {
		s.logRejected(err, "checkout", userID, bookID)
		return ActionResponse{}, err
	}
	s.log.WithFields(logrus.Fields{"transaction_id": r.ID, "user_id": userID, "book_id": bookID}).Info("book checked out")
	return ActionResponse{Status: StatusCheckedOut, Transaction: toResponse(r)}, nil
}

// 返却
func (s *Service) Return(ctx context.Context, userID, bookID string) (ActionResponse, error) {
	if userID == "" || bookID == "" {
		return ActionResponse{}, apperr.Invalid("user and book are required")
	}
	r := s.newRecord(userID, bookID, TypeReturn)
	if err := s.store.ExecReturn(ctx, r); err != nil {
		s.logRejected(err, "return", userID, bookID)
		return ActionResponse{}, err
	}
	s.log.WithFields(logrus.Fields{"transaction_id": r.ID, "user_id": userID, "book_id": bookID}).Info("book returned")
	return ActionResponse{Status: StatusReturned, Transaction: toResponse(r)}, nil
}

func (s *Service) logRejected(err error, op, userID, bookID string) {
	if api, ok := apperr.As(err); ok && api.Code == apperr.CodeViolation {
		s.log.WithFields(logrus.Fields{"op": op, "reason": api.Reason, "user_id": userID, "book_id": bookID}).Info("lending rejected")
	}
}

// ListMine pages through the caller's own transactions.
func (s *Service) ListMine(ctx context.Context, userID string, p web.Page) (ListTransactionsResult, error) {
	p = p.Normalize()
	rows, total, err := s.store.ListByUser(ctx, userID, p)
	if err != nil {
		return ListTransactionsResult{}, err
	}
	return ListTransactionsResult{Items: toResponses(rows), Total: total, NextOffset: p.NextOffset(total)}, nil
}

// GetMine hides other users' transactions behind NotFound.
func (s *Service) GetMine(ctx context.Context, userID, id string) (TransactionResponse, error) {
	r, err := s.store.GetForUser(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TransactionResponse{}, apperr.NotFound("transaction not found")
		}
		return TransactionResponse{}, err
	}
	return toResponse(r), nil
}
