package lending

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-backend/internal/catalog"
	"library-backend/internal/membership"
	"library-backend/internal/platform/apperr"
	"library-backend/internal/platform/clock"
	"library-backend/internal/platform/db/dbtest"
	"library-backend/internal/platform/web"
)

var start = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	conn  *sqlx.DB
	svc   *Service
	clock *clock.Manual
	seq   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	log := logrus.New()
	log.SetOutput(io.Discard)
	clk := clock.NewManual(start, time.Second)
	return &fixture{
		conn:  conn,
		svc:   NewServiceWith(NewStore(conn), clk, clock.ULID(), log),
		clock: clk,
	}
}

func (f *fixture) givenBook(t *testing.T, isbn string, copies int) string {
	t.Helper()
	now := f.clock.Now()
	b := &catalog.Book{
		ID:              clock.ULID().NewULID(now),
		Title:           "Book " + isbn,
		Author:          "Test Author",
		ISBN:            isbn,
		PublishedDate:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		CopiesAvailable: copies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, catalog.NewStore(f.conn).Insert(context.Background(), b), "error in arranging test data")
	return b.ID
}

func (f *fixture) givenUser(t *testing.T, active bool) string {
	t.Helper()
	f.seq++
	now := f.clock.Now()
	u := &membership.User{
		ID:               clock.ULID().NewULID(now),
		Username:         fmt.Sprintf("user%d", f.seq),
		PasswordHash:     "x",
		DateOfMembership: start,
		IsActive:         active,
		CreatedAt:        now,
	}
	require.NoError(t, membership.NewStore(f.conn).Insert(context.Background(), u), "error in arranging test data")
	return u.ID
}

func (f *fixture) copies(t *testing.T, bookID string) int {
	t.Helper()
	var n int
	require.NoError(t, f.conn.Get(&n, f.conn.Rebind(`SELECT copies_available FROM books WHERE id = ?`), bookID))
	return n
}

func assertViolation(t *testing.T, err error, reason string) {
	t.Helper()
	require.Error(t, err)
	api, ok := apperr.As(err)
	require.True(t, ok, "expected APIError, got %v", err)
	assert.Equal(t, apperr.CodeViolation, api.Code)
	assert.Equal(t, reason, api.Reason)
	assert.Equal(t, 400, apperr.ToHTTPStatus(err))
}

func TestCheckoutReturnScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := f.givenBook(t, "9780123456789", 5)
	userA := f.givenUser(t, true)

	res, err := f.svc.Checkout(ctx, userA, book)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedOut, res.Status)
	assert.Equal(t, TypeCheckout, res.Transaction.TransactionType)
	require.NotNil(t, res.Transaction.DueDate)
	assert.Equal(t, "2024-03-15", *res.Transaction.DueDate)
	assert.Equal(t, "Book 9780123456789", res.Transaction.BookTitle)
	assert.Equal(t, 4, f.copies(t, book))

	_, err = f.svc.Checkout(ctx, userA, book)
	assertViolation(t, err, ReasonAlreadyCheckedOut)
	assert.Equal(t, 4, f.copies(t, book))

	res, err = f.svc.Return(ctx, userA, book)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, res.Status)
	assert.Equal(t, TypeReturn, res.Transaction.TransactionType)
	assert.Nil(t, res.Transaction.DueDate)
	assert.Equal(t, 5, f.copies(t, book))

	_, err = f.svc.Return(ctx, userA, book)
	assertViolation(t, err, ReasonNotCheckedOut)
	assert.Equal(t, 5, f.copies(t, book))

	hist, err := f.svc.History(ctx, userA)
	require.NoError(t, err)
	require.Len(t, hist.Transactions, 2)
	assert.Equal(t, TypeReturn, hist.Transactions[0].TransactionType)
	assert.Equal(t, TypeCheckout, hist.Transactions[1].TransactionType)
	assert.Equal(t, "2024-03-15", *hist.Transactions[1].DueDate)
	assert.Equal(t, "Book 9780123456789", hist.Transactions[0].BookTitle)
}

func TestCheckoutAgainAfterReturn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := f.givenBook(t, "9780123456789", 1)
	user := f.givenUser(t, true)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Checkout(ctx, user, book)
		require.NoError(t, err, "round %d", i)
		assert.Equal(t, 0, f.copies(t, book))
		_, err = f.svc.Return(ctx, user, book)
		require.NoError(t, err, "round %d", i)
		assert.Equal(t, 1, f.copies(t, book))
	}

	hist, err := f.svc.History(ctx, user)
	require.NoError(t, err)
	assert.Len(t, hist.Transactions, 6)
}

func TestReturnWithoutCheckoutRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := f.givenBook(t, "9780123456789", 3)
	userA := f.givenUser(t, true)
	userB := f.givenUser(t, true)

	_, err := f.svc.Return(ctx, userA, book)
	assertViolation(t, err, ReasonNotCheckedOut)

	// 他人の貸出は返却できない
	_, err = f.svc.Checkout(ctx, userB, book)
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, userA, book)
	assertViolation(t, err, ReasonNotCheckedOut)
	assert.Equal(t, 2, f.copies(t, book))
}

func TestCheckoutWithNoCopiesRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	empty := f.givenBook(t, "9780000000001", 0)
	single := f.givenBook(t, "9780000000002", 1)
	userA := f.givenUser(t, true)
	userB := f.givenUser(t, true)

	_, err := f.svc.Checkout(ctx, userA, empty)
	assertViolation(t, err, ReasonNoCopies)

	// 過去に借りて返した利用者でも在庫0なら拒否
	_, err = f.svc.Checkout(ctx, userA, single)
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, userA, single)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, userB, single)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, userA, single)
	assertViolation(t, err, ReasonNoCopies)
	assert.Equal(t, 0, f.copies(t, single))
}

func TestCheckoutPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := f.givenBook(t, "9780123456789", 2)
	active := f.givenUser(t, true)
	inactive := f.givenUser(t, false)

	_, err := f.svc.Checkout(ctx, inactive, book)
	assertViolation(t, err, ReasonUserInactive)

	_, err = f.svc.Checkout(ctx, active, "no-such-book")
	assert.Equal(t, 404, apperr.ToHTTPStatus(err))

	_, err = f.svc.Checkout(ctx, "no-such-user", book)
	assert.Equal(t, 404, apperr.ToHTTPStatus(err))

	_, err = f.svc.Return(ctx, active, "no-such-book")
	assert.Equal(t, 404, apperr.ToHTTPStatus(err))

	_, err = f.svc.Checkout(ctx, "", book)
	assert.Equal(t, 400, apperr.ToHTTPStatus(err))

	assert.Equal(t, 2, f.copies(t, book))
}

func TestConcurrentCheckoutOfLastCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := f.givenBook(t, "9780123456789", 1)
	users := []string{f.givenUser(t, true), f.givenUser(t, true)}

	var wg sync.WaitGroup
	gate := make(chan struct{})
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			<-gate
			_, errs[i] = f.svc.Checkout(ctx, u, book)
		}(i, u)
	}
	close(gate)
	wg.Wait()

	success := 0
	for _, err := range errs {
		if err == nil {
			success++
			continue
		}
		assertViolation(t, err, ReasonNoCopies)
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, 0, f.copies(t, book))
}

func TestConcurrentCheckoutSamePair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := f.givenBook(t, "9780123456789", 5)
	user := f.givenUser(t, true)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(ctx, user, book)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		assertViolation(t, err, ReasonAlreadyCheckedOut)
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, 4, f.copies(t, book))
}

func TestCopiesNeverNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const initial = 2
	book := f.givenBook(t, "9780123456789", initial)
	users := make([]string, 4)
	for i := range users {
		users[i] = f.givenUser(t, true)
	}

	rng := rand.New(rand.NewSource(42))
	out := map[string]bool{}
	for step := 0; step < 200; step++ {
		u := users[rng.Intn(len(users))]
		if rng.Intn(2) == 0 {
			if _, err := f.svc.Checkout(ctx, u, book); err == nil {
				out[u] = true
			} else {
				_, ok := apperr.As(err)
				require.True(t, ok, "step %d: %v", step, err)
			}
		} else {
			if _, err := f.svc.Return(ctx, u, book); err == nil {
				out[u] = false
			} else {
				assertViolation(t, err, ReasonNotCheckedOut)
			}
		}

		outstanding := 0
		for _, v := range out {
			if v {
				outstanding++
			}
		}
		c := f.copies(t, book)
		require.GreaterOrEqual(t, c, 0, "step %d", step)
		require.Equal(t, initial-outstanding, c, "step %d", step)
	}
}

func TestDueDateUsesLoanPeriod(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), f.svc.DueDate(time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), f.svc.WithLoanPeriod(7).DueDate(start))
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), f.svc.WithLoanPeriod(0).DueDate(start))
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b1 := f.givenBook(t, "9780000000001", 1)
	b2 := f.givenBook(t, "9780000000002", 1)
	userA := f.givenUser(t, true)
	userB := f.givenUser(t, true)

	_, err := f.svc.History(ctx, "no-such-user")
	assert.Equal(t, 404, apperr.ToHTTPStatus(err))

	hist, err := f.svc.History(ctx, userA)
	require.NoError(t, err)
	assert.Empty(t, hist.Transactions)

	_, err = f.svc.Checkout(ctx, userA, b1)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, userB, b2)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, userA, b2)
	assertViolation(t, err, ReasonNoCopies)

	hist, err = f.svc.History(ctx, userA)
	require.NoError(t, err)
	require.Len(t, hist.Transactions, 1)
	assert.Equal(t, b1, hist.Transactions[0].BookID)
	assert.Equal(t, userA, hist.UserID)
}

func TestListAndGetMine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := f.givenBook(t, "9780123456789", 2)
	userA := f.givenUser(t, true)
	userB := f.givenUser(t, true)

	a1, err := f.svc.Checkout(ctx, userA, book)
	require.NoError(t, err)
	a2, err := f.svc.Return(ctx, userA, book)
	require.NoError(t, err)
	b1, err := f.svc.Checkout(ctx, userB, book)
	require.NoError(t, err)

	list, err := f.svc.ListMine(ctx, userA, web.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.Total)
	require.Len(t, list.Items, 2)
	assert.Equal(t, a2.Transaction.ID, list.Items[0].ID)
	assert.Equal(t, a1.Transaction.ID, list.Items[1].ID)

	got, err := f.svc.GetMine(ctx, userA, a1.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, TypeCheckout, got.TransactionType)

	_, err = f.svc.GetMine(ctx, userA, b1.Transaction.ID)
	assert.Equal(t, 404, apperr.ToHTTPStatus(err))
}

func TestDeletingBookCascadesTransactions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := f.givenBook(t, "9780123456789", 1)
	user := f.givenUser(t, true)
	_, err := f.svc.Checkout(ctx, user, book)
	require.NoError(t, err)

	n, err := catalog.NewStore(f.conn).Delete(ctx, book)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	hist, err := f.svc.History(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, hist.Transactions)
}

func TestDeletingUserWithLoanIsRefused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	book := f.givenBook(t, "9780123456789", 1)
	user := f.givenUser(t, true)
	members := membership.NewServiceWith(membership.NewStore(f.conn), f.clock, clock.ULID(), f.svc.log)

	_, err := f.svc.Checkout(ctx, user, book)
	require.NoError(t, err)

	err = members.DeleteUser(ctx, user)
	assertViolation(t, err, membership.ReasonHasOutstandingLoans)
	assert.Equal(t, 0, f.copies(t, book))
	hist, err := f.svc.History(ctx, user)
	require.NoError(t, err)
	assert.Len(t, hist.Transactions, 1)

	// 返却後は削除でき、在庫は戻ったまま
	_, err = f.svc.Return(ctx, user, book)
	require.NoError(t, err)
	require.NoError(t, members.DeleteUser(ctx, user))
	assert.Equal(t, 1, f.copies(t, book))
	hist, err = f.svc.History(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, hist.Transactions)

	assert.Equal(t, 404, apperr.ToHTTPStatus(members.DeleteUser(ctx, user)))
}
