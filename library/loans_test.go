package library

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

// assertCopyAccounting checks that every copy not on the shelf is covered by
// exactly one Issued loan.
func assertCopyAccounting(t *testing.T, db *Database, bookID int64) {
	t.Helper()
	var open int
	require.NoError(t, db.db.Get(&open, `SELECT COUNT(*) FROM issues WHERE book_id=? AND status=?`, bookID, IssueIssued))
	b, err := db.GetBook(context.Background(), bookID)
	require.NoError(t, err)
	assert.Equal(t, open, b.OnLoan(), "total - available must equal open loans")
	assert.GreaterOrEqual(t, b.AvailableCopies, 0)
	assert.LessOrEqual(t, b.AvailableCopies, b.TotalCopies)
}

func TestIssueAndReturnScenario(t *testing.T) {
	clock := newFakeClock()
	db := tempDB(t, WithClock(clock))
	ctx := context.Background()

	bookID, err := db.AddBook(ctx, NewBook{Title: "Dune", Author: "Herbert", ISBN: "111", Copies: 2})
	require.NoError(t, err)
	a := addMember(t, db, "a")
	b := addMember(t, db, "b")
	c := addMember(t, db, "c")

	book, err := db.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 2, book.AvailableCopies)

	issueA, err := db.IssueBook(ctx, bookID, a, 14)
	require.NoError(t, err)
	assert.Equal(t, IssueIssued, issueA.Status)
	assert.True(t, issueA.DueAt.Equal(t0.Add(14*day)))
	assert.NotEmpty(t, issueA.Ref)
	book, _ = db.GetBook(ctx, bookID)
	assert.Equal(t, 1, book.AvailableCopies)

	_, err = db.IssueBook(ctx, bookID, b, 14)
	require.NoError(t, err)
	book, _ = db.GetBook(ctx, bookID)
	assert.Equal(t, 0, book.AvailableCopies)

	_, err = db.IssueBook(ctx, bookID, c, 14)
	require.ErrorIs(t, err, ErrUnavailable)
	book, _ = db.GetBook(ctx, bookID)
	assert.Equal(t, 0, book.AvailableCopies, "a refused issue must not change the count")
	assertCopyAccounting(t, db, bookID)

	clock.Advance(3 * day)
	out, err := db.ReturnBook(ctx, issueA.ID)
	require.NoError(t, err)
	assert.Equal(t, bookID, out.BookID)
	assert.Equal(t, a, out.MemberID)
	assert.True(t, out.ReturnedAt.Equal(t0.Add(3*day)))

	book, _ = db.GetBook(ctx, bookID)
	assert.Equal(t, 1, book.AvailableCopies)
	stored, err := db.GetIssueByID(ctx, issueA.ID)
	require.NoError(t, err)
	assert.Equal(t, IssueReturned, stored.Status)
	require.True(t, stored.ReturnedAt.Valid)
	assert.True(t, stored.ReturnedAt.Time.Equal(t0.Add(3*day)))
	assertCopyAccounting(t, db, bookID)
}

func TestIssueBookRejections(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	bookID := addBook(t, db, "Book", 1)
	member := addMember(t, db, "ann")
	inactive := addMember(t, db, "idle")
	require.NoError(t, db.UpdateMemberStatus(ctx, inactive, MemberInactive))

	tests := []struct {
		name     string
		book     int64
		member   int64
		loanDays int
		want     error
	}{
		{"missing book", 999, member, 14, ErrUnavailable},
		{"missing member", bookID, 999, 14, ErrNotFound},
		{"inactive member", bookID, inactive, 14, ErrPreconditionFailed},
		{"zero loan days", bookID, member, 0, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.IssueBook(ctx, tt.book, tt.member, tt.loanDays)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	b, err := db.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies)
	assertCopyAccounting(t, db, bookID)
}

func TestReturnBookErrors(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	bookID := addBook(t, db, "Book", 1)
	member := addMember(t, db, "ann")

	_, err := db.ReturnBook(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	iss, err := db.IssueBook(ctx, bookID, member, 7)
	require.NoError(t, err)
	_, err = db.ReturnBook(ctx, iss.ID)
	require.NoError(t, err)

	_, err = db.ReturnBook(ctx, iss.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	b, err := db.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies, "a second return must not add a copy")
}

func TestConcurrentIssueNeverOversells(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	const copies, borrowers = 3, 10
	bookID := addBook(t, db, "Popular", copies)

	members := make([]int64, borrowers)
	for i := range members {
		members[i] = addMember(t, db, fmt.Sprintf("m%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, borrowers)
	for _, m := range members {
		wg.Add(1)
		go func(m int64) {
			defer wg.Done()
			_, err := db.IssueBook(ctx, bookID, m, 14)
			errs <- err
		}(m)
	}
	wg.Wait()
	close(errs)

	var ok, unavailable int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrUnavailable):
			unavailable++
		}
	}
	assert.Equal(t, copies, ok)
	assert.Equal(t, borrowers-copies, unavailable)

	b, err := db.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 0, b.AvailableCopies)
	assertCopyAccounting(t, db, bookID)
}

func TestConcurrentReturnClosesOnce(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	bookID := addBook(t, db, "Book", 1)
	iss, err := db.IssueBook(ctx, bookID, addMember(t, db, "ann"), 14)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.ReturnBook(ctx, iss.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidState)
	}
	assert.Equal(t, 1, ok)
	assertCopyAccounting(t, db, bookID)
}

func TestConcurrentDeleteMemberAndIssue(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	const rounds = 20
	bookID := addBook(t, db, "Contested", rounds)

	for i := 0; i < rounds; i++ {
		memberID := addMember(t, db, fmt.Sprintf("racer%d", i))

		var wg sync.WaitGroup
		start := make(chan struct{})
		var issueErr, deleteErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, issueErr = db.IssueBook(ctx, bookID, memberID, 14)
		}()
		go func() {
			defer wg.Done()
			<-start
			deleteErr = db.DeleteMember(ctx, memberID)
		}()
		close(start)
		wg.Wait()

		switch {
		case issueErr == nil:
			assert.ErrorIs(t, deleteErr, ErrPreconditionFailed, "round %d", i)
		case deleteErr == nil:
			assert.ErrorIs(t, issueErr, ErrNotFound, "round %d", i)
		default:
			t.Errorf("round %d: both failed: issue=%v delete=%v", i, issueErr, deleteErr)
		}
		assert.True(t, issueErr == nil || IsExpected(issueErr), "round %d: %v", i, issueErr)
		assert.True(t, deleteErr == nil || IsExpected(deleteErr), "round %d: %v", i, deleteErr)
	}

	var orphaned int
	require.NoError(t, db.db.GetContext(ctx, &orphaned,
		`SELECT COUNT(*) FROM issues WHERE status=? AND member_id IS NULL`, IssueIssued))
	assert.Zero(t, orphaned, "an open loan lost its member")
	assertCopyAccounting(t, db, bookID)
}

func TestReturnBookWithFine(t *testing.T) {
	clock := newFakeClock()
	db := tempDB(t, WithClock(clock))
	ctx := context.Background()
	bookID := addBook(t, db, "Late", 1)
	member := addMember(t, db, "ann")
	policy := FinePolicy{PerDay: 10, GraceDays: 3}

	iss, err := db.IssueBook(ctx, bookID, member, 14)
	require.NoError(t, err)

	clock.Advance(24 * day) // ten days past due
	out, err := db.ReturnBookWithFine(ctx, iss.ID, policy)
	require.NoError(t, err)
	assert.Equal(t, 7, out.OverdueDays)
	assert.Equal(t, int64(70), out.FineAmount)
	assert.NotZero(t, out.FineID)

	fines, err := db.ListFines(ctx, iss.ID)
	require.NoError(t, err)
	require.Len(t, fines, 1)
	assert.Equal(t, int64(70), fines[0].Amount)
	assert.Equal(t, FinePaid, fines[0].Status)
	assertCopyAccounting(t, db, bookID)
}

func TestReturnBookWithFineOnTime(t *testing.T) {
	clock := newFakeClock()
	db := tempDB(t, WithClock(clock))
	ctx := context.Background()
	bookID := addBook(t, db, "Prompt", 1)

	iss, err := db.IssueBook(ctx, bookID, addMember(t, db, "ann"), 14)
	require.NoError(t, err)
	clock.Advance(5 * day)

	out, err := db.ReturnBookWithFine(ctx, iss.ID, DefaultFinePolicy)
	require.NoError(t, err)
	assert.Zero(t, out.FineAmount)
	assert.Zero(t, out.FineID)

	fines, err := db.ListFines(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, fines)
}

func TestRecordFine(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	bookID := addBook(t, db, "Book", 1)
	iss, err := db.IssueBook(ctx, bookID, addMember(t, db, "ann"), 14)
	require.NoError(t, err)

	_, err = db.RecordFine(ctx, 999, 50)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.RecordFine(ctx, iss.ID, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	id, err := db.RecordFine(ctx, iss.ID, 50)
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = db.RecordFine(ctx, iss.ID, 50)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	fines, err := db.ListFines(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, fines, 1)
}

func TestQuoteFine(t *testing.T) {
	clock := newFakeClock()
	db := tempDB(t, WithClock(clock))
	ctx := context.Background()
	bookID := addBook(t, db, "Book", 1)
	iss, err := db.IssueBook(ctx, bookID, addMember(t, db, "ann"), 7)
	require.NoError(t, err)

	clock.Advance(10 * day)
	days, amount, err := db.QuoteFine(ctx, iss.ID, FinePolicy{PerDay: 25})
	require.NoError(t, err)
	assert.Equal(t, 3, days)
	assert.Equal(t, int64(75), amount)

	fines, err := db.ListFines(ctx, iss.ID)
	require.NoError(t, err)
	assert.Empty(t, fines, "quoting must not record anything")

	_, err = db.ReturnBook(ctx, iss.ID)
	require.NoError(t, err)
	_, _, err = db.QuoteFine(ctx, iss.ID, DefaultFinePolicy)
	assert.ErrorIs(t, err, ErrInvalidState)
}
