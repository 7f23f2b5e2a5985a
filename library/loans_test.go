package library

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func countLoans(t *testing.T, db *Database) int {
	t.Helper()
	var n int
	if err := db.db.Get(&n, `SELECT COUNT(*) FROM loans`); err != nil {
		t.Fatalf("count loans: %v", err)
	}
	return n
}

func TestCheckoutDefaultsDueDateToFourteenDays(t *testing.T) {
	db := tempDB(t)
	book := addBook(t, db, "Book", "Author", 1)
	m := addMember(t, db, "Alice", "S001")

	loans := lend(t, db, m.ID, testToday, book.ID)
	require.Len(t, loans, 1)
	assert.Equal(t, testToday, loans[0].BorrowedDate)
	assert.Equal(t, testToday.AddDays(14), loans[0].DueDate)
	assert.Nil(t, loans[0].ReturnedDate)
	assert.Equal(t, "Book", loans[0].BookTitle)
	assert.Equal(t, "Alice", loans[0].MemberName)
}

func TestCheckoutExplicitDueDate(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 1)
	m := addMember(t, db, "Alice", "S001")

	due := testToday.AddDays(7)
	loans, err := db.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookIDs: []int64{book.ID}, BorrowedDate: testToday, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, due, loans[0].DueDate)

	early := testToday.AddDays(-1)
	_, err = db.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookIDs: []int64{book.ID}, BorrowedDate: testToday, DueDate: &early})
	assert.True(t, IsValidation(err))
}

func TestCheckoutUnknownReferences(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 1)
	m := addMember(t, db, "Alice", "S001")

	_, err := db.Checkout(ctx, CheckoutRequest{MemberID: 999, BookIDs: []int64{book.ID}, BorrowedDate: testToday})
	assert.True(t, IsNotFound(err))
	_, err = db.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BookIDs: []int64{999}, BorrowedDate: testToday})
	assert.True(t, IsNotFound(err))
	_, err = db.Checkout(ctx, CheckoutRequest{MemberID: m.ID, BorrowedDate: testToday})
	assert.True(t, IsValidation(err))
	assert.Zero(t, countLoans(t, db))
}

func TestBatchCheckoutRejectedAtomically(t *testing.T) {
	db := tempDB(t)
	a := addBook(t, db, "Book A", "Author", 1)
	b := addBook(t, db, "Book B", "Author", 3)
	m := addMember(t, db, "Alice", "S001")

	_, err := db.Checkout(context.Background(), CheckoutRequest{
		MemberID:     m.ID,
		BookIDs:      []int64{a.ID, a.ID, b.ID},
		BorrowedDate: testToday,
	})
	var ce *CapacityExceededError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, a.ID, ce.BookID)
	assert.Equal(t, "Book A", ce.Title)
	assert.Equal(t, 2, ce.Requested)
	assert.Equal(t, 1, ce.Available)
	assert.Equal(t, 1, ce.Total)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Zero(t, countLoans(t, db))
}

func TestBatchCheckoutConsumesOneCopyPerOccurrence(t *testing.T) {
	db := tempDB(t)
	a := addBook(t, db, "Book A", "Author", 2)
	b := addBook(t, db, "Book B", "Author", 1)
	m := addMember(t, db, "Alice", "S001")

	loans := lend(t, db, m.ID, testToday, a.ID, b.ID, a.ID)
	assert.Len(t, loans, 3)

	got, err := db.GetBook(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentBorrowedCount)
	assert.True(t, got.IsFullyBorrowed)

	_, err = db.Checkout(context.Background(), CheckoutRequest{MemberID: m.ID, BookIDs: []int64{b.ID}, BorrowedDate: testToday})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestConcurrentCheckoutsNeverOverAllocate(t *testing.T) {
	db := tempDB(t)
	book := addBook(t, db, "Popular", "Author", 3)
	m := addMember(t, db, "Alice", "S001")

	var ok, full atomic.Int32
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := db.Checkout(context.Background(), CheckoutRequest{MemberID: m.ID, BookIDs: []int64{book.ID}, BorrowedDate: testToday})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrCapacityExceeded):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 3, ok.Load())
	assert.EqualValues(t, 17, full.Load())

	got, err := db.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity)
}

func TestReturnLoan(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 1)
	m := addMember(t, db, "Alice", "S001")
	loan := lend(t, db, m.ID, testToday, book.ID)[0]

	_, err := db.ReturnLoan(ctx, loan.ID, testToday.AddDays(-1))
	assert.True(t, IsValidation(err), "return before borrow must be refused")

	got, err := db.ReturnLoan(ctx, loan.ID, testToday.AddDays(3))
	require.NoError(t, err)
	require.NotNil(t, got.ReturnedDate)
	assert.Equal(t, testToday.AddDays(3), *got.ReturnedDate)
	assert.False(t, got.ReturnedDate.Before(got.BorrowedDate))

	_, err = db.ReturnLoan(ctx, loan.ID, testToday.AddDays(4))
	var are *AlreadyReturnedError
	require.ErrorAs(t, err, &are)
	assert.Equal(t, "Book", are.Title)

	_, err = db.ReturnLoan(ctx, 999, testToday)
	assert.True(t, IsNotFound(err))

	b, err := db.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableQuantity)
}

func TestBatchReturnPartialSuccess(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	open := addBook(t, db, "Open Book", "Author", 1)
	closed := addBook(t, db, "Closed Book", "Author", 1)
	m := addMember(t, db, "Alice", "S001")
	loan1 := lend(t, db, m.ID, testToday, open.ID)[0]
	loan2 := lend(t, db, m.ID, testToday, closed.ID)[0]
	_, err := db.ReturnLoan(ctx, loan2.ID, testToday)
	require.NoError(t, err)

	res, err := db.ReturnLoans(ctx, []int64{loan1.ID, loan2.ID}, testToday.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReturnedCount)
	assert.Equal(t, []string{"Closed Book"}, res.AlreadyReturned)
	require.Len(t, res.Returned, 1)
	assert.Equal(t, loan1.ID, res.Returned[0].ID)

	got, err := db.GetLoan(ctx, loan1.ID, testToday)
	require.NoError(t, err)
	assert.False(t, got.Outstanding())
}

func TestBatchReturnIgnoresRepeatedIDs(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 2)
	m := addMember(t, db, "Alice", "S001")
	loans := lend(t, db, m.ID, testToday, book.ID, book.ID)

	res, err := db.ReturnLoans(ctx, []int64{loans[1].ID, loans[0].ID, loans[1].ID}, testToday)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ReturnedCount)
	assert.Empty(t, res.AlreadyReturned)

	assert.Equal(t, []int64{3, 1, 2}, uniqueIDs([]int64{3, 1, 3, 2, 1}))
	assert.Empty(t, uniqueIDs(nil))
}

func TestBatchReturnUnknownIDWritesNothing(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 1)
	m := addMember(t, db, "Alice", "S001")
	loan := lend(t, db, m.ID, testToday, book.ID)[0]

	_, err := db.ReturnLoans(ctx, []int64{loan.ID, 12345}, testToday)
	assert.True(t, IsNotFound(err))

	got, err := db.GetLoan(ctx, loan.ID, testToday)
	require.NoError(t, err)
	assert.True(t, got.Outstanding())
}

func TestUpdateLoanValidatesDates(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 1)
	m := addMember(t, db, "Alice", "S001")
	loan := lend(t, db, m.ID, testToday, book.ID)[0]

	before := testToday.AddDays(-2)
	_, err := db.UpdateLoan(ctx, loan.ID, LoanEdit{BorrowedDate: testToday, DueDate: testToday.AddDays(14), ReturnedDate: &before})
	assert.True(t, IsValidation(err))
	_, err = db.UpdateLoan(ctx, loan.ID, LoanEdit{BorrowedDate: testToday, DueDate: before})
	assert.True(t, IsValidation(err))

	got, err := db.UpdateLoan(ctx, loan.ID, LoanEdit{BorrowedDate: testToday.AddDays(-1), DueDate: testToday.AddDays(20)})
	require.NoError(t, err)
	assert.Equal(t, testToday.AddDays(20), got.DueDate)
}

func TestReopeningLoanNeedsAFreeCopy(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 1)
	alice := addMember(t, db, "Alice", "S001")
	bob := addMember(t, db, "Bob", "S002")

	first := lend(t, db, alice.ID, testToday, book.ID)[0]
	_, err := db.ReturnLoan(ctx, first.ID, testToday)
	require.NoError(t, err)
	lend(t, db, bob.ID, testToday, book.ID)

	_, err = db.UpdateLoan(ctx, first.ID, LoanEdit{BorrowedDate: testToday, DueDate: testToday.AddDays(14)})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestDeleteLoan(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 1)
	m := addMember(t, db, "Alice", "S001")
	loan := lend(t, db, m.ID, testToday, book.ID)[0]

	require.NoError(t, db.DeleteLoan(ctx, loan.ID))
	assert.True(t, IsNotFound(db.DeleteLoan(ctx, loan.ID)))
	assert.Zero(t, countLoans(t, db))
}

func TestListLoansFilters(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "銀河鉄道の夜", "宮沢賢治", 5)
	alice := addMember(t, db, "Alice", "S001")
	bob := addMember(t, db, "Bob", "S002")

	overdue := lend(t, db, alice.ID, testToday.AddDays(-30), book.ID)[0]
	returned := lend(t, db, alice.ID, testToday.AddDays(-5), book.ID)[0]
	_, err := db.ReturnLoan(ctx, returned.ID, testToday)
	require.NoError(t, err)
	lend(t, db, bob.ID, testToday, book.ID)

	count := func(f LoanFilter) int {
		t.Helper()
		page, err := db.ListLoans(ctx, f, testToday, PageRequest{})
		require.NoError(t, err)
		return page.Meta.Total
	}
	assert.Equal(t, 3, count(LoanFilter{}))
	assert.Equal(t, 2, count(LoanFilter{MemberID: alice.ID}))
	assert.Equal(t, 2, count(LoanFilter{Status: LoanStatusActive}))
	assert.Equal(t, 1, count(LoanFilter{Status: LoanStatusReturned}))
	assert.Equal(t, 1, count(LoanFilter{Status: LoanStatusOverdue}))
	assert.Equal(t, 1, count(LoanFilter{Search: "S002"}))
	assert.Equal(t, 3, count(LoanFilter{Search: "賢治"}))
	assert.Equal(t, 0, count(LoanFilter{Search: "S00_"}))

	page, err := db.ListLoans(ctx, LoanFilter{Status: LoanStatusOverdue}, testToday, PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, overdue.ID, page.Data[0].ID)
	assert.True(t, page.Data[0].IsOverdue)
	assert.Equal(t, 16, page.Data[0].OverdueDays)
}

func TestLoansOfMember(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 2)
	m := addMember(t, db, "Alice", "S001")
	done := lend(t, db, m.ID, testToday.AddDays(-3), book.ID)[0]
	_, err := db.ReturnLoan(ctx, done.ID, testToday)
	require.NoError(t, err)
	lend(t, db, m.ID, testToday, book.ID)

	got, err := db.LoansOfMember(ctx, m.ID, testToday)
	require.NoError(t, err)
	assert.Len(t, got.ActiveBorrows, 1)
	assert.Len(t, got.BorrowHistory, 1)
	assert.Equal(t, 2, got.TotalBorrowsCount)

	_, err = db.LoansOfMember(ctx, 999, testToday)
	assert.True(t, IsNotFound(err))
}

func TestRecentLoans(t *testing.T) {
	db := tempDB(t)
	book := addBook(t, db, "Book", "Author", 20)
	m := addMember(t, db, "Alice", "S001")
	for i := 0; i < 12; i++ {
		lend(t, db, m.ID, testToday, book.ID)
	}
	loans, err := db.RecentLoans(context.Background(), 0, testToday)
	require.NoError(t, err)
	assert.Len(t, loans, 10)
	assert.Greater(t, loans[0].ID, loans[9].ID)
}
