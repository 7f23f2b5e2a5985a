package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

// LoanPeriodDays is the default lending period.
const LoanPeriodDays = 14

// DueDateFor returns the default due date of a loan starting on borrowed.
func DueDateFor(borrowed Date) Date { return borrowed.AddDays(LoanPeriodDays) }

const loanColumns = `l.id, l.book_id, l.member_id, l.borrowed_date, l.due_date, l.returned_date, l.created_at,
	b.title AS book_title, b.author AS book_author,
	m.name AS member_name, m.student_number, m.grade, m.class`

func loansQuery() *goqu.SelectDataset {
	return from(goqu.T("loans").As("l")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Join(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("l.member_id")))).
		Select(goqu.L(loanColumns))
}

func getLoan(ctx context.Context, q sqlx.QueryerContext, id int64) (*LoanDetail, error) {
	loans, err := selectAll[*LoanDetail](ctx, q, loansQuery().Where(goqu.I("l.id").Eq(id)))
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, notFound("borrow", id)
	}
	return loans[0], nil
}

func loansByID(ctx context.Context, q sqlx.QueryerContext, ids []int64) ([]*LoanDetail, error) {
	if len(ids) == 0 {
		return []*LoanDetail{}, nil
	}
	return selectAll[*LoanDetail](ctx, q, loansQuery().Where(goqu.I("l.id").In(ids)).Order(goqu.I("l.id").Asc()))
}

// GetLoan fetches one loan with its book and member.
func (d *Database) GetLoan(ctx context.Context, id int64, today Date) (*LoanDetail, error) {
	l, err := getLoan(ctx, d.db, id)
	if err != nil {
		return nil, err
	}
	l.markOverdue(today)
	return l, nil
}

// ---------------------------------------------------------------------------
// Checkout
// ---------------------------------------------------------------------------

// CheckoutRequest lends one copy per entry of BookIDs to a member. A book id
// may repeat; each occurrence takes another copy.
type CheckoutRequest struct {
	MemberID     int64
	BookIDs      []int64
	BorrowedDate Date
	DueDate      *Date
}

// aggregateDemand counts copies per distinct book, keeping first-seen order.
func aggregateDemand(bookIDs []int64) (map[int64]int, []int64) {
	demand := make(map[int64]int, len(bookIDs))
	var order []int64
	for _, id := range bookIDs {
		if demand[id] == 0 {
			order = append(order, id)
		}
		demand[id]++
	}
	return demand, order
}

// uniqueIDs drops repeated ids, keeping first-seen order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Checkout validates the aggregate demand of every requested book against
// its free copies, then creates all loans in the same transaction. Either
// every loan is created or none is.
func (d *Database) Checkout(ctx context.Context, req CheckoutRequest) ([]*LoanDetail, error) {
	if len(req.BookIDs) == 0 {
		return nil, invalid("book_ids", "at least one book is required")
	}
	if req.BorrowedDate.IsZero() {
		return nil, invalid("borrowed_date", "is required")
	}
	due := DueDateFor(req.BorrowedDate)
	if req.DueDate != nil && !req.DueDate.IsZero() {
		if req.DueDate.Before(req.BorrowedDate) {
			return nil, invalid("due_date", "must not be before the borrowed date")
		}
		due = *req.DueDate
	}

	demand, order := aggregateDemand(req.BookIDs)
	ids := make([]int64, 0, len(req.BookIDs))
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := getMember(ctx, tx, req.MemberID); err != nil {
			return err
		}
		for _, bookID := range order {
			book, err := getBook(ctx, tx, bookID)
			if err != nil {
				return err
			}
			if need := demand[bookID]; need > book.AvailableQuantity {
				return &CapacityExceededError{
					BookID:    book.ID,
					Title:     book.Title,
					Requested: need,
					Available: book.AvailableQuantity,
					Total:     book.Quantity,
				}
			}
		}

		stmt := tx.StmtxContext(ctx, d.insertLoanStmt)
		for _, bookID := range req.BookIDs {
			res, err := stmt.ExecContext(ctx, bookID, req.MemberID, req.BorrowedDate, due)
			if err != nil {
				return fmt.Errorf("insert loan: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loansByID(ctx, d.db, ids)
}

// ---------------------------------------------------------------------------
// Return
// ---------------------------------------------------------------------------

// ReturnLoan closes an outstanding loan on the given day.
func (d *Database) ReturnLoan(ctx context.Context, loanID int64, on Date) (*LoanDetail, error) {
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		loan, err := getLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if !loan.Outstanding() {
			return &AlreadyReturnedError{LoanID: loan.ID, Title: loan.BookTitle}
		}
		return closeLoan(ctx, tx, loan, on)
	})
	if err != nil {
		return nil, err
	}
	return getLoan(ctx, d.db, loanID)
}

func closeLoan(ctx context.Context, tx *sqlx.Tx, loan *LoanDetail, on Date) error {
	if on.Before(loan.BorrowedDate) {
		return invalid("returned_date", "loan %d cannot be returned before it was borrowed (%s)", loan.ID, loan.BorrowedDate)
	}
	_, err := tx.ExecContext(ctx, `UPDATE loans SET returned_date=? WHERE id=? AND returned_date IS NULL`, on, loan.ID)
	if err != nil {
		return fmt.Errorf("return loan %d: %w", loan.ID, err)
	}
	return nil
}

// BatchReturnResult reports a batch return. Loans that were already closed
// are listed by title instead of failing the batch.
type BatchReturnResult struct {
	ReturnedCount   int           `json:"returned_count"`
	AlreadyReturned []string      `json:"already_returned"`
	Returned        []*LoanDetail `json:"returned_borrows"`
}

// ReturnLoans closes every outstanding loan in loanIDs. Unknown ids fail the
// whole batch before anything is written.
func (d *Database) ReturnLoans(ctx context.Context, loanIDs []int64, on Date) (*BatchReturnResult, error) {
	if len(loanIDs) == 0 {
		return nil, invalid("borrow_ids", "at least one borrow is required")
	}
	unique := uniqueIDs(loanIDs)

	result := &BatchReturnResult{AlreadyReturned: []string{}}
	var closed []int64
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		loans := make([]*LoanDetail, 0, len(unique))
		for _, id := range unique {
			loan, err := getLoan(ctx, tx, id)
			if err != nil {
				return err
			}
			loans = append(loans, loan)
		}
		for _, loan := range loans {
			if !loan.Outstanding() {
				result.AlreadyReturned = append(result.AlreadyReturned, loan.BookTitle)
				continue
			}
			if err := closeLoan(ctx, tx, loan, on); err != nil {
				return err
			}
			closed = append(closed, loan.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.ReturnedCount = len(closed)
	if result.Returned, err = loansByID(ctx, d.db, closed); err != nil {
		return nil, err
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Corrections
// ---------------------------------------------------------------------------

// LoanEdit replaces the dates of a loan. A nil ReturnedDate reopens it.
type LoanEdit struct {
	BorrowedDate Date
	DueDate      Date
	ReturnedDate *Date
}

// UpdateLoan corrects a loan's dates. Reopening a returned loan takes a
// copy again and is refused when none is free.
func (d *Database) UpdateLoan(ctx context.Context, id int64, edit LoanEdit) (*LoanDetail, error) {
	switch {
	case edit.BorrowedDate.IsZero():
		return nil, invalid("borrowed_date", "is required")
	case edit.DueDate.IsZero():
		return nil, invalid("due_date", "is required")
	case edit.DueDate.Before(edit.BorrowedDate):
		return nil, invalid("due_date", "must not be before the borrowed date")
	case edit.ReturnedDate != nil && edit.ReturnedDate.Before(edit.BorrowedDate):
		return nil, invalid("returned_date", "must not be before the borrowed date")
	}

	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getLoan(ctx, tx, id)
		if err != nil {
			return err
		}
		if !current.Outstanding() && edit.ReturnedDate == nil {
			book, err := getBook(ctx, tx, current.BookID)
			if err != nil {
				return err
			}
			if book.AvailableQuantity < 1 {
				return &CapacityExceededError{
					BookID: book.ID, Title: book.Title, Requested: 1,
					Available: book.AvailableQuantity, Total: book.Quantity,
				}
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE loans SET borrowed_date=?, due_date=?, returned_date=? WHERE id=?`,
			edit.BorrowedDate, edit.DueDate, edit.ReturnedDate, id)
		if err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return getLoan(ctx, d.db, id)
}

// DeleteLoan removes a loan record outright.
func (d *Database) DeleteLoan(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM loans WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("borrow", id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

// Loan list status filters.
const (
	LoanStatusActive   = "active"
	LoanStatusReturned = "returned"
	LoanStatusOverdue  = "overdue"
)

// LoanFilter narrows loan listings.
type LoanFilter struct {
	MemberID int64
	BookID   int64
	Status   string
	Search   string
}

func (f LoanFilter) apply(ds *goqu.SelectDataset, today Date) *goqu.SelectDataset {
	if f.MemberID != 0 {
		ds = ds.Where(goqu.I("l.member_id").Eq(f.MemberID))
	}
	if f.BookID != 0 {
		ds = ds.Where(goqu.I("l.book_id").Eq(f.BookID))
	}
	switch f.Status {
	case LoanStatusActive:
		ds = ds.Where(goqu.I("l.returned_date").IsNull())
	case LoanStatusReturned:
		ds = ds.Where(goqu.I("l.returned_date").IsNotNull())
	case LoanStatusOverdue:
		ds = ds.Where(goqu.I("l.returned_date").IsNull(), goqu.I("l.due_date").Lt(today.String()))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		ds = ds.Where(searchLoans(s))
	}
	return ds
}

// searchLoans matches book title or author, or member name or number.
func searchLoans(s string) goqu.Expression {
	return goqu.Or(
		contains("b.title", s),
		contains("b.author", s),
		contains("m.name", s),
		contains("m.student_number", s),
	)
}

// ListLoans returns one page of loans, newest first.
func (d *Database) ListLoans(ctx context.Context, f LoanFilter, today Date, p PageRequest) (Page[*LoanDetail], error) {
	ds := f.apply(loansQuery(), today).Order(goqu.I("l.borrowed_date").Desc(), goqu.I("l.id").Desc())
	loans, meta, err := fetchPage[*LoanDetail](ctx, d.db, ds, p.withDefault(DefaultPerPage))
	if err != nil {
		return Page[*LoanDetail]{}, fmt.Errorf("list loans: %w", err)
	}
	for _, l := range loans {
		l.markOverdue(today)
	}
	return Page[*LoanDetail]{Data: loans, Meta: meta}, nil
}

// RecentLoans returns the most recently created loans.
func (d *Database) RecentLoans(ctx context.Context, limit int, today Date) ([]*LoanDetail, error) {
	if limit <= 0 {
		limit = 10
	}
	loans, err := selectAll[*LoanDetail](ctx, d.db,
		loansQuery().Order(goqu.I("l.created_at").Desc(), goqu.I("l.id").Desc()).Limit(uint(limit)))
	if err != nil {
		return nil, err
	}
	for _, l := range loans {
		l.markOverdue(today)
	}
	return loans, nil
}

// MemberLoans splits a member's loans into outstanding and returned ones.
type MemberLoans struct {
	Member            *Member       `json:"student"`
	ActiveBorrows     []*LoanDetail `json:"active_borrows"`
	BorrowHistory     []*LoanDetail `json:"borrow_history"`
	TotalBorrowsCount int           `json:"total_borrows_count"`
}

// LoansOfMember gathers every loan of one member.
func (d *Database) LoansOfMember(ctx context.Context, memberID int64, today Date) (*MemberLoans, error) {
	member, err := getMember(ctx, d.db, memberID)
	if err != nil {
		return nil, err
	}
	loans, err := selectAll[*LoanDetail](ctx, d.db, loansQuery().
		Where(goqu.I("l.member_id").Eq(memberID)).
		Order(goqu.I("l.borrowed_date").Desc(), goqu.I("l.id").Desc()))
	if err != nil {
		return nil, err
	}
	out := &MemberLoans{
		Member:            member,
		ActiveBorrows:     []*LoanDetail{},
		BorrowHistory:     []*LoanDetail{},
		TotalBorrowsCount: len(loans),
	}
	for _, l := range loans {
		l.markOverdue(today)
		if l.Outstanding() {
			out.ActiveBorrows = append(out.ActiveBorrows, l)
		} else {
			out.BorrowHistory = append(out.BorrowHistory, l)
		}
	}
	return out, nil
}
