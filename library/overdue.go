package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
)

// OverdueDays is the number of whole days between due and today, or 0 when
// the loan is not yet due.
func OverdueDays(due, today Date) int {
	if n := today.DaysSince(due); n > 0 {
		return n
	}
	return 0
}

// DaysRemaining is the number of days left until due, or 0 once past it.
func DaysRemaining(due, today Date) int {
	if n := due.DaysSince(today); n > 0 {
		return n
	}
	return 0
}

func (l *LoanDetail) markOverdue(today Date) {
	l.IsOverdue, l.OverdueDays = false, 0
	if l.Outstanding() {
		l.OverdueDays = OverdueDays(l.DueDate, today)
		l.IsOverdue = l.OverdueDays > 0
	}
}

// Borrow status filter values.
const (
	StatusOverdue    = "overdue"
	StatusNotOverdue = "not_overdue"
)

// BorrowStatusFilter narrows the outstanding-loan report.
type BorrowStatusFilter struct {
	Search string
	Grade  int
	Class  string
	Status string
}

// BorrowStatusStats counts the rows of a borrow status report.
type BorrowStatusStats struct {
	Total      int `json:"total"`
	Overdue    int `json:"overdue"`
	NotOverdue int `json:"not_overdue"`
}

// BorrowStatus is every outstanding loan matching a filter, earliest due
// date first.
type BorrowStatus struct {
	Loans      []*LoanDetail     `json:"borrows"`
	Statistics BorrowStatusStats `json:"statistics"`
	Today      Date              `json:"today"`
}

// BorrowStatus lists outstanding loans with their overdue state as of today.
func (d *Database) BorrowStatus(ctx context.Context, f BorrowStatusFilter, today Date) (*BorrowStatus, error) {
	ds := loansQuery().Where(goqu.I("l.returned_date").IsNull())
	if s := strings.TrimSpace(f.Search); s != "" {
		ds = ds.Where(searchLoans(s))
	}
	if f.Grade != 0 {
		ds = ds.Where(goqu.I("m.grade").Eq(f.Grade))
	}
	if f.Class != "" {
		ds = ds.Where(goqu.I("m.class").Eq(f.Class))
	}
	switch f.Status {
	case StatusOverdue:
		ds = ds.Where(goqu.I("l.due_date").Lt(today.String()))
	case StatusNotOverdue:
		ds = ds.Where(goqu.I("l.due_date").Gte(today.String()))
	}
	ds = ds.Order(goqu.I("l.due_date").Asc(), goqu.I("l.id").Asc())

	loans, err := selectAll[*LoanDetail](ctx, d.db, ds)
	if err != nil {
		return nil, fmt.Errorf("borrow status: %w", err)
	}
	status := &BorrowStatus{Loans: loans, Today: today}
	for _, l := range loans {
		l.markOverdue(today)
		status.Statistics.Total++
		if l.IsOverdue {
			status.Statistics.Overdue++
		} else {
			status.Statistics.NotOverdue++
		}
	}
	return status, nil
}
