package library

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

const dutyColumns = `id, duty_date, shift_type, visitor_count, borrow_count, reflection, student_name_1,
	student_name_2, member_id_1, member_id_2, created_at, updated_at`

// ValidShift reports whether shift names a duty shift.
func ValidShift(shift string) bool { return shift == ShiftLunch || shift == ShiftAfterSchool }

func getDuty(ctx context.Context, q sqlx.QueryerContext, id int64) (*LibraryDuty, error) {
	var duty LibraryDuty
	err := sqlx.GetContext(ctx, q, &duty, `SELECT `+dutyColumns+` FROM library_duties WHERE id=?`, id)
	if noRows(err) {
		return nil, notFound("library duty", id)
	}
	if err != nil {
		return nil, err
	}
	return &duty, nil
}

// refreshBorrowCount sets the duty's borrow_count to the loans started on
// its day.
func refreshBorrowCount(ctx context.Context, tx *sqlx.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE library_duties
		SET borrow_count = (SELECT COUNT(*) FROM loans WHERE loans.borrowed_date = library_duties.duty_date)
		WHERE id=?`, id)
	return err
}

// TodayDuty returns the duty log of a day and shift, creating it when
// missing. Its borrow count is refreshed from the ledger.
func (d *Database) TodayDuty(ctx context.Context, day Date, shift string) (*LibraryDuty, error) {
	if shift == "" {
		shift = ShiftLunch
	}
	if !ValidShift(shift) {
		return nil, invalid("shift_type", "must be %s or %s", ShiftLunch, ShiftAfterSchool)
	}
	var id int64
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO library_duties(duty_date, shift_type) VALUES(?,?) ON CONFLICT(duty_date, shift_type) DO NOTHING`,
			day, shift); err != nil {
			return fmt.Errorf("create duty: %w", err)
		}
		if err := tx.GetContext(ctx, &id,
			`SELECT id FROM library_duties WHERE duty_date=? AND shift_type=?`, day, shift); err != nil {
			return err
		}
		return refreshBorrowCount(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return getDuty(ctx, d.db, id)
}

// DutyUpdate carries the fields the duty students fill in.
type DutyUpdate struct {
	VisitorCount int
	Reflection   string
	StudentName1 string
	StudentName2 string
	MemberID1    *int64
	MemberID2    *int64
}

// UpdateDuty stores the day's log and recomputes its borrow count.
func (d *Database) UpdateDuty(ctx context.Context, id int64, u DutyUpdate) (*LibraryDuty, error) {
	if u.VisitorCount < 0 {
		return nil, invalid("visitor_count", "must not be negative")
	}
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := getDuty(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE library_duties SET visitor_count=?, reflection=?,
			student_name_1=?, student_name_2=?, member_id_1=?, member_id_2=?, updated_at=CURRENT_TIMESTAMP
			WHERE id=?`,
			u.VisitorCount, strings.TrimSpace(u.Reflection), strings.TrimSpace(u.StudentName1),
			strings.TrimSpace(u.StudentName2), u.MemberID1, u.MemberID2, id); err != nil {
			return fmt.Errorf("update duty: %w", err)
		}
		return refreshBorrowCount(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return getDuty(ctx, d.db, id)
}

// DeleteDuty removes a duty log.
func (d *Database) DeleteDuty(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM library_duties WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("library duty", id)
	}
	return nil
}

// shiftOrder sorts lunch before after-school within a day.
var shiftOrder = goqu.L(`CASE shift_type WHEN 'lunch' THEN 0 ELSE 1 END`)

// ListDuties returns one page of duty logs, latest day first.
func (d *Database) ListDuties(ctx context.Context, p PageRequest) (Page[*LibraryDuty], error) {
	ds := from("library_duties").Select(goqu.L(dutyColumns)).
		Order(goqu.C("duty_date").Desc(), shiftOrder.Asc())
	duties, meta, err := fetchPage[*LibraryDuty](ctx, d.db, ds, p.withDefault(30))
	if err != nil {
		return Page[*LibraryDuty]{}, fmt.Errorf("list duties: %w", err)
	}
	return Page[*LibraryDuty]{Data: duties, Meta: meta}, nil
}

// DutiesBetween returns the logs of an inclusive date range in date order,
// optionally for one shift.
func (d *Database) DutiesBetween(ctx context.Context, start, end Date, shift string) ([]*LibraryDuty, error) {
	ds := from("library_duties").Select(goqu.L(dutyColumns)).
		Where(goqu.C("duty_date").Between(goqu.Range(start.String(), end.String()))).
		Order(goqu.C("duty_date").Asc(), shiftOrder.Asc())
	if shift != "" {
		ds = ds.Where(goqu.C("shift_type").Eq(shift))
	}
	return selectAll[*LibraryDuty](ctx, d.db, ds)
}

// DutySummary totals a set of duty logs.
type DutySummary struct {
	TotalDays     int     `json:"total_days"`
	TotalVisitors int     `json:"total_visitors"`
	TotalBorrows  int     `json:"total_borrows"`
	AvgVisitors   float64 `json:"avg_visitors"`
	AvgBorrows    float64 `json:"avg_borrows"`
}

// SummarizeDuties totals visitors and loans over the logs. Averages are
// per log and rounded to one decimal.
func SummarizeDuties(duties []*LibraryDuty) DutySummary {
	s := DutySummary{TotalDays: len(duties)}
	for _, duty := range duties {
		s.TotalVisitors += duty.VisitorCount
		s.TotalBorrows += duty.BorrowCount
	}
	if s.TotalDays > 0 {
		s.AvgVisitors = round1(float64(s.TotalVisitors) / float64(s.TotalDays))
		s.AvgBorrows = round1(float64(s.TotalBorrows) / float64(s.TotalDays))
	}
	return s
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
