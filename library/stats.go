package library

import (
	"context"
	"fmt"
	"strconv"
)

// TopBook is the most borrowed title of a period.
type TopBook struct {
	Book        *Book `json:"book"`
	BorrowCount int   `json:"borrow_count"`
}

// PeriodStats counts loans and duty-logged visitors over a period.
type PeriodStats struct {
	BorrowCount int `json:"borrow_count"`
	UserCount   int `json:"user_count"`
}

// UsageStatistics is the dashboard summary.
type UsageStatistics struct {
	TopBookYear  *TopBook    `json:"most_borrowed_book_year"`
	TopBookMonth *TopBook    `json:"most_borrowed_book_month"`
	Daily        PeriodStats `json:"daily_stats"`
	Monthly      PeriodStats `json:"monthly_stats"`
	Yearly       PeriodStats `json:"yearly_stats"`
	Today        Date        `json:"today"`
}

// TopBorrowedBook returns the book with most loans borrowed on or after
// since, or nil when there were none. Ties go to the lower id.
func (d *Database) TopBorrowedBook(ctx context.Context, since Date) (*TopBook, error) {
	var rows []struct {
		BookID int64 `db:"book_id"`
		Count  int   `db:"borrow_count"`
	}
	err := d.db.SelectContext(ctx, &rows, `SELECT book_id, COUNT(*) AS borrow_count FROM loans
		WHERE borrowed_date >= ? GROUP BY book_id ORDER BY borrow_count DESC, book_id ASC LIMIT 1`, since)
	if err != nil {
		return nil, fmt.Errorf("top book: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	book, err := getBook(ctx, d.db, rows[0].BookID)
	if err != nil {
		return nil, err
	}
	return &TopBook{Book: book, BorrowCount: rows[0].Count}, nil
}

// PeriodStats totals an inclusive date range.
func (d *Database) PeriodStats(ctx context.Context, start, end Date) (PeriodStats, error) {
	var s PeriodStats
	if err := d.db.GetContext(ctx, &s.BorrowCount,
		`SELECT COUNT(*) FROM loans WHERE borrowed_date BETWEEN ? AND ?`, start, end); err != nil {
		return s, fmt.Errorf("count loans: %w", err)
	}
	if err := d.db.GetContext(ctx, &s.UserCount,
		`SELECT COALESCE(SUM(visitor_count), 0) FROM library_duties WHERE duty_date BETWEEN ? AND ?`, start, end); err != nil {
		return s, fmt.Errorf("sum visitors: %w", err)
	}
	return s, nil
}

// UsageStatistics builds the dashboard as of today.
func (d *Database) UsageStatistics(ctx context.Context, today Date) (*UsageStatistics, error) {
	out := &UsageStatistics{Today: today}
	var err error
	if out.TopBookYear, err = d.TopBorrowedBook(ctx, today.AddMonths(-12)); err != nil {
		return nil, err
	}
	if out.TopBookMonth, err = d.TopBorrowedBook(ctx, today.AddMonths(-1)); err != nil {
		return nil, err
	}
	if out.Daily, err = d.PeriodStats(ctx, today, today); err != nil {
		return nil, err
	}
	if out.Monthly, err = d.PeriodStats(ctx, today.FirstOfMonth(), today.LastOfMonth()); err != nil {
		return nil, err
	}
	if out.Yearly, err = d.PeriodStats(ctx, today.FirstOfYear(), today.FirstOfYear().AddMonths(12).AddDays(-1)); err != nil {
		return nil, err
	}
	return out, nil
}

// Chart periods and data types.
const (
	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"

	ChartBorrowCount = "borrow_count"
	ChartUserCount   = "user_count"
	ChartBoth        = "both"
)

// ChartDataset is one plotted series.
type ChartDataset struct {
	Label           string `json:"label"`
	Data            []int  `json:"data"`
	BorderColor     string `json:"borderColor"`
	BackgroundColor string `json:"backgroundColor"`
}

// ChartData is a labelled set of series ready for a line chart.
type ChartData struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

// chartBucket is one x-axis slot covering [start, end].
type chartBucket struct {
	label      string
	start, end Date
}

func chartBuckets(period string, today Date) ([]chartBucket, error) {
	var out []chartBucket
	switch period {
	case "", PeriodDaily:
		for i := 29; i >= 0; i-- {
			day := today.AddDays(-i)
			out = append(out, chartBucket{
				label: strconv.Itoa(int(day.Month())) + "/" + strconv.Itoa(day.Day()),
				start: day, end: day,
			})
		}
	case PeriodMonthly:
		first := today.FirstOfMonth()
		for i := 11; i >= 0; i-- {
			m := first.AddMonths(-i)
			out = append(out, chartBucket{label: m.Format("2006/01"), start: m, end: m.LastOfMonth()})
		}
	case PeriodYearly:
		first := today.FirstOfYear()
		for i := 4; i >= 0; i-- {
			y := first.AddMonths(-12 * i)
			out = append(out, chartBucket{
				label: strconv.Itoa(y.Year()) + "年",
				start: y, end: y.AddMonths(12).AddDays(-1),
			})
		}
	default:
		return nil, invalid("period", "must be %s, %s or %s", PeriodDaily, PeriodMonthly, PeriodYearly)
	}
	return out, nil
}

// dailyCounts maps each day string to a count. The query must select day
// and n for a start and end bind.
func (d *Database) dailyCounts(ctx context.Context, query string, start, end Date) (map[string]int, error) {
	var rows []struct {
		Day string `db:"day"`
		N   int    `db:"n"`
	}
	if err := d.db.SelectContext(ctx, &rows, query, start, end); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Day] = r.N
	}
	return out, nil
}

func sumBuckets(buckets []chartBucket, perDay map[string]int) []int {
	out := make([]int, len(buckets))
	for i, b := range buckets {
		for day := b.start; !day.After(b.end); day = day.AddDays(1) {
			out[i] += perDay[day.String()]
		}
	}
	return out
}

// ChartData computes loan and visitor series for the chart period ending
// today.
func (d *Database) ChartData(ctx context.Context, period, dataType string, today Date) (*ChartData, error) {
	if dataType == "" {
		dataType = ChartBoth
	}
	if dataType != ChartBorrowCount && dataType != ChartUserCount && dataType != ChartBoth {
		return nil, invalid("data_type", "must be %s, %s or %s", ChartBorrowCount, ChartUserCount, ChartBoth)
	}
	buckets, err := chartBuckets(period, today)
	if err != nil {
		return nil, err
	}
	start, end := buckets[0].start, buckets[len(buckets)-1].end

	chart := &ChartData{Labels: make([]string, len(buckets)), Datasets: []ChartDataset{}}
	for i, b := range buckets {
		chart.Labels[i] = b.label
	}
	if dataType != ChartUserCount {
		loans, err := d.dailyCounts(ctx, `SELECT borrowed_date AS day, COUNT(*) AS n FROM loans
			WHERE borrowed_date BETWEEN ? AND ? GROUP BY borrowed_date`, start, end)
		if err != nil {
			return nil, fmt.Errorf("chart loans: %w", err)
		}
		chart.Datasets = append(chart.Datasets, ChartDataset{
			Label:           "貸出人数",
			Data:            sumBuckets(buckets, loans),
			BorderColor:     "rgb(59, 130, 246)",
			BackgroundColor: "rgba(59, 130, 246, 0.1)",
		})
	}
	if dataType != ChartBorrowCount {
		visitors, err := d.dailyCounts(ctx, `SELECT duty_date AS day, SUM(visitor_count) AS n FROM library_duties
			WHERE duty_date BETWEEN ? AND ? GROUP BY duty_date`, start, end)
		if err != nil {
			return nil, fmt.Errorf("chart visitors: %w", err)
		}
		chart.Datasets = append(chart.Datasets, ChartDataset{
			Label:           "利用者数",
			Data:            sumBuckets(buckets, visitors),
			BorderColor:     "rgb(16, 185, 129)",
			BackgroundColor: "rgba(16, 185, 129, 0.1)",
		})
	}
	return chart, nil
}
