package report

import (
	"fmt"
	"strconv"
	"time"

	"school-library/library"
)

var borrowColumns = []column{
	{"書籍名", 60}, {"著者", 35}, {"借りている人", 30}, {"学籍番号", 22},
	{"学年・クラス", 20}, {"貸出日", 23}, {"返却期限", 23}, {"状況", 27},
}

var borrowLongColumns = map[int]bool{0: true, 1: true}

// loanState is the status cell text of an outstanding loan.
func loanState(l *library.LoanDetail, today library.Date) string {
	if l.IsOverdue {
		return fmt.Sprintf("滞納 %d日", l.OverdueDays)
	}
	return fmt.Sprintf("期限内 (残%d日)", library.DaysRemaining(l.DueDate, today))
}

func gradeClass(l *library.LoanDetail) string {
	if l.Grade == 0 && l.Class == "" {
		return ""
	}
	return strconv.Itoa(l.Grade) + "年" + l.Class
}

// RenderBorrowStatus renders outstanding loans, overdue rows on a pink fill.
// filter is the status filter the list was built with.
func RenderBorrowStatus(c Canvas, bs *library.BorrowStatus, filter string, now time.Time) error {
	c.AddPage()
	title(c, "貸出状況一覧")
	c.Ln(2)

	note := ""
	switch filter {
	case library.StatusOverdue:
		note = " （滞納のみ）"
	case library.StatusNotOverdue:
		note = " （期限内のみ）"
	}
	c.SetFont("", 9)
	c.Cell(0, 5, "出力日時: "+now.Format("2006年01月02日 15:04")+note, false, AlignRight, false)
	c.Ln(8)

	c.SetFont("B", 10)
	c.Cell(60, 6, fmt.Sprintf("総貸出数: %d件", bs.Statistics.Total), true, AlignCenter, false)
	c.Cell(60, 6, fmt.Sprintf("滞納: %d件", bs.Statistics.Overdue), true, AlignCenter, false)
	c.Cell(60, 6, fmt.Sprintf("期限内: %d件", bs.Statistics.NotOverdue), true, AlignCenter, false)
	c.Ln(11)

	header(c, borrowColumns, 7, 9)
	c.SetFont("", 8)
	for _, l := range bs.Loans {
		row := []string{
			l.BookTitle, l.BookAuthor, l.MemberName, l.StudentNumber, gradeClass(l),
			l.BorrowedDate.Format("2006/01/02"), l.DueDate.Format("2006/01/02"), loanState(l, bs.Today),
		}
		h := rowHeight(c, borrowColumns, row, borrowLongColumns)
		if h < 7 {
			h = 7
		}
		if needsBreak(c, h) {
			c.AddPage()
			header(c, borrowColumns, 7, 9)
			c.SetFont("", 8)
		}
		if l.IsOverdue {
			x, y := c.GetXY()
			c.SetFillColor(255, 220, 220)
			c.Rect(x, y, totalWidth(borrowColumns), h, true)
			c.SetTextColor(200, 0, 0)
		}
		drawRow(c, borrowColumns, row, borrowLongColumns, h)
		c.SetTextColor(0, 0, 0)
		c.SetFillColor(255, 255, 255)
	}
	return nil
}

func totalWidth(cols []column) float64 {
	var w float64
	for _, col := range cols {
		w += col.width
	}
	return w
}
