package report

import (
	"strconv"
	"strings"
	"time"

	"school-library/library"
)

var dutyColumns = []column{
	{"日付", 22}, {"利用者数", 18}, {"貸出人数", 18}, {"シフト", 18}, {"担当者", 40}, {"ふりかえり", 160},
}

var dutyLongColumns = map[int]bool{4: true, 5: true}

// formatAvg prints an average with one decimal, dropping a trailing ".0".
func formatAvg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func dutyStaff(d *library.LibraryDuty) string {
	var names []string
	for _, n := range []string{d.StudentName1, d.StudentName2} {
		if n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, "、")
}

// RenderDutyLog renders the duty logs of a period with their totals.
func RenderDutyLog(c Canvas, dl *library.DutyLog, now time.Time) error {
	c.AddPage()
	heading := "図書当番記録"
	if dl.Shift != "" {
		heading += "（" + library.ShiftLabel(dl.Shift) + "）"
	}
	title(c, heading)
	c.SetFont("", 10)
	c.Cell(0, 7, "期間: "+jpDate(dl.Start)+" ～ "+jpDate(dl.End), false, AlignCenter, false)
	c.Ln(7)
	c.Cell(0, 7, "作成日: "+now.Format("2006年01月02日"), false, AlignCenter, false)
	c.Ln(12)

	section(c, "統計情報")
	s := dl.Summary
	c.SetFont("", 10)
	c.SetFillColor(240, 240, 240)
	for _, h := range []string{"項目", "合計", "平均", "日数"} {
		c.Cell(45, 7, h, true, AlignCenter, true)
	}
	c.Ln(7)
	c.Cell(45, 7, "利用者数", true, AlignLeft, false)
	c.Cell(45, 7, strconv.Itoa(s.TotalVisitors)+"人", true, AlignCenter, false)
	c.Cell(45, 7, formatAvg(s.AvgVisitors)+"人/日", true, AlignCenter, false)
	c.Cell(45, 7, strconv.Itoa(s.TotalDays)+"日", true, AlignCenter, false)
	c.Ln(7)
	c.Cell(45, 7, "貸出人数", true, AlignLeft, false)
	c.Cell(45, 7, strconv.Itoa(s.TotalBorrows)+"人", true, AlignCenter, false)
	c.Cell(45, 7, formatAvg(s.AvgBorrows)+"人/日", true, AlignCenter, false)
	c.Cell(45, 7, "", true, AlignCenter, false)
	c.Ln(12)

	section(c, "日別記録")
	header(c, dutyColumns, 7, 9)
	c.SetFont("", 9)
	for _, d := range dl.Duties {
		reflection := d.Reflection
		if reflection == "" {
			reflection = "-"
		}
		row := []string{
			d.DutyDate.Format("01/02"),
			strconv.Itoa(d.VisitorCount) + "人",
			strconv.Itoa(d.BorrowCount) + "人",
			library.ShiftLabel(d.ShiftType),
			dutyStaff(d),
			reflection,
		}
		h := rowHeight(c, dutyColumns, row, dutyLongColumns)
		if h < 7 {
			h = 7
		}
		if needsBreak(c, h) {
			c.AddPage()
			header(c, dutyColumns, 7, 9)
			c.SetFont("", 9)
		}
		drawRow(c, dutyColumns, row, dutyLongColumns, h)
	}
	return nil
}
