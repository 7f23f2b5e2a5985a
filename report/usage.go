package report

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"school-library/library"
)

// ChartImage is a chart the browser rendered, attached to the statistics
// report.
type ChartImage struct {
	Period   string
	DataType string
	PNG      []byte
}

const dataURLPrefix = "data:image/png;base64,"

// DecodeChartImage accepts a base64 PNG, with or without a data URL prefix.
func DecodeChartImage(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), dataURLPrefix)
	png, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &library.ValidationError{Field: "chart_image", Message: "is not valid base64"}
	}
	if len(png) < 8 || string(png[1:4]) != "PNG" {
		return nil, &library.ValidationError{Field: "chart_image", Message: "is not a PNG image"}
	}
	return png, nil
}

var periodLabels = map[string]string{
	library.PeriodDaily:   "日間推移",
	library.PeriodMonthly: "月間推移",
	library.PeriodYearly:  "年間推移",
}

var dataTypeLabels = map[string]string{
	library.ChartBorrowCount: "貸出件数",
	library.ChartUserCount:   "利用者数",
	library.ChartBoth:        "貸出件数・利用者数",
}

func topBook(c Canvas, heading string, tb *library.TopBook) {
	section(c, heading)
	c.SetFont("", 10)
	if tb == nil {
		c.Cell(0, 6, "データなし", false, AlignLeft, false)
		c.Ln(6)
	} else {
		labelValue(c, "書籍名:", tb.Book.Title)
		labelValue(c, "著者:", tb.Book.Author)
		labelValue(c, "貸出回数:", strconv.Itoa(tb.BorrowCount)+"回")
	}
	c.Ln(3)
}

// perUser is borrows per visitor rounded to one decimal.
func perUser(s library.PeriodStats) string {
	if s.UserCount == 0 {
		return "0"
	}
	v := float64(s.BorrowCount) / float64(s.UserCount)
	return strconv.FormatFloat(float64(int(v*10+0.5))/10, 'f', -1, 64)
}

// RenderUsageStatistics renders the dashboard figures and, when given, the
// chart image.
func RenderUsageStatistics(c Canvas, us *library.UsageStatistics, chart *ChartImage, now time.Time) error {
	c.AddPage()
	title(c, "利用統計レポート")
	c.SetFont("", 10)
	c.Cell(0, 7, "作成日: "+now.Format("2006年01月02日"), false, AlignCenter, false)
	c.Ln(12)

	topBook(c, "年間で最も借りられた本", us.TopBookYear)
	topBook(c, "月間で最も借りられた本", us.TopBookMonth)

	section(c, "期間別統計情報")
	c.SetFont("", 10)
	c.SetFillColor(240, 240, 240)
	for _, h := range []string{"期間", "貸出件数", "利用者数", "平均貸出数"} {
		c.Cell(45, 7, h, true, AlignCenter, true)
	}
	c.Ln(7)
	for _, p := range []struct {
		label string
		stats library.PeriodStats
	}{{"本日", us.Daily}, {"今月", us.Monthly}, {"今年", us.Yearly}} {
		c.Cell(45, 7, p.label, true, AlignCenter, false)
		c.Cell(45, 7, strconv.Itoa(p.stats.BorrowCount)+"件", true, AlignCenter, false)
		c.Cell(45, 7, strconv.Itoa(p.stats.UserCount)+"人", true, AlignCenter, false)
		c.Cell(45, 7, perUser(p.stats)+"冊/人", true, AlignCenter, false)
		c.Ln(7)
	}
	c.Ln(5)

	if chart == nil || len(chart.PNG) == 0 {
		return nil
	}
	if needsBreak(c, 90) {
		c.AddPage()
	}
	period, dataType := chart.Period, chart.DataType
	if period == "" {
		period = library.PeriodDaily
	}
	if dataType == "" {
		dataType = library.ChartBoth
	}
	section(c, periodLabels[period]+" - "+dataTypeLabels[dataType])
	c.Ln(2)
	_, y := c.GetXY()
	if _, err := c.Image(chart.PNG, 15, y, 150); err != nil {
		return fmt.Errorf("chart image: %w", err)
	}
	return nil
}
