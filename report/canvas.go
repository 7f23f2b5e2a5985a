// Package report renders the library's PDF reports. Renderers draw only
// through Canvas, so they can be exercised without a PDF engine; PDF adapts
// go-pdf/fpdf to it.
package report

import "strings"

// Cell alignment.
const (
	AlignLeft   = "L"
	AlignCenter = "C"
	AlignRight  = "R"
)

// Page geometry in millimetres for A4 landscape.
const (
	marginLeft = 10.0
	pageWidth  = 297.0
	pageBottom = 180.0
)

// Canvas is the drawing surface a report is rendered onto. Coordinates are
// millimetres from the top-left corner of the page.
type Canvas interface {
	AddPage()
	// SetFont selects the report font; style is "" or "B".
	SetFont(style string, size float64)
	SetFillColor(r, g, b int)
	SetTextColor(r, g, b int)
	SetXY(x, y float64)
	GetXY() (x, y float64)
	// Cell writes text in a w by h box at the current position and moves
	// right. A zero width extends the box to the right margin.
	Cell(w, h float64, text string, border bool, align string, fill bool)
	// Ln moves to the left margin, h millimetres down.
	Ln(h float64)
	Rect(x, y, w, h float64, fill bool)
	StringWidth(s string) float64
	// Image places a PNG w millimetres wide and returns the height used.
	Image(png []byte, x, y, w float64) (float64, error)
}

// wrapRunes splits text into lines no wider than maxWidth, breaking between
// runes since Japanese has no word spaces.
func wrapRunes(c Canvas, text string, maxWidth float64) []string {
	var lines []string
	var cur strings.Builder
	for _, r := range text {
		next := cur.String() + string(r)
		if c.StringWidth(next) > maxWidth && cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// column is one table column.
type column struct {
	title string
	width float64
}

func header(c Canvas, cols []column, h, size float64) {
	c.SetFont("B", size)
	c.SetFillColor(240, 240, 240)
	for _, col := range cols {
		c.Cell(col.width, h, col.title, true, AlignCenter, true)
	}
	c.Ln(h)
}

// needsBreak reports whether a block h high no longer fits on the page.
func needsBreak(c Canvas, h float64) bool {
	_, y := c.GetXY()
	return y+h > pageBottom
}

// labelValue writes a "label: value" line.
func labelValue(c Canvas, label, value string) {
	c.Cell(40, 6, label, false, AlignLeft, false)
	c.Cell(0, 6, value, false, AlignLeft, false)
	c.Ln(6)
}

func title(c Canvas, text string) {
	c.SetFont("B", 16)
	c.Cell(0, 10, text, false, AlignCenter, false)
	c.Ln(10)
}

func section(c Canvas, text string) {
	c.SetFont("B", 12)
	c.Cell(0, 7, text, false, AlignLeft, false)
	c.Ln(7)
}
