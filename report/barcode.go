package report

import (
	"fmt"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/ean"

	"school-library/library"
)

// Barcode label geometry.
const (
	labelWidth    = 90.0
	labelHeight   = 70.0
	labelsPerRow  = 3
	barcodeWidth  = 70.0
	barcodeHeight = 25.0
)

// drawEAN13 draws the bars of code inside the w by h box at x, y.
func drawEAN13(c Canvas, code string, x, y, w, h float64) error {
	bc, err := ean.Encode(code)
	if err != nil {
		return fmt.Errorf("encode %s: %w", code, err)
	}
	modules := bc.Bounds().Dx()
	unit := w / float64(modules)
	c.SetFillColor(0, 0, 0)
	for i := 0; i < modules; {
		if !isBar(bc, i) {
			i++
			continue
		}
		start := i
		for i < modules && isBar(bc, i) {
			i++
		}
		c.Rect(x+float64(start)*unit, y, float64(i-start)*unit, h, true)
	}
	c.SetFillColor(255, 255, 255)
	return nil
}

func isBar(bc barcode.Barcode, x int) bool {
	r, _, _, _ := bc.At(bc.Bounds().Min.X+x, bc.Bounds().Min.Y).RGBA()
	return r == 0
}

// drawLabel draws one barcode label: title, author, code and bars.
func drawLabel(c Canvas, x, y float64, code, bookTitle, author string) error {
	c.SetXY(x, y)
	c.SetFont("B", 9)
	c.Cell(80, 6, truncate(bookTitle, 30), false, AlignCenter, false)
	y += 6
	if author != "" {
		c.SetXY(x, y)
		c.SetFont("", 8)
		c.Cell(80, 5, truncate(author, 25), false, AlignCenter, false)
		y += 5
	}
	c.SetXY(x, y)
	c.SetFont("B", 9)
	c.Cell(80, 6, "JAN: "+code, false, AlignCenter, false)
	y += 6
	if err := drawEAN13(c, code, x+5, y, barcodeWidth, barcodeHeight); err != nil {
		return err
	}
	c.SetXY(x+5, y+barcodeHeight+1)
	c.SetFont("", 7)
	c.Cell(barcodeWidth, 4, code, false, AlignCenter, false)
	return nil
}

// RenderJanBarcode renders a single-label page for an internal code. book
// may be nil when the code is not attached to a book yet.
func RenderJanBarcode(c Canvas, code string, book *library.Book) error {
	if !library.ValidEAN13(code) {
		return &library.ValidationError{Field: "jan_code", Message: "is not a valid EAN-13 code"}
	}
	c.AddPage()
	title(c, "JANコード バーコード")
	bookTitle, author := "", ""
	if book != nil {
		bookTitle, author = book.Title, book.Author
	}
	_, y := c.GetXY()
	return drawLabel(c, (pageWidth-80)/2, y+10, code, bookTitle, author)
}

// renderBarcodeSection lays out labels for the internally coded books,
// three per row.
func renderBarcodeSection(c Canvas, books []*library.Book) error {
	var coded []*library.Book
	for _, b := range books {
		if b.HasInternalCode() {
			coded = append(coded, b)
		}
	}
	if len(coded) == 0 {
		return nil
	}
	c.AddPage()
	title(c, "JANコード バーコード一覧")
	c.Ln(10)
	_, y := c.GetXY()
	for i, b := range coded {
		col := i % labelsPerRow
		if col == 0 && i > 0 {
			y += labelHeight
		}
		if col == 0 && y+labelHeight > pageBottom {
			c.AddPage()
			_, y = c.GetXY()
		}
		if err := drawLabel(c, marginLeft+float64(col)*labelWidth, y, b.ISBN, b.Title, b.Author); err != nil {
			return err
		}
	}
	return nil
}
