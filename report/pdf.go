package report

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-pdf/fpdf"
)

const fontFamily = "report"

// PDF is a Canvas backed by an A4 landscape fpdf document.
type PDF struct {
	doc    *fpdf.Fpdf
	family string
	images int
}

// NewPDF starts a document. fontPath names a TrueType font with Japanese
// glyphs; when it is empty or missing the core Helvetica font is used.
func NewPDF(docTitle, fontPath string) *PDF {
	doc := fpdf.New("L", "mm", "A4", "")
	doc.SetMargins(marginLeft, 10, 10)
	doc.SetAutoPageBreak(false, 10)
	doc.SetTitle(docTitle, true)
	doc.SetCreator("school-library", true)
	doc.SetAuthor("蔵書管理システム", true)

	p := &PDF{doc: doc, family: "Helvetica"}
	if fontPath != "" {
		if _, err := os.Stat(fontPath); err == nil {
			doc.AddUTF8Font(fontFamily, "", fontPath)
			doc.AddUTF8Font(fontFamily, "B", fontPath)
			p.family = fontFamily
		}
	}
	doc.SetFont(p.family, "", 9)
	return p
}

func (p *PDF) AddPage()                     { p.doc.AddPage() }
func (p *PDF) SetFillColor(r, g, b int)     { p.doc.SetFillColor(r, g, b) }
func (p *PDF) SetTextColor(r, g, b int)     { p.doc.SetTextColor(r, g, b) }
func (p *PDF) SetXY(x, y float64)           { p.doc.SetXY(x, y) }
func (p *PDF) GetXY() (float64, float64)    { return p.doc.GetXY() }
func (p *PDF) Ln(h float64)                 { p.doc.Ln(h) }
func (p *PDF) StringWidth(s string) float64 { return p.doc.GetStringWidth(s) }

func (p *PDF) SetFont(style string, size float64) { p.doc.SetFont(p.family, style, size) }

func (p *PDF) Cell(w, h float64, text string, border bool, align string, fill bool) {
	b := ""
	if border {
		b = "1"
	}
	p.doc.CellFormat(w, h, text, b, 0, align, fill, 0, "")
}

func (p *PDF) Rect(x, y, w, h float64, fill bool) {
	style := "D"
	if fill {
		style = "F"
	}
	p.doc.Rect(x, y, w, h, style)
}

func (p *PDF) Image(png []byte, x, y, w float64) (float64, error) {
	p.images++
	name := fmt.Sprintf("image%d", p.images)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	info := p.doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	if err := p.doc.Error(); err != nil {
		return 0, err
	}
	p.doc.ImageOptions(name, x, y, w, 0, false, opts, 0, "")
	return w * info.Height() / info.Width(), p.doc.Error()
}

// Output writes the finished document.
func (p *PDF) Output(w io.Writer) error {
	return p.doc.Output(w)
}
