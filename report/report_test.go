package report

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school-library/library"
)

type rect struct {
	x, y, w, h float64
	fill       bool
}

// fakeCanvas records what a renderer draws, with fpdf-like cursor rules.
type fakeCanvas struct {
	x, y   float64
	pages  int
	texts  []string
	rects  []rect
	fills  [][3]int
	images int
}

func (f *fakeCanvas) AddPage()                   { f.pages++; f.x, f.y = marginLeft, 10 }
func (f *fakeCanvas) SetFont(string, float64)    {}
func (f *fakeCanvas) SetFillColor(r, g, b int)   { f.fills = append(f.fills, [3]int{r, g, b}) }
func (f *fakeCanvas) SetTextColor(int, int, int) {}
func (f *fakeCanvas) SetXY(x, y float64)         { f.x, f.y = x, y }
func (f *fakeCanvas) GetXY() (float64, float64)  { return f.x, f.y }
func (f *fakeCanvas) Ln(h float64)               { f.x = marginLeft; f.y += h }

func (f *fakeCanvas) Cell(w, h float64, text string, border bool, align string, fill bool) {
	if w == 0 {
		w = pageWidth - 10 - f.x
	}
	if text != "" {
		f.texts = append(f.texts, text)
	}
	f.x += w
}

func (f *fakeCanvas) Rect(x, y, w, h float64, fill bool) {
	f.rects = append(f.rects, rect{x, y, w, h, fill})
}

func (f *fakeCanvas) StringWidth(s string) float64 {
	return float64(utf8.RuneCountInString(s)) * 2.5
}

func (f *fakeCanvas) Image(png []byte, x, y, w float64) (float64, error) {
	f.images++
	return w / 2, nil
}

func (f *fakeCanvas) has(text string) bool {
	for _, t := range f.texts {
		if strings.Contains(t, text) {
			return true
		}
	}
	return false
}

func (f *fakeCanvas) filled() int {
	n := 0
	for _, r := range f.rects {
		if r.fill {
			n++
		}
	}
	return n
}

var now = time.Date(2025, 6, 16, 14, 5, 0, 0, time.Local)

func ptr[T any](v T) *T { return &v }

func sampleBook(id int64, title string) *library.Book {
	return &library.Book{
		ID: id, Title: title, Author: "夏目漱石", Publisher: "岩波書店",
		AcceptanceDate: library.NewDate(2025, time.April, 1).Ptr(),
		Price:          ptr(1200.0), Pages: ptr(320), NDC: "913", Classification: "913-ワ",
	}
}

func TestRenderBooksHeaderAndRows(t *testing.T) {
	cat := &library.BookCatalog{
		Books: []*library.Book{sampleBook(1, "吾輩は猫である"), sampleBook(2, "こころ")},
		Total: 5,
		Filter: library.BookFilter{
			NDCCategory: "9",
			StartDate:   library.NewDate(2025, time.April, 1).Ptr(),
		},
	}
	c := &fakeCanvas{}
	require.NoError(t, RenderBooks(c, cat, now))

	assert.Equal(t, 1, c.pages)
	assert.True(t, c.has("書籍一覧"))
	assert.True(t, c.has("出力日時: 2025年06月16日 14:05"))
	assert.True(t, c.has("対象書籍数: 2冊 （全体: 5冊）"))
	assert.True(t, c.has("NDC分類: 9** (文学)"))
	assert.True(t, c.has("受入期間: 2025年04月01日 ～ "))
	assert.True(t, c.has("1,200円"))
	assert.True(t, c.has("913-ワ"))
	assert.True(t, c.has("2025/04/01"))
	assert.Zero(t, c.filled(), "no barcodes without the isbn filter")
}

func TestRenderBooksWrapsLongTitles(t *testing.T) {
	long := strings.Repeat("長", 100)
	c := &fakeCanvas{}
	require.NoError(t, RenderBooks(c, &library.BookCatalog{Books: []*library.Book{sampleBook(1, long)}, Total: 1}, now))

	lines := 0
	for _, text := range c.texts {
		if strings.Trim(text, "長") == "" {
			lines++
		}
	}
	assert.Equal(t, maxCellLines, lines)
}

func TestRenderBooksBreaksPages(t *testing.T) {
	var books []*library.Book
	for i := 0; i < 60; i++ {
		books = append(books, sampleBook(int64(i+1), "本"))
	}
	c := &fakeCanvas{}
	require.NoError(t, RenderBooks(c, &library.BookCatalog{Books: books, Total: 60}, now))

	assert.Greater(t, c.pages, 1)
	for _, r := range c.rects {
		assert.LessOrEqual(t, r.y+r.h, pageBottom)
	}
	assert.True(t, c.has("対象書籍数: 60冊"))
	assert.False(t, c.has("全体"))
}

func TestRenderBooksBarcodeSection(t *testing.T) {
	coded := sampleBook(1, "手作り文集")
	coded.ISBN = "9385250000019"
	plain := sampleBook(2, "寄贈資料")
	c := &fakeCanvas{}
	cat := &library.BookCatalog{
		Books:  []*library.Book{coded, plain},
		Total:  2,
		Filter: library.BookFilter{ISBNType: library.ISBNTypeWithout},
	}
	require.NoError(t, RenderBooks(c, cat, now))

	assert.Equal(t, 2, c.pages)
	assert.True(t, c.has("ISBNなし"))
	assert.True(t, c.has("JANコード バーコード一覧"))
	assert.True(t, c.has("JAN: 9385250000019"))
	assert.Equal(t, 30, c.filled(), "an EAN-13 symbol has 30 bars")
}

func TestRenderJanBarcode(t *testing.T) {
	c := &fakeCanvas{}
	require.NoError(t, RenderJanBarcode(c, "4901234567894", nil))
	assert.Equal(t, 30, c.filled())
	assert.True(t, c.has("JAN: 4901234567894"))

	err := RenderJanBarcode(&fakeCanvas{}, "4901234567890", nil)
	assert.True(t, library.IsValidation(err))
}

func TestNDCFilterLabel(t *testing.T) {
	tests := map[string]string{
		"4":     "4** (自然科学)",
		"42":    "42* (物理学)",
		"48":    "48* (自然科学)",
		"900":   "900-999 (文学)",
		"913":   "913* (日本文学)",
		"913.6": "913.6 (文学)",
	}
	for in, want := range tests {
		assert.Equal(t, want, ndcFilterLabel(in), in)
	}
}

func TestRenderBorrowStatus(t *testing.T) {
	today := library.NewDate(2025, time.June, 16)
	late := &library.LoanDetail{
		Loan:      library.Loan{ID: 1, BorrowedDate: library.NewDate(2025, time.May, 30), DueDate: library.NewDate(2025, time.June, 13)},
		BookTitle: "こころ", MemberName: "田中", StudentNumber: "S001", Grade: 2, Class: "A",
		IsOverdue: true, OverdueDays: 3,
	}
	onTime := &library.LoanDetail{
		Loan:      library.Loan{ID: 2, BorrowedDate: library.NewDate(2025, time.June, 7), DueDate: library.NewDate(2025, time.June, 21)},
		BookTitle: "坊っちゃん", MemberName: "佐藤", StudentNumber: "S002",
	}
	bs := &library.BorrowStatus{
		Loans:      []*library.LoanDetail{late, onTime},
		Statistics: library.BorrowStatusStats{Total: 2, Overdue: 1, NotOverdue: 1},
		Today:      today,
	}
	c := &fakeCanvas{}
	require.NoError(t, RenderBorrowStatus(c, bs, library.StatusOverdue, now))

	assert.True(t, c.has("（滞納のみ）"))
	assert.True(t, c.has("総貸出数: 2件"))
	assert.True(t, c.has("滞納 3日"))
	assert.True(t, c.has("期限内 (残5日)"))
	assert.True(t, c.has("2年A"))
	assert.Contains(t, c.fills, [3]int{255, 220, 220})
	assert.Equal(t, 1, c.filled(), "only the overdue row is shaded")
}

func TestRenderDutyLog(t *testing.T) {
	dl := &library.DutyLog{
		Start: library.NewDate(2025, time.June, 1),
		End:   library.NewDate(2025, time.June, 30),
		Shift: library.ShiftLunch,
		Duties: []*library.LibraryDuty{
			{DutyDate: library.NewDate(2025, time.June, 2), ShiftType: library.ShiftLunch, VisitorCount: 10, BorrowCount: 1, StudentName1: "田中", StudentName2: "佐藤"},
			{DutyDate: library.NewDate(2025, time.June, 3), ShiftType: library.ShiftLunch, VisitorCount: 5, BorrowCount: 2},
		},
		Summary: library.DutySummary{TotalDays: 2, TotalVisitors: 15, TotalBorrows: 3, AvgVisitors: 7.5, AvgBorrows: 1.5},
	}
	c := &fakeCanvas{}
	require.NoError(t, RenderDutyLog(c, dl, now))

	assert.True(t, c.has("図書当番記録（昼休み）"))
	assert.True(t, c.has("期間: 2025年06月01日 ～ 2025年06月30日"))
	assert.True(t, c.has("7.5人/日"))
	assert.True(t, c.has("15人"))
	assert.True(t, c.has("田中、佐藤"))
	assert.True(t, c.has("06/03"))
	assert.True(t, c.has("-"))
}

func TestFormatAvg(t *testing.T) {
	assert.Equal(t, "7", formatAvg(7))
	assert.Equal(t, "1.7", formatAvg(1.7))
}

func TestRenderUsageStatistics(t *testing.T) {
	us := &library.UsageStatistics{
		TopBookYear: &library.TopBook{Book: &library.Book{Title: "こころ", Author: "夏目漱石"}, BorrowCount: 12},
		Daily:       library.PeriodStats{BorrowCount: 3, UserCount: 9},
		Monthly:     library.PeriodStats{BorrowCount: 10, UserCount: 0},
	}
	c := &fakeCanvas{}
	require.NoError(t, RenderUsageStatistics(c, us, &ChartImage{Period: library.PeriodMonthly, PNG: []byte{1}}, now))

	assert.True(t, c.has("こころ"))
	assert.True(t, c.has("12回"))
	assert.True(t, c.has("データなし"), "no monthly top book")
	assert.True(t, c.has("0.3冊/人"))
	assert.True(t, c.has("0冊/人"))
	assert.True(t, c.has("月間推移 - 貸出件数・利用者数"))
	assert.Equal(t, 1, c.images)

	c = &fakeCanvas{}
	require.NoError(t, RenderUsageStatistics(c, us, nil, now))
	assert.Zero(t, c.images)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.RGBA{59, 130, 246, 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeChartImage(t *testing.T) {
	raw := pngBytes(t)
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeChartImage("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	got, err = DecodeChartImage(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeChartImage("not base64!")
	assert.True(t, library.IsValidation(err))
	_, err = DecodeChartImage(base64.StdEncoding.EncodeToString([]byte("GIF89a....")))
	assert.True(t, library.IsValidation(err))
}

func TestPDFOutput(t *testing.T) {
	doc := NewPDF("利用統計", "")
	us := &library.UsageStatistics{Daily: library.PeriodStats{BorrowCount: 1, UserCount: 2}}
	require.NoError(t, RenderUsageStatistics(doc, us, &ChartImage{PNG: pngBytes(t)}, now))
	require.NoError(t, RenderJanBarcode(doc, "9385250000019", nil))

	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}
