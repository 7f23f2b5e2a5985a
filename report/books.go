package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"school-library/library"
)

var bookColumns = []column{
	{"受入年月日", 25}, {"タイトル", 45}, {"巻数", 12}, {"著者", 33}, {"出版社", 28}, {"出版日", 20},
	{"ページ数", 15}, {"受入種別", 20}, {"受入元", 22}, {"価格", 15}, {"図書分類", 20},
}

// wrapped columns: title, author, publisher.
var bookLongColumns = map[int]bool{1: true, 3: true, 4: true}

const (
	maxCellLines = 3
	lineHeight   = 6.0
)

var ndcClasses = map[string]string{
	"0": "総記", "1": "哲学", "2": "歴史", "3": "社会科学", "4": "自然科学",
	"5": "技術・工学", "6": "産業", "7": "芸術・美術", "8": "言語", "9": "文学",
}

var ndcDivisions = map[string]string{
	"00": "総記", "01": "知識・学問・学術", "02": "図書・書誌学",
	"10": "哲学各論", "11": "形而上学", "12": "認識論・論理学",
	"20": "歴史", "21": "アジア史", "22": "ヨーロッパ史",
	"30": "社会科学", "31": "政治学", "32": "法律",
	"40": "自然科学", "41": "数学", "42": "物理学",
	"50": "技術・工学", "51": "建設工学", "52": "建築学",
	"60": "産業", "61": "農業", "62": "園芸",
	"70": "芸術・美術", "71": "彫刻", "72": "絵画",
	"80": "言語", "81": "日本語", "82": "中国語",
	"90": "文学", "91": "日本文学", "92": "中国文学",
}

// ndcFilterLabel describes an NDC category filter for the report header.
func ndcFilterLabel(ndc string) string {
	describe := func(prefix string) string {
		if d, ok := ndcDivisions[prefix]; ok {
			return d
		}
		return ndcClasses[prefix[:1]]
	}
	switch {
	case len(ndc) == 1:
		return ndc + "** (" + ndcClasses[ndc] + ")"
	case len(ndc) == 2:
		return ndc + "* (" + describe(ndc) + ")"
	case len(ndc) == 3 && strings.HasSuffix(ndc, "00"):
		return ndc + "-" + ndc[:1] + "99 (" + ndcClasses[ndc[:1]] + ")"
	case len(ndc) == 3:
		return ndc + "* (" + describe(ndc[:2]) + ")"
	default:
		return ndc + " (" + ndcClasses[ndc[:1]] + ")"
	}
}

func jpDate(d library.Date) string { return d.Format("2006年01月02日") }

// filterText summarizes the active catalog filters, or "" when none apply.
func filterText(f library.BookFilter) string {
	var parts []string
	if f.NDCCategory != "" {
		parts = append(parts, "NDC分類: "+ndcFilterLabel(f.NDCCategory))
	}
	if f.StartDate != nil || f.EndDate != nil {
		period := "受入期間: "
		if f.StartDate != nil {
			period += jpDate(*f.StartDate)
		}
		period += " ～ "
		if f.EndDate != nil {
			period += jpDate(*f.EndDate)
		}
		parts = append(parts, period)
	}
	if f.Search != "" {
		parts = append(parts, "検索: "+f.Search)
	}
	if f.StorageLocation != "" {
		parts = append(parts, "保管場所: "+f.StorageLocation)
	}
	switch f.ISBNType {
	case library.ISBNTypeWith:
		parts = append(parts, "ISBNあり")
	case library.ISBNTypeWithout:
		parts = append(parts, "ISBNなし")
	}
	return strings.Join(parts, "　")
}

func slashDate(d *library.Date) string {
	if d == nil || d.IsZero() {
		return ""
	}
	return d.Format("2006/01/02")
}

func bookRow(b *library.Book) []string {
	row := []string{
		slashDate(b.AcceptanceDate),
		b.Title,
		b.VolumeNumber,
		b.Author,
		b.Publisher,
		slashDate(b.PublishedDate),
		"",
		b.AcceptanceType,
		b.AcceptanceSource,
		"",
		b.Classification,
	}
	if b.Pages != nil && *b.Pages > 0 {
		row[6] = strconv.Itoa(*b.Pages)
	}
	if b.Price != nil && *b.Price > 0 {
		row[9] = humanize.Comma(int64(*b.Price)) + "円"
	}
	return row
}

// drawRow draws one bordered table row h high. Long columns wrap onto up to
// three lines; the rest are centred.
func drawRow(c Canvas, cols []column, row []string, long map[int]bool, h float64) {
	startX, startY := c.GetXY()
	x := startX
	for _, col := range cols {
		c.Rect(x, startY, col.width, h, false)
		x += col.width
	}
	x = startX
	for i, col := range cols {
		text := row[i]
		if long[i] && text != "" {
			lines := wrapRunes(c, text, col.width-4)
			if len(lines) > maxCellLines {
				lines = lines[:maxCellLines]
			}
			for n, line := range lines {
				c.SetXY(x+2, startY+2+float64(n)*lineHeight)
				c.Cell(col.width-4, 5, line, false, AlignLeft, false)
			}
		} else {
			c.SetXY(x, startY+h/2-2)
			c.Cell(col.width, 4, text, false, AlignCenter, false)
		}
		x += col.width
	}
	c.SetXY(startX, startY+h)
}

// rowHeight is the height a row needs for its longest wrapped column.
func rowHeight(c Canvas, cols []column, row []string, long map[int]bool) float64 {
	lines := 1
	for i := range long {
		if row[i] == "" {
			continue
		}
		if n := len(wrapRunes(c, row[i], cols[i].width-4)); n > lines {
			lines = n
		}
	}
	if lines > maxCellLines {
		lines = maxCellLines
	}
	return float64(lines) * lineHeight
}

// RenderBooks renders the catalog listing. Listings filtered to books
// without an ISBN end with a page of barcode labels.
func RenderBooks(c Canvas, cat *library.BookCatalog, now time.Time) error {
	c.AddPage()
	title(c, "書籍一覧")
	c.Ln(5)

	c.SetFont("", 10)
	c.Cell(0, 8, "出力日時: "+now.Format("2006年01月02日 15:04"), false, AlignRight, false)
	c.Ln(8)
	if ft := filterText(cat.Filter); ft != "" {
		c.Cell(0, 8, "フィルター条件: "+ft, false, AlignLeft, false)
		c.Ln(8)
	}
	count := "対象書籍数: " + humanize.Comma(int64(len(cat.Books))) + "冊"
	if len(cat.Books) < cat.Total {
		count += " （全体: " + humanize.Comma(int64(cat.Total)) + "冊）"
	}
	c.Cell(0, 8, count, false, AlignLeft, false)
	c.Ln(8)
	c.Ln(3)

	header(c, bookColumns, 8, 8)
	c.SetFont("", 7)
	for _, b := range cat.Books {
		row := bookRow(b)
		h := rowHeight(c, bookColumns, row, bookLongColumns)
		if needsBreak(c, h) {
			c.AddPage()
			header(c, bookColumns, 8, 8)
			c.SetFont("", 7)
		}
		drawRow(c, bookColumns, row, bookLongColumns, h)
	}

	if cat.Filter.ISBNType == library.ISBNTypeWithout {
		return renderBarcodeSection(c, cat.Books)
	}
	return nil
}
