package isbn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"school-library/library"
)

// GoogleBooks queries the Google Books volumes API.
type GoogleBooks struct {
	BaseURL string
	Client  *http.Client
}

func (g *GoogleBooks) Name() string { return "googleBooks" }

type googleVolumes struct {
	Items []struct {
		VolumeInfo struct {
			Title         string   `json:"title"`
			Subtitle      string   `json:"subtitle"`
			Authors       []string `json:"authors"`
			Publisher     string   `json:"publisher"`
			PublishedDate string   `json:"publishedDate"`
			PageCount     int      `json:"pageCount"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

func (g *GoogleBooks) Fetch(ctx context.Context, isbn string) (*library.BookMetadata, error) {
	body, err := get(ctx, g.Client, g.BaseURL+"?"+url.Values{"q": {"isbn:" + isbn}}.Encode())
	if err != nil {
		return nil, err
	}
	return parseGoogle(body)
}

func parseGoogle(body []byte) (*library.BookMetadata, error) {
	var vols googleVolumes
	if err := json.Unmarshal(body, &vols); err != nil {
		return nil, fmt.Errorf("parse google books response: %w", err)
	}
	if len(vols.Items) == 0 {
		return nil, nil
	}
	info := vols.Items[0].VolumeInfo
	md := &library.BookMetadata{
		Title:         info.Title,
		Author:        strings.Join(info.Authors, ", "),
		Publisher:     info.Publisher,
		PublishedDate: normalizeDate(info.PublishedDate),
	}
	if info.Title != "" && info.Subtitle != "" {
		md.Title = info.Title + " : " + info.Subtitle
	}
	if info.PageCount > 0 {
		pages := info.PageCount
		md.Pages = &pages
	}
	return md, nil
}

var (
	ymd = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	ym  = regexp.MustCompile(`(\d{4})-(\d{1,2})`)
	y   = regexp.MustCompile(`(\d{4})`)
)

// normalizeDate pads Google's partial dates to YYYY-MM-DD.
func normalizeDate(s string) string {
	atoi := func(v string) int { n, _ := strconv.Atoi(v); return n }
	if m := ymd.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%04d-%02d-%02d", atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := ym.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%04d-%02d-01", atoi(m[1]), atoi(m[2]))
	}
	if m := y.FindStringSubmatch(s); m != nil {
		return m[1] + "-01-01"
	}
	return ""
}
