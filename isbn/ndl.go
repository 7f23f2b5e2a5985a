package isbn

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"school-library/library"
)

// NDL queries the National Diet Library opensearch RSS feed.
type NDL struct {
	BaseURL string
	Client  *http.Client
}

func (n *NDL) Name() string { return "ndl" }

type ndlFeed struct {
	Items []ndlItem `xml:"channel>item"`
}

type ndlSubject struct {
	Type  string `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	Value string `xml:",chardata"`
}

type ndlItem struct {
	Title              string       `xml:"title"`
	Author             string       `xml:"author"`
	TitleTranscription string       `xml:"http://ndl.go.jp/dcndl/terms/ titleTranscription"`
	Price              string       `xml:"http://ndl.go.jp/dcndl/terms/ price"`
	Publisher          []string     `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Extent             []string     `xml:"http://purl.org/dc/elements/1.1/ extent"`
	Subjects           []ndlSubject `xml:"http://purl.org/dc/elements/1.1/ subject"`
}

var (
	authorRole  = regexp.MustCompile(`\s*(著|編|監修|訳|共著|編著)$`)
	firstDigits = regexp.MustCompile(`(\d+)`)
)

func (n *NDL) Fetch(ctx context.Context, isbn string) (*library.BookMetadata, error) {
	q := url.Values{"isbn": {isbn}, "format": {"rss"}}
	body, err := get(ctx, n.Client, n.BaseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return parseNDL(body)
}

func parseNDL(body []byte) (*library.BookMetadata, error) {
	var feed ndlFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse ndl feed: %w", err)
	}
	if len(feed.Items) == 0 {
		return nil, nil
	}
	item := feed.Items[0]
	md := &library.BookMetadata{
		Title:              strings.TrimSpace(item.Title),
		TitleTranscription: strings.TrimSpace(item.TitleTranscription),
		Author:             authorRole.ReplaceAllString(strings.TrimSpace(item.Author), ""),
	}
	if len(item.Publisher) > 0 {
		md.Publisher = strings.TrimSpace(item.Publisher[0])
	}
	if m := firstDigits.FindString(item.Price); m != "" {
		if v, err := strconv.Atoi(m); err == nil {
			md.Price = &v
		}
	}
	for _, e := range item.Extent {
		if m := firstDigits.FindString(e); m != "" {
			if v, err := strconv.Atoi(m); err == nil {
				md.Pages = &v
				break
			}
		}
	}
	md.NDC = pickNDC(item.Subjects)
	return md, nil
}

// pickNDC prefers the newest NDC edition present, then any NDC-typed
// subject.
func pickNDC(subjects []ndlSubject) string {
	for _, edition := range []string{"dcndl:NDC10", "dcndl:NDC9", "dcndl:NDC8"} {
		for _, s := range subjects {
			if s.Type == edition {
				return strings.TrimSpace(s.Value)
			}
		}
	}
	for _, s := range subjects {
		if strings.HasPrefix(s.Type, "dcndl:NDC") {
			return strings.TrimSpace(s.Value)
		}
	}
	return ""
}
