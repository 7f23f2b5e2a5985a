package isbn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"school-library/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OpenBD queries the openBD ONIX API.
type OpenBD struct {
	BaseURL string
	Client  *http.Client
}

func (o *OpenBD) Name() string { return "openBD" }

type openBDRecord struct {
	Onix struct {
		DescriptiveDetail struct {
			TitleDetail struct {
				TitleElement struct {
					TitleText struct {
						Content      string `json:"content"`
						CollationKey string `json:"collationkey"`
					} `json:"TitleText"`
				} `json:"TitleElement"`
			} `json:"TitleDetail"`
			Contributor []struct {
				PersonName struct {
					Content string `json:"content"`
				} `json:"PersonName"`
			} `json:"Contributor"`
		} `json:"DescriptiveDetail"`
		PublishingDetail struct {
			Imprint struct {
				ImprintName string `json:"ImprintName"`
			} `json:"Imprint"`
			PublishingDate []struct {
				Date string `json:"Date"`
			} `json:"PublishingDate"`
		} `json:"PublishingDetail"`
		ProductSupply struct {
			SupplyDetail struct {
				Price []struct {
					PriceAmount any `json:"PriceAmount"`
				} `json:"Price"`
			} `json:"SupplyDetail"`
		} `json:"ProductSupply"`
	} `json:"onix"`
}

func (o *OpenBD) Fetch(ctx context.Context, isbn string) (*library.BookMetadata, error) {
	body, err := get(ctx, o.Client, o.BaseURL+"?"+url.Values{"isbn": {isbn}}.Encode())
	if err != nil {
		return nil, err
	}
	return parseOpenBD(body)
}

func parseOpenBD(body []byte) (*library.BookMetadata, error) {
	var records []*openBDRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("parse openbd response: %w", err)
	}
	if len(records) == 0 || records[0] == nil {
		return nil, nil
	}
	onix := records[0].Onix
	title := onix.DescriptiveDetail.TitleDetail.TitleElement.TitleText
	md := &library.BookMetadata{
		Title:              title.Content,
		TitleTranscription: title.CollationKey,
		Publisher:          onix.PublishingDetail.Imprint.ImprintName,
	}
	var authors []string
	for _, c := range onix.DescriptiveDetail.Contributor {
		if c.PersonName.Content != "" {
			authors = append(authors, c.PersonName.Content)
		}
	}
	md.Author = strings.Join(authors, ", ")
	if dates := onix.PublishingDetail.PublishingDate; len(dates) > 0 {
		md.PublishedDate = compactDate(dates[0].Date)
	}
	if prices := onix.ProductSupply.SupplyDetail.Price; len(prices) > 0 {
		md.Price = amount(prices[0].PriceAmount)
	}
	return md, nil
}

// compactDate turns YYYYMM or YYYYMMDD into YYYY-MM-DD.
func compactDate(s string) string {
	if len(s) < 6 {
		return ""
	}
	day := "01"
	if len(s) >= 8 {
		day = s[6:8]
	}
	return s[:4] + "-" + s[4:6] + "-" + day
}

func amount(v any) *int {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	n := int(f)
	return &n
}
