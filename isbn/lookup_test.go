package isbn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"school-library/library"
)

const ndlRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/"
     xmlns:dcndl="http://ndl.go.jp/dcndl/terms/"
     xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <channel>
    <title>NDL Search</title>
    <item>
      <title>吾輩は猫である</title>
      <author>夏目漱石 著</author>
      <dc:title>吾輩は猫である</dc:title>
      <dcndl:titleTranscription>ワガハイ ワ ネコ デアル</dcndl:titleTranscription>
      <dc:publisher>岩波書店</dc:publisher>
      <dcndl:price>1200円</dcndl:price>
      <dc:extent>25cm</dc:extent>
      <dc:subject>小説</dc:subject>
      <dc:subject xsi:type="dcndl:NDC9">913.6</dc:subject>
      <dc:subject xsi:type="dcndl:NDC10">913.6X</dc:subject>
    </item>
  </channel>
</rss>`

func TestParseNDL(t *testing.T) {
	md, err := parseNDL([]byte(ndlRSS))
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, "吾輩は猫である", md.Title)
	assert.Equal(t, "ワガハイ ワ ネコ デアル", md.TitleTranscription)
	assert.Equal(t, "夏目漱石", md.Author)
	assert.Equal(t, "岩波書店", md.Publisher)
	require.NotNil(t, md.Price)
	assert.Equal(t, 1200, *md.Price)
	require.NotNil(t, md.Pages)
	assert.Equal(t, 25, *md.Pages)
	assert.Equal(t, "913.6X", md.NDC, "NDC10 wins over NDC9")
}

func TestParseNDLEmptyFeed(t *testing.T) {
	md, err := parseNDL([]byte(`<rss><channel><title>none</title></channel></rss>`))
	require.NoError(t, err)
	assert.Nil(t, md)

	_, err = parseNDL([]byte(`<rss><channel>`))
	assert.Error(t, err)
}

func TestParseOpenBD(t *testing.T) {
	body := `[{"onix":{
		"DescriptiveDetail":{
			"TitleDetail":{"TitleElement":{"TitleText":{"content":"ぐりとぐら","collationkey":"グリトグラ"}}},
			"Contributor":[{"PersonName":{"content":"なかがわりえこ"}},{"PersonName":{"content":"おおむらゆりこ"}}]},
		"PublishingDetail":{"Imprint":{"ImprintName":"福音館書店"},"PublishingDate":[{"Date":"196701"}]},
		"ProductSupply":{"SupplyDetail":{"Price":[{"PriceAmount":"900"}]}}}}]`
	md, err := parseOpenBD([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, "ぐりとぐら", md.Title)
	assert.Equal(t, "グリトグラ", md.TitleTranscription)
	assert.Equal(t, "なかがわりえこ, おおむらゆりこ", md.Author)
	assert.Equal(t, "福音館書店", md.Publisher)
	assert.Equal(t, "1967-01-01", md.PublishedDate)
	require.NotNil(t, md.Price)
	assert.Equal(t, 900, *md.Price)

	md, err = parseOpenBD([]byte(`[null]`))
	require.NoError(t, err)
	assert.Nil(t, md)
}

func TestParseGoogle(t *testing.T) {
	body := `{"items":[{"volumeInfo":{"title":"Go","subtitle":"The Language",
		"authors":["Alan Donovan","Brian Kernighan"],"publisher":"Addison-Wesley",
		"publishedDate":"2015-10","pageCount":380}}]}`
	md, err := parseGoogle([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "Go : The Language", md.Title)
	assert.Equal(t, "Alan Donovan, Brian Kernighan", md.Author)
	assert.Equal(t, "2015-10-01", md.PublishedDate)
	require.NotNil(t, md.Pages)
	assert.Equal(t, 380, *md.Pages)

	md, err = parseGoogle([]byte(`{"totalItems":0}`))
	require.NoError(t, err)
	assert.Nil(t, md)
}

func TestNormalizeDate(t *testing.T) {
	tests := map[string]string{
		"2015-3-7":   "2015-03-07",
		"2015-10":    "2015-10-01",
		"2015":       "2015-01-01",
		"circa 1999": "1999-01-01",
		"unknown":    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeDate(in), in)
	}
}

func TestCompactDate(t *testing.T) {
	assert.Equal(t, "2020-04-15", compactDate("20200415"))
	assert.Equal(t, "2020-04-01", compactDate("202004"))
	assert.Equal(t, "", compactDate("2020"))
}

// serve returns a test server answering every request with status and body.
func serve(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLookupFallsThroughProviders(t *testing.T) {
	ndl := serve(t, http.StatusServiceUnavailable, "down", nil)
	openbd := serve(t, http.StatusOK, `[null]`, nil)
	google := serve(t, http.StatusOK, `{"items":[{"volumeInfo":{"title":"Go"}}]}`, nil)

	svc, err := New(Config{NDLURL: ndl.URL, OpenBDURL: openbd.URL, GoogleURL: google.URL, Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)

	md, err := svc.Lookup(context.Background(), "978-4-00-000000-0")
	require.NoError(t, err)
	assert.Equal(t, "Go", md.Title)
	assert.Equal(t, "googleBooks", md.Source)
	assert.Equal(t, "9784000000000", md.ISBN)
}

func TestLookupNotFound(t *testing.T) {
	empty := serve(t, http.StatusOK, `<rss><channel></channel></rss>`, nil)
	broken := serve(t, http.StatusInternalServerError, "", nil)
	svc, err := New(Config{NDLURL: empty.URL, OpenBDURL: broken.URL, GoogleURL: broken.URL}, zerolog.Nop())
	require.NoError(t, err)

	_, err = svc.Lookup(context.Background(), "9784000000000")
	assert.True(t, library.IsNotFound(err))
}

type countingProvider struct {
	calls   int32
	release chan struct{}
	md      *library.BookMetadata
	err     error
}

func (c *countingProvider) Name() string { return "stub" }

func (c *countingProvider) Fetch(ctx context.Context, isbn string) (*library.BookMetadata, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	out := *c.md
	return &out, nil
}

func TestLookupCachesAndCopies(t *testing.T) {
	p := &countingProvider{md: &library.BookMetadata{Title: "Cached"}}
	svc, err := NewWithProviders(8, zerolog.Nop(), p)
	require.NoError(t, err)

	first, err := svc.Lookup(context.Background(), "9784000000000")
	require.NoError(t, err)
	first.Title = "mutated"
	second, err := svc.Lookup(context.Background(), "978-4000000000")
	require.NoError(t, err)
	assert.Equal(t, "Cached", second.Title)
	assert.EqualValues(t, 1, atomic.LoadInt32(&p.calls))
}

func TestConcurrentLookupsShareOneFetch(t *testing.T) {
	p := &countingProvider{md: &library.BookMetadata{Title: "Shared"}, release: make(chan struct{})}
	svc, err := NewWithProviders(8, zerolog.Nop(), p)
	require.NoError(t, err)

	var started sync.WaitGroup
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		started.Add(1)
		g.Go(func() error {
			started.Done()
			md, err := svc.Lookup(context.Background(), "9784000000000")
			if err == nil && md.Title != "Shared" {
				err = errors.New("wrong title " + md.Title)
			}
			return err
		})
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(p.release)
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, atomic.LoadInt32(&p.calls), int32(2))
}

func TestLookupHonoursCancellation(t *testing.T) {
	p := &countingProvider{err: context.Canceled}
	second := &countingProvider{md: &library.BookMetadata{Title: "Never"}}
	svc, err := NewWithProviders(8, zerolog.Nop(), p, second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Lookup(ctx, "9784000000000")
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, atomic.LoadInt32(&second.calls))
}

func TestCancelledCallerDoesNotAbortSharedLookup(t *testing.T) {
	p := &countingProvider{md: &library.BookMetadata{Title: "Shared"}, release: make(chan struct{})}
	svc, err := NewWithProviders(8, zerolog.Nop(), p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Lookup(ctx, "9784000000000")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&p.calls) == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		md  *library.BookMetadata
		err error
	}
	second := make(chan result, 1)
	go func() {
		md, err := svc.Lookup(context.Background(), "9784000000000")
		second <- result{md, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(p.release)
	select {
	case r := <-second:
		require.NoError(t, r.err)
		assert.Equal(t, "Shared", r.md.Title)
	case <-time.After(time.Second):
		t.Fatal("second caller never got an answer")
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&p.calls), int32(2))
}
