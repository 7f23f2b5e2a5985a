// Package isbn resolves ISBNs to bibliographic metadata by asking the
// National Diet Library, openBD and Google Books in turn.
package isbn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"school-library/library"
)

// Provider is one metadata source. Fetch returns nil metadata when the
// source does not know the ISBN.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, isbn string) (*library.BookMetadata, error)
}

// Config selects endpoints and limits. Zero values fall back to the public
// endpoints, a 10 second timeout and a 256 entry cache.
type Config struct {
	Timeout   time.Duration
	CacheSize int
	NDLURL    string
	OpenBDURL string
	GoogleURL string
}

// lookupTimeout bounds one shared round through every provider.
const lookupTimeout = 30 * time.Second

const (
	DefaultNDLURL    = "https://ndlsearch.ndl.go.jp/api/opensearch"
	DefaultOpenBDURL = "https://api.openbd.jp/v1/get"
	DefaultGoogleURL = "https://www.googleapis.com/books/v1/volumes"
)

// Service implements library.BookLookup over an ordered provider list.
type Service struct {
	providers []Provider
	cache     *lru.Cache[string, *library.BookMetadata]
	group     singleflight.Group
	log       zerolog.Logger
}

// New builds the NDL, openBD, Google Books chain.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = cfg.Timeout
	return NewWithProviders(cfg.CacheSize, logger,
		&NDL{BaseURL: orDefault(cfg.NDLURL, DefaultNDLURL), Client: client},
		&OpenBD{BaseURL: orDefault(cfg.OpenBDURL, DefaultOpenBDURL), Client: client},
		&GoogleBooks{BaseURL: orDefault(cfg.GoogleURL, DefaultGoogleURL), Client: client},
	)
}

// NewWithProviders builds a service over an explicit provider order.
func NewWithProviders(cacheSize int, logger zerolog.Logger, providers ...Provider) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, *library.BookMetadata](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("isbn cache: %w", err)
	}
	return &Service{providers: providers, cache: cache, log: logger}, nil
}

// Lookup returns the first provider answer carrying a title. Provider
// failures are logged and skipped; when nothing answers the ISBN is
// reported as not found. Answers are cached and concurrent lookups of one
// ISBN share a single round of requests. The round ignores caller
// cancellation and is bounded by lookupTimeout; a cancelled caller just
// stops waiting.
func (s *Service) Lookup(ctx context.Context, isbn string) (*library.BookMetadata, error) {
	isbn = library.CleanISBN(isbn)
	if md, ok := s.cache.Get(isbn); ok {
		return copyMeta(md), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := s.group.DoChan(isbn, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return s.lookup(fetchCtx, isbn)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyMeta(res.Val.(*library.BookMetadata)), nil
	}
}

func (s *Service) lookup(ctx context.Context, isbn string) (*library.BookMetadata, error) {
	for _, p := range s.providers {
		md, err := p.Fetch(ctx, isbn)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			err = &library.UpstreamServiceError{Provider: p.Name(), Err: err}
			s.log.Warn().Err(err).Str("isbn", isbn).Msg("isbn provider failed")
			continue
		}
		if md == nil || md.Title == "" {
			s.log.Debug().Str("provider", p.Name()).Str("isbn", isbn).Msg("no match")
			continue
		}
		md.ISBN = isbn
		md.Source = p.Name()
		s.cache.Add(isbn, md)
		s.log.Info().Str("provider", p.Name()).Str("isbn", isbn).Msg("isbn resolved")
		return md, nil
	}
	return nil, &library.NotFoundError{Resource: "book information for isbn", ID: isbn}
}

func copyMeta(md *library.BookMetadata) *library.BookMetadata {
	out := *md
	return &out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// get performs a GET and returns the body of a 200 response.
func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "school-library/1.0")
	if client == nil {
		client = cleanhttp.DefaultClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}
