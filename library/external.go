package library

import "context"

// BookMetadata is what an ISBN lookup returns. Empty fields were not known
// to the provider.
type BookMetadata struct {
	ISBN               string `json:"isbn"`
	Title              string `json:"title"`
	TitleTranscription string `json:"title_transcription"`
	Author             string `json:"author"`
	Publisher          string `json:"publisher"`
	PublishedDate      string `json:"published_date"`
	Pages              *int   `json:"pages"`
	Price              *int   `json:"price"`
	NDC                string `json:"ndc"`
	Source             string `json:"source"`
}

// BookLookup resolves an ISBN against external metadata services.
type BookLookup interface {
	Lookup(ctx context.Context, isbn string) (*BookMetadata, error)
}

// Event names published after a change commits.
const (
	EventLoanCreated    = "library.loan.created"
	EventLoanReturned   = "library.loan.returned"
	EventRequestMatched = "library.request.matched"
	EventJanIssued      = "library.jan.issued"
)

// EventPublisher receives domain events. Publishing is best effort: the
// change it describes has already been committed.
type EventPublisher interface {
	Publish(ctx context.Context, name string, payload any) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }
