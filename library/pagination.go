package library

// Default and maximum page sizes. Page numbers past MaxPage are read as
// MaxPage.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	MaxPage        = 1_000_000
)

// PageRequest selects one page of a list. Zero values mean "first page,
// default size".
type PageRequest struct {
	Page    int
	PerPage int
}

func (p PageRequest) withDefault(perPage int) PageRequest {
	if p.PerPage <= 0 {
		p.PerPage = perPage
	}
	return p
}

func (p PageRequest) size() int {
	switch {
	case p.PerPage <= 0:
		return DefaultPerPage
	case p.PerPage > MaxPerPage:
		return MaxPerPage
	default:
		return p.PerPage
	}
}

func (p PageRequest) number() int {
	return min(max(p.Page, 1), MaxPage)
}

func (p PageRequest) offset(size int) int {
	return (p.number() - 1) * size
}

// PageMeta is the pagination envelope returned with every list.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	From        int `json:"from"`
	To          int `json:"to"`
}

func newPageMeta(p PageRequest, total int) PageMeta {
	size, page := p.size(), p.number()
	last := (total + size - 1) / size
	if last < 1 {
		last = 1
	}
	meta := PageMeta{CurrentPage: page, LastPage: last, PerPage: size, Total: total}
	first := (page-1)*size + 1
	if total > 0 && first <= total {
		meta.From = first
		meta.To = min(page*size, total)
	}
	return meta
}

// Page is one page of results plus its envelope.
type Page[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}
