package httpapi

import (
	"net/http"

	"school-library/library"
)

type bookRequest struct {
	Title              string   `json:"title" validate:"required,max=255"`
	TitleTranscription string   `json:"title_transcription" validate:"max=255"`
	Author             string   `json:"author" validate:"max=255"`
	Publisher          string   `json:"publisher" validate:"max=255"`
	PublishedDate      string   `json:"published_date" validate:"omitempty,datetime=2006-01-02"`
	ISBN               string   `json:"isbn" validate:"max=20"`
	Pages              *int     `json:"pages" validate:"omitempty,min=1"`
	Price              *float64 `json:"price" validate:"omitempty,min=0"`
	NDC                string   `json:"ndc" validate:"max=10"`
	AcceptanceDate     string   `json:"acceptance_date" validate:"omitempty,datetime=2006-01-02"`
	AcceptanceType     string   `json:"acceptance_type" validate:"max=50"`
	AcceptanceSource   string   `json:"acceptance_source" validate:"max=255"`
	Discard            string   `json:"discard" validate:"max=255"`
	StorageLocation    string   `json:"storage_location" validate:"max=100"`
	VolumeNumber       string   `json:"volume_number" validate:"max=50"`
	Quantity           *int     `json:"quantity" validate:"omitempty,min=1,max=999"`
}

func (b bookRequest) input() (library.BookInput, error) {
	published, err := optionalDate("published_date", b.PublishedDate)
	if err != nil {
		return library.BookInput{}, err
	}
	accepted, err := optionalDate("acceptance_date", b.AcceptanceDate)
	if err != nil {
		return library.BookInput{}, err
	}
	return library.BookInput{
		Title:              b.Title,
		TitleTranscription: b.TitleTranscription,
		Author:             b.Author,
		Publisher:          b.Publisher,
		PublishedDate:      published,
		ISBN:               b.ISBN,
		Pages:              b.Pages,
		Price:              b.Price,
		NDC:                b.NDC,
		AcceptanceDate:     accepted,
		AcceptanceType:     b.AcceptanceType,
		AcceptanceSource:   b.AcceptanceSource,
		Discard:            b.Discard,
		StorageLocation:    b.StorageLocation,
		VolumeNumber:       b.VolumeNumber,
		Quantity:           deref(b.Quantity),
	}, nil
}

// decodeBook reads a book body. Creation may omit the quantity and gets one
// copy; an update replaces every field and so must carry it.
func (s *Server) decodeBook(r *http.Request, update bool) (library.BookInput, error) {
	var req bookRequest
	if err := s.decode(r, &req); err != nil {
		return library.BookInput{}, err
	}
	if update && req.Quantity == nil {
		return library.BookInput{}, &library.ValidationError{Field: "quantity", Message: "is required"}
	}
	return req.input()
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func bookFilter(q *query) library.BookFilter {
	return library.BookFilter{
		Search:          q.str("search"),
		ISBN:            q.str("isbn"),
		NDCCategory:     q.str("ndc_category"),
		StorageLocation: q.str("storage_location"),
		ISBNType:        q.str("isbn_type"),
		StartDate:       q.date("start_date"),
		EndDate:         q.date("end_date"),
		SortBy:          q.str("sort_by"),
		SortDirection:   q.str("sort_direction"),
	}
}

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f, p := bookFilter(q), q.page()
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	page, err := s.lm.ListBooks(r.Context(), f, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) availableBooks(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	search, p := q.str("search"), q.page()
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	page, err := s.lm.AvailableBooks(r.Context(), search, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) acceptanceSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.lm.AcceptanceSources(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sources)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	book, err := s.lm.GetBook(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, book)
}

func (s *Server) createBook(w http.ResponseWriter, r *http.Request) {
	in, err := s.decodeBook(r, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	book, err := s.lm.CreateBook(r.Context(), principal(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageBody{Message: "書籍を登録しました", Data: book})
}

func (s *Server) updateBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := s.decodeBook(r, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	book, err := s.lm.UpdateBook(r.Context(), principal(r), id, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "書籍を更新しました", Data: book})
}

func (s *Server) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.lm.DeleteBook(r.Context(), principal(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "書籍を削除しました"})
}

func (s *Server) bookHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := newQuery(r)
	p := q.page()
	if q.err != nil {
		s.fail(w, r, q.err)
		return
	}
	page, err := s.lm.BookHistory(r.Context(), principal(r), id, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type isbnRequest struct {
	ISBN string `json:"isbn" validate:"required"`
}

// searchISBN accepts the ISBN either as a query parameter or a JSON body.
func (s *Server) searchISBN(w http.ResponseWriter, r *http.Request) {
	var req isbnRequest
	if r.Method == http.MethodPost {
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		req.ISBN = newQuery(r).str("isbn")
		if req.ISBN == "" {
			s.fail(w, r, &library.ValidationError{Field: "isbn", Message: "is required"})
			return
		}
	}
	meta, err := s.lm.LookupISBN(r.Context(), req.ISBN)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, meta)
}

func (s *Server) searchJan(w http.ResponseWriter, r *http.Request) {
	code := newQuery(r).str("jan_code")
	if code == "" {
		s.fail(w, r, &library.ValidationError{Field: "jan_code", Message: "is required"})
		return
	}
	book, err := s.lm.BookByCode(r.Context(), code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, book)
}

func (s *Server) generateJanCode(w http.ResponseWriter, r *http.Request) {
	jan, err := s.lm.IssueJanCode(r.Context(), principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, jan)
}
