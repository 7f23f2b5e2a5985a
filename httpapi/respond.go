package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"school-library/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBody bounds request bodies; chart images for the statistics report
// are the largest payloads.
const maxBody = 8 << 20

type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// capacityBody names the book a checkout could not satisfy.
type capacityBody struct {
	Message   string `json:"message"`
	BookID    int64  `json:"book_id"`
	Title     string `json:"title"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Total     int    `json:"total"`
}

type dataBody struct {
	Data any `json:"data"`
}

type messageBody struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, dataBody{Data: v})
}

// fail maps a library error onto an HTTP status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *library.ValidationError
		fe validator.ValidationErrors
		ce *library.CapacityExceededError
	)
	switch {
	case errors.As(err, &fe):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Message: "validation failed", Errors: fieldErrors(fe)})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Message: ve.Error(), Errors: map[string]string{ve.Field: ve.Message}})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusUnprocessableEntity, capacityBody{
			Message:   fmt.Sprintf("「%s」は貸出可能な冊数を超えています（残り%d冊）", ce.Title, ce.Available),
			BookID:    ce.BookID,
			Title:     ce.Title,
			Requested: ce.Requested,
			Available: ce.Available,
			Total:     ce.Total,
		})
	case library.IsDomainRule(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Message: err.Error()})
	case library.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Message: err.Error()})
	case errors.Is(err, library.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "authentication required"})
	case library.IsForbidden(err):
		writeJSON(w, http.StatusForbidden, errorBody{Message: err.Error()})
	case errors.Is(err, library.ErrUpstream):
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream failure")
		writeJSON(w, http.StatusBadGateway, errorBody{Message: "book information service unavailable"})
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: err.Error()})
	default:
		s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
	}
}

var errBadRequest = errors.New("malformed request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = "is required"
		case "min", "gte":
			out[fe.Field()] = "must be at least " + fe.Param()
		case "max", "lte":
			out[fe.Field()] = "must be at most " + fe.Param()
		case "oneof":
			out[fe.Field()] = "must be one of " + fe.Param()
		case "datetime":
			out[fe.Field()] = "must be a date (YYYY-MM-DD)"
		case "email":
			out[fe.Field()] = "must be an email address"
		default:
			out[fe.Field()] = "is invalid (" + fe.Tag() + ")"
		}
	}
	return out
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		var ve *library.ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		return badRequest("invalid JSON: %v", err)
	}
	return s.validate.Struct(dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &library.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

// query wraps URL query parsing and records the first bad parameter.
type query struct {
	r   *http.Request
	err error
}

func newQuery(r *http.Request) *query { return &query{r: r} }

func (q *query) str(name string) string {
	return strings.TrimSpace(q.r.URL.Query().Get(name))
}

func (q *query) int(name string) int {
	v := q.str(name)
	if v == "" || q.err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		q.err = &library.ValidationError{Field: name, Message: "must be an integer"}
	}
	return n
}

func (q *query) int64(name string) int64 {
	return int64(q.int(name))
}

func (q *query) bool(name string) bool {
	v := q.str(name)
	if v == "" || q.err != nil {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		q.err = &library.ValidationError{Field: name, Message: "must be true or false"}
	}
	return b
}

func (q *query) date(name string) *library.Date {
	v := q.str(name)
	if v == "" || q.err != nil {
		return nil
	}
	d, err := library.ParseDate(v)
	if err != nil {
		q.err = &library.ValidationError{Field: name, Message: "must be a date (YYYY-MM-DD)"}
		return nil
	}
	return &d
}

func (q *query) page() library.PageRequest {
	return library.PageRequest{Page: q.int("page"), PerPage: q.int("per_page")}
}

// optionalDate parses a validated "YYYY-MM-DD" body field.
func optionalDate(field, s string) (*library.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := library.ParseDate(s)
	if err != nil {
		return nil, &library.ValidationError{Field: field, Message: "must be a date (YYYY-MM-DD)"}
	}
	return &d, nil
}
