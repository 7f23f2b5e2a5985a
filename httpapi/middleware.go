package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"school-library/library"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	tokenKey
)

// principal returns the caller resolved by withSession; anonymous when no
// valid session was presented.
func principal(r *http.Request) library.Principal {
	pr, _ := r.Context().Value(principalKey).(library.Principal)
	return pr
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// withSession resolves the session token to a Principal.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token != "" {
			m, err := s.lm.Authenticate(r.Context(), token)
			switch {
			case err == nil:
				ctx := context.WithValue(r.Context(), principalKey, m.Principal())
				ctx = context.WithValue(ctx, tokenKey, token)
				r = r.WithContext(ctx)
			case !library.IsNotFound(err) && !errors.Is(err, library.ErrUnauthenticated):
				s.log.Error().Err(err).Msg("session lookup failed")
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		ev := s.log.Info()
		if rec.status >= 500 {
			ev = s.log.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.log.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("handler panicked")
				writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
