// Package httpapi exposes the library over a JSON REST API under /api.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"school-library/library"
)

// SessionCookie carries the login token.
const SessionCookie = "library_session"

// Options configures a Server.
type Options struct {
	Logger       zerolog.Logger
	CORSOrigins  []string
	FontPath     string // TrueType font for PDF reports
	SecureCookie bool
	Now          func() time.Time
}

// Server routes HTTP requests to a LibraryManager.
type Server struct {
	lm       *library.LibraryManager
	log      zerolog.Logger
	validate *validator.Validate
	opts     Options
}

func New(lm *library.LibraryManager, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{lm: lm, log: opts.Logger, validate: newValidator(), opts: opts}
}

// Handler returns the complete middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.withSession(h)
	h = cors.New(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}).Handler(h)
	h = s.withRecover(h)
	return s.withLogging(h)
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.healthz)

	// auth
	mux.HandleFunc("POST /api/login", s.login)
	mux.HandleFunc("POST /api/logout", s.logout)
	mux.HandleFunc("POST /api/setup-password", s.setupPassword)
	mux.HandleFunc("POST /api/change-password", s.changePassword)
	mux.HandleFunc("GET /api/me", s.me)

	// books
	mux.HandleFunc("GET /api/books", s.listBooks)
	mux.HandleFunc("POST /api/books", s.createBook)
	mux.HandleFunc("GET /api/books/available", s.availableBooks)
	mux.HandleFunc("GET /api/books/acceptance-sources", s.acceptanceSources)
	mux.HandleFunc("GET /api/books/search-isbn", s.searchISBN)
	mux.HandleFunc("POST /api/books/search-isbn", s.searchISBN)
	mux.HandleFunc("GET /api/books/search-jan", s.searchJan)
	mux.HandleFunc("GET /api/books/pdf", s.booksPDF)
	mux.HandleFunc("GET /api/books/jan-barcode", s.janBarcodePDF)
	mux.HandleFunc("GET /api/books/{id}", s.getBook)
	mux.HandleFunc("PUT /api/books/{id}", s.updateBook)
	mux.HandleFunc("DELETE /api/books/{id}", s.deleteBook)
	mux.HandleFunc("GET /api/books/{id}/history", s.bookHistory)
	mux.HandleFunc("POST /api/generate-jan-code", s.generateJanCode)

	// borrows
	mux.HandleFunc("GET /api/borrows", s.listLoans)
	mux.HandleFunc("POST /api/borrows", s.createLoan)
	mux.HandleFunc("POST /api/borrows/batch", s.batchCheckout)
	mux.HandleFunc("POST /api/borrows/batch-return", s.batchReturn)
	mux.HandleFunc("GET /api/borrows/recent", s.recentLoans)
	mux.HandleFunc("GET /api/borrows/{id}", s.getLoan)
	mux.HandleFunc("PUT /api/borrows/{id}", s.updateLoan)
	mux.HandleFunc("DELETE /api/borrows/{id}", s.deleteLoan)
	mux.HandleFunc("PATCH /api/borrows/{id}/return", s.returnLoan)
	mux.HandleFunc("GET /api/borrow-status", s.borrowStatus)
	mux.HandleFunc("GET /api/borrow-status/pdf", s.borrowStatusPDF)

	// students and classes
	mux.HandleFunc("GET /api/students", s.listMembers)
	mux.HandleFunc("POST /api/students", s.createMember)
	mux.HandleFunc("GET /api/students/{id}", s.getMember)
	mux.HandleFunc("PUT /api/students/{id}", s.updateMember)
	mux.HandleFunc("DELETE /api/students/{id}", s.deleteMember)
	mux.HandleFunc("GET /api/students/{id}/borrows", s.memberLoans)
	mux.HandleFunc("GET /api/classes", s.listClasses)

	// book requests and notifications
	mux.HandleFunc("GET /api/book-requests", s.listRequests)
	mux.HandleFunc("POST /api/book-requests", s.createRequest)
	mux.HandleFunc("PATCH /api/book-requests/{id}/status", s.updateRequestStatus)
	mux.HandleFunc("DELETE /api/book-requests/{id}", s.deleteRequest)
	mux.HandleFunc("GET /api/notifications", s.listNotifications)
	mux.HandleFunc("GET /api/notifications/unread-count", s.unreadCount)
	mux.HandleFunc("PATCH /api/notifications/read-all", s.markAllRead)
	mux.HandleFunc("PATCH /api/notifications/{id}/read", s.markRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", s.deleteNotification)

	// library duty and statistics
	mux.HandleFunc("GET /api/library-duty", s.listDuties)
	mux.HandleFunc("GET /api/library-duty/today", s.todayDuty)
	mux.HandleFunc("GET /api/library-duty/pdf", s.dutyPDF)
	mux.HandleFunc("PUT /api/library-duty/{id}", s.updateDuty)
	mux.HandleFunc("DELETE /api/library-duty/{id}", s.deleteDuty)
	mux.HandleFunc("GET /api/usage-statistics", s.usageStatistics)
	mux.HandleFunc("GET /api/usage-statistics/chart", s.chartData)
	mux.HandleFunc("POST /api/usage-statistics/pdf", s.usageStatisticsPDF)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.lm.Ping(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
