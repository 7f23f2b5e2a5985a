package library

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// DefaultSessionTTL is how long a login stays valid.
const DefaultSessionTTL = 30 * 24 * time.Hour

// LibraryManager is the façade the API and CLI call. It checks the caller's
// Principal, stamps dates from its clock, and publishes events once a change
// has committed.
type LibraryManager struct {
	db *Database

	lookup        BookLookup
	events        EventPublisher
	policy        AccountPolicy
	log           zerolog.Logger
	clock         Clock
	autoProvision bool
	sessionTTL    time.Duration
}

// Option configures a LibraryManager.
type Option func(*LibraryManager)

func WithLookup(l BookLookup) Option           { return func(lm *LibraryManager) { lm.lookup = l } }
func WithPublisher(p EventPublisher) Option    { return func(lm *LibraryManager) { lm.events = p } }
func WithAccountPolicy(p AccountPolicy) Option { return func(lm *LibraryManager) { lm.policy = p } }
func WithLogger(l zerolog.Logger) Option       { return func(lm *LibraryManager) { lm.log = l } }
func WithClock(c Clock) Option                 { return func(lm *LibraryManager) { lm.clock = c } }

// WithAutoProvision lets a first login from an address the account policy
// classifies as admin create that admin account.
func WithAutoProvision(on bool) Option { return func(lm *LibraryManager) { lm.autoProvision = on } }

func WithSessionTTL(ttl time.Duration) Option {
	return func(lm *LibraryManager) {
		if ttl > 0 {
			lm.sessionTTL = ttl
		}
	}
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	lm := &LibraryManager{
		db:         db,
		events:     nopPublisher{},
		policy:     DomainPolicy{},
		log:        zerolog.Nop(),
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Ping checks the database connection.
func (lm *LibraryManager) Ping(ctx context.Context) error { return lm.db.Ping(ctx) }

// Today is the manager's current calendar day.
func (lm *LibraryManager) Today() Date { return lm.clock.Today() }

func (lm *LibraryManager) publish(ctx context.Context, name string, payload any) {
	if err := lm.events.Publish(ctx, name, payload); err != nil {
		lm.log.Warn().Err(err).Str("event", name).Msg("publish event failed")
	}
}

func (lm *LibraryManager) warnIntegrity(books ...*Book) {
	for _, b := range books {
		if b.IntegrityWarning != "" {
			lm.log.Warn().Int64("book_id", b.ID).Str("title", b.Title).Msg(b.IntegrityWarning)
		}
	}
}

// ------------------ Books ------------------

func (lm *LibraryManager) GetBook(ctx context.Context, id int64) (*Book, error) {
	b, err := lm.db.GetBook(ctx, id)
	if err == nil {
		lm.warnIntegrity(b)
	}
	return b, err
}

func (lm *LibraryManager) ListBooks(ctx context.Context, f BookFilter, p PageRequest) (Page[*Book], error) {
	page, err := lm.db.ListBooks(ctx, f, p)
	lm.warnIntegrity(page.Data...)
	return page, err
}

func (lm *LibraryManager) AvailableBooks(ctx context.Context, search string, p PageRequest) (Page[*Book], error) {
	return lm.db.AvailableBooks(ctx, search, p)
}

func (lm *LibraryManager) BookByCode(ctx context.Context, code string) (*Book, error) {
	return lm.db.BookByCode(ctx, code)
}

func (lm *LibraryManager) AcceptanceSources(ctx context.Context) ([]string, error) {
	return lm.db.AcceptanceSources(ctx)
}

// BookHistory lists who borrowed a title before; it names students, so it is
// admin only.
func (lm *LibraryManager) BookHistory(ctx context.Context, pr Principal, bookID int64, p PageRequest) (Page[*LoanDetail], error) {
	if err := pr.requireAdmin("view book history"); err != nil {
		return Page[*LoanDetail]{}, err
	}
	return lm.db.BookHistory(ctx, bookID, p)
}

// CreateBook catalogs a book, then tells every requester whose pending
// request it satisfies. Notification failures are logged and never undo
// the book.
func (lm *LibraryManager) CreateBook(ctx context.Context, pr Principal, in BookInput) (*Book, error) {
	if err := pr.requireAdmin("create books"); err != nil {
		return nil, err
	}
	book, err := lm.db.CreateBook(ctx, in)
	if err != nil {
		return nil, err
	}
	lm.log.Info().Int64("book_id", book.ID).Str("title", book.Title).Msg("book created")
	if err := lm.notifyRequesters(ctx, book); err != nil {
		lm.log.Error().Err(err).Int64("book_id", book.ID).Msg("request notification failed")
	}
	return book, nil
}

// notifyRequesters creates one notification per pending request matched by
// book.
func (lm *LibraryManager) notifyRequesters(ctx context.Context, book *Book) error {
	pending, err := lm.db.PendingRequests(ctx)
	if err != nil {
		return err
	}
	var ns []Notification
	var matched []*BookRequest
	for _, req := range pending {
		if !MatchesRequest(req, book) {
			continue
		}
		reqID, bookID := req.ID, book.ID
		ns = append(ns, Notification{
			MemberID:      req.MemberID,
			BookRequestID: &reqID,
			BookID:        &bookID,
			Title:         requestMatchedTitle,
			Message:       requestMatchedMessage(book.Title),
		})
		matched = append(matched, req)
	}
	if len(ns) == 0 {
		return nil
	}
	if _, err := lm.db.CreateNotifications(ctx, ns); err != nil {
		return err
	}
	for _, req := range matched {
		lm.log.Info().Int64("book_request_id", req.ID).Int64("book_id", book.ID).Msg("request matched")
		lm.publish(ctx, EventRequestMatched, map[string]any{
			"book_request_id": req.ID, "book_id": book.ID, "student_id": req.MemberID,
		})
	}
	return nil
}

func (lm *LibraryManager) UpdateBook(ctx context.Context, pr Principal, id int64, in BookInput) (*Book, error) {
	if err := pr.requireAdmin("edit books"); err != nil {
		return nil, err
	}
	return lm.db.UpdateBook(ctx, id, in)
}

func (lm *LibraryManager) DeleteBook(ctx context.Context, pr Principal, id int64) error {
	if err := pr.requireAdmin("delete books"); err != nil {
		return err
	}
	return lm.db.DeleteBook(ctx, id)
}

// LookupISBN fetches metadata for an ISBN from the configured providers.
func (lm *LibraryManager) LookupISBN(ctx context.Context, isbn string) (*BookMetadata, error) {
	if n := utf8.RuneCountInString(isbn); n < 10 || n > 17 {
		return nil, invalid("isbn", "must be between 10 and 17 characters")
	}
	if lm.lookup == nil {
		return nil, notFound("book information for isbn", isbn)
	}
	return lm.lookup.Lookup(ctx, CleanISBN(isbn))
}

// IssueJanCode hands out the next internal code.
func (lm *LibraryManager) IssueJanCode(ctx context.Context, pr Principal) (*JanCode, error) {
	if err := pr.requireAdmin("issue jan codes"); err != nil {
		return nil, err
	}
	jc, err := lm.db.IssueJanCode(ctx)
	if err != nil {
		return nil, err
	}
	lm.publish(ctx, EventJanIssued, jc)
	return jc, nil
}

// ------------------ Members ------------------

func (lm *LibraryManager) GetMember(ctx context.Context, pr Principal, id int64) (*Member, error) {
	if !pr.Owns(&id) {
		return nil, &AuthorizationError{Action: "view this student"}
	}
	return lm.db.GetMember(ctx, id)
}

func (lm *LibraryManager) ListMembers(ctx context.Context, pr Principal, f MemberFilter, p PageRequest) (Page[*MemberSummary], error) {
	if err := pr.requireAdmin("list students"); err != nil {
		return Page[*MemberSummary]{}, err
	}
	return lm.db.ListMembers(ctx, f, lm.Today(), p)
}

// CreateMember registers a student. An empty password leaves the account
// waiting for its first password setup.
func (lm *LibraryManager) CreateMember(ctx context.Context, pr Principal, in MemberInput, password, role string) (*Member, error) {
	if err := pr.requireAdmin("create students"); err != nil {
		return nil, err
	}
	hash := ""
	if password != "" {
		var err error
		if hash, err = HashPassword(password); err != nil {
			return nil, err
		}
	}
	return lm.db.CreateMember(ctx, in, hash, role)
}

func (lm *LibraryManager) UpdateMember(ctx context.Context, pr Principal, id int64, in MemberInput) (*Member, error) {
	if err := pr.requireAdmin("edit students"); err != nil {
		return nil, err
	}
	return lm.db.UpdateMember(ctx, id, in)
}

func (lm *LibraryManager) DeleteMember(ctx context.Context, pr Principal, id int64) error {
	if err := pr.requireAdmin("delete students"); err != nil {
		return err
	}
	return lm.db.DeleteMember(ctx, id)
}

// SetRole promotes or demotes an account.
func (lm *LibraryManager) SetRole(ctx context.Context, pr Principal, id int64, role string) error {
	if err := pr.requireAdmin("change roles"); err != nil {
		return err
	}
	return lm.db.SetRole(ctx, id, role)
}

// ResetPassword replaces a member's password without the old one.
func (lm *LibraryManager) ResetPassword(ctx context.Context, pr Principal, id int64, password string) error {
	if err := pr.requireAdmin("reset passwords"); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return lm.db.SetPassword(ctx, id, hash)
}

func (lm *LibraryManager) ListClasses(ctx context.Context, nendo int) ([]*Class, error) {
	return lm.db.ListClasses(ctx, nendo)
}

func (lm *LibraryManager) CreateClass(ctx context.Context, pr Principal, c Class) (*Class, error) {
	if err := pr.requireAdmin("create classes"); err != nil {
		return nil, err
	}
	return lm.db.CreateClass(ctx, c)
}

// ------------------ Circulation ------------------

// Checkout lends the listed books to a member. A zero BorrowedDate means
// today; a date after today is refused.
func (lm *LibraryManager) Checkout(ctx context.Context, pr Principal, req CheckoutRequest) ([]*LoanDetail, error) {
	if err := pr.requireAdmin("lend books"); err != nil {
		return nil, err
	}
	today := lm.Today()
	req.BorrowedDate = req.BorrowedDate.orDefault(today)
	if req.BorrowedDate.After(today) {
		return nil, invalid("borrowed_date", "must not be in the future")
	}
	loans, err := lm.db.Checkout(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, l := range loans {
		l.markOverdue(today)
		lm.log.Info().Int64("borrow_id", l.ID).Int64("book_id", l.BookID).Int64("student_id", l.MemberID).Msg("book lent")
		lm.publish(ctx, EventLoanCreated, l)
	}
	return loans, nil
}

// ReturnLoan closes one loan today.
func (lm *LibraryManager) ReturnLoan(ctx context.Context, pr Principal, id int64) (*LoanDetail, error) {
	if err := pr.requireAdmin("return books"); err != nil {
		return nil, err
	}
	loan, err := lm.db.ReturnLoan(ctx, id, lm.Today())
	if err != nil {
		return nil, err
	}
	lm.publish(ctx, EventLoanReturned, loan)
	return loan, nil
}

// ReturnLoans closes several loans today, reporting those already closed.
func (lm *LibraryManager) ReturnLoans(ctx context.Context, pr Principal, ids []int64) (*BatchReturnResult, error) {
	if err := pr.requireAdmin("return books"); err != nil {
		return nil, err
	}
	res, err := lm.db.ReturnLoans(ctx, ids, lm.Today())
	if err != nil {
		return nil, err
	}
	for _, l := range res.Returned {
		lm.publish(ctx, EventLoanReturned, l)
	}
	if len(res.AlreadyReturned) > 0 {
		lm.log.Info().Strs("titles", res.AlreadyReturned).Msg("batch return skipped closed loans")
	}
	return res, nil
}

func (lm *LibraryManager) UpdateLoan(ctx context.Context, pr Principal, id int64, edit LoanEdit) (*LoanDetail, error) {
	if err := pr.requireAdmin("edit borrows"); err != nil {
		return nil, err
	}
	loan, err := lm.db.UpdateLoan(ctx, id, edit)
	if err != nil {
		return nil, err
	}
	loan.markOverdue(lm.Today())
	return loan, nil
}

func (lm *LibraryManager) DeleteLoan(ctx context.Context, pr Principal, id int64) error {
	if err := pr.requireAdmin("delete borrows"); err != nil {
		return err
	}
	return lm.db.DeleteLoan(ctx, id)
}

// GetLoan is visible to admins and to the borrower.
func (lm *LibraryManager) GetLoan(ctx context.Context, pr Principal, id int64) (*LoanDetail, error) {
	loan, err := lm.db.GetLoan(ctx, id, lm.Today())
	if err != nil {
		return nil, err
	}
	if !pr.Owns(&loan.MemberID) {
		return nil, &AuthorizationError{Action: "view this borrow"}
	}
	return loan, nil
}

// ListLoans lists loans; members only ever see their own.
func (lm *LibraryManager) ListLoans(ctx context.Context, pr Principal, f LoanFilter, p PageRequest) (Page[*LoanDetail], error) {
	if !pr.IsAdmin {
		if err := pr.requireMember(); err != nil {
			return Page[*LoanDetail]{}, err
		}
		f.MemberID = pr.MemberID
	}
	return lm.db.ListLoans(ctx, f, lm.Today(), p)
}

func (lm *LibraryManager) RecentLoans(ctx context.Context, pr Principal, limit int) ([]*LoanDetail, error) {
	if err := pr.requireAdmin("view recent borrows"); err != nil {
		return nil, err
	}
	return lm.db.RecentLoans(ctx, limit, lm.Today())
}

func (lm *LibraryManager) LoansOfMember(ctx context.Context, pr Principal, memberID int64) (*MemberLoans, error) {
	if !pr.Owns(&memberID) {
		return nil, &AuthorizationError{Action: "view this student's borrows"}
	}
	return lm.db.LoansOfMember(ctx, memberID, lm.Today())
}

// BorrowStatus is the outstanding-loan report as of today.
func (lm *LibraryManager) BorrowStatus(ctx context.Context, pr Principal, f BorrowStatusFilter) (*BorrowStatus, error) {
	if err := pr.requireAdmin("view borrow status"); err != nil {
		return nil, err
	}
	return lm.db.BorrowStatus(ctx, f, lm.Today())
}

// ------------------ Report data ------------------

// BookCatalog is the filtered catalog listed in the books report.
type BookCatalog struct {
	Books  []*Book
	Total  int
	Filter BookFilter
}

func (lm *LibraryManager) BookCatalog(ctx context.Context, pr Principal, f BookFilter) (*BookCatalog, error) {
	if err := pr.requireAdmin("export the catalog"); err != nil {
		return nil, err
	}
	books, err := lm.db.AllBooks(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := lm.db.CountBooks(ctx)
	if err != nil {
		return nil, err
	}
	return &BookCatalog{Books: books, Total: total, Filter: f}, nil
}

// DutyLog is the duty report of a date range.
type DutyLog struct {
	Start, End Date
	Shift      string
	Duties     []*LibraryDuty
	Summary    DutySummary
}

// DutyLog collects the duty logs of [start, end]. Zero dates default to the
// current month.
func (lm *LibraryManager) DutyLog(ctx context.Context, pr Principal, start, end Date, shift string) (*DutyLog, error) {
	if err := pr.requireAdmin("export duty logs"); err != nil {
		return nil, err
	}
	today := lm.Today()
	start = start.orDefault(today.FirstOfMonth())
	end = end.orDefault(today.LastOfMonth())
	if end.Before(start) {
		return nil, invalid("end_date", "must not be before the start date")
	}
	if shift != "" && !ValidShift(shift) {
		return nil, invalid("shift_type", "must be %s or %s", ShiftLunch, ShiftAfterSchool)
	}
	duties, err := lm.db.DutiesBetween(ctx, start, end, shift)
	if err != nil {
		return nil, err
	}
	return &DutyLog{Start: start, End: end, Shift: shift, Duties: duties, Summary: SummarizeDuties(duties)}, nil
}
