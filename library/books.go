package library

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

// bookColumns selects every Book column plus the outstanding-loan count.
const bookColumns = `b.id, b.title, b.title_transcription, b.author, b.publisher, b.published_date,
	b.isbn, b.pages, b.price, b.ndc, b.acceptance_date, b.acceptance_type, b.acceptance_source,
	b.discard, b.storage_location, b.volume_number, b.quantity, b.created_at, b.updated_at,
	(SELECT COUNT(*) FROM loans l WHERE l.book_id = b.id AND l.returned_date IS NULL) AS current_borrowed_count`

// DefaultAcceptanceSources are offered even before any book uses them.
var DefaultAcceptanceSources = []string{
	"Amazon", "TSUTAYA", "楽天ブックス", "紀伊國屋書店", "丸善ジュンク堂書店", "文栄堂",
	"寄贈", "図書館間相互貸借", "学校間交換", "保護者寄付", "その他",
}

// BookInput carries the writable fields of a book.
type BookInput struct {
	Title              string   `db:"title"`
	TitleTranscription string   `db:"title_transcription"`
	Author             string   `db:"author"`
	Publisher          string   `db:"publisher"`
	PublishedDate      *Date    `db:"published_date"`
	ISBN               string   `db:"isbn"`
	Pages              *int     `db:"pages"`
	Price              *float64 `db:"price"`
	NDC                string   `db:"ndc"`
	AcceptanceDate     *Date    `db:"acceptance_date"`
	AcceptanceType     string   `db:"acceptance_type"`
	AcceptanceSource   string   `db:"acceptance_source"`
	Discard            string   `db:"discard"`
	StorageLocation    string   `db:"storage_location"`
	VolumeNumber       string   `db:"volume_number"`
	Quantity           int      `db:"quantity"`
}

func (in *BookInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = CleanISBN(in.ISBN)
}

func (in *BookInput) validate() error {
	switch {
	case in.Title == "":
		return invalid("title", "is required")
	case utf8.RuneCountInString(in.Title) > 255:
		return invalid("title", "must be at most 255 characters")
	case in.Author == "":
		return invalid("author", "is required")
	case utf8.RuneCountInString(in.Author) > 255:
		return invalid("author", "must be at most 255 characters")
	case in.Quantity < 0:
		return invalid("quantity", "must not be negative")
	case in.Pages != nil && *in.Pages < 0:
		return invalid("pages", "must not be negative")
	case in.Price != nil && *in.Price < 0:
		return invalid("price", "must not be negative")
	}
	return nil
}

// CleanISBN strips hyphens and spaces.
func CleanISBN(s string) string {
	return strings.NewReplacer("-", "", " ", "", "　", "").Replace(strings.TrimSpace(s))
}

// ISBN type filters. Books without an ISBN carry an internal JAN code or
// nothing.
const (
	ISBNTypeWith    = "with_isbn"
	ISBNTypeWithout = "without_isbn"
)

// BookFilter narrows catalog listings.
type BookFilter struct {
	Search          string
	ISBN            string
	NDCCategory     string
	StorageLocation string
	ISBNType        string // ISBNTypeWith or ISBNTypeWithout
	StartDate       *Date
	EndDate         *Date
	SortBy          string
	SortDirection   string
}

var bookSortColumns = map[string]bool{
	"id": true, "title": true, "author": true, "publisher": true, "published_date": true,
	"acceptance_date": true, "ndc": true, "created_at": true, "quantity": true,
}

func (f BookFilter) apply(ds *goqu.SelectDataset) *goqu.SelectDataset {
	if s := strings.TrimSpace(f.Search); s != "" {
		ds = ds.Where(goqu.Or(
			contains("b.title", s),
			contains("b.author", s),
			contains("b.publisher", s),
		))
	}
	if f.ISBN != "" {
		cleaned := CleanISBN(f.ISBN)
		ds = ds.Where(goqu.Or(
			goqu.I("b.isbn").Eq(cleaned),
			goqu.I("b.isbn").Eq(f.ISBN),
			goqu.I("b.isbn").Like("%"+cleaned+"%"),
		))
	}
	if f.NDCCategory != "" {
		ds = ds.Where(ndcCondition(goqu.I("b.ndc"), f.NDCCategory))
	}
	switch f.ISBNType {
	case ISBNTypeWith:
		ds = ds.Where(
			goqu.I("b.isbn").Neq(""),
			goqu.I("b.isbn").NotLike(JanPrefix+"%"),
		)
	case ISBNTypeWithout:
		ds = ds.Where(goqu.Or(
			goqu.I("b.isbn").Eq(""),
			goqu.I("b.isbn").Like(JanPrefix+"%"),
		))
	}
	if f.StorageLocation != "" {
		ds = ds.Where(goqu.I("b.storage_location").Eq(f.StorageLocation))
	}
	if f.StartDate != nil || f.EndDate != nil {
		ds = ds.Where(goqu.I("b.acceptance_date").IsNotNull())
		if f.StartDate != nil {
			ds = ds.Where(goqu.I("b.acceptance_date").Gte(f.StartDate.String()))
		}
		if f.EndDate != nil {
			ds = ds.Where(goqu.I("b.acceptance_date").Lte(f.EndDate.String()))
		}
	}
	return ds
}

func (f BookFilter) order() []exp.OrderedExpression {
	col := f.SortBy
	if !bookSortColumns[col] {
		col = "created_at"
	}
	id := goqu.I("b." + col)
	if strings.EqualFold(f.SortDirection, "asc") {
		return []exp.OrderedExpression{id.Asc(), goqu.I("b.id").Asc()}
	}
	return []exp.OrderedExpression{id.Desc(), goqu.I("b.id").Desc()}
}

// ndcCondition matches a Nippon Decimal Classification prefix. A single
// digit (or "d00") selects the whole division, including codes stored with
// a leading zero.
func ndcCondition(col exp.IdentifierExpression, category string) exp.Expression {
	if len(category) == 3 && strings.HasSuffix(category, "00") {
		category = category[:1]
	}
	if len(category) == 1 {
		return goqu.Or(col.Like(category+"%"), col.Like("0"+category+"%"))
	}
	return col.Like(category + "%")
}

func booksQuery() *goqu.SelectDataset {
	return from(goqu.T("books").As("b")).Select(goqu.L(bookColumns))
}

// ------------------ Reads ------------------

func getBook(ctx context.Context, q sqlx.QueryerContext, id int64) (*Book, error) {
	books, err := selectAll[*Book](ctx, q, booksQuery().Where(goqu.I("b.id").Eq(id)))
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, notFound("book", id)
	}
	books[0].deriveAvailability()
	return books[0], nil
}

// GetBook fetches one book with its availability.
func (d *Database) GetBook(ctx context.Context, id int64) (*Book, error) {
	return getBook(ctx, d.db, id)
}

// ListBooks returns one page of the filtered catalog.
func (d *Database) ListBooks(ctx context.Context, f BookFilter, p PageRequest) (Page[*Book], error) {
	ds := f.apply(booksQuery()).Order(f.order()...)
	books, meta, err := fetchPage[*Book](ctx, d.db, ds, p.withDefault(DefaultPerPage))
	if err != nil {
		return Page[*Book]{}, fmt.Errorf("list books: %w", err)
	}
	for _, b := range books {
		b.deriveAvailability()
	}
	return Page[*Book]{Data: books, Meta: meta}, nil
}

// AllBooks returns every filtered book ordered by acceptance date, for
// reports.
func (d *Database) AllBooks(ctx context.Context, f BookFilter) ([]*Book, error) {
	ds := f.apply(booksQuery()).Order(
		goqu.L("b.acceptance_date IS NULL").Asc(),
		goqu.I("b.acceptance_date").Asc(),
		goqu.I("b.id").Asc(),
	)
	books, err := selectAll[*Book](ctx, d.db, ds)
	if err != nil {
		return nil, fmt.Errorf("all books: %w", err)
	}
	for _, b := range books {
		b.deriveAvailability()
	}
	return books, nil
}

// CountBooks returns the size of the whole catalog.
func (d *Database) CountBooks(ctx context.Context) (int, error) {
	var n int
	err := d.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM books`)
	return n, err
}

// AvailableBooks lists titles with at least one copy on the shelf.
func (d *Database) AvailableBooks(ctx context.Context, search string, p PageRequest) (Page[*Book], error) {
	ds := BookFilter{Search: search}.apply(booksQuery()).
		Where(goqu.L(`b.quantity > (SELECT COUNT(*) FROM loans l WHERE l.book_id = b.id AND l.returned_date IS NULL)`)).
		Order(goqu.I("b.title").Asc(), goqu.I("b.id").Asc())
	books, meta, err := fetchPage[*Book](ctx, d.db, ds, p.withDefault(DefaultPerPage))
	if err != nil {
		return Page[*Book]{}, fmt.Errorf("available books: %w", err)
	}
	for _, b := range books {
		b.deriveAvailability()
	}
	return Page[*Book]{Data: books, Meta: meta}, nil
}

// BookByCode finds the book carrying an ISBN or issued JAN code.
func (d *Database) BookByCode(ctx context.Context, code string) (*Book, error) {
	code = CleanISBN(code)
	books, err := selectAll[*Book](ctx, d.db, booksQuery().Where(goqu.I("b.isbn").Eq(code)).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, notFound("book with code", code)
	}
	books[0].deriveAvailability()
	return books[0], nil
}

// AcceptanceSources merges the default sources with those already in use,
// deduplicated and sorted.
func (d *Database) AcceptanceSources(ctx context.Context) ([]string, error) {
	var used []string
	if err := d.db.SelectContext(ctx, &used,
		`SELECT DISTINCT acceptance_source FROM books WHERE acceptance_source <> '' ORDER BY acceptance_source`); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(used)+len(DefaultAcceptanceSources))
	var out []string
	for _, s := range append(append([]string{}, DefaultAcceptanceSources...), used...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

// BookHistory lists the returned loans of one title, most recent return
// first, with the number of days each copy was out.
func (d *Database) BookHistory(ctx context.Context, bookID int64, p PageRequest) (Page[*LoanDetail], error) {
	if _, err := getBook(ctx, d.db, bookID); err != nil {
		return Page[*LoanDetail]{}, err
	}
	ds := loansQuery().
		Where(goqu.I("l.book_id").Eq(bookID), goqu.I("l.returned_date").IsNotNull()).
		Order(goqu.I("l.returned_date").Desc(), goqu.I("l.id").Desc())
	loans, meta, err := fetchPage[*LoanDetail](ctx, d.db, ds, p.withDefault(10))
	if err != nil {
		return Page[*LoanDetail]{}, fmt.Errorf("book history: %w", err)
	}
	for _, l := range loans {
		days := l.ReturnedDate.DaysSince(l.BorrowedDate)
		l.DurationDays = &days
	}
	return Page[*LoanDetail]{Data: loans, Meta: meta}, nil
}

// ------------------ Writes ------------------

const insertBookSQL = `INSERT INTO books (title, title_transcription, author, publisher, published_date,
	isbn, pages, price, ndc, acceptance_date, acceptance_type, acceptance_source, discard,
	storage_location, volume_number, quantity)
	VALUES (:title, :title_transcription, :author, :publisher, :published_date,
	:isbn, :pages, :price, :ndc, :acceptance_date, :acceptance_type, :acceptance_source, :discard,
	:storage_location, :volume_number, :quantity)`

const updateBookSQL = `UPDATE books SET title=:title, title_transcription=:title_transcription,
	author=:author, publisher=:publisher, published_date=:published_date, isbn=:isbn, pages=:pages,
	price=:price, ndc=:ndc, acceptance_date=:acceptance_date, acceptance_type=:acceptance_type,
	acceptance_source=:acceptance_source, discard=:discard, storage_location=:storage_location,
	volume_number=:volume_number, quantity=:quantity, updated_at=CURRENT_TIMESTAMP
	WHERE id=:id`

// CreateBook inserts a book. When its code is a JAN code issued here, the
// code is marked used and linked to the book in the same transaction.
func (d *Database) CreateBook(ctx context.Context, in BookInput) (*Book, error) {
	in.normalize()
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var id int64
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, insertBookSQL, in)
		if err != nil {
			return fmt.Errorf("insert book: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		if IsInternalCode(in.ISBN) {
			if _, err := tx.ExecContext(ctx,
				`UPDATE jan_codes SET is_used=1, book_id=? WHERE jan_code=? AND book_id IS NULL`,
				id, in.ISBN); err != nil {
				return fmt.Errorf("mark jan code used: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetBook(ctx, id)
}

// UpdateBook replaces the writable fields of a book. Unlike CreateBook a zero
// quantity is not defaulted, and the quantity may not drop below the number
// of copies currently on loan.
func (d *Database) UpdateBook(ctx context.Context, id int64, in BookInput) (*Book, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Quantity < 1 {
		return nil, invalid("quantity", "must be at least 1")
	}

	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getBook(ctx, tx, id)
		if err != nil {
			return err
		}
		if in.Quantity < current.CurrentBorrowedCount {
			return invalid("quantity", "cannot be less than the %d copies currently on loan", current.CurrentBorrowedCount)
		}
		row := struct {
			BookInput
			ID int64 `db:"id"`
		}{in, id}
		if _, err := tx.NamedExecContext(ctx, updateBookSQL, row); err != nil {
			return fmt.Errorf("update book: %w", err)
		}
		if IsInternalCode(in.ISBN) && in.ISBN != current.ISBN {
			if _, err := tx.ExecContext(ctx,
				`UPDATE jan_codes SET is_used=1, book_id=? WHERE jan_code=? AND book_id IS NULL`,
				id, in.ISBN); err != nil {
				return fmt.Errorf("mark jan code used: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetBook(ctx, id)
}

// DeleteBook removes a book that has never been lent. Books with loan
// history are kept so the history stays intact.
func (d *Database) DeleteBook(ctx context.Context, id int64) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		book, err := getBook(ctx, tx, id)
		if err != nil {
			return err
		}
		var loans int
		if err := tx.GetContext(ctx, &loans, `SELECT COUNT(*) FROM loans WHERE book_id=?`, id); err != nil {
			return err
		}
		if loans > 0 {
			return &ConflictError{Message: fmt.Sprintf("book %d (%s) has %d loan records and cannot be deleted", id, book.Title, loans)}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id); err != nil {
			if isForeignKeyViolation(err) {
				return &ConflictError{Message: fmt.Sprintf("book %d is still referenced", id)}
			}
			return err
		}
		return nil
	})
}
