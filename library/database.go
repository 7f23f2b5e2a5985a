package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// dialect builds the dynamic (filtered, sorted, paginated) queries. Fixed
// statements are written as plain SQL.
var dialect = goqu.Dialect("sqlite3")

// from starts a prepared (placeholder) query on table.
func from(table any) *goqu.SelectDataset {
	return dialect.From(table).Prepared(true)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// contains matches col against s as a plain substring; LIKE wildcards in s
// are escaped.
func contains(col, s string) goqu.Expression {
	return goqu.L(`? LIKE ? ESCAPE '\'`, goqu.I(col), "%"+likeEscaper.Replace(s)+"%")
}

// Database provides high-level helpers around a SQLite connection.
type Database struct {
	db *sqlx.DB

	insertLoanStmt         *sqlx.Stmt
	insertNotificationStmt *sqlx.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// busy_timeout lets writers queue instead of failing; _txlock=immediate
	// makes every transaction take the write lock up front, which serializes
	// availability checks and JAN sequence allocation.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.insertLoanStmt != nil {
		d.insertLoanStmt.Close()
	}
	if d.insertNotificationStmt != nil {
		d.insertNotificationStmt.Close()
	}
	return d.db.Close()
}

// Ping checks the connection.
func (d *Database) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// SchemaVersion reports the applied schema version.
func (d *Database) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := d.db.GetContext(ctx, &v, `SELECT CAST(value AS INTEGER) FROM meta WHERE key='schema_version'`)
	return v, err
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

// migrations[i] upgrades the schema from version i to i+1.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS classes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            nendo INTEGER NOT NULL,
            grade INTEGER NOT NULL,
            kumi INTEGER NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            class_number TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(nendo, grade, kumi)
        );`,
		`CREATE TABLE IF NOT EXISTS members (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            student_number TEXT NOT NULL UNIQUE,
            email TEXT UNIQUE,
            grade INTEGER NOT NULL DEFAULT 0,
            class TEXT NOT NULL DEFAULT '',
            class_id INTEGER REFERENCES classes(id) ON DELETE SET NULL,
            password_hash TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member','admin')),
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            title_transcription TEXT NOT NULL DEFAULT '',
            author TEXT NOT NULL,
            publisher TEXT NOT NULL DEFAULT '',
            published_date TEXT,
            isbn TEXT NOT NULL DEFAULT '',
            pages INTEGER,
            price REAL,
            ndc TEXT NOT NULL DEFAULT '',
            acceptance_date TEXT,
            acceptance_type TEXT NOT NULL DEFAULT '',
            acceptance_source TEXT NOT NULL DEFAULT '',
            discard TEXT NOT NULL DEFAULT '',
            storage_location TEXT NOT NULL DEFAULT '',
            volume_number TEXT NOT NULL DEFAULT '',
            quantity INTEGER NOT NULL DEFAULT 1 CHECK (quantity >= 0),
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn);`,
		`CREATE INDEX IF NOT EXISTS idx_books_acceptance ON books(acceptance_date);`,
		// Loans keep their book and member: deleting either is refused while
		// history exists.
		`CREATE TABLE IF NOT EXISTS loans (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE RESTRICT,
            member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE RESTRICT,
            borrowed_date TEXT NOT NULL,
            due_date TEXT NOT NULL,
            returned_date TEXT,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK (returned_date IS NULL OR returned_date >= borrowed_date)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loans_open ON loans(book_id) WHERE returned_date IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(member_id);`,
		`CREATE INDEX IF NOT EXISTS idx_loans_borrowed ON loans(borrowed_date);`,
		`CREATE TABLE IF NOT EXISTS book_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL DEFAULT '',
            requester_name TEXT NOT NULL DEFAULT '',
            member_id INTEGER REFERENCES members(id) ON DELETE SET NULL,
            status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','approved','rejected')),
            admin_comment TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS notifications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            member_id INTEGER REFERENCES members(id) ON DELETE CASCADE,
            book_request_id INTEGER REFERENCES book_requests(id) ON DELETE SET NULL,
            book_id INTEGER REFERENCES books(id) ON DELETE SET NULL,
            title TEXT NOT NULL,
            message TEXT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_member ON notifications(member_id, is_read);`,
		`CREATE TABLE IF NOT EXISTS jan_codes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            jan_code TEXT NOT NULL UNIQUE,
            sequence_number INTEGER NOT NULL UNIQUE,
            is_used BOOLEAN NOT NULL DEFAULT 0,
            book_id INTEGER REFERENCES books(id) ON DELETE SET NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS library_duties (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            duty_date TEXT NOT NULL,
            shift_type TEXT NOT NULL CHECK (shift_type IN ('lunch','after_school')),
            visitor_count INTEGER NOT NULL DEFAULT 0 CHECK (visitor_count >= 0),
            borrow_count INTEGER NOT NULL DEFAULT 0,
            reflection TEXT NOT NULL DEFAULT '',
            student_name_1 TEXT NOT NULL DEFAULT '',
            student_name_2 TEXT NOT NULL DEFAULT '',
            member_id_1 INTEGER REFERENCES members(id) ON DELETE SET NULL,
            member_id_2 INTEGER REFERENCES members(id) ON DELETE SET NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(duty_date, shift_type)
        );`,
		`CREATE TABLE IF NOT EXISTS sessions (
            token TEXT PRIMARY KEY,
            member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
            created_at DATETIME NOT NULL,
            expires_at DATETIME NOT NULL
        );`,
	},
}

// schemaVersion is the version the code expects.
var schemaVersion = len(migrations)

func applyMigrations(db *sqlx.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for v := current; v < schemaVersion; v++ {
		for _, stmt := range migrations[v] {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("apply migration %d: %w", v+1, err)
			}
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.insertLoanStmt, err = d.db.Preparex(
		`INSERT INTO loans(book_id,member_id,borrowed_date,due_date) VALUES(?,?,?,?)`); err != nil {
		return err
	}
	if d.insertNotificationStmt, err = d.db.Preparex(
		`INSERT INTO notifications(member_id,book_request_id,book_id,title,message) VALUES(?,?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// inTx runs fn in one transaction. The transaction is rolled back unless fn
// returns nil and the commit succeeds.
func (d *Database) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// fetchPage counts the rows of ds, then loads the requested page of it.
func fetchPage[T any](ctx context.Context, q sqlx.QueryerContext, ds *goqu.SelectDataset, p PageRequest) ([]T, PageMeta, error) {
	countSQL, countArgs, err := ds.ClearSelect().ClearOrder().Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return nil, PageMeta{}, fmt.Errorf("build count: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, q, &total, countSQL, countArgs...); err != nil {
		return nil, PageMeta{}, err
	}

	meta := newPageMeta(p, total)
	rowsSQL, rowsArgs, err := ds.Limit(uint(meta.PerPage)).Offset(uint(p.offset(meta.PerPage))).ToSQL()
	if err != nil {
		return nil, PageMeta{}, fmt.Errorf("build page: %w", err)
	}
	items := make([]T, 0)
	if err := sqlx.SelectContext(ctx, q, &items, rowsSQL, rowsArgs...); err != nil {
		return nil, PageMeta{}, err
	}
	return items, meta, nil
}

// selectAll runs ds and scans every row.
func selectAll[T any](ctx context.Context, q sqlx.QueryerContext, ds *goqu.SelectDataset) ([]T, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	items := make([]T, 0)
	if err := sqlx.SelectContext(ctx, q, &items, query, args...); err != nil {
		return nil, err
	}
	return items, nil
}

// isUniqueViolation reports a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports a FOREIGN KEY constraint failure.
func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func noRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// nullIfEmpty stores "" as NULL, for nullable unique text columns.
func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
