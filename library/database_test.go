package library

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDatabase(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var testToday = NewDate(2025, time.June, 16)

func fixedClock(d Date) Clock {
	return func() time.Time { return d.Time().Add(9 * time.Hour) }
}

func addBook(t *testing.T, db *Database, title, author string, qty int) *Book {
	t.Helper()
	b, err := db.CreateBook(context.Background(), BookInput{Title: title, Author: author, Quantity: qty})
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	return b
}

func addMember(t *testing.T, db *Database, name, number string) *Member {
	t.Helper()
	m, err := db.CreateMember(context.Background(), MemberInput{Name: name, StudentNumber: number, Grade: 2, Class: "A"}, "", RoleMember)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	return m
}

func lend(t *testing.T, db *Database, memberID int64, on Date, bookIDs ...int64) []*LoanDetail {
	t.Helper()
	loans, err := db.Checkout(context.Background(), CheckoutRequest{MemberID: memberID, BookIDs: bookIDs, BorrowedDate: on})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return loans
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.db")
	db, err := NewDatabase(path)
	require.NoError(t, err)
	addBook(t, db, "Book", "Author", 1)
	require.NoError(t, db.Close())

	db, err = NewDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)
	n, err := db.CountBooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateBookDefaultsAndValidation(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()

	b, err := db.CreateBook(ctx, BookInput{Title: " 坊っちゃん ", Author: "夏目漱石", ISBN: "978-4-10-101003-6"})
	require.NoError(t, err)
	assert.Equal(t, "坊っちゃん", b.Title)
	assert.Equal(t, 1, b.Quantity)
	assert.Equal(t, "9784101010036", b.ISBN)
	assert.Equal(t, 1, b.AvailableQuantity)
	assert.False(t, b.IsFullyBorrowed)

	_, err = db.CreateBook(ctx, BookInput{Author: "x"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)

	_, err = db.CreateBook(ctx, BookInput{Title: "x", Author: "y", Quantity: -1})
	assert.True(t, IsValidation(err))
}

func TestAvailabilityIsDerivedFromOutstandingLoans(t *testing.T) {
	db := tempDB(t)
	book := addBook(t, db, "Book", "Author", 2)
	m := addMember(t, db, "Alice", "S001")

	lend(t, db, m.ID, testToday, book.ID)
	got, err := db.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentBorrowedCount)
	assert.Equal(t, 1, got.AvailableQuantity)
	assert.False(t, got.IsFullyBorrowed)

	lend(t, db, m.ID, testToday, book.ID)
	got, err = db.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity)
	assert.True(t, got.IsFullyBorrowed)
	assert.Empty(t, got.IntegrityWarning)
}

func TestNegativeAvailabilityIsFlaggedNotClamped(t *testing.T) {
	db := tempDB(t)
	book := addBook(t, db, "Book", "Author", 2)
	m := addMember(t, db, "Alice", "S001")
	lend(t, db, m.ID, testToday, book.ID, book.ID)

	// Simulate damage done outside the ledger.
	_, err := db.db.Exec(`UPDATE books SET quantity=1 WHERE id=?`, book.ID)
	require.NoError(t, err)

	got, err := db.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, got.AvailableQuantity)
	assert.True(t, got.IsFullyBorrowed)
	assert.NotEmpty(t, got.IntegrityWarning)
}

func TestUpdateBookQuantityFloor(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 3)
	m := addMember(t, db, "Alice", "S001")
	lend(t, db, m.ID, testToday, book.ID, book.ID)

	in := BookInput{Title: "Book", Author: "Author", Quantity: 1}
	_, err := db.UpdateBook(ctx, book.ID, in)
	assert.True(t, IsValidation(err))

	in.Quantity = 2
	got, err := db.UpdateBook(ctx, book.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, 0, got.AvailableQuantity)
}

func TestUpdateBookRejectsZeroQuantity(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 3)

	_, err := db.UpdateBook(ctx, book.ID, BookInput{Title: "Renamed", Author: "Author"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "quantity", ve.Field)

	got, err := db.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Book", got.Title)
	assert.Equal(t, 3, got.Quantity)
}

func TestDeleteBookWithHistoryIsRefused(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	lent := addBook(t, db, "Lent", "Author", 1)
	unused := addBook(t, db, "Unused", "Author", 1)
	m := addMember(t, db, "Alice", "S001")
	loans := lend(t, db, m.ID, testToday, lent.ID)
	_, err := db.ReturnLoan(ctx, loans[0].ID, testToday)
	require.NoError(t, err)

	err = db.DeleteBook(ctx, lent.ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = db.GetBook(ctx, lent.ID)
	require.NoError(t, err)

	require.NoError(t, db.DeleteBook(ctx, unused.ID))
	_, err = db.GetBook(ctx, unused.ID)
	assert.True(t, IsNotFound(err))

	assert.True(t, IsNotFound(db.DeleteBook(ctx, 9999)))
}

func TestListBooksFilters(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	mk := func(in BookInput) {
		t.Helper()
		if in.Author == "" {
			in.Author = "著者"
		}
		if _, err := db.CreateBook(ctx, in); err != nil {
			t.Fatalf("add book: %v", err)
		}
	}
	april := NewDate(2025, time.April, 10)
	may := NewDate(2025, time.May, 10)
	mk(BookInput{Title: "日本の歴史", NDC: "210.1", ISBN: "9784000000001", AcceptanceDate: &april})
	mk(BookInput{Title: "総記の本", NDC: "010", AcceptanceDate: &may})
	mk(BookInput{Title: "物理学入門", NDC: "420", ISBN: "9385250000019"})
	mk(BookInput{Title: "化学", NDC: "430", Publisher: "理科書房", ISBN: "9784000000002"})

	titles := func(f BookFilter) []string {
		t.Helper()
		page, err := db.ListBooks(ctx, f, PageRequest{})
		require.NoError(t, err)
		var out []string
		for _, b := range page.Data {
			out = append(out, b.Title)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"日本の歴史"}, titles(BookFilter{Search: "歴史"}))
	assert.ElementsMatch(t, []string{"化学"}, titles(BookFilter{Search: "理科"}))
	assert.ElementsMatch(t, []string{"日本の歴史"}, titles(BookFilter{NDCCategory: "2"}))
	assert.ElementsMatch(t, []string{"総記の本"}, titles(BookFilter{NDCCategory: "0"}))
	assert.ElementsMatch(t, []string{"物理学入門", "化学"}, titles(BookFilter{NDCCategory: "400"}))
	assert.ElementsMatch(t, []string{"化学"}, titles(BookFilter{NDCCategory: "43"}))
	assert.ElementsMatch(t, []string{"日本の歴史", "化学"}, titles(BookFilter{ISBNType: "with_isbn"}))
	assert.ElementsMatch(t, []string{"総記の本", "物理学入門"}, titles(BookFilter{ISBNType: "without_isbn"}))
	assert.ElementsMatch(t, []string{"総記の本"}, titles(BookFilter{StartDate: &may}))
	assert.ElementsMatch(t, []string{"日本の歴史"}, titles(BookFilter{ISBN: "978-4-00-000000-1"}))
	assert.Equal(t, []string{"化学", "物理学入門", "日本の歴史", "総記の本"},
		titles(BookFilter{SortBy: "ndc", SortDirection: "desc"}))
}

func TestListBooksPagination(t *testing.T) {
	db := tempDB(t)
	for i := 0; i < 25; i++ {
		addBook(t, db, "Book", "Author", 1)
	}
	page, err := db.ListBooks(context.Background(), BookFilter{}, PageRequest{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 5)
	assert.Equal(t, PageMeta{CurrentPage: 2, LastPage: 2, PerPage: 20, Total: 25, From: 21, To: 25}, page.Meta)
}

func TestHugePageNumberIsCapped(t *testing.T) {
	db := tempDB(t)
	addBook(t, db, "Book", "Author", 1)

	page, err := db.ListBooks(context.Background(), BookFilter{}, PageRequest{Page: math.MaxInt, PerPage: MaxPerPage})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, PageMeta{CurrentPage: MaxPage, LastPage: 1, PerPage: MaxPerPage, Total: 1}, page.Meta)

	assert.Equal(t, (MaxPage-1)*MaxPerPage, PageRequest{Page: math.MaxInt}.offset(MaxPerPage))
	assert.Zero(t, PageRequest{Page: math.MinInt}.offset(MaxPerPage))
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	addBook(t, db, "100%の力", "Author", 1)
	addBook(t, db, "1000の物語", "Author", 1)
	addBook(t, db, "snake_case入門", "Author", 1)
	addBook(t, db, "snakecase", "Author", 1)
	addBook(t, db, `C:\path`, "Author", 1)
	addMember(t, db, "Alice", "S_01")
	addMember(t, db, "Bob", "S001")

	titles := func(search string) []string {
		t.Helper()
		page, err := db.ListBooks(ctx, BookFilter{Search: search}, PageRequest{})
		require.NoError(t, err)
		var out []string
		for _, b := range page.Data {
			out = append(out, b.Title)
		}
		return out
	}
	assert.Equal(t, []string{"100%の力"}, titles("100%"))
	assert.Equal(t, []string{"snake_case入門"}, titles("e_c"))
	assert.Equal(t, []string{`C:\path`}, titles(`:\`))
	assert.Empty(t, titles("%%"))

	members, err := db.ListMembers(ctx, MemberFilter{Search: "S_"}, testToday, PageRequest{})
	require.NoError(t, err)
	require.Len(t, members.Data, 1)
	assert.Equal(t, "Alice", members.Data[0].Name)
}

func TestClassificationLabel(t *testing.T) {
	db := tempDB(t)
	b, err := db.CreateBook(context.Background(), BookInput{Title: "こころ", TitleTranscription: "ココロ", Author: "夏目漱石", NDC: "913"})
	require.NoError(t, err)
	assert.Equal(t, "913-コ", b.Classification)
}

func TestAcceptanceSourcesMergesDefaults(t *testing.T) {
	db := tempDB(t)
	_, err := db.CreateBook(context.Background(), BookInput{Title: "x", Author: "y", AcceptanceSource: "古書店"})
	require.NoError(t, err)
	_, err = db.CreateBook(context.Background(), BookInput{Title: "x", Author: "y", AcceptanceSource: "寄贈"})
	require.NoError(t, err)

	sources, err := db.AcceptanceSources(context.Background())
	require.NoError(t, err)
	assert.Contains(t, sources, "古書店")
	assert.Len(t, sources, len(DefaultAcceptanceSources)+1)
	assert.IsIncreasing(t, sources)
}

func TestBookHistoryListsReturnedLoans(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	book := addBook(t, db, "Book", "Author", 2)
	m := addMember(t, db, "Alice", "S001")

	first := lend(t, db, m.ID, testToday.AddDays(-10), book.ID)
	lend(t, db, m.ID, testToday, book.ID)
	_, err := db.ReturnLoan(ctx, first[0].ID, testToday.AddDays(-3))
	require.NoError(t, err)

	page, err := db.BookHistory(ctx, book.ID, PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	require.NotNil(t, page.Data[0].DurationDays)
	assert.Equal(t, 7, *page.Data[0].DurationDays)
	assert.Equal(t, 10, page.Meta.PerPage)
}

func TestMembersUniqueAndDeletePolicy(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	alice := addMember(t, db, "Alice", "S001")

	_, err := db.CreateMember(ctx, MemberInput{Name: "Dup", StudentNumber: "S001"}, "", "")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = db.CreateMember(ctx, MemberInput{Name: "Bob", StudentNumber: "S002", Email: "Bob@Example.com"}, "", "")
	require.NoError(t, err)
	_, err = db.CreateMember(ctx, MemberInput{Name: "Bob2", StudentNumber: "S003", Email: "bob@example.com"}, "", "")
	assert.ErrorIs(t, err, ErrConflict)

	bob, err := db.MemberByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Bob", bob.Name)

	book := addBook(t, db, "Book", "Author", 1)
	lend(t, db, alice.ID, testToday, book.ID)
	assert.ErrorIs(t, db.DeleteMember(ctx, alice.ID), ErrConflict)
	require.NoError(t, db.DeleteMember(ctx, bob.ID))
}

func TestListMembersCounters(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	alice := addMember(t, db, "Alice", "S001")
	addMember(t, db, "Bob", "S002")
	book := addBook(t, db, "Book", "Author", 5)

	lend(t, db, alice.ID, testToday.AddDays(-20), book.ID)
	lend(t, db, alice.ID, testToday, book.ID)
	old := lend(t, db, alice.ID, testToday.AddDays(-3), book.ID)
	_, err := db.ReturnLoan(ctx, old[0].ID, testToday)
	require.NoError(t, err)

	page, err := db.ListMembers(ctx, MemberFilter{Search: "Ali"}, testToday, PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	got := page.Data[0]
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, 2, got.ActiveBorrowsCount)
	assert.Equal(t, 1, got.OverdueBorrowsCount)
	assert.Equal(t, 3, got.TotalBorrowsCount)
}

func TestClasses(t *testing.T) {
	db := tempDB(t)
	ctx := context.Background()
	c, err := db.CreateClass(ctx, Class{Nendo: 2025, Grade: 1, Kumi: 3})
	require.NoError(t, err)
	assert.Equal(t, "1年3組", c.Name)

	_, err = db.CreateClass(ctx, Class{Nendo: 2025, Grade: 1, Kumi: 3})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = db.CreateClass(ctx, Class{Nendo: 2024, Grade: 2, Kumi: 1})
	require.NoError(t, err)

	classes, err := db.ListClasses(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, classes, 1)
}
