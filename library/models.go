package library

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Book is a catalog entry. One row stands for Quantity physical copies;
// copies are not tracked individually.
type Book struct {
	ID                 int64     `db:"id" json:"id"`
	Title              string    `db:"title" json:"title"`
	TitleTranscription string    `db:"title_transcription" json:"title_transcription"`
	Author             string    `db:"author" json:"author"`
	Publisher          string    `db:"publisher" json:"publisher"`
	PublishedDate      *Date     `db:"published_date" json:"published_date"`
	ISBN               string    `db:"isbn" json:"isbn"`
	Pages              *int      `db:"pages" json:"pages"`
	Price              *float64  `db:"price" json:"price"`
	NDC                string    `db:"ndc" json:"ndc"`
	AcceptanceDate     *Date     `db:"acceptance_date" json:"acceptance_date"`
	AcceptanceType     string    `db:"acceptance_type" json:"acceptance_type"`
	AcceptanceSource   string    `db:"acceptance_source" json:"acceptance_source"`
	Discard            string    `db:"discard" json:"discard"`
	StorageLocation    string    `db:"storage_location" json:"storage_location"`
	VolumeNumber       string    `db:"volume_number" json:"volume_number"`
	Quantity           int       `db:"quantity" json:"quantity"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`

	CurrentBorrowedCount int    `db:"current_borrowed_count" json:"current_borrowed_count"`
	AvailableQuantity    int    `db:"-" json:"available_quantity"`
	IsFullyBorrowed      bool   `db:"-" json:"is_fully_borrowed"`
	IntegrityWarning     string `db:"-" json:"integrity_warning,omitempty"`
	Classification       string `db:"-" json:"classification"`
}

// deriveAvailability fills the computed fields. A negative availability is
// kept as is and flagged; it means outstanding loans exceed the quantity.
func (b *Book) deriveAvailability() {
	b.AvailableQuantity = b.Quantity - b.CurrentBorrowedCount
	b.IsFullyBorrowed = b.AvailableQuantity <= 0
	b.IntegrityWarning = ""
	if b.AvailableQuantity < 0 {
		b.IntegrityWarning = fmt.Sprintf("%d outstanding loans exceed quantity %d",
			b.CurrentBorrowedCount, b.Quantity)
	}
	b.Classification = classificationOf(b)
}

// classificationOf builds the shelf label "ndc-<first kana>".
func classificationOf(b *Book) string {
	if b.NDC == "" && b.TitleTranscription == "" {
		return ""
	}
	head := ""
	if r, _ := utf8.DecodeRuneInString(b.TitleTranscription); r != utf8.RuneError {
		head = string(r)
	}
	return b.NDC + "-" + head
}

// HasInternalCode reports whether the book carries a JAN code issued by
// this library instead of a publisher ISBN.
func (b *Book) HasInternalCode() bool { return IsInternalCode(b.ISBN) }

// Role of a member account.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Member is a student or staff account that can borrow books.
type Member struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	StudentNumber string    `db:"student_number" json:"student_number"`
	Email         string    `db:"email" json:"email"`
	Grade         int       `db:"grade" json:"grade"`
	Class         string    `db:"class" json:"class"`
	ClassID       *int64    `db:"class_id" json:"class_id"`
	PasswordHash  string    `db:"password_hash" json:"-"` // Don't serialize password hash
	Role          string    `db:"role" json:"role"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

func (m *Member) IsAdmin() bool     { return m.Role == RoleAdmin }
func (m *Member) HasPassword() bool { return m.PasswordHash != "" }

// Principal returns the identity this member acts as.
func (m *Member) Principal() Principal {
	return Principal{MemberID: m.ID, IsAdmin: m.IsAdmin()}
}

// MemberSummary is a list row with the member's loan counters.
type MemberSummary struct {
	Member
	ActiveBorrowsCount  int `db:"active_borrows_count" json:"active_borrows_count"`
	OverdueBorrowsCount int `db:"overdue_borrows_count" json:"overdue_borrows_count"`
	TotalBorrowsCount   int `db:"total_borrows_count" json:"total_borrows_count"`
}

// Class is a homeroom for one school year.
type Class struct {
	ID          int64     `db:"id" json:"id"`
	Nendo       int       `db:"nendo" json:"nendo"`
	Grade       int       `db:"grade" json:"grade"`
	Kumi        int       `db:"kumi" json:"kumi"`
	Name        string    `db:"name" json:"name"`
	ClassNumber string    `db:"class_number" json:"class_number"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DisplayName renders the class as "{grade}年{kumi}組".
func (c *Class) DisplayName() string { return fmt.Sprintf("%d年%d組", c.Grade, c.Kumi) }

// Loan records one member borrowing one copy of one title.
type Loan struct {
	ID           int64     `db:"id" json:"id"`
	BookID       int64     `db:"book_id" json:"book_id"`
	MemberID     int64     `db:"member_id" json:"student_id"`
	BorrowedDate Date      `db:"borrowed_date" json:"borrowed_date"`
	DueDate      Date      `db:"due_date" json:"due_date"`
	ReturnedDate *Date     `db:"returned_date" json:"returned_date"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Outstanding reports whether the copy is still out.
func (l *Loan) Outstanding() bool { return l.ReturnedDate == nil }

// LoanDetail is a loan joined with the book and member it links.
type LoanDetail struct {
	Loan
	BookTitle     string `db:"book_title" json:"book_title"`
	BookAuthor    string `db:"book_author" json:"book_author"`
	MemberName    string `db:"member_name" json:"student_name"`
	StudentNumber string `db:"student_number" json:"student_number"`
	Grade         int    `db:"grade" json:"grade"`
	Class         string `db:"class" json:"class"`
	IsOverdue     bool   `db:"-" json:"is_overdue"`
	OverdueDays   int    `db:"-" json:"overdue_days"`
	DurationDays  *int   `db:"-" json:"duration_days,omitempty"`
}

// Book request status values.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// BookRequest asks the library to acquire a title.
type BookRequest struct {
	ID            int64     `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Author        string    `db:"author" json:"author"`
	RequesterName string    `db:"requester_name" json:"requester_name"`
	MemberID      *int64    `db:"member_id" json:"student_id"`
	Status        string    `db:"status" json:"status"`
	AdminComment  string    `db:"admin_comment" json:"admin_comment"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Notification is an inbox entry. A nil MemberID makes it visible to every
// member.
type Notification struct {
	ID            int64     `db:"id" json:"id"`
	MemberID      *int64    `db:"member_id" json:"student_id"`
	BookRequestID *int64    `db:"book_request_id" json:"book_request_id"`
	BookID        *int64    `db:"book_id" json:"book_id"`
	Title         string    `db:"title" json:"title"`
	Message       string    `db:"message" json:"message"`
	IsRead        bool      `db:"is_read" json:"is_read"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// JanCode is an internally issued EAN-13 identifier.
type JanCode struct {
	ID             int64     `db:"id" json:"id"`
	Code           string    `db:"jan_code" json:"jan_code"`
	SequenceNumber int       `db:"sequence_number" json:"sequence_number"`
	IsUsed         bool      `db:"is_used" json:"is_used"`
	BookID         *int64    `db:"book_id" json:"book_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Library duty shifts.
const (
	ShiftLunch       = "lunch"
	ShiftAfterSchool = "after_school"
)

// LibraryDuty is the daily log kept by the students staffing the counter.
type LibraryDuty struct {
	ID           int64     `db:"id" json:"id"`
	DutyDate     Date      `db:"duty_date" json:"duty_date"`
	ShiftType    string    `db:"shift_type" json:"shift_type"`
	VisitorCount int       `db:"visitor_count" json:"visitor_count"`
	BorrowCount  int       `db:"borrow_count" json:"borrow_count"`
	Reflection   string    `db:"reflection" json:"reflection"`
	StudentName1 string    `db:"student_name_1" json:"student_name_1"`
	StudentName2 string    `db:"student_name_2" json:"student_name_2"`
	MemberID1    *int64    `db:"member_id_1" json:"student_id"`
	MemberID2    *int64    `db:"member_id_2" json:"student_id_2"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ShiftLabel is the Japanese label printed in reports.
func ShiftLabel(shift string) string {
	switch shift {
	case ShiftLunch:
		return "昼休み"
	case ShiftAfterSchool:
		return "放課後"
	default:
		return shift
	}
}

// Session binds a login token to a member until it expires.
type Session struct {
	Token     string    `db:"token" json:"token"`
	MemberID  int64     `db:"member_id" json:"student_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}
