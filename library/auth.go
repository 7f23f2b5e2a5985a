package library

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Principal is the authenticated caller of an operation. The zero value is
// an anonymous visitor.
type Principal struct {
	MemberID int64
	IsAdmin  bool
}

// System is the principal used by operator tooling such as the CLI.
var System = Principal{IsAdmin: true}

// Anonymous reports whether no member is logged in.
func (p Principal) Anonymous() bool { return p.MemberID == 0 && !p.IsAdmin }

// Owns reports whether the principal may act on a record owned by memberID.
// Admins own everything.
func (p Principal) Owns(memberID *int64) bool {
	if p.IsAdmin {
		return true
	}
	return memberID != nil && p.MemberID != 0 && *memberID == p.MemberID
}

func (p Principal) requireAdmin(action string) error {
	if p.IsAdmin {
		return nil
	}
	if p.MemberID == 0 {
		return ErrUnauthenticated
	}
	return &AuthorizationError{Action: action}
}

func (p Principal) requireMember() error {
	if p.Anonymous() {
		return ErrUnauthenticated
	}
	return nil
}

// AccountPolicy decides which role a new account gets from its email.
type AccountPolicy interface {
	ClassifyAccount(email string) string
}

// DomainPolicy treats addresses of the school's domain whose local part
// does not start with a digit as staff. Student addresses start with their
// enrolment number.
type DomainPolicy struct {
	Domain string
}

func (p DomainPolicy) ClassifyAccount(email string) string {
	local, domain, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if !ok || local == "" || p.Domain == "" || domain != strings.ToLower(p.Domain) {
		return RoleMember
	}
	if r, _ := utf8.DecodeRuneInString(local); unicode.IsDigit(r) {
		return RoleMember
	}
	return RoleAdmin
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// HashPassword hashes a password with bcrypt after checking its length.
func HashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", invalid("password", "must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a password with a stored hash. A mismatch is
// reported as ErrUnauthenticated.
func CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrUnauthenticated
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrUnauthenticated
	}
	return err
}
