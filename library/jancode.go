package library

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
)

// JanPrefix marks codes issued by the library for books without an ISBN.
const JanPrefix = "938525"

const maxJanSequence = 999999

// CheckDigit computes the EAN-13 check digit of a 12-digit base: digits at
// even 0-based positions weigh 1, odd positions weigh 3.
func CheckDigit(base string) (int, error) {
	if len(base) != 12 {
		return 0, fmt.Errorf("ean-13 base must have 12 digits, got %d", len(base))
	}
	sum := 0
	for i, r := range base {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("ean-13 base %q contains a non-digit", base)
		}
		digit := int(r - '0')
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	return (10 - sum%10) % 10, nil
}

// BuildJanCode renders the internal code for a sequence number.
func BuildJanCode(seq int) (string, error) {
	if seq < 1 || seq > maxJanSequence {
		return "", fmt.Errorf("jan sequence %d out of range", seq)
	}
	base := fmt.Sprintf("%s%06d", JanPrefix, seq)
	check, err := CheckDigit(base)
	if err != nil {
		return "", err
	}
	return base + strconv.Itoa(check), nil
}

// ValidEAN13 reports whether code is 13 digits with a correct check digit.
func ValidEAN13(code string) bool {
	if len(code) != 13 {
		return false
	}
	check, err := CheckDigit(code[:12])
	if err != nil {
		return false
	}
	return int(code[12]-'0') == check
}

// IsInternalCode reports whether code is a JAN code issued by the library.
func IsInternalCode(code string) bool {
	return len(code) == 13 && code[:len(JanPrefix)] == JanPrefix && ValidEAN13(code)
}

// IssueJanCode allocates the next sequence number and stores its code. The
// write transaction is taken before the maximum is read, so concurrent
// callers never see the same maximum.
func (d *Database) IssueJanCode(ctx context.Context) (*JanCode, error) {
	var jc JanCode
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		var last int
		if err := tx.GetContext(ctx, &last, `SELECT COALESCE(MAX(sequence_number), 0) FROM jan_codes`); err != nil {
			return fmt.Errorf("read jan sequence: %w", err)
		}
		code, err := BuildJanCode(last + 1)
		if err != nil {
			return &ConflictError{Message: "jan code sequence exhausted"}
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO jan_codes(jan_code, sequence_number) VALUES(?, ?)`, code, last+1)
		if err != nil {
			return fmt.Errorf("insert jan code: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		return tx.GetContext(ctx, &jc,
			`SELECT id, jan_code, sequence_number, is_used, book_id, created_at FROM jan_codes WHERE id=?`, id)
	})
	if err != nil {
		return nil, err
	}
	return &jc, nil
}

// JanCodeByCode looks an issued code up.
func (d *Database) JanCodeByCode(ctx context.Context, code string) (*JanCode, error) {
	var jc JanCode
	err := d.db.GetContext(ctx, &jc,
		`SELECT id, jan_code, sequence_number, is_used, book_id, created_at FROM jan_codes WHERE jan_code=?`, code)
	if noRows(err) {
		return nil, notFound("jan code", code)
	}
	if err != nil {
		return nil, err
	}
	return &jc, nil
}
