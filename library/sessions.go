package library

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession stores a new login session for a member.
func (d *Database) CreateSession(ctx context.Context, memberID int64, now time.Time, ttl time.Duration) (*Session, error) {
	s := &Session{
		Token:     uuid.NewString(),
		MemberID:  memberID,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(ttl).UTC(),
	}
	_, err := d.db.NamedExecContext(ctx,
		`INSERT INTO sessions(token, member_id, created_at, expires_at) VALUES(:token, :member_id, :created_at, :expires_at)`, s)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, notFound("student", memberID)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// SessionMember resolves a live session token to its member. Missing and
// expired sessions are ErrUnauthenticated; expired ones are removed.
func (d *Database) SessionMember(ctx context.Context, token string, now time.Time) (*Member, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	var s Session
	err := d.db.GetContext(ctx, &s, `SELECT token, member_id, created_at, expires_at FROM sessions WHERE token=?`, token)
	if noRows(err) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !now.Before(s.ExpiresAt) {
		_ = d.DeleteSession(ctx, token)
		return nil, ErrUnauthenticated
	}
	m, err := getMember(ctx, d.db, s.MemberID)
	if IsNotFound(err) {
		return nil, ErrUnauthenticated
	}
	return m, err
}

// DeleteSession logs a session out. Unknown tokens are ignored.
func (d *Database) DeleteSession(ctx context.Context, token string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token)
	return err
}

// PurgeSessions drops expired sessions and reports how many went.
func (d *Database) PurgeSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
