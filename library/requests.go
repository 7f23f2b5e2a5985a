package library

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

const requestColumns = `id, title, author, requester_name, member_id, status, admin_comment, created_at, updated_at`

// BookRequestInput is a new acquisition request.
type BookRequestInput struct {
	Title         string
	Author        string
	RequesterName string
	MemberID      *int64
}

func getRequest(ctx context.Context, q sqlx.QueryerContext, id int64) (*BookRequest, error) {
	var r BookRequest
	err := sqlx.GetContext(ctx, q, &r, `SELECT `+requestColumns+` FROM book_requests WHERE id=?`, id)
	if noRows(err) {
		return nil, notFound("book request", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRequest fetches one book request.
func (d *Database) GetRequest(ctx context.Context, id int64) (*BookRequest, error) {
	return getRequest(ctx, d.db, id)
}

// CreateRequest stores a pending request.
func (d *Database) CreateRequest(ctx context.Context, in BookRequestInput) (*BookRequest, error) {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return nil, invalid("title", "is required")
	case utf8.RuneCountInString(in.Title) > 255:
		return nil, invalid("title", "must be at most 255 characters")
	case utf8.RuneCountInString(in.Author) > 255:
		return nil, invalid("author", "must be at most 255 characters")
	}
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO book_requests(title, author, requester_name, member_id, status) VALUES(?,?,?,?,?)`,
		in.Title, strings.TrimSpace(in.Author), strings.TrimSpace(in.RequesterName), in.MemberID, RequestPending)
	if err != nil {
		return nil, fmt.Errorf("insert book request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetRequest(ctx, id)
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	Status   string
	MemberID int64
}

// ListRequests returns one page of requests, newest first.
func (d *Database) ListRequests(ctx context.Context, f RequestFilter, p PageRequest) (Page[*BookRequest], error) {
	ds := from("book_requests").Select(goqu.L(requestColumns)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(f.Status))
	}
	if f.MemberID != 0 {
		ds = ds.Where(goqu.C("member_id").Eq(f.MemberID))
	}
	reqs, meta, err := fetchPage[*BookRequest](ctx, d.db, ds, p.withDefault(DefaultPerPage))
	if err != nil {
		return Page[*BookRequest]{}, fmt.Errorf("list book requests: %w", err)
	}
	return Page[*BookRequest]{Data: reqs, Meta: meta}, nil
}

// PendingRequests returns every request still waiting for a decision.
func (d *Database) PendingRequests(ctx context.Context) ([]*BookRequest, error) {
	reqs := make([]*BookRequest, 0)
	err := d.db.SelectContext(ctx, &reqs,
		`SELECT `+requestColumns+` FROM book_requests WHERE status=? ORDER BY id`, RequestPending)
	return reqs, err
}

// UpdateRequestStatus records an admin decision on a request.
func (d *Database) UpdateRequestStatus(ctx context.Context, id int64, status, comment string) (*BookRequest, error) {
	if status != RequestApproved && status != RequestRejected {
		return nil, invalid("status", "must be %s or %s", RequestApproved, RequestRejected)
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE book_requests SET status=?, admin_comment=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		status, strings.TrimSpace(comment), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, notFound("book request", id)
	}
	return d.GetRequest(ctx, id)
}

// DeleteRequest removes a request.
func (d *Database) DeleteRequest(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM book_requests WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("book request", id)
	}
	return nil
}
