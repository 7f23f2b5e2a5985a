package library

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

const notificationColumns = `id, member_id, book_request_id, book_id, title, message, is_read, created_at`

// visibleTo selects a member's own notifications plus broadcast ones.
func visibleTo(memberID int64) goqu.Expression {
	return goqu.Or(goqu.C("member_id").Eq(memberID), goqu.C("member_id").IsNull())
}

// CreateNotifications inserts a batch of notifications in one transaction.
func (d *Database) CreateNotifications(ctx context.Context, ns []Notification) ([]int64, error) {
	ids := make([]int64, 0, len(ns))
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt := tx.StmtxContext(ctx, d.insertNotificationStmt)
		for _, n := range ns {
			res, err := stmt.ExecContext(ctx, n.MemberID, n.BookRequestID, n.BookID, n.Title, n.Message)
			if err != nil {
				return fmt.Errorf("insert notification: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

// GetNotification fetches one notification.
func (d *Database) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	var n Notification
	err := d.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id)
	if noRows(err) {
		return nil, notFound("notification", id)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// NotificationFilter narrows an inbox listing.
type NotificationFilter struct {
	UnreadOnly    bool
	BookRequestID int64
}

// ListNotifications returns one page of the member's inbox, newest first.
func (d *Database) ListNotifications(ctx context.Context, memberID int64, f NotificationFilter, p PageRequest) (Page[*Notification], error) {
	ds := from("notifications").Select(goqu.L(notificationColumns)).
		Where(visibleTo(memberID)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())
	if f.UnreadOnly {
		ds = ds.Where(goqu.C("is_read").Eq(0))
	}
	if f.BookRequestID != 0 {
		ds = ds.Where(goqu.C("book_request_id").Eq(f.BookRequestID))
	}
	ns, meta, err := fetchPage[*Notification](ctx, d.db, ds, p.withDefault(DefaultPerPage))
	if err != nil {
		return Page[*Notification]{}, fmt.Errorf("list notifications: %w", err)
	}
	return Page[*Notification]{Data: ns, Meta: meta}, nil
}

// UnreadCount counts unread notifications visible to a member.
func (d *Database) UnreadCount(ctx context.Context, memberID int64) (int, error) {
	var n int
	err := d.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM notifications WHERE (member_id=? OR member_id IS NULL) AND is_read=0`, memberID)
	return n, err
}

// MarkNotificationRead flags one notification as read.
func (d *Database) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("notification", id)
	}
	return nil
}

// MarkAllRead flags the member's own unread notifications as read and
// returns how many changed. Broadcasts are left alone.
func (d *Database) MarkAllRead(ctx context.Context, memberID int64) (int64, error) {
	res, err := d.db.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE member_id=? AND is_read=0`, memberID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteNotification removes one notification.
func (d *Database) DeleteNotification(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM notifications WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("notification", id)
	}
	return nil
}
