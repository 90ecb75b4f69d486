package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tour-booking/internal/model"
)

// NotificationRepo stores the in-app inbox.
type NotificationRepo struct{ db *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Insert stores n unless a notification with the same event id exists.  It
// reports whether a row was written, so redelivered events stay single.
func (r *NotificationRepo) Insert(ctx context.Context, n *model.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO notifications (id, event_id, user_id, booking_id, kind, title, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.EventID, nullString(n.UserID), n.BookingID, n.Kind, n.Title, n.Message, n.CreatedAt)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ListByUser returns the newest notifications of a user.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, user_id, booking_id, kind, title, message, read_at, created_at
		 FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Notification{}
	for rows.Next() {
		var (
			n      model.Notification
			uid    sql.NullString
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.EventID, &uid, &n.BookingID, &n.Kind, &n.Title, &n.Message, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.UserID = stringPtr(uid)
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead stamps read_at on one of the user's notifications.  Unknown ids
// and notifications of other users yield ErrNotFound.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, UTC_TIMESTAMP()) WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE id = ? AND user_id = ?`, id, userID).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	return nil
}
