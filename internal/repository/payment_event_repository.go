package repository

import (
	"context"
	"database/sql"
)

// PaymentEventRepo records provider event ids already applied.
type PaymentEventRepo struct{ db *sql.DB }

func NewPaymentEventRepo(db *sql.DB) *PaymentEventRepo { return &PaymentEventRepo{db: db} }

// RecordTx inserts eventID and reports whether it was new.  Recording in
// the transaction of the status change makes the pair atomic.
func (r *PaymentEventRepo) RecordTx(ctx context.Context, tx *sql.Tx, eventID, kind, bookingID string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO payment_events (event_id, kind, booking_id) VALUES (?, ?, ?)`,
		eventID, kind, bookingID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
