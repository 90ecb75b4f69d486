package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/tour-booking/internal/model"
)

// BookingRepo provides access to the bookings table.  Tx-suffixed methods
// run inside a caller-owned transaction; the caller commits or rolls back.
type BookingRepo struct{ db *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, tour_id, merchant_id, user_id, tour_date, number_of_guests,
	unit_price_cents, total_price_cents, discount_cents, final_price_cents,
	status, payment_status, payment_ref, contact_name, contact_email, contact_phone,
	special_requests, cancelled_at, cancellation_reason, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var (
		b           model.Booking
		userID      sql.NullString
		paymentRef  sql.NullString
		requests    sql.NullString
		cancelledAt sql.NullTime
		reason      sql.NullString
		status      string
		payStatus   string
	)
	err := row.Scan(&b.ID, &b.TourID, &b.MerchantID, &userID, &b.TourDate, &b.NumberOfGuests,
		&b.UnitPriceCents, &b.TotalPriceCents, &b.DiscountCents, &b.FinalPriceCents,
		&status, &payStatus, &paymentRef, &b.ContactName, &b.ContactEmail, &b.ContactPhone,
		&requests, &cancelledAt, &reason, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.UserID = stringPtr(userID)
	b.PaymentRef = stringPtr(paymentRef)
	b.SpecialRequests = requests.String
	b.CancellationReason = stringPtr(reason)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	b.Status = model.BookingStatus(status)
	b.PaymentStatus = model.PaymentStatus(payStatus)
	return b, nil
}

func getBooking(ctx context.Context, q querier, id string, forUpdate bool) (model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	return b, err
}

// GetByID returns one booking.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (model.Booking, error) {
	return getBooking(ctx, r.db, id, false)
}

// GetForUpdateTx returns a booking and holds its row lock until the
// transaction ends.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (model.Booking, error) {
	return getBooking(ctx, tx, id, true)
}

// CreateTx inserts b.  A payment reference already used by another booking
// yields ErrConflict.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (id, tour_id, merchant_id, user_id, tour_date, number_of_guests,
		unit_price_cents, total_price_cents, discount_cents, final_price_cents,
		status, payment_status, payment_ref, contact_name, contact_email, contact_phone,
		special_requests, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		b.ID, b.TourID, b.MerchantID, nullString(b.UserID), b.TourDate, b.NumberOfGuests,
		b.UnitPriceCents, b.TotalPriceCents, b.DiscountCents, b.FinalPriceCents,
		string(b.Status), string(b.PaymentStatus), nullString(b.PaymentRef),
		b.ContactName, b.ContactEmail, b.ContactPhone, b.SpecialRequests, b.CreatedAt, b.UpdatedAt)
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: payment reference already attached to a booking", ErrConflict)
	}
	return err
}

// UpdateTx writes the mutable columns of b: status, payment fields and
// cancellation stamp.
func (r *BookingRepo) UpdateTx(ctx context.Context, tx *sql.Tx, b model.Booking) error {
	const q = `UPDATE bookings SET status = ?, payment_status = ?, payment_ref = ?,
		cancelled_at = ?, cancellation_reason = ?, updated_at = ? WHERE id = ?`
	var cancelledAt sql.NullTime
	if b.CancelledAt != nil {
		cancelledAt = sql.NullTime{Time: *b.CancelledAt, Valid: true}
	}
	res, err := tx.ExecContext(ctx, q, string(b.Status), string(b.PaymentStatus), nullString(b.PaymentRef),
		cancelledAt, nullString(b.CancellationReason), b.UpdatedAt, b.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: payment reference already attached to a booking", ErrConflict)
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 for unchanged rows too; confirm existence.
		if _, err := getBooking(ctx, tx, b.ID, false); err != nil {
			return err
		}
	}
	return nil
}

// CommittedGuests sums the guests of pending and confirmed bookings of a
// tour date.
func committedGuests(ctx context.Context, q querier, tourID string, date model.Date) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(number_of_guests), 0) FROM bookings
		 WHERE tour_id = ? AND tour_date = ? AND status IN ('pending', 'confirmed')`,
		tourID, date).Scan(&sum)
	return sum, err
}

func (r *BookingRepo) CommittedGuests(ctx context.Context, tourID string, date model.Date) (int, error) {
	return committedGuests(ctx, r.db, tourID, date)
}

// ListByUser returns a customer's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
}

// ListByMerchant returns the bookings of a merchant's tours, newest first.
func (r *BookingRepo) ListByMerchant(ctx context.Context, merchantID string) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE merchant_id = ? ORDER BY created_at DESC, id`, merchantID)
}

func (r *BookingRepo) list(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
