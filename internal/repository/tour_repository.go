package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tour-booking/internal/model"
)

// TourRepo reads and writes the tours table.
type TourRepo struct{ db *sql.DB }

func NewTourRepo(db *sql.DB) *TourRepo { return &TourRepo{db: db} }

const tourColumns = `id, merchant_id, title, description, location, base_price_cents, price_type, is_active, created_at, updated_at`

func scanTour(row interface{ Scan(...any) error }) (model.Tour, error) {
	var (
		t    model.Tour
		desc sql.NullString
		pt   string
	)
	err := row.Scan(&t.ID, &t.MerchantID, &t.Title, &desc, &t.Location, &t.BasePriceCents, &pt, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Tour{}, err
	}
	t.Description = desc.String
	t.PriceType = model.PriceType(pt)
	return t, nil
}

func getTour(ctx context.Context, q querier, id string) (model.Tour, error) {
	t, err := scanTour(q.QueryRowContext(ctx, `SELECT `+tourColumns+` FROM tours WHERE id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tour{}, ErrNotFound
	}
	return t, err
}

// GetByID returns a tour regardless of its active flag.
func (r *TourRepo) GetByID(ctx context.Context, id string) (model.Tour, error) {
	return getTour(ctx, r.db, id)
}

// ListActive returns active tours ordered by title.
func (r *TourRepo) ListActive(ctx context.Context, limit, offset int) ([]model.Tour, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tourColumns+` FROM tours WHERE is_active = 1 ORDER BY title, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Tour, 0, limit)
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create inserts a tour, assigning its id and timestamps.
func (r *TourRepo) Create(ctx context.Context, t *model.Tour) error {
	t.ID = uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tours (id, merchant_id, title, description, location, base_price_cents, price_type, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.MerchantID, t.Title, t.Description, t.Location, t.BasePriceCents, string(t.PriceType), t.IsActive, t.CreatedAt, t.UpdatedAt)
	return err
}
