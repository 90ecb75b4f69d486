package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/tour-booking/internal/model"
)

// InventoryRepo manages tour_inventory rows.  A row with max_capacity set is
// counter-managed: its available_spots mirrors max_capacity minus committed
// guests.  A row with only available_spots is maintained by the merchant.
type InventoryRepo struct{ db *sql.DB }

func NewInventoryRepo(db *sql.DB) *InventoryRepo { return &InventoryRepo{db: db} }

const inventoryColumns = `id, tour_id, tour_date, available_spots, max_capacity, is_available, updated_at`

func getInventory(ctx context.Context, q querier, tourID string, date model.Date, forUpdate bool) (*model.InventoryRecord, error) {
	query := `SELECT ` + inventoryColumns + ` FROM tour_inventory WHERE tour_id = ? AND tour_date = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		rec       model.InventoryRecord
		available sql.NullInt64
		maxCap    sql.NullInt64
	)
	err := q.QueryRowContext(ctx, query, tourID, date).Scan(
		&rec.ID, &rec.TourID, &rec.TourDate, &available, &maxCap, &rec.IsAvailable, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.AvailableSpots = intPtr(available)
	rec.MaxCapacity = intPtr(maxCap)
	return &rec, nil
}

// Get returns the inventory row of a tour date or nil.
func (r *InventoryRepo) Get(ctx context.Context, tourID string, date model.Date) (*model.InventoryRecord, error) {
	return getInventory(ctx, r.db, tourID, date, false)
}

// LockTx locks the row of a tour date for the rest of the transaction.
// With ensureCapacity > 0 a missing row is created first so that the lock
// always has a row to hold; INSERT IGNORE keeps concurrent creators from
// failing on the unique key.
func (r *InventoryRepo) LockTx(ctx context.Context, tx *sql.Tx, tourID string, date model.Date, ensureCapacity int) (*model.InventoryRecord, error) {
	if ensureCapacity > 0 {
		_, err := tx.ExecContext(ctx,
			`INSERT IGNORE INTO tour_inventory (tour_id, tour_date, available_spots, max_capacity, is_available)
			 VALUES (?, ?, ?, ?, 1)`, tourID, date, ensureCapacity, ensureCapacity)
		if err != nil {
			return nil, err
		}
	}
	return getInventory(ctx, tx, tourID, date, true)
}

// AdjustTx moves available_spots of a counter-managed row by delta within
// [0, max_capacity].
func (r *InventoryRepo) AdjustTx(ctx context.Context, tx *sql.Tx, tourID string, date model.Date, delta int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE tour_inventory
		 SET available_spots = LEAST(GREATEST(COALESCE(available_spots, max_capacity) + ?, 0), max_capacity)
		 WHERE tour_id = ? AND tour_date = ? AND max_capacity IS NOT NULL`,
		delta, tourID, date)
	return err
}

// SetSpotsTx overwrites available_spots of a counter-managed row.
func (r *InventoryRepo) SetSpotsTx(ctx context.Context, tx *sql.Tx, tourID string, date model.Date, spots int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE tour_inventory SET available_spots = ?
		 WHERE tour_id = ? AND tour_date = ? AND max_capacity IS NOT NULL`,
		spots, tourID, date)
	return err
}

// UpsertTx creates or replaces the capacity settings of a tour date.
func (r *InventoryRepo) UpsertTx(ctx context.Context, tx *sql.Tx, rec model.InventoryRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tour_inventory (tour_id, tour_date, available_spots, max_capacity, is_available)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE available_spots = VALUES(available_spots),
		   max_capacity = VALUES(max_capacity), is_available = VALUES(is_available)`,
		rec.TourID, rec.TourDate, nullInt(rec.AvailableSpots), nullInt(rec.MaxCapacity), rec.IsAvailable)
	return err
}
