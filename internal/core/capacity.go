package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// lockedLocation is a storage_locations row locked for the duration of a
// receive transaction. Locking the location row serializes concurrent
// receipts into the same location, so the capacity check and the on-hand
// increase cannot interleave with another receipt's.
type lockedLocation struct {
	ID          int
	WarehouseID int
	Type        LocationType
	MaxCapacity *int64
}

// lockLocationTx locks the location row and verifies it belongs to the
// company. Must be called before any capacity check or on-hand increase.
func lockLocationTx(ctx context.Context, tx pgx.Tx, companyID, locationID int) (*lockedLocation, error) {
	var loc lockedLocation
	err := tx.QueryRow(ctx, `
		SELECT l.id, l.warehouse_id, l.location_type, l.max_capacity
		FROM storage_locations l
		JOIN warehouses w ON w.id = l.warehouse_id
		WHERE l.id = $1 AND w.company_id = $2
		FOR UPDATE OF l
	`, locationID, companyID).Scan(&loc.ID, &loc.WarehouseID, &loc.Type, &loc.MaxCapacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("storage location %d not found for company %d", locationID, companyID)
		}
		return nil, fmt.Errorf("failed to lock storage location %d: %w", locationID, err)
	}
	return &loc, nil
}

// checkCapacityTx validates an incoming quantity against the location's
// configured maximum. A nil MaxCapacity always allows. The caller must hold
// the location lock (lockLocationTx) within the same transaction as the
// subsequent on-hand increase; otherwise two concurrent receipts could both
// pass and jointly overflow.
func checkCapacityTx(ctx context.Context, tx pgx.Tx, loc *lockedLocation, incomingQty int64) error {
	if loc.MaxCapacity == nil {
		return nil
	}

	var currentTotal int64
	err := tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(qty_on_hand), 0) FROM stock_levels WHERE location_id = $1",
		loc.ID,
	).Scan(&currentTotal)
	if err != nil {
		return fmt.Errorf("failed to sum on-hand stock at location %d: %w", loc.ID, err)
	}

	if currentTotal+incomingQty > *loc.MaxCapacity {
		return &CapacityExceededError{
			LocationID: loc.ID,
			Requested:  incomingQty,
			Remaining:  *loc.MaxCapacity - currentTotal,
		}
	}
	return nil
}

// refreshIsFullTx recomputes the is_full cache after an on-hand change.
func refreshIsFullTx(ctx context.Context, tx pgx.Tx, loc *lockedLocation) error {
	if loc.MaxCapacity == nil {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE storage_locations
		SET is_full = (SELECT COALESCE(SUM(qty_on_hand), 0) FROM stock_levels WHERE location_id = $1) >= $2
		WHERE id = $1
	`, loc.ID, *loc.MaxCapacity)
	if err != nil {
		return fmt.Errorf("failed to refresh is_full for location %d: %w", loc.ID, err)
	}
	return nil
}
