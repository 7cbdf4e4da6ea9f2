package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StockService owns the per-(item, location) stock ledger. Every mutation
// runs under a row lock, appends exactly one stock_movements entry, and
// leaves the counters non-negative or fails.
type StockService interface {
	// Receive records a goods receipt into a location: capacity guard, on-hand
	// increase, weighted-average unit cost update, receipt movement.
	Receive(ctx context.Context, companyID int, itemID string, locationID int,
		qty int64, unitCost Money, reference string, actorID *string) error

	// CheckAvailability sums available quantity for an item across a warehouse.
	CheckAvailability(ctx context.Context, companyID int, itemID string, warehouseID int) (int64, error)

	// GetStockSummary is the company-wide picture: on hand, held outgoing,
	// awaited incoming.
	GetStockSummary(ctx context.Context, itemID string, companyID int) (*StockSummary, error)

	// GetStockLevels lists all stock levels for a company with location type
	// and unit cost, ordered for the allocation comparator.
	GetStockLevels(ctx context.Context, companyID int) ([]StockLevel, error)

	// GetWarehouses lists a company's active warehouses.
	GetWarehouses(ctx context.Context, companyID int) ([]Warehouse, error)

	// GetLocations lists a warehouse's storage locations.
	GetLocations(ctx context.Context, warehouseID int) ([]StorageLocation, error)
}

type stockService struct {
	pool *pgxpool.Pool
}

func NewStockService(pool *pgxpool.Pool) StockService {
	return &stockService{pool: pool}
}

// beginEngineTx opens a transaction with a bounded lock wait, so contention
// surfaces as a retryable error instead of an unbounded block.
func beginEngineTx(ctx context.Context, pool *pgxpool.Pool) (pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, "SET LOCAL lock_timeout = '3s'"); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to set lock timeout: %w", err)
	}
	return tx, nil
}

// ── Receive ───────────────────────────────────────────────────────────────────

func (s *stockService) Receive(ctx context.Context, companyID int, itemID string, locationID int,
	qty int64, unitCost Money, reference string, actorID *string) error {

	if qty <= 0 {
		return fmt.Errorf("receive quantity must be positive, got %d", qty)
	}
	if itemID == "" {
		return fmt.Errorf("item id must not be empty")
	}

	tx, err := beginEngineTx(ctx, s.pool)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Capacity guard and on-hand increase share the location lock.
	loc, err := lockLocationTx(ctx, tx, companyID, locationID)
	if err != nil {
		return err
	}
	if err := checkCapacityTx(ctx, tx, loc, qty); err != nil {
		return err
	}

	// Create the stock level on first receipt, then lock it.
	var itemRowID int
	err = tx.QueryRow(ctx, `
		INSERT INTO stock_levels (company_id, item_id, warehouse_id, location_id, cost_currency)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, item_id, location_id) DO UPDATE SET updated_at = NOW()
		RETURNING id
	`, companyID, itemID, loc.WarehouseID, locationID, unitCost.Currency()).Scan(&itemRowID)
	if err != nil {
		return fmt.Errorf("failed to upsert stock level: %w", err)
	}

	var oldQty, oldCostMinor int64
	var costCurrency string
	err = tx.QueryRow(ctx,
		"SELECT qty_on_hand, unit_cost_minor, cost_currency FROM stock_levels WHERE id = $1 FOR UPDATE",
		itemRowID,
	).Scan(&oldQty, &oldCostMinor, &costCurrency)
	if err != nil {
		return translateStockErr(itemRowID, fmt.Errorf("failed to lock stock level: %w", err))
	}

	if costCurrency != unitCost.Currency() && oldQty > 0 {
		return fmt.Errorf("%w: stock level %d is valued in %s, receipt in %s",
			ErrCurrencyMismatch, itemRowID, costCurrency, unitCost.Currency())
	}

	// Weighted average cost over minor units, rounded to the nearest unit.
	newQty := oldQty + qty
	newCost := decimal.NewFromInt(oldQty).Mul(decimal.NewFromInt(oldCostMinor)).
		Add(decimal.NewFromInt(qty).Mul(unitCost.Decimal())).
		Div(decimal.NewFromInt(newQty)).
		Round(0).IntPart()

	_, err = tx.Exec(ctx, `
		UPDATE stock_levels
		SET qty_on_hand = $1, unit_cost_minor = $2, cost_currency = $3, updated_at = NOW()
		WHERE id = $4
	`, newQty, newCost, unitCost.Currency(), itemRowID)
	if err != nil {
		return translateStockErr(itemRowID, fmt.Errorf("failed to update stock level: %w", err))
	}

	if err := insertMovementTx(ctx, tx, itemRowID, MovementReceipt, qty, newQty, reference, actorID); err != nil {
		return err
	}
	if err := refreshIsFullTx(ctx, tx, loc); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit goods receipt: %w", err)
	}
	return nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *stockService) CheckAvailability(ctx context.Context, companyID int, itemID string, warehouseID int) (int64, error) {
	var available int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty_on_hand - qty_soft_reserved - qty_hard_reserved), 0)
		FROM stock_levels
		WHERE company_id = $1 AND item_id = $2 AND warehouse_id = $3
	`, companyID, itemID, warehouseID).Scan(&available)
	if err != nil {
		return 0, fmt.Errorf("failed to check availability for item %s: %w", itemID, err)
	}
	return available, nil
}

func (s *stockService) GetStockSummary(ctx context.Context, itemID string, companyID int) (*StockSummary, error) {
	summary := StockSummary{ItemID: itemID}
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty_on_hand), 0),
		       COALESCE(SUM(qty_soft_reserved + qty_hard_reserved), 0)
		FROM stock_levels
		WHERE company_id = $1 AND item_id = $2
	`, companyID, itemID).Scan(&summary.OnHand, &summary.Outgoing)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock summary for item %s: %w", itemID, err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM backorders
		WHERE company_id = $1 AND item_id = $2 AND status = 'open'
	`, companyID, itemID).Scan(&summary.Incoming)
	if err != nil {
		return nil, fmt.Errorf("failed to query open backorders for item %s: %w", itemID, err)
	}
	return &summary, nil
}

func (s *stockService) GetStockLevels(ctx context.Context, companyID int) ([]StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sl.id, sl.company_id, sl.item_id, sl.warehouse_id, sl.location_id,
		       sl.qty_on_hand, sl.qty_soft_reserved, sl.qty_hard_reserved,
		       sl.unit_cost_minor, sl.cost_currency, l.location_type, sl.updated_at
		FROM stock_levels sl
		JOIN storage_locations l ON l.id = sl.location_id
		WHERE sl.company_id = $1
		ORDER BY sl.item_id, sl.warehouse_id, sl.location_id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		var costMinor int64
		var currency string
		if err := rows.Scan(&sl.ID, &sl.CompanyID, &sl.ItemID, &sl.WarehouseID, &sl.LocationID,
			&sl.QtyOnHand, &sl.QtySoftReserved, &sl.QtyHardReserved,
			&costMinor, &currency, &sl.LocationType, &sl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		sl.UnitCost, err = NewMoney(costMinor, currency)
		if err != nil {
			return nil, fmt.Errorf("stock level %d carries invalid cost: %w", sl.ID, err)
		}
		levels = append(levels, sl)
	}
	return levels, rows.Err()
}

func (s *stockService) GetWarehouses(ctx context.Context, companyID int) ([]Warehouse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, code, name, is_active, created_at
		FROM warehouses
		WHERE company_id = $1 AND is_active = true
		ORDER BY code
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.CompanyID, &w.Code, &w.Name, &w.IsActive, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse: %w", err)
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

func (s *stockService) GetLocations(ctx context.Context, warehouseID int) ([]StorageLocation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, warehouse_id, code, location_type, max_capacity, is_full, created_at
		FROM storage_locations
		WHERE warehouse_id = $1
		ORDER BY code
	`, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage locations: %w", err)
	}
	defer rows.Close()

	var locations []StorageLocation
	for rows.Next() {
		var l StorageLocation
		if err := rows.Scan(&l.ID, &l.WarehouseID, &l.Code, &l.Type, &l.MaxCapacity, &l.IsFull, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan storage location: %w", err)
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// ── TX-scoped ledger mutations ────────────────────────────────────────────────
// Used by ReservationService to keep state transitions atomic with their
// ledger effect. Callers hold the relevant row locks.

func insertMovementTx(ctx context.Context, tx pgx.Tx, stockLevelID int, mt MovementType,
	change, after int64, reference string, actorID *string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (stock_level_id, movement_type, quantity_change, quantity_after, reference, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, stockLevelID, mt, change, after, reference, actorID)
	if err != nil {
		return fmt.Errorf("failed to insert %s movement for stock level %d: %w", mt, stockLevelID, err)
	}
	return nil
}

// lockWarehouseStockTx locks every stock level for the item in the
// warehouse, ordered by the allocation comparator (picking first, most
// available first, then location id for determinism).
func lockWarehouseStockTx(ctx context.Context, tx pgx.Tx, companyID int, itemID string, warehouseID int) ([]StockLevel, error) {
	rows, err := tx.Query(ctx, `
		SELECT sl.id, sl.location_id, sl.qty_on_hand, sl.qty_soft_reserved, sl.qty_hard_reserved, l.location_type
		FROM stock_levels sl
		JOIN storage_locations l ON l.id = sl.location_id
		WHERE sl.company_id = $1 AND sl.item_id = $2 AND sl.warehouse_id = $3
		ORDER BY CASE WHEN l.location_type = 'picking' THEN 0 ELSE 1 END,
		         sl.qty_on_hand - sl.qty_soft_reserved - sl.qty_hard_reserved DESC,
		         sl.location_id
		FOR UPDATE OF sl
	`, companyID, itemID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock levels for item %s: %w", itemID, err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		if err := rows.Scan(&sl.ID, &sl.LocationID, &sl.QtyOnHand, &sl.QtySoftReserved, &sl.QtyHardReserved, &sl.LocationType); err != nil {
			return nil, fmt.Errorf("failed to scan locked stock level: %w", err)
		}
		sl.CompanyID = companyID
		sl.ItemID = itemID
		sl.WarehouseID = warehouseID
		levels = append(levels, sl)
	}
	return levels, rows.Err()
}

// softReserveTx increases the soft counter on one locked row. The caller has
// already verified availability; the row CHECK constraint is the backstop.
func softReserveTx(ctx context.Context, tx pgx.Tx, stockLevelID int, qty int64, reference string) error {
	var onHand int64
	err := tx.QueryRow(ctx, `
		UPDATE stock_levels
		SET qty_soft_reserved = qty_soft_reserved + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING qty_on_hand
	`, qty, stockLevelID).Scan(&onHand)
	if err != nil {
		return translateStockErr(stockLevelID, fmt.Errorf("failed to soft-reserve on stock level %d: %w", stockLevelID, err))
	}
	return insertMovementTx(ctx, tx, stockLevelID, MovementSoftReserve, qty, onHand, reference, nil)
}

// promoteToHardTx moves qty from soft to hard atomically. Never re-checks
// availability: the quantity was committed at soft-reserve time. Fails if
// the soft counter cannot cover qty, which indicates orchestration misuse.
func promoteToHardTx(ctx context.Context, tx pgx.Tx, stockLevelID int, qty int64, reservationID string) error {
	var onHand int64
	err := tx.QueryRow(ctx, `
		UPDATE stock_levels
		SET qty_soft_reserved = qty_soft_reserved - $1,
		    qty_hard_reserved = qty_hard_reserved + $1,
		    updated_at = NOW()
		WHERE id = $2 AND qty_soft_reserved >= $1
		RETURNING qty_on_hand
	`, qty, stockLevelID).Scan(&onHand)
	if errors.Is(err, pgx.ErrNoRows) {
		return &InvalidReservationStateError{
			ReservationID: reservationID,
			Detail:        fmt.Sprintf("stock level %d soft-reserved amount below %d", stockLevelID, qty),
		}
	}
	if err != nil {
		return translateStockErr(stockLevelID, fmt.Errorf("failed to promote reservation on stock level %d: %w", stockLevelID, err))
	}
	return insertMovementTx(ctx, tx, stockLevelID, MovementPromote, qty, onHand, reservationID, nil)
}

// releaseCounterTx decrements a reservation counter, clamped at zero. The
// movement records the actually-released amount. mt distinguishes an
// explicit release from an expiry.
func releaseCounterTx(ctx context.Context, tx pgx.Tx, stockLevelID int, counter string, qty int64,
	mt MovementType, reference string) error {

	var column string
	switch counter {
	case "soft":
		column = "qty_soft_reserved"
	case "hard":
		column = "qty_hard_reserved"
	default:
		return fmt.Errorf("unknown reservation counter %q", counter)
	}

	var current, onHand int64
	err := tx.QueryRow(ctx,
		"SELECT "+column+", qty_on_hand FROM stock_levels WHERE id = $1 FOR UPDATE",
		stockLevelID,
	).Scan(&current, &onHand)
	if err != nil {
		return translateStockErr(stockLevelID, fmt.Errorf("failed to lock stock level %d for release: %w", stockLevelID, err))
	}

	released := qty
	if current < released {
		released = current
	}
	_, err = tx.Exec(ctx,
		"UPDATE stock_levels SET "+column+" = "+column+" - $1, updated_at = NOW() WHERE id = $2",
		released, stockLevelID)
	if err != nil {
		return translateStockErr(stockLevelID, fmt.Errorf("failed to release on stock level %d: %w", stockLevelID, err))
	}
	return insertMovementTx(ctx, tx, stockLevelID, mt, -released, onHand, reference, nil)
}

// commitShipmentTx decrements on-hand and hard-reserved together at
// fulfillment. The hard counter clamps at zero; on-hand below zero is an
// invariant violation surfaced by the row CHECK.
func commitShipmentTx(ctx context.Context, tx pgx.Tx, stockLevelID int, qty int64, reference string) error {
	var onHand int64
	err := tx.QueryRow(ctx, `
		UPDATE stock_levels
		SET qty_on_hand = qty_on_hand - $1,
		    qty_hard_reserved = GREATEST(qty_hard_reserved - $1, 0),
		    updated_at = NOW()
		WHERE id = $2
		RETURNING qty_on_hand
	`, qty, stockLevelID).Scan(&onHand)
	if err != nil {
		return translateStockErr(stockLevelID, fmt.Errorf("failed to commit shipment on stock level %d: %w", stockLevelID, err))
	}
	return insertMovementTx(ctx, tx, stockLevelID, MovementShip, -qty, onHand, reference, nil)
}

// pickAuditTx records that picking started against a stock level. Pure
// audit: no counter changes until shipment.
func pickAuditTx(ctx context.Context, tx pgx.Tx, stockLevelID int, qty int64, reference string) error {
	var onHand int64
	err := tx.QueryRow(ctx, "SELECT qty_on_hand FROM stock_levels WHERE id = $1", stockLevelID).Scan(&onHand)
	if err != nil {
		return fmt.Errorf("failed to read stock level %d for pick audit: %w", stockLevelID, err)
	}
	return insertMovementTx(ctx, tx, stockLevelID, MovementPick, qty, onHand, reference, nil)
}
