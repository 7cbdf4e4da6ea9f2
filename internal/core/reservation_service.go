package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReservationService drives the reservation state machine. Every transition
// is a single transaction: the reservation row is locked, the next state is
// resolved from the pure transition table, the ledger effect is applied to
// the stock levels the reservation touched, and the new state is persisted —
// all or nothing.
type ReservationService interface {
	// CreateForOrder soft-reserves one order line against a warehouse,
	// distributing the quantity across locations picking-first. Fails whole
	// with InsufficientStockError when the warehouse cannot cover the line.
	CreateForOrder(ctx context.Context, companyID int, orderID string, warehouseID int,
		line OrderLine, ttl time.Duration) (*StockReservation, error)

	// Confirm promotes soft_reserved → hard_reserved and clears the expiry.
	Confirm(ctx context.Context, reservationID string) error
	// Cancel releases a non-terminal reservation back to availability.
	Cancel(ctx context.Context, reservationID string) error
	// StartPicking marks hard_reserved → picking (audit movements only).
	StartPicking(ctx context.Context, reservationID string) error
	// ConfirmShipment fulfills a picking reservation, decrementing on-hand.
	ConfirmShipment(ctx context.Context, reservationID string) error
	// Expire moves soft_reserved → expired, releasing held stock. Returns
	// false without error when the reservation already left soft_reserved —
	// the sweep racing a confirm/cancel is an idempotent no-op.
	Expire(ctx context.Context, reservationID string) (bool, error)

	Get(ctx context.Context, reservationID string) (*StockReservation, error)
	GetByReference(ctx context.Context, orderID string) ([]StockReservation, error)
}

type reservationService struct {
	pool *pgxpool.Pool
}

func NewReservationService(pool *pgxpool.Pool) ReservationService {
	return &reservationService{pool: pool}
}

// ── Creation ──────────────────────────────────────────────────────────────────

func (s *reservationService) CreateForOrder(ctx context.Context, companyID int, orderID string, warehouseID int,
	line OrderLine, ttl time.Duration) (*StockReservation, error) {

	if line.Quantity <= 0 {
		return nil, fmt.Errorf("reservation quantity must be positive, got %d", line.Quantity)
	}
	if orderID == "" || line.ItemID == "" {
		return nil, fmt.Errorf("order id and item id must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("reservation TTL must be positive, got %s", ttl)
	}

	tx, err := beginEngineTx(ctx, s.pool)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	levels, err := lockWarehouseStockTx(ctx, tx, companyID, line.ItemID, warehouseID)
	if err != nil {
		return nil, err
	}

	var totalAvailable int64
	for _, sl := range levels {
		totalAvailable += sl.Available()
	}
	if totalAvailable < line.Quantity {
		return nil, &InsufficientStockError{
			ItemID:      line.ItemID,
			WarehouseID: warehouseID,
			Requested:   line.Quantity,
			Available:   totalAvailable,
		}
	}

	reservationID := uuid.NewString()

	// Greedy distribution over the already-sorted, locked rows. The
	// per-location split is recorded only in the movement rows; later
	// transitions replay them.
	remaining := line.Quantity
	for _, sl := range levels {
		if remaining == 0 {
			break
		}
		take := sl.Available()
		if take > remaining {
			take = remaining
		}
		if take == 0 {
			continue
		}
		if err := softReserveTx(ctx, tx, sl.ID, take, reservationID); err != nil {
			return nil, err
		}
		remaining -= take
	}

	expiresAt := time.Now().Add(ttl)
	var res StockReservation
	err = tx.QueryRow(ctx, `
		INSERT INTO stock_reservations (id, company_id, item_id, warehouse_id, reference_id, quantity, state, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, company_id, item_id, warehouse_id, reference_id, quantity, state, expires_at, created_at, updated_at
	`, reservationID, companyID, line.ItemID, warehouseID, orderID, line.Quantity, StateSoftReserved, expiresAt).Scan(
		&res.ID, &res.CompanyID, &res.ItemID, &res.WarehouseID, &res.ReferenceID,
		&res.Quantity, &res.State, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return &res, nil
}

// ── Transitions ───────────────────────────────────────────────────────────────

func (s *reservationService) Confirm(ctx context.Context, reservationID string) error {
	return s.transition(ctx, reservationID, EventConfirm)
}

func (s *reservationService) Cancel(ctx context.Context, reservationID string) error {
	return s.transition(ctx, reservationID, EventCancel)
}

func (s *reservationService) StartPicking(ctx context.Context, reservationID string) error {
	return s.transition(ctx, reservationID, EventStartPicking)
}

func (s *reservationService) ConfirmShipment(ctx context.Context, reservationID string) error {
	return s.transition(ctx, reservationID, EventShip)
}

func (s *reservationService) Expire(ctx context.Context, reservationID string) (bool, error) {
	err := s.transition(ctx, reservationID, EventExpire)
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		// Already confirmed, cancelled or expired by a concurrent actor.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *reservationService) transition(ctx context.Context, reservationID string, event ReservationEvent) error {
	tx, err := beginEngineTx(ctx, s.pool)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var res StockReservation
	err = tx.QueryRow(ctx, `
		SELECT id, company_id, item_id, warehouse_id, reference_id, quantity, state, expires_at
		FROM stock_reservations
		WHERE id = $1
		FOR UPDATE
	`, reservationID).Scan(&res.ID, &res.CompanyID, &res.ItemID, &res.WarehouseID,
		&res.ReferenceID, &res.Quantity, &res.State, &res.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("reservation %s not found", reservationID)
		}
		return fmt.Errorf("failed to lock reservation %s: %w", reservationID, err)
	}

	next, ok := nextState(res.State, event)
	if !ok {
		return &InvalidTransitionError{ReservationID: reservationID, From: res.State, Event: event}
	}

	if err := s.applyLedgerEffect(ctx, tx, &res, event); err != nil {
		return err
	}

	var expiresAt *time.Time
	if next == StateSoftReserved {
		expiresAt = res.ExpiresAt
	}
	_, err = tx.Exec(ctx, `
		UPDATE stock_reservations SET state = $1, expires_at = $2, updated_at = NOW() WHERE id = $3
	`, next, expiresAt, reservationID)
	if err != nil {
		return fmt.Errorf("failed to update reservation %s: %w", reservationID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transition of reservation %s: %w", reservationID, err)
	}
	return nil
}

// applyLedgerEffect replays the reservation's movement fragments and applies
// the per-location stock effect for the transition.
func (s *reservationService) applyLedgerEffect(ctx context.Context, tx pgx.Tx, res *StockReservation, event ReservationEvent) error {
	switch event {
	case EventConfirm:
		fragments, err := movementFragmentsTx(ctx, tx, res, MovementSoftReserve)
		if err != nil {
			return err
		}
		for _, f := range fragments {
			if err := promoteToHardTx(ctx, tx, f.stockLevelID, f.quantity, res.ID); err != nil {
				return err
			}
		}
	case EventExpire:
		fragments, err := movementFragmentsTx(ctx, tx, res, MovementSoftReserve)
		if err != nil {
			return err
		}
		for _, f := range fragments {
			if err := releaseCounterTx(ctx, tx, f.stockLevelID, "soft", f.quantity, MovementExpire, res.ID); err != nil {
				return err
			}
		}
	case EventCancel:
		counter, source := "soft", MovementSoftReserve
		if res.State == StateHardReserved || res.State == StatePicking {
			counter, source = "hard", MovementPromote
		}
		fragments, err := movementFragmentsTx(ctx, tx, res, source)
		if err != nil {
			return err
		}
		for _, f := range fragments {
			if err := releaseCounterTx(ctx, tx, f.stockLevelID, counter, f.quantity, MovementRelease, res.ID); err != nil {
				return err
			}
		}
	case EventStartPicking:
		fragments, err := movementFragmentsTx(ctx, tx, res, MovementPromote)
		if err != nil {
			return err
		}
		for _, f := range fragments {
			if err := pickAuditTx(ctx, tx, f.stockLevelID, f.quantity, res.ID); err != nil {
				return err
			}
		}
	case EventShip:
		fragments, err := movementFragmentsTx(ctx, tx, res, MovementPromote)
		if err != nil {
			return err
		}
		for _, f := range fragments {
			if err := commitShipmentTx(ctx, tx, f.stockLevelID, f.quantity, res.ID); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unhandled reservation event %s", event)
	}
	return nil
}

type movementFragment struct {
	stockLevelID int
	quantity     int64
}

// movementFragmentsTx reconstructs the reservation's per-location split from
// its movement rows of the given type. The fragment total must equal the
// reservation quantity; anything else means duplicate delivery or a bug.
func movementFragmentsTx(ctx context.Context, tx pgx.Tx, res *StockReservation, mt MovementType) ([]movementFragment, error) {
	rows, err := tx.Query(ctx, `
		SELECT stock_level_id, SUM(quantity_change)
		FROM stock_movements
		WHERE reference = $1 AND movement_type = $2
		GROUP BY stock_level_id
		ORDER BY stock_level_id
	`, res.ID, mt)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s fragments for reservation %s: %w", mt, res.ID, err)
	}
	defer rows.Close()

	var fragments []movementFragment
	var total int64
	for rows.Next() {
		var f movementFragment
		if err := rows.Scan(&f.stockLevelID, &f.quantity); err != nil {
			return nil, fmt.Errorf("failed to scan movement fragment: %w", err)
		}
		fragments = append(fragments, f)
		total += f.quantity
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if total != res.Quantity {
		return nil, &InvalidReservationStateError{
			ReservationID: res.ID,
			Detail:        fmt.Sprintf("%s fragments sum to %d, reservation quantity is %d", mt, total, res.Quantity),
		}
	}
	return fragments, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *reservationService) Get(ctx context.Context, reservationID string) (*StockReservation, error) {
	var res StockReservation
	err := s.pool.QueryRow(ctx, `
		SELECT id, company_id, item_id, warehouse_id, reference_id, quantity, state, expires_at, created_at, updated_at
		FROM stock_reservations
		WHERE id = $1
	`, reservationID).Scan(&res.ID, &res.CompanyID, &res.ItemID, &res.WarehouseID, &res.ReferenceID,
		&res.Quantity, &res.State, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s not found", reservationID)
		}
		return nil, fmt.Errorf("failed to fetch reservation %s: %w", reservationID, err)
	}
	return &res, nil
}

func (s *reservationService) GetByReference(ctx context.Context, orderID string) ([]StockReservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, item_id, warehouse_id, reference_id, quantity, state, expires_at, created_at, updated_at
		FROM stock_reservations
		WHERE reference_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var reservations []StockReservation
	for rows.Next() {
		var res StockReservation
		if err := rows.Scan(&res.ID, &res.CompanyID, &res.ItemID, &res.WarehouseID, &res.ReferenceID,
			&res.Quantity, &res.State, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}
