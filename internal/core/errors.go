package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// The engine's business-rule and state errors carry enough data for the
// caller to act on (offer backorder, show remaining capacity). Validation
// and infrastructure failures stay plain wrapped errors.

// InsufficientStockError is returned when a soft reserve asks for more than
// the warehouse has available. An expected outcome, not a bug.
type InsufficientStockError struct {
	ItemID      string
	WarehouseID int
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s in warehouse %d: requested %d, available %d",
		e.ItemID, e.WarehouseID, e.Requested, e.Available)
}

// CapacityExceededError is returned by the capacity guard when a receipt
// would overflow a location's configured maximum.
type CapacityExceededError struct {
	LocationID int
	Requested  int64
	Remaining  int64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("location %d capacity exceeded: requested %d, remaining %d",
		e.LocationID, e.Requested, e.Remaining)
}

// InvalidTransitionError rejects a reservation state change not present in
// the transition table, including anything out of a terminal state.
type InvalidTransitionError struct {
	ReservationID string
	From          ReservationState
	Event         ReservationEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for reservation %s: %s on event %s",
		e.ReservationID, e.From, e.Event)
}

// InvalidReservationStateError signals that a reservation's ledger fragments
// do not add up to its quantity — orchestration misuse or duplicate delivery,
// never a business condition.
type InvalidReservationStateError struct {
	ReservationID string
	Detail        string
}

func (e *InvalidReservationStateError) Error() string {
	return fmt.Sprintf("invalid reservation state for %s: %s", e.ReservationID, e.Detail)
}

// InvariantViolationError is fatal: a mutation tried to persist negative
// counters or negative availability. The transaction is aborted and the
// error escalated as a bug signal.
type InvariantViolationError struct {
	StockLevelID int
	Detail       string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("stock level %d invariant violation: %s", e.StockLevelID, e.Detail)
}

// Postgres error codes the engine translates.
const (
	pgCheckViolation   = "23514"
	pgDeadlockDetected = "40P01"
	pgLockNotAvailable = "55P03"
)

// translateStockErr maps storage-layer failures on stock_levels writes to the
// engine taxonomy: CHECK violations are the invariant backstop firing, lock
// timeouts and deadlock aborts are retryable infrastructure errors.
func translateStockErr(stockLevelID int, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCheckViolation:
			return &InvariantViolationError{StockLevelID: stockLevelID, Detail: pgErr.Message}
		case pgLockNotAvailable:
			return fmt.Errorf("lock wait timed out (retryable): %w", err)
		case pgDeadlockDetected:
			return fmt.Errorf("deadlock detected (retryable): %w", err)
		}
	}
	return err
}

// IsRetryable reports whether the caller may retry the operation with
// backoff: bounded lock-wait expiry, or losing a deadlock (two transactions
// locking the same stock rows in different orders; one victim is aborted).
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgLockNotAvailable || pgErr.Code == pgDeadlockDetected
}
