package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultReservationTTL bounds how long an unconfirmed order may hold stock.
const DefaultReservationTTL = 60 * time.Minute

// Orchestrator converts externally-raised lifecycle events into reservation
// transitions and ledger operations. Delivery is at-least-once: every event
// carries a dedupe key claimed in processed_events before any work happens,
// so a redelivered event is a no-op. A claim is released when handling
// fails, letting redelivery retry.
type Orchestrator struct {
	pool         *pgxpool.Pool
	stock        StockService
	reservations ReservationService
	planner      AllocationPlanner
	ttl          time.Duration
}

func NewOrchestrator(pool *pgxpool.Pool, stock StockService, reservations ReservationService,
	planner AllocationPlanner, ttl time.Duration) *Orchestrator {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &Orchestrator{pool: pool, stock: stock, reservations: reservations, planner: planner, ttl: ttl}
}

// claimEvent returns false when the key was already processed.
func (o *Orchestrator) claimEvent(ctx context.Context, key string) (bool, error) {
	tag, err := o.pool.Exec(ctx,
		"INSERT INTO processed_events (event_key) VALUES ($1) ON CONFLICT (event_key) DO NOTHING",
		key)
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (o *Orchestrator) releaseClaim(ctx context.Context, key string) {
	// Best effort: a stuck claim only suppresses a retry, never corrupts state.
	_, _ = o.pool.Exec(ctx, "DELETE FROM processed_events WHERE event_key = $1", key)
}

// ── Event handlers ────────────────────────────────────────────────────────────

// HandleOrderCreated soft-reserves every order line. Lines are applied
// independently; when one fails, the already-reserved lines are explicitly
// released (the engine never rolls back across stock rows on its own) and
// the line's error is returned.
func (o *Orchestrator) HandleOrderCreated(ctx context.Context, evt OrderCreatedEvent) error {
	if evt.OrderID == "" {
		return fmt.Errorf("order created event missing order id")
	}
	if len(evt.Items) == 0 {
		return fmt.Errorf("order %s has no items", evt.OrderID)
	}

	key := "order-created:" + evt.OrderID
	claimed, err := o.claimEvent(ctx, key)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	var created []*StockReservation
	for _, line := range evt.Items {
		res, err := o.reservations.CreateForOrder(ctx, evt.CompanyID, evt.OrderID, evt.WarehouseID, line, o.ttl)
		if err != nil {
			o.compensate(ctx, created)
			o.releaseClaim(ctx, key)
			return fmt.Errorf("order %s line %s: %w", evt.OrderID, line.ItemID, err)
		}
		created = append(created, res)
	}
	return nil
}

// compensate releases reservations created before a sibling line failed.
func (o *Orchestrator) compensate(ctx context.Context, created []*StockReservation) {
	for _, res := range created {
		// An error here leaves a soft reservation behind; the expiration
		// sweep reclaims it at TTL.
		_ = o.reservations.Cancel(ctx, res.ID)
	}
}

// HandleOrderConfirmed promotes every reservation of the order to hard.
// A reservation the sweep expired first surfaces InvalidTransitionError:
// the stock is gone and the caller must re-reserve.
func (o *Orchestrator) HandleOrderConfirmed(ctx context.Context, evt OrderConfirmedEvent) error {
	key := "order-confirmed:" + evt.OrderID
	claimed, err := o.claimEvent(ctx, key)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	reservations, err := o.reservations.GetByReference(ctx, evt.OrderID)
	if err != nil {
		o.releaseClaim(ctx, key)
		return err
	}
	if len(reservations) == 0 {
		o.releaseClaim(ctx, key)
		return fmt.Errorf("no reservations found for order %s", evt.OrderID)
	}

	for _, res := range reservations {
		if res.State != StateSoftReserved {
			continue // already promoted by an earlier partial run
		}
		if err := o.reservations.Confirm(ctx, res.ID); err != nil {
			o.releaseClaim(ctx, key)
			return fmt.Errorf("order %s: %w", evt.OrderID, err)
		}
	}
	return nil
}

// HandleOrderCancelled releases every non-terminal reservation of the order.
func (o *Orchestrator) HandleOrderCancelled(ctx context.Context, evt OrderCancelledEvent) error {
	key := "order-cancelled:" + evt.OrderID
	claimed, err := o.claimEvent(ctx, key)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	reservations, err := o.reservations.GetByReference(ctx, evt.OrderID)
	if err != nil {
		o.releaseClaim(ctx, key)
		return err
	}

	for _, res := range reservations {
		if res.State.IsTerminal() {
			continue
		}
		if err := o.reservations.Cancel(ctx, res.ID); err != nil {
			o.releaseClaim(ctx, key)
			return fmt.Errorf("order %s: %w", evt.OrderID, err)
		}
	}
	return nil
}

// HandlePickingStarted marks the order's hard reservations as picking.
func (o *Orchestrator) HandlePickingStarted(ctx context.Context, evt PickingStartedEvent) error {
	return o.transitionOrder(ctx, "picking-started:"+evt.OrderID, evt.OrderID,
		StateHardReserved, o.reservations.StartPicking)
}

// HandleShipmentConfirmed fulfills the order's picking reservations,
// decrementing physical stock.
func (o *Orchestrator) HandleShipmentConfirmed(ctx context.Context, evt ShipmentConfirmedEvent) error {
	return o.transitionOrder(ctx, "shipment-confirmed:"+evt.OrderID, evt.OrderID,
		StatePicking, o.reservations.ConfirmShipment)
}

func (o *Orchestrator) transitionOrder(ctx context.Context, key, orderID string,
	from ReservationState, apply func(context.Context, string) error) error {

	claimed, err := o.claimEvent(ctx, key)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	reservations, err := o.reservations.GetByReference(ctx, orderID)
	if err != nil {
		o.releaseClaim(ctx, key)
		return err
	}

	for _, res := range reservations {
		if res.State != from {
			continue
		}
		if err := apply(ctx, res.ID); err != nil {
			o.releaseClaim(ctx, key)
			return fmt.Errorf("order %s: %w", orderID, err)
		}
	}
	return nil
}

// HandleStockReceived books the capacity-guarded receipt, then re-plans
// every open backorder on the item so newly available stock shrinks or
// clears them. The event id is mandatory: a receipt is a physical mutation,
// and without a dedupe key a redelivered event would double-book it.
func (o *Orchestrator) HandleStockReceived(ctx context.Context, evt StockReceivedEvent) error {
	if evt.EventID == "" {
		return fmt.Errorf("stock received event for item %s is missing an event id", evt.ItemID)
	}

	key := "stock-received:" + evt.EventID
	claimed, err := o.claimEvent(ctx, key)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	unitCost, err := NewMoney(evt.UnitCostMinor, evt.Currency)
	if err != nil {
		o.releaseClaim(ctx, key)
		return fmt.Errorf("stock received for item %s: %w", evt.ItemID, err)
	}

	if err := o.stock.Receive(ctx, evt.CompanyID, evt.ItemID, evt.LocationID, evt.Quantity, unitCost, evt.EventID, nil); err != nil {
		o.releaseClaim(ctx, key)
		return err
	}

	if err := o.replanBackorders(ctx, evt.CompanyID, evt.ItemID); err != nil {
		// The receipt itself committed; backorder upkeep failing must not
		// suppress redelivery of a different event, so surface it.
		return err
	}
	return nil
}

// ── Backorders ────────────────────────────────────────────────────────────────

// PlanOrderPicking proposes a picking plan for an order and records its
// shortfalls as open backorders (clearing rows for items now covered), so a
// later StockReceived can re-plan them.
func (o *Orchestrator) PlanOrderPicking(ctx context.Context, companyID, warehouseID int,
	orderID string, items []OrderLine) (*PickingPlan, error) {

	plan, err := o.planner.PlanPicking(ctx, companyID, warehouseID, items)
	if err != nil {
		return nil, err
	}

	short := make(map[string]int64, len(plan.Shortfalls))
	for _, sf := range plan.Shortfalls {
		short[sf.ItemID] = sf.Quantity
	}

	for _, line := range items {
		qty, backordered := short[line.ItemID]
		if backordered {
			_, err = o.pool.Exec(ctx, `
				INSERT INTO backorders (company_id, reference_id, item_id, warehouse_id, quantity, status)
				VALUES ($1, $2, $3, $4, $5, 'open')
				ON CONFLICT (company_id, reference_id, item_id)
				DO UPDATE SET quantity = $5, warehouse_id = $4, status = 'open', updated_at = NOW()
			`, companyID, orderID, line.ItemID, warehouseID, qty)
		} else {
			_, err = o.pool.Exec(ctx, `
				UPDATE backorders SET status = 'cleared', updated_at = NOW()
				WHERE company_id = $1 AND reference_id = $2 AND item_id = $3 AND status = 'open'
			`, companyID, orderID, line.ItemID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record backorder state for order %s item %s: %w", orderID, line.ItemID, err)
		}
	}
	return plan, nil
}

// replanBackorders re-runs the planner for every order with an open
// backorder on the item, oldest first.
func (o *Orchestrator) replanBackorders(ctx context.Context, companyID int, itemID string) error {
	rows, err := o.pool.Query(ctx, `
		SELECT reference_id, warehouse_id, quantity
		FROM backorders
		WHERE company_id = $1 AND item_id = $2 AND status = 'open'
		ORDER BY created_at, id
	`, companyID, itemID)
	if err != nil {
		return fmt.Errorf("failed to query open backorders for item %s: %w", itemID, err)
	}

	type openBackorder struct {
		orderID     string
		warehouseID int
		quantity    int64
	}
	var backorders []openBackorder
	for rows.Next() {
		var bo openBackorder
		if err := rows.Scan(&bo.orderID, &bo.warehouseID, &bo.quantity); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan backorder: %w", err)
		}
		backorders = append(backorders, bo)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var failures []error
	for _, bo := range backorders {
		_, err := o.PlanOrderPicking(ctx, companyID, bo.warehouseID, bo.orderID,
			[]OrderLine{{ItemID: itemID, Quantity: bo.quantity}})
		if err != nil {
			failures = append(failures, fmt.Errorf("order %s: %w", bo.orderID, err))
		}
	}
	return errors.Join(failures...)
}
