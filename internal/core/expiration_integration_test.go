package core_test

import (
	"context"
	"testing"
	"time"

	"fulfillment-engine/internal/core"
)

func TestExpiration_SweepReleasesOverdueReservations(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	stock := core.NewStockService(pool)
	reservations := core.NewReservationService(pool)
	expiration := core.NewExpirationService(pool, reservations)

	receive(t, stock, "WIDGET", 1, 50, 500)
	res, err := reservations.CreateForOrder(ctx, 1, "ORD-EXP", 1,
		core.OrderLine{ItemID: "WIDGET", Quantity: 20}, time.Hour)
	if err != nil {
		t.Fatalf("CreateForOrder failed: %v", err)
	}

	// Nothing is overdue yet.
	count, err := expiration.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("ReleaseExpired failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 expirations, got %d", count)
	}

	// Backdate the expiry and sweep again.
	if _, err := pool.Exec(ctx,
		"UPDATE stock_reservations SET expires_at = NOW() - INTERVAL '1 minute' WHERE id = $1",
		res.ID); err != nil {
		t.Fatalf("Failed to backdate expiry: %v", err)
	}

	count, err = expiration.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("ReleaseExpired failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 expiration, got %d", count)
	}

	expired, err := reservations.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if expired.State != core.StateExpired {
		t.Errorf("Expected expired, got %s", expired.State)
	}
	if onHand, soft, hard := stockCounters(t, pool, "WIDGET", 1); onHand != 50 || soft != 0 || hard != 0 {
		t.Errorf("Expected 50/0/0 after expiry, got %d/%d/%d", onHand, soft, hard)
	}

	// The expiry leaves an audit movement.
	var moveCount int
	err = pool.QueryRow(ctx,
		"SELECT count(*) FROM stock_movements WHERE reference = $1 AND movement_type = 'expire'",
		res.ID).Scan(&moveCount)
	if err != nil {
		t.Fatalf("Failed to count expire movements: %v", err)
	}
	if moveCount != 1 {
		t.Errorf("Expected 1 expire movement, got %d", moveCount)
	}

	// A second sweep is a no-op.
	count, err = expiration.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("Second ReleaseExpired failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected idempotent second sweep, got %d expirations", count)
	}
}

func TestExpiration_ConfirmedReservationSurvivesSweep(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	stock := core.NewStockService(pool)
	reservations := core.NewReservationService(pool)
	expiration := core.NewExpirationService(pool, reservations)

	receive(t, stock, "WIDGET", 1, 50, 500)

	kept, err := reservations.CreateForOrder(ctx, 1, "ORD-KEPT", 1,
		core.OrderLine{ItemID: "WIDGET", Quantity: 10}, time.Hour)
	if err != nil {
		t.Fatalf("CreateForOrder failed: %v", err)
	}
	doomed, err := reservations.CreateForOrder(ctx, 1, "ORD-DOOMED", 1,
		core.OrderLine{ItemID: "WIDGET", Quantity: 15}, time.Hour)
	if err != nil {
		t.Fatalf("CreateForOrder failed: %v", err)
	}

	if _, err := pool.Exec(ctx,
		"UPDATE stock_reservations SET expires_at = NOW() - INTERVAL '1 minute'"); err != nil {
		t.Fatalf("Failed to backdate expiries: %v", err)
	}

	// Confirm clears the expiry, so the sweep must not touch this one even
	// though its timestamp was in the past a moment ago.
	if err := reservations.Confirm(ctx, kept.ID); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	count, err := expiration.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("ReleaseExpired failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 expiration, got %d", count)
	}

	confirmed, err := reservations.Get(ctx, kept.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if confirmed.State != core.StateHardReserved {
		t.Errorf("Expected confirmed reservation untouched, got %s", confirmed.State)
	}
	gone, err := reservations.Get(ctx, doomed.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if gone.State != core.StateExpired {
		t.Errorf("Expected overdue reservation expired, got %s", gone.State)
	}

	// Only the expired quantity came back.
	if onHand, soft, hard := stockCounters(t, pool, "WIDGET", 1); onHand != 50 || soft != 0 || hard != 10 {
		t.Errorf("Expected 50/0/10 after sweep, got %d/%d/%d", onHand, soft, hard)
	}
}
