package events

import (
	"context"
	"errors"
	"testing"

	"fulfillment-engine/internal/app"
	"fulfillment-engine/internal/core"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// stubApplicationService satisfies app.ApplicationService with no-ops so
// fakes only override the methods a test cares about.
type stubApplicationService struct{}

func (stubApplicationService) CheckAvailability(context.Context, int, string, int) (*app.AvailabilityResult, error) {
	return nil, nil
}
func (stubApplicationService) GetStockSummary(context.Context, string, int) (*core.StockSummary, error) {
	return nil, nil
}
func (stubApplicationService) GetStockLevels(context.Context, int) (*app.StockLevelsResult, error) {
	return nil, nil
}
func (stubApplicationService) ListWarehouses(context.Context, int) (*app.WarehouseListResult, error) {
	return nil, nil
}
func (stubApplicationService) ReceiveStock(context.Context, app.ReceiveStockRequest) error { return nil }
func (stubApplicationService) PlanPicking(context.Context, app.PlanPickingRequest) (*core.PickingPlan, error) {
	return nil, nil
}
func (stubApplicationService) CleanupExpiredReservations(context.Context) (int, error) {
	return 0, nil
}
func (stubApplicationService) HandleOrderCreated(context.Context, core.OrderCreatedEvent) error {
	return nil
}
func (stubApplicationService) HandleOrderConfirmed(context.Context, core.OrderConfirmedEvent) error {
	return nil
}
func (stubApplicationService) HandleOrderCancelled(context.Context, core.OrderCancelledEvent) error {
	return nil
}
func (stubApplicationService) HandleStockReceived(context.Context, core.StockReceivedEvent) error {
	return nil
}
func (stubApplicationService) HandlePickingStarted(context.Context, core.PickingStartedEvent) error {
	return nil
}
func (stubApplicationService) HandleShipmentConfirmed(context.Context, core.ShipmentConfirmedEvent) error {
	return nil
}

// fakeService records which handler ran and returns a scripted error.
type fakeService struct {
	stubApplicationService
	calls []string
	err   error
}

func (f *fakeService) HandleOrderCreated(ctx context.Context, evt core.OrderCreatedEvent) error {
	f.calls = append(f.calls, "order.created:"+evt.OrderID)
	return f.err
}

func (f *fakeService) HandleOrderConfirmed(ctx context.Context, evt core.OrderConfirmedEvent) error {
	f.calls = append(f.calls, "order.confirmed:"+evt.OrderID)
	return f.err
}

func (f *fakeService) HandleStockReceived(ctx context.Context, evt core.StockReceivedEvent) error {
	f.calls = append(f.calls, "stock.received:"+evt.EventID)
	return f.err
}

func TestHandleMessage_DispatchesByType(t *testing.T) {
	svc := &fakeService{}
	handler := NewMessageHandler(svc, zap.NewNop())

	msg := kafkago.Message{Value: []byte(`{
		"type": "order.created",
		"payload": {"order_id": "ORD-1", "company_id": 1, "warehouse_id": 1,
			"items": [{"item_id": "WIDGET", "quantity": 3}]}
	}`)}

	if err := handler.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if len(svc.calls) != 1 || svc.calls[0] != "order.created:ORD-1" {
		t.Errorf("Expected one order.created dispatch, got %v", svc.calls)
	}
}

func TestHandleMessage_EnvelopeEventIDFallsThroughToPayload(t *testing.T) {
	svc := &fakeService{}
	handler := NewMessageHandler(svc, zap.NewNop())

	msg := kafkago.Message{Value: []byte(`{
		"type": "stock.received",
		"event_id": "RCPT-9",
		"payload": {"company_id": 1, "item_id": "WIDGET", "location_id": 2,
			"quantity": 10, "unit_cost_minor": 100, "currency": "USD"}
	}`)}

	if err := handler.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if len(svc.calls) != 1 || svc.calls[0] != "stock.received:RCPT-9" {
		t.Errorf("Expected dedupe key from envelope, got %v", svc.calls)
	}
}

func TestHandleMessage_StockReceivedWithoutEventIDIsDropped(t *testing.T) {
	svc := &fakeService{}
	handler := NewMessageHandler(svc, zap.NewNop())

	// No event_id in the envelope or the payload: dropping is the only safe
	// choice, since redelivering an undeduplicatable receipt double-books.
	msg := kafkago.Message{Value: []byte(`{
		"type": "stock.received",
		"payload": {"company_id": 1, "item_id": "WIDGET", "location_id": 2,
			"quantity": 10, "unit_cost_minor": 100, "currency": "USD"}
	}`)}

	if err := handler.HandleMessage(context.Background(), msg); err != nil {
		t.Errorf("Expected keyless receipt dropped without redelivery, got %v", err)
	}
	if len(svc.calls) != 0 {
		t.Errorf("Expected no dispatch, got %v", svc.calls)
	}
}

func TestHandleMessage_MalformedEnvelopeIsDropped(t *testing.T) {
	svc := &fakeService{}
	handler := NewMessageHandler(svc, zap.NewNop())

	if err := handler.HandleMessage(context.Background(), kafkago.Message{Value: []byte("not json")}); err != nil {
		t.Errorf("Expected malformed message dropped without error, got %v", err)
	}
	if len(svc.calls) != 0 {
		t.Errorf("Expected no dispatch, got %v", svc.calls)
	}
}

func TestHandleMessage_UnknownTypeIsNotRedelivered(t *testing.T) {
	svc := &fakeService{}
	handler := NewMessageHandler(svc, zap.NewNop())

	msg := kafkago.Message{Value: []byte(`{"type": "order.teleported", "payload": {}}`)}
	if err := handler.HandleMessage(context.Background(), msg); err == nil {
		t.Error("Expected unknown event type to surface an error")
	}
}

func TestHandleMessage_BusinessRejectionIsSwallowed(t *testing.T) {
	svc := &fakeService{err: &core.InsufficientStockError{
		ItemID: "WIDGET", WarehouseID: 1, Requested: 10, Available: 2,
	}}
	handler := NewMessageHandler(svc, zap.NewNop())

	msg := kafkago.Message{Value: []byte(`{
		"type": "order.created",
		"payload": {"order_id": "ORD-2", "company_id": 1, "warehouse_id": 1,
			"items": [{"item_id": "WIDGET", "quantity": 10}]}
	}`)}

	// Redelivering an insufficient-stock rejection cannot change the outcome.
	if err := handler.HandleMessage(context.Background(), msg); err != nil {
		t.Errorf("Expected business rejection swallowed, got %v", err)
	}
}

func TestHandleMessage_InfrastructureFailureRedelivers(t *testing.T) {
	svc := &fakeService{err: errors.New("connection reset by peer")}
	handler := NewMessageHandler(svc, zap.NewNop())

	msg := kafkago.Message{Value: []byte(`{
		"type": "order.confirmed",
		"payload": {"order_id": "ORD-3"}
	}`)}

	if err := handler.HandleMessage(context.Background(), msg); err == nil {
		t.Error("Expected infrastructure failure to propagate for redelivery")
	}
}
