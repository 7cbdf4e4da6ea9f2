package app

import (
	"context"

	"fulfillment-engine/internal/core"
)

// ApplicationService is the single interface every adapter (HTTP, events
// worker) calls. It decouples transport from the reservation engine and
// contains no logging or rendering of any kind.
type ApplicationService interface {
	// CheckAvailability returns the sellable quantity of an item in a warehouse.
	CheckAvailability(ctx context.Context, companyID int, itemID string, warehouseID int) (*AvailabilityResult, error)

	// GetStockSummary returns the company-wide on-hand/outgoing/incoming picture.
	GetStockSummary(ctx context.Context, itemID string, companyID int) (*core.StockSummary, error)

	// GetStockLevels lists all stock levels for a company.
	GetStockLevels(ctx context.Context, companyID int) (*StockLevelsResult, error)

	// ListWarehouses lists a company's warehouses with their locations.
	ListWarehouses(ctx context.Context, companyID int) (*WarehouseListResult, error)

	// ReceiveStock books a capacity-guarded goods receipt.
	ReceiveStock(ctx context.Context, req ReceiveStockRequest) error

	// PlanPicking proposes a per-location picking plan for an order and
	// records shortfalls as open backorders.
	PlanPicking(ctx context.Context, req PlanPickingRequest) (*core.PickingPlan, error)

	// CleanupExpiredReservations runs the expiration sweep once, returning
	// the number of reservations released.
	CleanupExpiredReservations(ctx context.Context) (int, error)

	// Event intake, consumed by the worker adapter.
	HandleOrderCreated(ctx context.Context, evt core.OrderCreatedEvent) error
	HandleOrderConfirmed(ctx context.Context, evt core.OrderConfirmedEvent) error
	HandleOrderCancelled(ctx context.Context, evt core.OrderCancelledEvent) error
	HandleStockReceived(ctx context.Context, evt core.StockReceivedEvent) error
	HandlePickingStarted(ctx context.Context, evt core.PickingStartedEvent) error
	HandleShipmentConfirmed(ctx context.Context, evt core.ShipmentConfirmedEvent) error
}

type appService struct {
	stock        core.StockService
	expiration   core.ExpirationService
	orchestrator *core.Orchestrator
}

func NewAppService(stock core.StockService, expiration core.ExpirationService, orchestrator *core.Orchestrator) ApplicationService {
	return &appService{stock: stock, expiration: expiration, orchestrator: orchestrator}
}

func (s *appService) CheckAvailability(ctx context.Context, companyID int, itemID string, warehouseID int) (*AvailabilityResult, error) {
	qty, err := s.stock.CheckAvailability(ctx, companyID, itemID, warehouseID)
	if err != nil {
		return nil, err
	}
	return &AvailabilityResult{ItemID: itemID, WarehouseID: warehouseID, Available: qty}, nil
}

func (s *appService) GetStockSummary(ctx context.Context, itemID string, companyID int) (*core.StockSummary, error) {
	return s.stock.GetStockSummary(ctx, itemID, companyID)
}

func (s *appService) GetStockLevels(ctx context.Context, companyID int) (*StockLevelsResult, error) {
	levels, err := s.stock.GetStockLevels(ctx, companyID)
	if err != nil {
		return nil, err
	}
	result := &StockLevelsResult{Levels: make([]StockLevelView, 0, len(levels))}
	for _, sl := range levels {
		result.Levels = append(result.Levels, StockLevelView{
			ItemID:        sl.ItemID,
			WarehouseID:   sl.WarehouseID,
			LocationID:    sl.LocationID,
			LocationType:  string(sl.LocationType),
			OnHand:        sl.QtyOnHand,
			SoftReserved:  sl.QtySoftReserved,
			HardReserved:  sl.QtyHardReserved,
			Available:     sl.Available(),
			UnitCostMinor: sl.UnitCost.Amount(),
			Currency:      sl.UnitCost.Currency(),
		})
	}
	return result, nil
}

func (s *appService) ListWarehouses(ctx context.Context, companyID int) (*WarehouseListResult, error) {
	warehouses, err := s.stock.GetWarehouses(ctx, companyID)
	if err != nil {
		return nil, err
	}
	result := &WarehouseListResult{}
	for _, w := range warehouses {
		locations, err := s.stock.GetLocations(ctx, w.ID)
		if err != nil {
			return nil, err
		}
		result.Warehouses = append(result.Warehouses, WarehouseView{Warehouse: w, Locations: locations})
	}
	return result, nil
}

func (s *appService) ReceiveStock(ctx context.Context, req ReceiveStockRequest) error {
	unitCost, err := core.NewMoney(req.UnitCostMinor, req.Currency)
	if err != nil {
		return err
	}
	var actor *string
	if req.ActorID != "" {
		actor = &req.ActorID
	}
	return s.stock.Receive(ctx, req.CompanyID, req.ItemID, req.LocationID, req.Quantity, unitCost, req.Reference, actor)
}

func (s *appService) PlanPicking(ctx context.Context, req PlanPickingRequest) (*core.PickingPlan, error) {
	return s.orchestrator.PlanOrderPicking(ctx, req.CompanyID, req.WarehouseID, req.OrderID, req.Items)
}

func (s *appService) CleanupExpiredReservations(ctx context.Context) (int, error) {
	return s.expiration.ReleaseExpired(ctx)
}

func (s *appService) HandleOrderCreated(ctx context.Context, evt core.OrderCreatedEvent) error {
	return s.orchestrator.HandleOrderCreated(ctx, evt)
}

func (s *appService) HandleOrderConfirmed(ctx context.Context, evt core.OrderConfirmedEvent) error {
	return s.orchestrator.HandleOrderConfirmed(ctx, evt)
}

func (s *appService) HandleOrderCancelled(ctx context.Context, evt core.OrderCancelledEvent) error {
	return s.orchestrator.HandleOrderCancelled(ctx, evt)
}

func (s *appService) HandleStockReceived(ctx context.Context, evt core.StockReceivedEvent) error {
	return s.orchestrator.HandleStockReceived(ctx, evt)
}

func (s *appService) HandlePickingStarted(ctx context.Context, evt core.PickingStartedEvent) error {
	return s.orchestrator.HandlePickingStarted(ctx, evt)
}

func (s *appService) HandleShipmentConfirmed(ctx context.Context, evt core.ShipmentConfirmedEvent) error {
	return s.orchestrator.HandleShipmentConfirmed(ctx, evt)
}
