package app

import "fulfillment-engine/internal/core"

// ── Requests ──────────────────────────────────────────────────────────────────

type ReceiveStockRequest struct {
	CompanyID     int    `json:"company_id"`
	ItemID        string `json:"item_id"`
	LocationID    int    `json:"location_id"`
	Quantity      int64  `json:"quantity"`
	UnitCostMinor int64  `json:"unit_cost_minor"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
	ActorID       string `json:"actor_id,omitempty"`
}

type PlanPickingRequest struct {
	CompanyID   int              `json:"company_id"`
	WarehouseID int              `json:"warehouse_id"`
	OrderID     string           `json:"order_id"`
	Items       []core.OrderLine `json:"items"`
}

// ── Results ───────────────────────────────────────────────────────────────────

type AvailabilityResult struct {
	ItemID      string `json:"item_id"`
	WarehouseID int    `json:"warehouse_id"`
	Available   int64  `json:"available"`
}

type StockLevelView struct {
	ItemID        string `json:"item_id"`
	WarehouseID   int    `json:"warehouse_id"`
	LocationID    int    `json:"location_id"`
	LocationType  string `json:"location_type"`
	OnHand        int64  `json:"on_hand"`
	SoftReserved  int64  `json:"soft_reserved"`
	HardReserved  int64  `json:"hard_reserved"`
	Available     int64  `json:"available"`
	UnitCostMinor int64  `json:"unit_cost_minor"`
	Currency      string `json:"currency"`
}

type StockLevelsResult struct {
	Levels []StockLevelView `json:"levels"`
}

type WarehouseView struct {
	core.Warehouse
	Locations []core.StorageLocation `json:"locations"`
}

type WarehouseListResult struct {
	Warehouses []WarehouseView `json:"warehouses"`
}
