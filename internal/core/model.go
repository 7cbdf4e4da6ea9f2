package core

import "time"

// Warehouse is a physical site within a company.
type Warehouse struct {
	ID        int       `json:"id"`
	CompanyID int       `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// LocationType orders picking locations ahead of bulk storage in allocation.
type LocationType string

const (
	LocationPicking LocationType = "picking"
	LocationBulk    LocationType = "bulk"
)

// StorageLocation is a slot within a warehouse that stock levels reference
// by id. MaxCapacity nil means unlimited; IsFull caches "cannot accept more"
// and is refreshed by the receive transaction.
type StorageLocation struct {
	ID          int          `json:"id"`
	WarehouseID int          `json:"warehouse_id"`
	Code        string       `json:"code"`
	Type        LocationType `json:"type"`
	MaxCapacity *int64       `json:"max_capacity,omitempty"`
	IsFull      bool         `json:"is_full"`
	CreatedAt   time.Time    `json:"created_at"`
}

// StockLevel holds the authoritative counters for one (item, location) pair.
// All mutations go through the engine's receive/reserve/release/ship
// operations; rows are never deleted.
type StockLevel struct {
	ID              int    `json:"id"`
	CompanyID       int    `json:"company_id"`
	ItemID          string `json:"item_id"`
	WarehouseID     int    `json:"warehouse_id"`
	LocationID      int    `json:"location_id"`
	QtyOnHand       int64  `json:"qty_on_hand"`
	QtySoftReserved int64  `json:"qty_soft_reserved"`
	QtyHardReserved int64  `json:"qty_hard_reserved"`
	UnitCost        Money  `json:"-"`
	LocationType    LocationType
	UpdatedAt       time.Time `json:"updated_at"`
}

// Available is the quantity sellable right now.
func (sl StockLevel) Available() int64 {
	return sl.QtyOnHand - sl.QtySoftReserved - sl.QtyHardReserved
}

// MovementType tags a stock movement row.
type MovementType string

const (
	MovementReceipt     MovementType = "receipt"
	MovementSoftReserve MovementType = "soft_reserve"
	MovementPromote     MovementType = "promote"
	MovementRelease     MovementType = "release"
	MovementExpire      MovementType = "expire"
	MovementPick        MovementType = "pick"
	MovementShip        MovementType = "ship"
)

// StockMovement is the append-only audit entry written with every
// stock_levels mutation. QuantityChange is signed in the movement's own
// sense; QuantityAfter is qty_on_hand after the mutation.
type StockMovement struct {
	ID             int64        `json:"id"`
	StockLevelID   int          `json:"stock_level_id"`
	Type           MovementType `json:"type"`
	QuantityChange int64        `json:"quantity_change"`
	QuantityAfter  int64        `json:"quantity_after"`
	Reference      string       `json:"reference"`
	ActorID        *string      `json:"actor_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// StockSummary is the company-wide availability picture for one item.
// Outgoing counts quantity held by reservations; Incoming counts open
// backorder quantity awaiting receipt.
type StockSummary struct {
	ItemID   string `json:"item_id"`
	OnHand   int64  `json:"on_hand"`
	Outgoing int64  `json:"outgoing"`
	Incoming int64  `json:"incoming"`
}

// OrderLine is one (item, quantity) demand of an order.
type OrderLine struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

// Backorder is the unmet remainder of a picking plan, kept open until
// received stock covers it.
type Backorder struct {
	ID          int       `json:"id"`
	CompanyID   int       `json:"company_id"`
	ReferenceID string    `json:"reference_id"`
	ItemID      string    `json:"item_id"`
	WarehouseID int       `json:"warehouse_id"`
	Quantity    int64     `json:"quantity"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// ── Inbound lifecycle events (payload semantics, transport-agnostic) ──────────

type OrderCreatedEvent struct {
	OrderID     string      `json:"order_id"`
	CompanyID   int         `json:"company_id"`
	WarehouseID int         `json:"warehouse_id"`
	Items       []OrderLine `json:"items"`
}

type OrderConfirmedEvent struct {
	OrderID string `json:"order_id"`
}

type OrderCancelledEvent struct {
	OrderID     string      `json:"order_id"`
	WarehouseID int         `json:"warehouse_id"`
	Items       []OrderLine `json:"items"`
}

type StockReceivedEvent struct {
	EventID       string `json:"event_id"` // required dedupe key; receipts without one are rejected
	CompanyID     int    `json:"company_id"`
	ItemID        string `json:"item_id"`
	LocationID    int    `json:"location_id"`
	Quantity      int64  `json:"quantity"`
	UnitCostMinor int64  `json:"unit_cost_minor"`
	Currency      string `json:"currency"`
}

type PickingStartedEvent struct {
	OrderID string `json:"order_id"`
}

type ShipmentConfirmedEvent struct {
	OrderID string `json:"order_id"`
}
