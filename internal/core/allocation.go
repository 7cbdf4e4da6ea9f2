package core

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LocationStock is the planner's view of one location's availability.
type LocationStock struct {
	LocationID int
	Type       LocationType
	Available  int64
}

// ItemAllocation is one picking suggestion: take Quantity from LocationID.
type ItemAllocation struct {
	ItemID     string `json:"item_id"`
	LocationID int    `json:"location_id"`
	Quantity   int64  `json:"quantity"`
}

// Shortfall is the backordered remainder of one item after all current
// availability has been allocated. Never silently dropped.
type Shortfall struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

// PickingPlan is a proposal only; executing it is the orchestration's job.
type PickingPlan struct {
	Allocations []ItemAllocation `json:"allocations"`
	Shortfalls  []Shortfall      `json:"shortfalls"`
}

// sortForAllocation orders candidate locations: picking before bulk, then
// most available first (fewer fragments), then location id for determinism.
func sortForAllocation(stocks []LocationStock) {
	sort.SliceStable(stocks, func(i, j int) bool {
		a, b := stocks[i], stocks[j]
		if (a.Type == LocationPicking) != (b.Type == LocationPicking) {
			return a.Type == LocationPicking
		}
		if a.Available != b.Available {
			return a.Available > b.Available
		}
		return a.LocationID < b.LocationID
	})
}

// PlanItemAllocation greedily allocates needed quantity across locations in
// priority order. Returns the per-location allocations and the unmet
// remainder (zero when fully covered). Pure: no I/O, no mutation of stocks.
func PlanItemAllocation(stocks []LocationStock, needed int64) ([]ItemAllocation, int64) {
	sorted := make([]LocationStock, len(stocks))
	copy(sorted, stocks)
	sortForAllocation(sorted)

	var allocations []ItemAllocation
	remaining := needed
	for _, ls := range sorted {
		if remaining == 0 {
			break
		}
		if ls.Available <= 0 {
			continue
		}
		take := ls.Available
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, ItemAllocation{LocationID: ls.LocationID, Quantity: take})
		remaining -= take
	}
	return allocations, remaining
}

// AllocationPlanner proposes per-location picking plans from live stock
// levels. It never mutates stock.
type AllocationPlanner interface {
	PlanPicking(ctx context.Context, companyID, warehouseID int, items []OrderLine) (*PickingPlan, error)
}

type allocationPlanner struct {
	pool *pgxpool.Pool
}

func NewAllocationPlanner(pool *pgxpool.Pool) AllocationPlanner {
	return &allocationPlanner{pool: pool}
}

func (p *allocationPlanner) PlanPicking(ctx context.Context, companyID, warehouseID int, items []OrderLine) (*PickingPlan, error) {
	plan := &PickingPlan{}
	for _, line := range items {
		stocks, err := p.fetchLocationStocks(ctx, companyID, line.ItemID, warehouseID)
		if err != nil {
			return nil, err
		}
		allocations, shortfall := PlanItemAllocation(stocks, line.Quantity)
		for _, a := range allocations {
			a.ItemID = line.ItemID
			plan.Allocations = append(plan.Allocations, a)
		}
		if shortfall > 0 {
			plan.Shortfalls = append(plan.Shortfalls, Shortfall{ItemID: line.ItemID, Quantity: shortfall})
		}
	}
	return plan, nil
}

func (p *allocationPlanner) fetchLocationStocks(ctx context.Context, companyID int, itemID string, warehouseID int) ([]LocationStock, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT sl.location_id, l.location_type,
		       sl.qty_on_hand - sl.qty_soft_reserved - sl.qty_hard_reserved
		FROM stock_levels sl
		JOIN storage_locations l ON l.id = sl.location_id
		WHERE sl.company_id = $1 AND sl.item_id = $2 AND sl.warehouse_id = $3
	`, companyID, itemID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stocks []LocationStock
	for rows.Next() {
		var ls LocationStock
		if err := rows.Scan(&ls.LocationID, &ls.Type, &ls.Available); err != nil {
			return nil, err
		}
		stocks = append(stocks, ls)
	}
	return stocks, rows.Err()
}
