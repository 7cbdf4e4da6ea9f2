package core

import "testing"

func TestPlanItemAllocation_PickingBeforeBulk(t *testing.T) {
	// Picking holds 5, bulk holds 10; a request for 12 takes the picking
	// location first, then the remainder from bulk.
	stocks := []LocationStock{
		{LocationID: 2, Type: LocationBulk, Available: 10},
		{LocationID: 1, Type: LocationPicking, Available: 5},
	}

	allocations, shortfall := PlanItemAllocation(stocks, 12)
	if shortfall != 0 {
		t.Errorf("Expected zero shortfall, got %d", shortfall)
	}
	if len(allocations) != 2 {
		t.Fatalf("Expected 2 allocations, got %d", len(allocations))
	}
	if allocations[0].LocationID != 1 || allocations[0].Quantity != 5 {
		t.Errorf("Expected 5 from picking location 1, got %d from %d",
			allocations[0].Quantity, allocations[0].LocationID)
	}
	if allocations[1].LocationID != 2 || allocations[1].Quantity != 7 {
		t.Errorf("Expected 7 from bulk location 2, got %d from %d",
			allocations[1].Quantity, allocations[1].LocationID)
	}
}

func TestPlanItemAllocation_Shortfall(t *testing.T) {
	stocks := []LocationStock{
		{LocationID: 1, Type: LocationPicking, Available: 3},
		{LocationID: 2, Type: LocationBulk, Available: 4},
	}

	allocations, shortfall := PlanItemAllocation(stocks, 10)
	if shortfall != 3 {
		t.Errorf("Expected shortfall 3, got %d", shortfall)
	}
	var total int64
	for _, a := range allocations {
		total += a.Quantity
	}
	if total != 7 {
		t.Errorf("Expected 7 allocated, got %d", total)
	}
}

func TestPlanItemAllocation_LargestAvailableFirst(t *testing.T) {
	// Same type: the fuller location wins, minimizing fragments.
	stocks := []LocationStock{
		{LocationID: 1, Type: LocationBulk, Available: 2},
		{LocationID: 2, Type: LocationBulk, Available: 9},
		{LocationID: 3, Type: LocationBulk, Available: 9},
	}

	allocations, shortfall := PlanItemAllocation(stocks, 9)
	if shortfall != 0 {
		t.Errorf("Expected zero shortfall, got %d", shortfall)
	}
	if len(allocations) != 1 {
		t.Fatalf("Expected single allocation, got %d", len(allocations))
	}
	// Ties break on the lower location id, so plans are deterministic.
	if allocations[0].LocationID != 2 {
		t.Errorf("Expected location 2, got %d", allocations[0].LocationID)
	}
}

func TestPlanItemAllocation_SkipsEmptyLocations(t *testing.T) {
	stocks := []LocationStock{
		{LocationID: 1, Type: LocationPicking, Available: 0},
		{LocationID: 2, Type: LocationBulk, Available: 5},
	}

	allocations, shortfall := PlanItemAllocation(stocks, 5)
	if shortfall != 0 || len(allocations) != 1 || allocations[0].LocationID != 2 {
		t.Errorf("Expected everything from location 2, got %+v (shortfall %d)", allocations, shortfall)
	}
}

func TestPlanItemAllocation_NoStockAtAll(t *testing.T) {
	allocations, shortfall := PlanItemAllocation(nil, 4)
	if len(allocations) != 0 {
		t.Errorf("Expected no allocations, got %+v", allocations)
	}
	if shortfall != 4 {
		t.Errorf("Expected full shortfall 4, got %d", shortfall)
	}
}

func TestPlanItemAllocation_DoesNotMutateInput(t *testing.T) {
	stocks := []LocationStock{
		{LocationID: 2, Type: LocationBulk, Available: 10},
		{LocationID: 1, Type: LocationPicking, Available: 5},
	}
	PlanItemAllocation(stocks, 12)
	if stocks[0].LocationID != 2 || stocks[1].LocationID != 1 {
		t.Error("Planner must not reorder the caller's slice")
	}
}
