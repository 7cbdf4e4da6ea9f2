package core

import "time"

// ReservationState is the reservation lifecycle position. fulfilled,
// released and expired are terminal; rows in terminal states are retained
// for audit, never deleted.
type ReservationState string

const (
	StateSoftReserved ReservationState = "soft_reserved"
	StateHardReserved ReservationState = "hard_reserved"
	StatePicking      ReservationState = "picking"
	StateFulfilled    ReservationState = "fulfilled"
	StateReleased     ReservationState = "released"
	StateExpired      ReservationState = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s ReservationState) IsTerminal() bool {
	return s == StateFulfilled || s == StateReleased || s == StateExpired
}

// ReservationEvent drives the state machine.
type ReservationEvent string

const (
	EventConfirm      ReservationEvent = "order_confirmed"
	EventCancel       ReservationEvent = "order_cancelled"
	EventExpire       ReservationEvent = "expired"
	EventStartPicking ReservationEvent = "picking_started"
	EventShip         ReservationEvent = "shipment_confirmed"
)

// StockReservation is one order line's hold against a warehouse. The
// per-location split of the held quantity lives in stock_movements rows
// referencing the reservation id; the reservation row itself stays
// location-agnostic.
type StockReservation struct {
	ID          string           `json:"id"`
	CompanyID   int              `json:"company_id"`
	ItemID      string           `json:"item_id"`
	WarehouseID int              `json:"warehouse_id"`
	ReferenceID string           `json:"reference_id"`
	Quantity    int64            `json:"quantity"`
	State       ReservationState `json:"state"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// nextState resolves the transition table. Any pair not listed is invalid;
// transitions out of terminal states are always invalid.
func nextState(current ReservationState, event ReservationEvent) (ReservationState, bool) {
	switch event {
	case EventConfirm:
		if current == StateSoftReserved {
			return StateHardReserved, true
		}
	case EventExpire:
		if current == StateSoftReserved {
			return StateExpired, true
		}
	case EventCancel:
		if current == StateSoftReserved || current == StateHardReserved || current == StatePicking {
			return StateReleased, true
		}
	case EventStartPicking:
		if current == StateHardReserved {
			return StatePicking, true
		}
	case EventShip:
		if current == StatePicking {
			return StateFulfilled, true
		}
	}
	return current, false
}
