package core

import "testing"

func TestNextState_Table(t *testing.T) {
	cases := []struct {
		from  ReservationState
		event ReservationEvent
		want  ReservationState
		ok    bool
	}{
		{StateSoftReserved, EventConfirm, StateHardReserved, true},
		{StateSoftReserved, EventExpire, StateExpired, true},
		{StateSoftReserved, EventCancel, StateReleased, true},
		{StateHardReserved, EventCancel, StateReleased, true},
		{StateHardReserved, EventStartPicking, StatePicking, true},
		{StatePicking, EventCancel, StateReleased, true},
		{StatePicking, EventShip, StateFulfilled, true},

		// Not in the table.
		{StateSoftReserved, EventStartPicking, "", false},
		{StateSoftReserved, EventShip, "", false},
		{StateHardReserved, EventConfirm, "", false},
		{StateHardReserved, EventExpire, "", false},
		{StateHardReserved, EventShip, "", false},
		{StatePicking, EventConfirm, "", false},
		{StatePicking, EventExpire, "", false},
		{StatePicking, EventStartPicking, "", false},
	}

	for _, tc := range cases {
		got, ok := nextState(tc.from, tc.event)
		if ok != tc.ok {
			t.Errorf("%s + %s: expected ok=%v", tc.from, tc.event, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("%s + %s: expected %s, got %s", tc.from, tc.event, tc.want, got)
		}
	}
}

func TestNextState_TerminalStatesRejectEverything(t *testing.T) {
	terminals := []ReservationState{StateFulfilled, StateReleased, StateExpired}
	events := []ReservationEvent{EventConfirm, EventCancel, EventExpire, EventStartPicking, EventShip}

	for _, state := range terminals {
		if !state.IsTerminal() {
			t.Errorf("%s should be terminal", state)
		}
		for _, event := range events {
			if _, ok := nextState(state, event); ok {
				t.Errorf("terminal state %s must reject event %s", state, event)
			}
		}
	}
}
