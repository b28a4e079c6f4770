package car

import (
	"liftsim/src/floorset"
	"liftsim/src/types"
)

// CallIndex is the read side of the building's hall call registries.
type CallIndex interface {
	HasCall(floor int, dir types.Direction) bool
	HasPendingCalls() bool
	// LowestCall returns the lowest floor with a call in dir.
	LowestCall(dir types.Direction) (int, bool)
	// CallAbove returns the smallest floor strictly above floor with a call in dir.
	CallAbove(floor int, dir types.Direction) (int, bool)
	// CallBelow returns the largest floor strictly below floor with a call in dir.
	CallBelow(floor int, dir types.Direction) (int, bool)
}

// NextDirection is the directional sweep deciding whether a car continues,
// reverses or idles.
//   - Idle: head for the lowest internal stop, else the lowest up call, else
//     the lowest down call. A target on the current floor keeps the car Idle so
//     the next iteration serves it in place.
//   - Up: keep going while any stop or call lies strictly above. Otherwise turn
//     around for a down call on this floor (when a seat is free) or for any
//     work strictly below, else go Idle.
//   - Down: symmetric.
//
// A car only keeps or takes a direction when work lies strictly that way, or a
// call in that direction waits on its floor, so it never leaves the shaft.
func NextDirection(dir types.Direction, floor int, stops *floorset.Set, calls CallIndex, canBoard bool) types.Direction {
	switch dir {
	case types.Up:
		switch {
		case workAbove(floor, stops, calls):
			return types.Up
		case canBoard && calls.HasCall(floor, types.Down):
			return types.Down
		case workBelow(floor, stops, calls):
			return types.Down
		}
		return types.Idle
	case types.Down:
		switch {
		case workBelow(floor, stops, calls):
			return types.Down
		case canBoard && calls.HasCall(floor, types.Up):
			return types.Up
		case workAbove(floor, stops, calls):
			return types.Up
		}
		return types.Idle
	}

	if target, ok := stops.Min(); ok {
		return types.Towards(floor, target)
	}
	if target, ok := calls.LowestCall(types.Up); ok {
		return types.Towards(floor, target)
	}
	if target, ok := calls.LowestCall(types.Down); ok {
		return types.Towards(floor, target)
	}
	return types.Idle
}

func workAbove(floor int, stops *floorset.Set, calls CallIndex) bool {
	if _, ok := stops.Above(floor); ok {
		return true
	}
	if _, ok := calls.CallAbove(floor, types.Up); ok {
		return true
	}
	_, ok := calls.CallAbove(floor, types.Down)
	return ok
}

func workBelow(floor int, stops *floorset.Set, calls CallIndex) bool {
	if _, ok := stops.Below(floor); ok {
		return true
	}
	if _, ok := calls.CallBelow(floor, types.Down); ok {
		return true
	}
	_, ok := calls.CallBelow(floor, types.Up)
	return ok
}
