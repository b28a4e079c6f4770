// Package building implements the building controller: the shared hall call
// registries, the pause flag and the wait stations passengers and idle cars
// block on.
package building

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"liftsim/src/car"
	"liftsim/src/config"
	"liftsim/src/floorset"
	"liftsim/src/station"
	"liftsim/src/statuslog"
	"liftsim/src/types"
)

var ErrInvalidCall = errors.New("invalid call")

type Controller struct {
	numFloors int
	log       statuslog.Logger
	cars      []*car.Car

	callsMu sync.RWMutex
	up      *floorset.Set
	down    *floorset.Set

	// Passengers blocked in WaitForCarAtFloor, per floor.
	waitingUp   []atomic.Int64
	waitingDown []atomic.Int64

	paused atomic.Bool
	resume *station.Station
	work   *station.Station
	floors []*station.Station
}

// New builds the controller and its cars from a validated configuration.
func New(cfg config.Config, log statuslog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = statuslog.Discard
	}
	b := &Controller{
		numFloors: cfg.NumFloors,
		log:       log,
		up:        floorset.New(),
		down:      floorset.New(),
		resume:    station.New(),
		work:      station.New(),
		floors:    station.Stations(cfg.NumFloors),

		waitingUp:   make([]atomic.Int64, cfg.NumFloors),
		waitingDown: make([]atomic.Int64, cfg.NumFloors),
	}
	for id := range cfg.NumCars {
		b.cars = append(b.cars, car.New(id, cfg, b, log))
	}
	slog.Debug("Building initialized", "floors", cfg.NumFloors, "cars", cfg.NumCars, "capacity", cfg.Capacity)
	return b, nil
}

func (b *Controller) NumFloors() int { return b.numFloors }

func (b *Controller) Cars() []*car.Car {
	return append([]*car.Car(nil), b.cars...)
}

// Car returns the car with the given id, nil if there is none.
func (b *Controller) Car(id int) *car.Car {
	if id < 0 || id >= len(b.cars) {
		return nil
	}
	return b.cars[id]
}

// Hall calls

func (b *Controller) validateCall(floor int, dir types.Direction) error {
	switch {
	case floor < 0 || floor >= b.numFloors:
		return fmt.Errorf("%w: floor %d outside [0, %d)", ErrInvalidCall, floor, b.numFloors)
	case dir != types.Up && dir != types.Down:
		return fmt.Errorf("%w: direction %s", ErrInvalidCall, dir)
	case dir == types.Up && floor == b.numFloors-1:
		return fmt.Errorf("%w: up call on the top floor", ErrInvalidCall)
	case dir == types.Down && floor == 0:
		return fmt.Errorf("%w: down call on the ground floor", ErrInvalidCall)
	}
	return nil
}

func (b *Controller) calls(dir types.Direction) *floorset.Set {
	if dir == types.Up {
		return b.up
	}
	return b.down
}

// RegisterCall inserts the call if it is not pending yet, wakes every idle
// car, and reports whether the call is new.
func (b *Controller) RegisterCall(floor int, dir types.Direction) (bool, error) {
	if err := b.validateCall(floor, dir); err != nil {
		return false, err
	}
	return b.addCall(floor, dir), nil
}

// addCall is RegisterCall for a call that is already validated.
func (b *Controller) addCall(floor int, dir types.Direction) bool {
	b.callsMu.Lock()
	added := b.calls(dir).Add(floor)
	b.callsMu.Unlock()

	if added {
		slog.Debug("Call registered", "call", types.Call{Floor: floor, Dir: dir})
	}
	b.work.Broadcast()
	return added
}

// ClearCall removes the call and reports whether it was pending. A car clears
// the call it commits to before opening its doors.
func (b *Controller) ClearCall(floor int, dir types.Direction) bool {
	if dir != types.Up && dir != types.Down {
		return false
	}
	b.callsMu.Lock()
	defer b.callsMu.Unlock()
	return b.calls(dir).Remove(floor)
}

func (b *Controller) HasCall(floor int, dir types.Direction) bool {
	if dir != types.Up && dir != types.Down {
		return false
	}
	b.callsMu.RLock()
	defer b.callsMu.RUnlock()
	return b.calls(dir).Has(floor)
}

func (b *Controller) HasPendingCalls() bool {
	b.callsMu.RLock()
	defer b.callsMu.RUnlock()
	return !b.up.Empty() || !b.down.Empty()
}

func (b *Controller) LowestCall(dir types.Direction) (int, bool) {
	b.callsMu.RLock()
	defer b.callsMu.RUnlock()
	return b.calls(dir).Min()
}

func (b *Controller) CallAbove(floor int, dir types.Direction) (int, bool) {
	b.callsMu.RLock()
	defer b.callsMu.RUnlock()
	return b.calls(dir).Above(floor)
}

func (b *Controller) CallBelow(floor int, dir types.Direction) (int, bool) {
	b.callsMu.RLock()
	defer b.callsMu.RUnlock()
	return b.calls(dir).Below(floor)
}

// PendingCalls lists the pending calls, up calls first, each ascending.
func (b *Controller) PendingCalls() []types.Call {
	b.callsMu.RLock()
	defer b.callsMu.RUnlock()
	calls := make([]types.Call, 0, b.up.Len()+b.down.Len())
	for _, f := range b.up.Floors() {
		calls = append(calls, types.Call{Floor: f, Dir: types.Up})
	}
	for _, f := range b.down.Floors() {
		calls = append(calls, types.Call{Floor: f, Dir: types.Down})
	}
	return calls
}

// Cars waiting for work

// WaitForWork blocks an idle car until a call is pending or the car has
// internal stops of its own.
func (b *Controller) WaitForWork(ctx context.Context, hasStops func() bool) error {
	return b.work.Wait(ctx, func() bool {
		return b.HasPendingCalls() || hasStops()
	})
}

// NotifyWork wakes idle cars to re-check for work.
func (b *Controller) NotifyWork() {
	b.work.Broadcast()
}

// Passengers waiting on a floor

// WaitForCarAtFloor registers the call and blocks until a car has its doors
// open at floor for dir with a free seat. The seat is reserved for the caller
// when the matched car is returned, and the car keeps its doors open until the
// caller selects a destination. If the call disappears while the passenger is
// still waiting (the car that cleared it was full) the call is registered
// again.
func (b *Controller) WaitForCarAtFloor(ctx context.Context, passengerID string, floor int, dir types.Direction) (*car.Car, error) {
	if err := b.validateCall(floor, dir); err != nil {
		return nil, err
	}
	waiting := &b.waiters(dir)[floor]
	waiting.Add(1)
	defer func() {
		waiting.Add(-1)
		for _, c := range b.cars {
			c.NotifyDoors()
		}
	}()

	b.log.Logf(">> %s calls at floor %d for %s", passengerID, floor, dir)
	b.addCall(floor, dir)

	var matched *car.Car
	err := b.floors[floor].Wait(ctx, func() bool {
		for _, c := range b.cars {
			if c.TryBoard(floor, dir) {
				matched = c
				return true
			}
		}
		if !b.HasCall(floor, dir) {
			slog.Debug("Call missed, registering again", "passenger", passengerID, "floor", floor, "dir", dir)
			b.addCall(floor, dir)
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	// A call pressed while the doors were already open is served by this
	// boarding. Anyone left behind wakes up and presses it again.
	if b.ClearCall(floor, dir) {
		b.floors[floor].Broadcast()
	}
	b.log.Logf(">> %s enters car %d at floor %d", passengerID, matched.ID(), floor)
	return matched, nil
}

// Waiting counts passengers blocked in WaitForCarAtFloor at floor for dir.
func (b *Controller) Waiting(floor int, dir types.Direction) int {
	if floor < 0 || floor >= b.numFloors || (dir != types.Up && dir != types.Down) {
		return 0
	}
	return int(b.waiters(dir)[floor].Load())
}

func (b *Controller) waiters(dir types.Direction) []atomic.Int64 {
	if dir == types.Up {
		return b.waitingUp
	}
	return b.waitingDown
}

// NotifyArrival wakes every passenger waiting at floor to try for a seat.
func (b *Controller) NotifyArrival(floor int) {
	b.floors[floor].Broadcast()
}

// Pause control

// SetPaused sets the pause flag and logs the change. Setting the current value
// again is a no-op. The flag flips and is logged under the station lock, so
// concurrent callers log each change once and in order.
func (b *Controller) SetPaused(paused bool) {
	b.resume.Update(func() {
		if !b.paused.CompareAndSwap(!paused, paused) {
			return
		}
		if paused {
			b.log.Logf("--- SIMULATION PAUSED ---")
		} else {
			b.log.Logf("--- SIMULATION RESUMED ---")
		}
	})
}

func (b *Controller) Pause() { b.SetPaused(true) }

func (b *Controller) Resume() { b.SetPaused(false) }

func (b *Controller) Paused() bool { return b.paused.Load() }

// AwaitResumed blocks while the simulation is paused. Every actor calls it at
// the top of its loop.
func (b *Controller) AwaitResumed(ctx context.Context) error {
	return b.resume.Wait(ctx, func() bool { return !b.paused.Load() })
}
