// Package car implements a single elevator car: its state, the directional
// dispatch loop, the board/alight protocol and the seat permit.
package car

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tiendc/go-deepcopy"
	"golang.org/x/sync/semaphore"

	"liftsim/src/config"
	"liftsim/src/floorset"
	"liftsim/src/station"
	"liftsim/src/statuslog"
	"liftsim/src/timer"
	"liftsim/src/types"
)

// Building is what a car needs from the building controller.
type Building interface {
	CallIndex
	AwaitResumed(ctx context.Context) error
	WaitForWork(ctx context.Context, hasStops func() bool) error
	ClearCall(floor int, dir types.Direction) bool
	NotifyArrival(floor int)
	NotifyWork()
	// Waiting counts passengers blocked at floor for a car heading in dir.
	Waiting(floor int, dir types.Direction) int
}

// state is the part of a car mutated by its own loop.
type state struct {
	Floor    int
	Dir      types.Direction
	DoorOpen bool
	// Alighted counts, per floor, how often the doors opened for an internal stop.
	Alighted []uint64
}

// Snapshot is a consistent copy of a car's state.
type Snapshot struct {
	ID        int
	Floor     int
	Dir       types.Direction
	DoorOpen  bool
	Stops     []int
	Alighted  []uint64
	FreeSeats int
	Capacity  int
}

type Car struct {
	id        int
	numFloors int
	capacity  int
	travel    time.Duration
	doorTime  time.Duration
	building  Building
	log       statuslog.Logger

	mu    sync.Mutex
	state state
	stops *floorset.Set
	// boarding counts passengers holding a seat from TryBoard who have not
	// selected a destination yet.
	boarding int
	doors    *station.Station

	seats *semaphore.Weighted
	free  atomic.Int64

	destinations []*station.Station

	// OnStep, when set before Run, receives a snapshot after every direction
	// change and every floor change.
	OnStep func(Snapshot)
}

func New(id int, cfg config.Config, building Building, log statuslog.Logger) *Car {
	c := &Car{
		id:           id,
		numFloors:    cfg.NumFloors,
		capacity:     cfg.Capacity,
		travel:       cfg.TravelDuration,
		doorTime:     cfg.DoorOpenDuration,
		building:     building,
		log:          log,
		state:        state{Dir: types.Idle, Alighted: make([]uint64, cfg.NumFloors)},
		stops:        floorset.New(),
		doors:        station.New(),
		seats:        semaphore.NewWeighted(int64(cfg.Capacity)),
		destinations: station.Stations(cfg.NumFloors),
	}
	c.free.Store(int64(cfg.Capacity))
	return c
}

func (c *Car) ID() int { return c.id }

func (c *Car) Capacity() int { return c.capacity }

// Position returns the current floor and direction.
func (c *Car) Position() (int, types.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Floor, c.state.Dir
}

func (c *Car) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var st state
	if err := deepcopy.Copy(&st, &c.state); err != nil {
		panic(err)
	}
	return Snapshot{
		ID:        c.id,
		Floor:     st.Floor,
		Dir:       st.Dir,
		DoorOpen:  st.DoorOpen,
		Stops:     c.stops.Floors(),
		Alighted:  st.Alighted,
		FreeSeats: c.FreeSeats(),
		Capacity:  c.capacity,
	}
}

// Seats

// TryReserveSeat takes a seat if one is free. It never blocks.
func (c *Car) TryReserveSeat() bool {
	if !c.seats.TryAcquire(1) {
		return false
	}
	if n := c.free.Add(-1); n < 0 {
		panic(fmt.Sprintf("car %d: free seats dropped to %d", c.id, n))
	}
	return true
}

// TryBoard reserves a seat if the car has its doors open at floor for a pickup
// heading in dir. The doors stay open until the passenger has called
// SelectDestination.
func (c *Car) TryBoard(floor int, dir types.Direction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.DoorOpen || c.state.Floor != floor || c.state.Dir != dir {
		return false
	}
	if !c.TryReserveSeat() {
		return false
	}
	c.boarding++
	return true
}

// ReleaseSeat gives back a seat taken with TryReserveSeat or TryBoard.
func (c *Car) ReleaseSeat() {
	if n := c.free.Add(1); n > int64(c.capacity) {
		panic(fmt.Sprintf("car %d: %d free seats exceed capacity %d", c.id, n, c.capacity))
	}
	c.seats.Release(1)
}

func (c *Car) FreeSeats() int { return int(c.free.Load()) }

// Passenger side

// SelectDestination adds floor as an internal stop and wakes idle cars. The
// returned ticket is passed to WaitForArrival.
func (c *Car) SelectDestination(floor int) uint64 {
	c.checkFloor(floor)
	c.mu.Lock()
	c.stops.Add(floor)
	ticket := c.state.Alighted[floor]
	if c.boarding > 0 {
		c.boarding--
	}
	c.mu.Unlock()

	c.doors.Broadcast()
	c.building.NotifyWork()
	return ticket
}

// NotifyDoors makes a car holding its doors open re-check whether it may close them.
func (c *Car) NotifyDoors() {
	c.doors.Broadcast()
}

// WaitForArrival blocks until the car has opened its doors at floor after the
// destination was selected.
func (c *Car) WaitForArrival(ctx context.Context, floor int, ticket uint64) error {
	c.checkFloor(floor)
	return c.destinations[floor].Wait(ctx, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.state.Alighted[floor] > ticket
	})
}

func (c *Car) hasStops() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.stops.Empty()
}

func (c *Car) checkFloor(floor int) {
	if floor < 0 || floor >= c.numFloors {
		panic(fmt.Sprintf("car %d: floor %d outside [0, %d)", c.id, floor, c.numFloors))
	}
}

// Control loop

// Run drives the car until ctx is done and returns ctx.Err().
func (c *Car) Run(ctx context.Context) error {
	slog.Debug("Car started", "car", c.id, "capacity", c.capacity)
	for {
		if err := c.building.AwaitResumed(ctx); err != nil {
			return err
		}

		c.alight()
		if floor, dir, ok := c.board(); ok {
			if err := c.holdDoors(ctx, floor, dir); err != nil {
				return err
			}
		}
		floor, prev, next := c.decideNextMove()

		switch {
		case next != types.Idle && next != prev && c.FreeSeats() > 0 && c.building.HasCall(floor, next):
			// Turned around on a floor with a call in the new direction, board it before leaving.
			continue

		case next == types.Idle:
			if c.workHere(floor) {
				if err := timer.Sleep(ctx, max(c.travel, time.Millisecond)); err != nil {
					return err
				}
				continue
			}
			c.log.Logf("Car %d IDLE at floor %d. Waiting for calls.", c.id, floor)
			if err := c.building.WaitForWork(ctx, c.hasStops); err != nil {
				return err
			}

		default:
			if err := timer.Sleep(ctx, c.travel); err != nil {
				return err
			}
			c.advance()
		}
	}
}

// alight opens the doors for passengers whose destination is the current floor.
func (c *Car) alight() {
	c.mu.Lock()
	floor := c.state.Floor
	if !c.stops.Remove(floor) {
		c.mu.Unlock()
		return
	}
	c.state.Alighted[floor]++
	c.mu.Unlock()

	c.destinations[floor].Broadcast()
	c.log.Logf("Car %d drops passengers at floor %d", c.id, floor)
}

// board commits to a call on the current floor matching the car's direction
// and opens the doors. An idle car adopts the direction of the call, preferring up.
func (c *Car) board() (int, types.Direction, bool) {
	if c.FreeSeats() == 0 {
		return 0, types.Idle, false
	}
	c.mu.Lock()
	floor, dir := c.state.Floor, c.state.Dir
	c.mu.Unlock()

	callDir := types.Idle
	switch {
	case dir != types.Idle:
		if c.building.HasCall(floor, dir) {
			callDir = dir
		}
	case c.building.HasCall(floor, types.Up):
		callDir = types.Up
	case c.building.HasCall(floor, types.Down):
		callDir = types.Down
	}
	if callDir == types.Idle || !c.building.ClearCall(floor, callDir) {
		return 0, types.Idle, false
	}

	c.mu.Lock()
	c.state.Dir = callDir
	c.state.DoorOpen = true
	c.mu.Unlock()
	if dir == types.Idle {
		c.step()
	}
	c.log.Logf("Car %d stops at floor %d to pick up (%s)", c.id, floor, callDir)
	c.building.NotifyArrival(floor)
	return floor, callDir, true
}

// holdDoors keeps the doors open for at least the door dwell, then until every
// boarding passenger has selected a destination and nobody waiting at floor
// for dir can still get a seat. Closing happens under the car lock, so no
// TryBoard slips in after the last check.
func (c *Car) holdDoors(ctx context.Context, floor int, dir types.Direction) error {
	if err := timer.Sleep(ctx, c.doorTime); err != nil {
		return err
	}
	err := c.doors.Wait(ctx, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.boarding > 0 || (c.FreeSeats() > 0 && c.building.Waiting(floor, dir) > 0) {
			return false
		}
		c.state.DoorOpen = false
		return true
	})
	if err != nil {
		return err
	}
	slog.Debug("Doors closed", "car", c.id, "floor", floor, "dir", dir)
	return nil
}

func (c *Car) decideNextMove() (floor int, prev, next types.Direction) {
	canBoard := c.FreeSeats() > 0
	c.mu.Lock()
	floor, prev = c.state.Floor, c.state.Dir
	next = NextDirection(prev, floor, c.stops, c.building, canBoard)
	c.state.Dir = next
	c.mu.Unlock()

	if next != prev {
		slog.Debug("Direction changed", "car", c.id, "floor", floor, "from", prev, "to", next)
		if prev != types.Idle && next != types.Idle {
			c.log.Logf("Car %d reverses at floor %d (%s -> %s)", c.id, floor, prev, next)
		}
		c.step()
	}
	return floor, prev, next
}

// advance moves the car one floor in its direction.
func (c *Car) advance() {
	c.mu.Lock()
	from, dir := c.state.Floor, c.state.Dir
	floor := from + int(dir)
	if floor < 0 || floor >= c.numFloors {
		c.mu.Unlock()
		panic(fmt.Sprintf("car %d: moving %s from floor %d leaves the shaft", c.id, dir, from))
	}
	c.state.Floor = floor
	c.mu.Unlock()

	c.log.Logf("... Car %d arrives at floor %d (%s) ...", c.id, floor, dir)
	c.step()
}

// workHere reports a stop or call on floor that the next iteration may serve.
func (c *Car) workHere(floor int) bool {
	c.mu.Lock()
	hasStop := c.stops.Has(floor)
	c.mu.Unlock()
	return hasStop || c.building.HasCall(floor, types.Up) || c.building.HasCall(floor, types.Down)
}

func (c *Car) step() {
	if c.OnStep != nil {
		c.OnStep(c.Snapshot())
	}
}
