// Package passenger implements the passenger actor: arrive, call a car,
// ride to the destination and get off.
package passenger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"liftsim/src/car"
	"liftsim/src/config"
	"liftsim/src/statuslog"
	"liftsim/src/timer"
	"liftsim/src/types"
)

// Building is what a passenger needs from the building controller.
type Building interface {
	AwaitResumed(ctx context.Context) error
	WaitForCarAtFloor(ctx context.Context, passengerID string, floor int, dir types.Direction) (*car.Car, error)
}

type Passenger struct {
	ID     string
	Origin int
	Dest   int
	Dir    types.Direction
	// Delay before the passenger shows up at the origin floor.
	Delay time.Duration
}

// Trip records how far a passenger got. Car is -1 until a car was boarded.
type Trip struct {
	Passenger string
	Origin    int
	Dest      int
	Car       int
	Called    time.Time
	Boarded   time.Time
	Arrived   time.Time
}

// Served reports whether the passenger reached its destination.
func (t Trip) Served() bool { return !t.Arrived.IsZero() }

// New draws distinct origin and destination floors and an arrival delay from
// rng. rng is not shared with the returned passenger.
func New(num int, cfg config.Config, rng *rand.Rand) Passenger {
	origin := rng.IntN(cfg.NumFloors)
	dest := rng.IntN(cfg.NumFloors - 1)
	if dest >= origin {
		dest++
	}
	delay := cfg.ArrivalDelayMin
	if spread := cfg.ArrivalDelayMax - cfg.ArrivalDelayMin; spread > 0 {
		delay += time.Duration(rng.Int64N(int64(spread) + 1))
	}
	return Passenger{
		ID:     fmt.Sprintf("P%03d", num),
		Origin: origin,
		Dest:   dest,
		Dir:    types.Towards(origin, dest),
		Delay:  delay,
	}
}

// Run plays the passenger through one trip. A cancelled context ends the trip
// early with ctx.Err(); a held seat is always given back.
func (p Passenger) Run(ctx context.Context, b Building, log statuslog.Logger) (Trip, error) {
	trip := Trip{Passenger: p.ID, Origin: p.Origin, Dest: p.Dest, Car: -1}

	if err := timer.Sleep(ctx, p.Delay); err != nil {
		return trip, err
	}
	if err := b.AwaitResumed(ctx); err != nil {
		return trip, err
	}

	trip.Called = time.Now()
	c, err := b.WaitForCarAtFloor(ctx, p.ID, p.Origin, p.Dir)
	if err != nil {
		return trip, err
	}
	defer c.ReleaseSeat()
	trip.Car, trip.Boarded = c.ID(), time.Now()

	ticket := c.SelectDestination(p.Dest)
	log.Logf(">>>> %s (floor %d) selects destination %d in car %d", p.ID, p.Origin, p.Dest, c.ID())

	if err := c.WaitForArrival(ctx, p.Dest, ticket); err != nil {
		slog.Debug("Passenger abandoned mid-ride", "passenger", p.ID, "car", c.ID(), "err", err)
		return trip, err
	}
	trip.Arrived = time.Now()
	log.Logf("<<<< %s leaves car %d at floor %d", p.ID, c.ID(), p.Dest)
	return trip, nil
}
