// Package sim wires the building controller, its cars and a population of
// passengers into one run.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"liftsim/src/building"
	"liftsim/src/car"
	"liftsim/src/config"
	"liftsim/src/passenger"
	"liftsim/src/statuslog"
	"liftsim/src/types"
)

type Simulation struct {
	cfg        config.Config
	log        statuslog.Logger
	building   *building.Controller
	passengers []passenger.Passenger
}

// Report summarizes a finished run.
type Report struct {
	Trips     []passenger.Trip
	Served    int
	Abandoned int
	Elapsed   time.Duration
	// AvgWait is the mean time from call to boarding over boarded passengers.
	AvgWait time.Duration
	// PerCar counts delivered passengers per car id.
	PerCar []int
}

func New(cfg config.Config, log statuslog.Logger) (*Simulation, error) {
	if log == nil {
		log = statuslog.Discard
	}
	b, err := building.New(cfg, log)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	slog.Debug("Passengers seeded", "seed", seed)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	s := &Simulation{cfg: cfg, log: log, building: b}
	for i := 1; i <= cfg.NumPassengers; i++ {
		s.passengers = append(s.passengers, passenger.New(i, cfg, rng))
	}
	return s, nil
}

func (s *Simulation) Building() *building.Controller { return s.building }

func (s *Simulation) Passengers() []passenger.Passenger {
	return append([]passenger.Passenger(nil), s.passengers...)
}

func (s *Simulation) Pause() { s.building.Pause() }

func (s *Simulation) Resume() { s.building.Resume() }

func (s *Simulation) Paused() bool { return s.building.Paused() }

// Snapshots returns the state of every car, ordered by id.
func (s *Simulation) Snapshots() []car.Snapshot {
	cars := s.building.Cars()
	snaps := make([]car.Snapshot, len(cars))
	for i, c := range cars {
		snaps[i] = c.Snapshot()
	}
	return snaps
}

func (s *Simulation) PendingCalls() []types.Call { return s.building.PendingCalls() }

// Run starts every car and passenger and returns once every passenger has
// finished, or ctx is done. Cars are stopped when the last passenger is
// through. A cancelled run is not an error: passengers still riding or
// waiting are counted as abandoned.
func (s *Simulation) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	s.log.Logf("=== Simulation started: %d floors, %d cars (capacity %d), %d passengers ===",
		s.cfg.NumFloors, s.cfg.NumCars, s.cfg.Capacity, len(s.passengers))

	carCtx, stopCars := context.WithCancel(ctx)
	defer stopCars()
	cars, carCtx := errgroup.WithContext(carCtx)
	for _, c := range s.building.Cars() {
		cars.Go(func() error {
			return ignoreCanceled(c.Run(carCtx))
		})
	}

	trips := make([]passenger.Trip, len(s.passengers))
	riders := errgroup.Group{}
	for i, p := range s.passengers {
		riders.Go(func() error {
			trip, err := p.Run(ctx, s.building, s.log)
			trips[i] = trip
			if err = ignoreCanceled(err); err != nil {
				return fmt.Errorf("passenger %s: %w", p.ID, err)
			}
			return nil
		})
	}

	ridersErr := riders.Wait()
	stopCars()
	carsErr := cars.Wait()

	report := newReport(trips, time.Since(start), s.cfg.NumCars)
	s.log.Logf("=== Simulation finished: %d served, %d abandoned in %s ===",
		report.Served, report.Abandoned, report.Elapsed.Round(time.Millisecond))
	return report, errors.Join(ridersErr, carsErr)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func newReport(trips []passenger.Trip, elapsed time.Duration, numCars int) Report {
	r := Report{Trips: trips, Elapsed: elapsed, PerCar: make([]int, numCars)}
	var waited time.Duration
	boarded := 0
	for _, t := range trips {
		if !t.Boarded.IsZero() {
			waited += t.Boarded.Sub(t.Called)
			boarded++
		}
		if !t.Served() {
			r.Abandoned++
			continue
		}
		r.Served++
		r.PerCar[t.Car]++
	}
	if boarded > 0 {
		r.AvgWait = waited / time.Duration(boarded)
	}
	return r
}

// Summary renders the report as a few lines of text.
func (r Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Served %d of %d passengers in %s (%d abandoned)\n",
		r.Served, len(r.Trips), r.Elapsed.Round(time.Millisecond), r.Abandoned)
	fmt.Fprintf(&sb, "Average wait for a car: %s\n", r.AvgWait.Round(time.Millisecond))
	for id, n := range r.PerCar {
		fmt.Fprintf(&sb, "Car %d delivered %d\n", id, n)
	}
	return sb.String()
}
