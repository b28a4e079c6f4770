package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	NumFloors        = 21
	NumCars          = 2
	CarCapacity      = 8
	NumPassengers    = 100
	TravelDuration   = 500 * time.Millisecond
	DoorOpenDuration = 300 * time.Millisecond
	ArrivalDelayMin  = 500 * time.Millisecond
	ArrivalDelayMax  = 2 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is fixed when the building is constructed.
type Config struct {
	NumFloors      int
	NumCars        int
	Capacity       int
	NumPassengers  int
	TravelDuration time.Duration
	// DoorOpenDuration is the shortest time doors stay open after a pickup.
	DoorOpenDuration time.Duration
	ArrivalDelayMin  time.Duration
	ArrivalDelayMax  time.Duration
	// Seed for origin/destination and arrival jitter. Zero picks a time based seed.
	Seed uint64
}

func Default() Config {
	return Config{
		NumFloors:        NumFloors,
		NumCars:          NumCars,
		Capacity:         CarCapacity,
		NumPassengers:    NumPassengers,
		TravelDuration:   TravelDuration,
		DoorOpenDuration: DoorOpenDuration,
		ArrivalDelayMin:  ArrivalDelayMin,
		ArrivalDelayMax:  ArrivalDelayMax,
	}
}

func (c Config) Validate() error {
	switch {
	case c.NumFloors < 2:
		return fmt.Errorf("%w: NumFloors must be at least 2, got %d", ErrInvalidConfig, c.NumFloors)
	case c.NumCars < 1:
		return fmt.Errorf("%w: NumCars must be at least 1, got %d", ErrInvalidConfig, c.NumCars)
	case c.Capacity < 1:
		return fmt.Errorf("%w: Capacity must be at least 1, got %d", ErrInvalidConfig, c.Capacity)
	case c.NumPassengers < 0:
		return fmt.Errorf("%w: NumPassengers must not be negative, got %d", ErrInvalidConfig, c.NumPassengers)
	case c.TravelDuration < 0:
		return fmt.Errorf("%w: TravelDuration must not be negative, got %s", ErrInvalidConfig, c.TravelDuration)
	case c.DoorOpenDuration < 0:
		return fmt.Errorf("%w: DoorOpenDuration must not be negative, got %s", ErrInvalidConfig, c.DoorOpenDuration)
	case c.ArrivalDelayMin < 0 || c.ArrivalDelayMax < c.ArrivalDelayMin:
		return fmt.Errorf("%w: arrival delay range [%s, %s] is empty", ErrInvalidConfig, c.ArrivalDelayMin, c.ArrivalDelayMax)
	}
	return nil
}

// Load returns the defaults overridden by the keys of an optional .env file.
// A missing file is not an error.
//
//	LIFTSIM_FLOORS, LIFTSIM_CARS, LIFTSIM_CAPACITY, LIFTSIM_PASSENGERS,
//	LIFTSIM_TRAVEL, LIFTSIM_DOOR, LIFTSIM_ARRIVAL_MIN, LIFTSIM_ARRIVAL_MAX, LIFTSIM_SEED
func Load(path string) (Config, error) {
	cfg := Default()
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := cfg.apply(env); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) apply(env map[string]string) error {
	ints := map[string]*int{
		"LIFTSIM_FLOORS":     &c.NumFloors,
		"LIFTSIM_CARS":       &c.NumCars,
		"LIFTSIM_CAPACITY":   &c.Capacity,
		"LIFTSIM_PASSENGERS": &c.NumPassengers,
	}
	for key, dst := range ints {
		raw, ok := env[key]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, key, raw, err)
		}
		*dst = v
	}

	durations := map[string]*time.Duration{
		"LIFTSIM_TRAVEL":      &c.TravelDuration,
		"LIFTSIM_DOOR":        &c.DoorOpenDuration,
		"LIFTSIM_ARRIVAL_MIN": &c.ArrivalDelayMin,
		"LIFTSIM_ARRIVAL_MAX": &c.ArrivalDelayMax,
	}
	for key, dst := range durations {
		raw, ok := env[key]
		if !ok {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, key, raw, err)
		}
		*dst = v
	}

	if raw, ok := env["LIFTSIM_SEED"]; ok {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: LIFTSIM_SEED=%q: %w", ErrInvalidConfig, raw, err)
		}
		c.Seed = v
	}
	return nil
}
