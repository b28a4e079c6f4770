package types

import "fmt"

// Direction is both the travel direction of a car and its dispatch state.
// A car advances with Floor += int(Dir).
type Direction int

const (
	Up   Direction = 1
	Down Direction = -1
	Idle Direction = 0
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	case Idle:
		return "IDLE"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Towards returns the direction leading from one floor to another, Idle if they are equal.
func Towards(from, to int) Direction {
	switch {
	case to > from:
		return Up
	case to < from:
		return Down
	}
	return Idle
}

// Call is a pending hall request. At most one exists per (Floor, Dir).
type Call struct {
	Floor int
	Dir   Direction
}

func (c Call) String() string {
	switch c.Dir {
	case Up:
		return fmt.Sprintf("HallUp(%d)", c.Floor)
	case Down:
		return fmt.Sprintf("HallDown(%d)", c.Floor)
	}
	return fmt.Sprintf("Hall?(%d)", c.Floor)
}
