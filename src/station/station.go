// Package station provides wait stations: a lock and condition pair where
// goroutines block until a predicate holds. Every wake re-evaluates the
// predicate, so broadcasts and spurious wakeups are harmless, and a cancelled
// context wakes and releases every waiter.
package station

import (
	"context"
	"sync"
)

type Station struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func New() *Station {
	s := &Station{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Stations returns n independent stations.
func Stations(n int) []*Station {
	stations := make([]*Station, n)
	for i := range stations {
		stations[i] = New()
	}
	return stations
}

// Wait blocks until ready returns true or ctx is done, in which case it
// returns ctx.Err(). ready runs with the station lock held, once on entry and
// again after every wake; it may claim resources as a side effect when it
// returns true.
func (s *Station) Wait(ctx context.Context, ready func() bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, s.Broadcast)
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// Broadcast wakes every waiter to re-evaluate its predicate.
func (s *Station) Broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cond.Broadcast()
}

// Update runs fn under the station lock and then wakes every waiter.
func (s *Station) Update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
	s.cond.Broadcast()
}
