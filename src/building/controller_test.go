package building

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"liftsim/src/config"
	"liftsim/src/statuslog"
	"liftsim/src/types"
)

const TEST_TIMEOUT = 2 * time.Second

func testConfig(floors, cars, capacity int) config.Config {
	cfg := config.Default()
	cfg.NumFloors = floors
	cfg.NumCars = cars
	cfg.Capacity = capacity
	cfg.TravelDuration = 2 * time.Millisecond
	cfg.DoorOpenDuration = time.Millisecond
	return cfg
}

func newController(t *testing.T, cfg config.Config) (*Controller, *statuslog.Recorder) {
	t.Helper()
	rec := &statuslog.Recorder{}
	b, err := New(cfg, rec)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return b, rec
}

// startCars runs every car until the test ends and checks that they unwind
// on cancel.
func startCars(t *testing.T, b *Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	for _, c := range b.Cars() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
				t.Errorf("car %d: Run() = %v, expected context.Canceled", c.ID(), err)
			}
		}()
	}
	t.Cleanup(func() {
		cancel()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(TEST_TIMEOUT):
			t.Errorf("cars did not stop after cancel")
		}
	})
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(1, 1, 1)
	if _, err := New(cfg, nil); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("New() = %v, expected ErrInvalidConfig", err)
	}
}

func TestRegisterCall(t *testing.T) {
	b, _ := newController(t, testConfig(5, 1, 1))

	added, err := b.RegisterCall(2, types.Up)
	if err != nil || !added {
		t.Fatalf("RegisterCall() = %v, %v", added, err)
	}
	added, err = b.RegisterCall(2, types.Up)
	if err != nil || added {
		t.Fatalf("duplicate RegisterCall() = %v, %v, expected false, nil", added, err)
	}
	b.RegisterCall(2, types.Down)
	b.RegisterCall(0, types.Up)
	b.RegisterCall(4, types.Down)

	expected := []types.Call{{Floor: 0, Dir: types.Up}, {Floor: 2, Dir: types.Up}, {Floor: 2, Dir: types.Down}, {Floor: 4, Dir: types.Down}}
	got := b.PendingCalls()
	if len(got) != len(expected) {
		t.Fatalf("PendingCalls() = %v, expected %v", got, expected)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("PendingCalls()[%d] = %v, expected %v", i, got[i], expected[i])
		}
	}

	if f, ok := b.CallAbove(2, types.Down); !ok || f != 4 {
		t.Errorf("CallAbove(2, DOWN) = %d, %v", f, ok)
	}
	if f, ok := b.CallBelow(2, types.Up); !ok || f != 0 {
		t.Errorf("CallBelow(2, UP) = %d, %v", f, ok)
	}
	if _, ok := b.CallAbove(4, types.Down); ok {
		t.Error("CallAbove(4, DOWN) found a call")
	}

	if !b.ClearCall(2, types.Up) || b.ClearCall(2, types.Up) {
		t.Error("ClearCall() should succeed exactly once")
	}
	if b.HasCall(2, types.Up) || !b.HasCall(2, types.Down) {
		t.Error("clearing (2, UP) touched the wrong registry")
	}
}

func TestRegisterCallRejectsImpossibleCalls(t *testing.T) {
	b, _ := newController(t, testConfig(5, 1, 1))
	tests := []struct {
		name  string
		floor int
		dir   types.Direction
	}{
		{"below ground", -1, types.Up},
		{"above roof", 5, types.Down},
		{"idle", 2, types.Idle},
		{"up from top", 4, types.Up},
		{"down from ground", 0, types.Down},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.RegisterCall(tt.floor, tt.dir); !errors.Is(err, ErrInvalidCall) {
				t.Errorf("RegisterCall(%d, %s) = %v, expected ErrInvalidCall", tt.floor, tt.dir, err)
			}
		})
	}
	if b.HasPendingCalls() {
		t.Error("an invalid call was registered")
	}
}

// Scenario A: one car, floors {0, 1}, one passenger riding 0 -> 1.
func TestSinglePassengerRide(t *testing.T) {
	b, rec := newController(t, testConfig(2, 1, 8))
	startCars(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), TEST_TIMEOUT)
	defer cancel()

	c, err := b.WaitForCarAtFloor(ctx, "P001", 0, types.Up)
	if err != nil {
		t.Fatalf("WaitForCarAtFloor() = %v", err)
	}
	ticket := c.SelectDestination(1)
	if err := c.WaitForArrival(ctx, 1, ticket); err != nil {
		t.Fatalf("WaitForArrival() = %v", err)
	}
	if floor, _ := c.Position(); floor != 1 {
		t.Errorf("passenger released at floor %d, expected 1", floor)
	}
	c.ReleaseSeat()

	if rec.Count(">> P001 calls at floor 0 for UP") != 1 {
		t.Errorf("missing call status line in %q", rec.Lines())
	}
	if rec.Count("Car 0 drops passengers at floor 1") != 1 {
		t.Errorf("missing drop status line in %q", rec.Lines())
	}
}

// Scenario B: one car of capacity 1, two passengers calling from floor 0.
func TestSecondPassengerWaitsForSeat(t *testing.T) {
	b, _ := newController(t, testConfig(3, 1, 1))
	startCars(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), TEST_TIMEOUT)
	defer cancel()

	type boarding struct {
		id  string
		err error
	}
	boarded := make(chan boarding, 2)
	for _, id := range []string{"P001", "P002"} {
		go func() {
			c, err := b.WaitForCarAtFloor(ctx, id, 0, types.Up)
			if err == nil {
				ticket := c.SelectDestination(2)
				err = c.WaitForArrival(ctx, 2, ticket)
				c.ReleaseSeat()
			}
			boarded <- boarding{id, err}
		}()
	}

	var first boarding
	select {
	case first = <-boarded:
	case <-ctx.Done():
		t.Fatal("nobody boarded")
	}
	if first.err != nil {
		t.Fatalf("%s: %v", first.id, first.err)
	}
	select {
	case second := <-boarded:
		if second.err != nil {
			t.Fatalf("%s: %v", second.id, second.err)
		}
		if second.id == first.id {
			t.Fatalf("%s finished twice", second.id)
		}
	case <-ctx.Done():
		t.Fatal("second passenger never got a seat")
	}
	if free := b.Car(0).FreeSeats(); free != 1 {
		t.Errorf("FreeSeats() = %d after both rides, expected 1", free)
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	b, _ := newController(t, testConfig(6, 1, 2))
	c := b.Car(0)
	startCars(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*TEST_TIMEOUT)
	defer cancel()

	var mu sync.Mutex
	onboard, peak := 0, 0
	wg := sync.WaitGroup{}
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := b.WaitForCarAtFloor(ctx, "P", 0, types.Up)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			onboard++
			peak = max(peak, onboard)
			mu.Unlock()

			ticket := got.SelectDestination(5)
			if err := got.WaitForArrival(ctx, 5, ticket); err != nil {
				t.Error(err)
			}
			mu.Lock()
			onboard--
			mu.Unlock()
			got.ReleaseSeat()
		}()
	}
	wg.Wait()

	if peak > c.Capacity() {
		t.Errorf("%d passengers on board at once, capacity %d", peak, c.Capacity())
	}
	if c.FreeSeats() != c.Capacity() {
		t.Errorf("FreeSeats() = %d, expected %d", c.FreeSeats(), c.Capacity())
	}
}

func TestPauseBlocksUntilResume(t *testing.T) {
	b, rec := newController(t, testConfig(4, 1, 1))
	b.Pause()
	b.Pause()
	if !b.Paused() {
		t.Fatal("Paused() = false after Pause()")
	}

	resumed := make(chan error, 1)
	go func() { resumed <- b.AwaitResumed(context.Background()) }()

	select {
	case <-resumed:
		t.Fatal("AwaitResumed() returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	b.Resume()
	select {
	case err := <-resumed:
		if err != nil {
			t.Errorf("AwaitResumed() = %v", err)
		}
	case <-time.After(TEST_TIMEOUT):
		t.Fatal("AwaitResumed() did not return after Resume()")
	}
	if rec.Count("--- SIMULATION PAUSED ---") != 1 || rec.Count("--- SIMULATION RESUMED ---") != 1 {
		t.Errorf("unexpected pause lines %q", rec.Lines())
	}
}

func TestPausedCarHoldsStill(t *testing.T) {
	b, _ := newController(t, testConfig(4, 1, 1))
	b.Pause()
	startCars(t, b)

	b.RegisterCall(3, types.Down)
	time.Sleep(30 * time.Millisecond)
	if floor, dir := b.Car(0).Position(); floor != 0 || dir != types.Idle {
		t.Fatalf("paused car moved to floor %d (%s)", floor, dir)
	}

	b.Resume()
	deadline := time.Now().Add(TEST_TIMEOUT)
	for b.HasCall(3, types.Down) {
		if time.Now().After(deadline) {
			t.Fatal("call (3, DOWN) not served after resume")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCancelUnblocksWaitingPassenger(t *testing.T) {
	b, _ := newController(t, testConfig(4, 1, 1))
	b.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.WaitForCarAtFloor(ctx, "P001", 2, types.Up)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WaitForCarAtFloor() = %v, expected context.Canceled", err)
		}
	case <-time.After(TEST_TIMEOUT):
		t.Fatal("WaitForCarAtFloor() ignored cancellation")
	}
	if n := b.Waiting(2, types.Up); n != 0 {
		t.Errorf("Waiting() = %d after the passenger left, expected 0", n)
	}
}

// ride takes one passenger from origin to dest and reports the direction the
// car was committed to when the passenger got on.
func ride(ctx context.Context, b *Controller, id string, origin, dest int) (types.Direction, error) {
	c, err := b.WaitForCarAtFloor(ctx, id, origin, types.Towards(origin, dest))
	if err != nil {
		return types.Idle, err
	}
	defer c.ReleaseSeat()
	_, dir := c.Position()
	ticket := c.SelectDestination(dest)
	return dir, c.WaitForArrival(ctx, dest, ticket)
}

// Opposite calls on neighbouring floors with a single car: the car must not
// turn away from a passenger it just picked up.
func TestOppositeCallsOnAdjacentFloors(t *testing.T) {
	for run := range 10 {
		b, _ := newController(t, testConfig(5, 1, 2))
		startCars(t, b)

		ctx, cancel := context.WithTimeout(context.Background(), TEST_TIMEOUT)
		errs := make(chan error, 2)
		go func() { _, err := ride(ctx, b, "P001", 2, 4); errs <- err }()
		go func() { _, err := ride(ctx, b, "P002", 1, 0); errs <- err }()
		for range 2 {
			if err := <-errs; err != nil {
				cancel()
				t.Fatalf("run %d: passenger not delivered (%v), calls %v", run, err, b.PendingCalls())
			}
		}
		cancel()
		if calls := b.PendingCalls(); len(calls) != 0 {
			t.Errorf("run %d: calls left over %v", run, calls)
		}
	}
}

func TestBoardingIdleCarClearsCall(t *testing.T) {
	b, _ := newController(t, testConfig(4, 1, 2))
	startCars(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), TEST_TIMEOUT)
	defer cancel()
	c, err := b.WaitForCarAtFloor(ctx, "P001", 0, types.Up)
	if err != nil {
		t.Fatalf("WaitForCarAtFloor() = %v", err)
	}
	if calls := b.PendingCalls(); len(calls) != 0 {
		t.Errorf("call still registered after boarding: %v", calls)
	}
	if _, dir := c.Position(); dir != types.Up {
		t.Errorf("boarded a car heading %s, expected UP", dir)
	}
	ticket := c.SelectDestination(3)
	if err := c.WaitForArrival(ctx, 3, ticket); err != nil {
		t.Fatalf("WaitForArrival() = %v", err)
	}
	c.ReleaseSeat()
}

// Both directions called on the same floor: each passenger gets a car heading
// its own way.
func TestBoardingMatchesPassengerDirection(t *testing.T) {
	b, _ := newController(t, testConfig(5, 1, 2))
	startCars(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), TEST_TIMEOUT)
	defer cancel()

	type result struct {
		expected, got types.Direction
		err           error
	}
	results := make(chan result, 2)
	for _, dest := range []int{4, 0} {
		go func() {
			got, err := ride(ctx, b, "P", 2, dest)
			results <- result{types.Towards(2, dest), got, err}
		}()
	}
	for range 2 {
		r := <-results
		if r.err != nil {
			t.Fatalf("passenger heading %s not delivered: %v", r.expected, r.err)
		}
		if r.got != r.expected {
			t.Errorf("passenger heading %s boarded a car heading %s", r.expected, r.got)
		}
	}
	if calls := b.PendingCalls(); len(calls) != 0 {
		t.Errorf("calls left over %v", calls)
	}
}

func TestConcurrentPauseLogsOnce(t *testing.T) {
	b, rec := newController(t, testConfig(4, 1, 1))
	wg := sync.WaitGroup{}
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Pause()
		}()
	}
	wg.Wait()
	b.Resume()
	b.Resume()

	if n := rec.Count("--- SIMULATION PAUSED ---"); n != 1 {
		t.Errorf("PAUSED logged %d times, expected 1", n)
	}
	if n := rec.Count("--- SIMULATION RESUMED ---"); n != 1 {
		t.Errorf("RESUMED logged %d times, expected 1", n)
	}
}
