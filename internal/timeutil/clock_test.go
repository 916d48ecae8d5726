package timeutil

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	start := time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	clock.Advance(90 * time.Minute)
	if got := clock.Since(start); got != 90*time.Minute {
		t.Errorf("Since() = %v, want 90m", got)
	}

	later := start.AddDate(0, 1, 0)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestMockClock_Sleep(t *testing.T) {
	start := time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Sleep(20 * time.Millisecond)
	clock.Sleep(40 * time.Millisecond)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 20*time.Millisecond || sleeps[1] != 40*time.Millisecond {
		t.Errorf("Sleeps() = %v, want [20ms 40ms]", sleeps)
	}
	if got := clock.Since(start); got != 60*time.Millisecond {
		t.Errorf("clock advanced %v, want 60ms", got)
	}

	// The returned slice is a copy.
	sleeps[0] = 0
	if clock.Sleeps()[0] != 20*time.Millisecond {
		t.Error("Sleeps() exposed internal state")
	}
}

func TestMockClock_Concurrent(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Sleep(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	if got := len(clock.Sleeps()); got != 8 {
		t.Errorf("recorded %d sleeps, want 8", got)
	}
	if got := clock.Now().Unix(); got != 8 {
		t.Errorf("Now() = %d, want 8", got)
	}
}

var _ Clock = RealClock{}
var _ Clock = (*MockClock)(nil)
