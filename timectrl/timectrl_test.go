package timectrl

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestTimeControllerSetTime(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, RealTime)

	newNow := epoch.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
	if tc.Ticks() != 0 {
		t.Fatalf("SetTime fired %d ticks", tc.Ticks())
	}
}

func TestTimeControllerDefaultsTick(t *testing.T) {
	if got := NewTimeController(epoch, 0, RealTime).Tick(); got != time.Second {
		t.Fatalf("Tick() = %v, want 1s", got)
	}
}

func TestAcceleratedRunFiresListenersInOrder(t *testing.T) {
	tc := NewTimeController(epoch, 5*time.Millisecond, Accelerated)

	var order []string
	var seen []time.Time
	tc.AddListener(func(_ context.Context, now time.Time) {
		order = append(order, "first")
		seen = append(seen, now)
	})
	tc.AddListener(func(context.Context, time.Time) { order = append(order, "second") })
	tc.AddListener(nil)

	if err := tc.Run(context.Background(), 15*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tc.Ticks() != 3 || len(seen) != 3 {
		t.Fatalf("ticks = %d, listener calls = %d, want 3", tc.Ticks(), len(seen))
	}
	for i, now := range seen {
		if want := epoch.Add(time.Duration(i+1) * 5 * time.Millisecond); !now.Equal(want) {
			t.Fatalf("tick %d at %v, want %v", i, now, want)
		}
	}
	if want := epoch.Add(15 * time.Millisecond); !tc.Now().Equal(want) {
		t.Fatalf("Now() = %v, want %v", tc.Now(), want)
	}
	if len(order) != 6 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("listener order = %v", order)
	}
}

func TestAcceleratedRunNeedsDuration(t *testing.T) {
	tc := NewTimeController(epoch, time.Millisecond, Accelerated)
	if err := tc.Run(context.Background(), 0); !errors.Is(err, ErrUnbounded) {
		t.Fatalf("Run(0) error = %v, want ErrUnbounded", err)
	}
}

func TestRealTimeRunStopsOnCancel(t *testing.T) {
	tc := NewTimeController(epoch, 2*time.Millisecond, RealTime)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	tc.AddListener(func(context.Context, time.Time) {
		if calls.Add(1) == 3 {
			cancel()
		}
	})

	select {
	case err := <-tc.Start(ctx, 0):
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Start result = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop after cancel")
	}
	if calls.Load() != 3 {
		t.Fatalf("listener calls = %d, want 3", calls.Load())
	}
}
