package playback

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

// staticBounds is a BoundsProvider with fixed or absent bounds.
type staticBounds struct {
	b  Bounds
	ok bool
}

func (s *staticBounds) Bounds() (Bounds, bool) { return s.b, s.ok }

func newTestClock(b *staticBounds) *Clock {
	return NewClock(b, DefaultTickInterval, log.New(io.Discard, "", 0))
}

func secs(n int64) int64 { return n * int64(time.Second) }

func TestPlayWithoutBoundsIsNoop(t *testing.T) {
	c := newTestClock(&staticBounds{})
	c.Play()

	st := c.State()
	if st.Playing {
		t.Error("clock must stay idle without bounds")
	}
	if st.Cursor != nil {
		t.Errorf("cursor should be unset, got %d", *st.Cursor)
	}
}

func TestPlayFromIdleInitialisesCursor(t *testing.T) {
	c := newTestClock(&staticBounds{b: Bounds{Start: secs(1000), End: secs(2000)}, ok: true})
	c.Play()

	st := c.State()
	if !st.Playing {
		t.Fatal("expected Playing")
	}
	if st.Cursor == nil || *st.Cursor != secs(1000) {
		t.Errorf("cursor should initialise to bounds start, got %v", st.Cursor)
	}
}

func TestPauseKeepsCursor(t *testing.T) {
	c := newTestClock(&staticBounds{b: Bounds{Start: secs(0), End: secs(100)}, ok: true})
	c.Play()
	c.Tick()
	before := c.State()

	c.Pause()
	after := c.State()
	if after.Playing {
		t.Error("expected Paused")
	}
	if *after.Cursor != *before.Cursor {
		t.Errorf("pause moved cursor from %d to %d", *before.Cursor, *after.Cursor)
	}

	// Resuming from Paused must not reset the cursor.
	c.Play()
	resumed := c.State()
	if !resumed.Playing || *resumed.Cursor != *after.Cursor {
		t.Errorf("resume reset the cursor: %v", resumed.Cursor)
	}
}

func TestSeekClamps(t *testing.T) {
	bounds := Bounds{Start: secs(100), End: secs(200)}
	tests := []struct {
		name string
		seek int64
		want int64
	}{
		{"inside", secs(150), secs(150)},
		{"below start", secs(5), secs(100)},
		{"above end", secs(9999), secs(200)},
		{"exactly start", secs(100), secs(100)},
		{"exactly end", secs(200), secs(200)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClock(&staticBounds{b: bounds, ok: true})
			c.Seek(tc.seek)
			st := c.State()
			if st.Cursor == nil || *st.Cursor != tc.want {
				t.Errorf("cursor = %v, want %d", st.Cursor, tc.want)
			}
			if st.Playing {
				t.Error("seek must not start playback")
			}
		})
	}
}

func TestSeekPreservesPlayStatus(t *testing.T) {
	c := newTestClock(&staticBounds{b: Bounds{Start: 0, End: secs(100)}, ok: true})
	c.Play()
	c.Seek(secs(50))
	if st := c.State(); !st.Playing {
		t.Error("seek while playing must stay playing")
	}
}

func TestSetSpeed(t *testing.T) {
	c := newTestClock(&staticBounds{})
	if err := c.SetSpeed(30); err != nil {
		t.Fatalf("SetSpeed(30): %v", err)
	}
	if got := c.State().Speed; got != 30 {
		t.Errorf("speed = %v, want 30", got)
	}

	for _, bad := range []float64{0, -1, -60} {
		if err := c.SetSpeed(bad); !errors.Is(err, ErrInvalidSpeed) {
			t.Errorf("SetSpeed(%v) = %v, want ErrInvalidSpeed", bad, err)
		}
	}
	if got := c.State().Speed; got != 30 {
		t.Errorf("rejected SetSpeed changed the factor to %v", got)
	}
}

// A track spanning [1000s, 2000s] at 100 virtual seconds per tick plays out
// in exactly 10 ticks and pauses on the end.
func TestPlaybackTerminates(t *testing.T) {
	c := newTestClock(&staticBounds{b: Bounds{Start: secs(1000), End: secs(2000)}, ok: true})
	if err := c.SetSpeed(100); err != nil {
		t.Fatal(err)
	}
	c.Play()

	for i := 0; i < 9; i++ {
		c.Tick()
		if st := c.State(); !st.Playing {
			t.Fatalf("paused early after %d ticks at cursor %d", i+1, *st.Cursor)
		}
	}

	c.Tick()
	st := c.State()
	if st.Playing {
		t.Error("expected Paused at bounds end")
	}
	if st.Cursor == nil || *st.Cursor != secs(2000) {
		t.Errorf("cursor = %v, want end %d", st.Cursor, secs(2000))
	}

	// Further ticks are inert.
	c.Tick()
	if st := c.State(); *st.Cursor != secs(2000) || st.Playing {
		t.Errorf("tick after termination moved state: %+v", st)
	}
}

func TestTickClampsOvershoot(t *testing.T) {
	c := newTestClock(&staticBounds{b: Bounds{Start: 0, End: secs(150)}, ok: true})
	if err := c.SetSpeed(100); err != nil {
		t.Fatal(err)
	}
	c.Play()
	c.Tick()
	c.Tick() // would reach 200s; must clamp to 150s and pause

	st := c.State()
	if *st.Cursor != secs(150) {
		t.Errorf("cursor = %d, want clamped %d", *st.Cursor, secs(150))
	}
	if st.Playing {
		t.Error("expected Paused after clamping at end")
	}
}

// Shrinking the bounds mid-playback (selection change) clamps the cursor on
// the next tick instead of erroring.
func TestTickClampsAfterBoundsShrink(t *testing.T) {
	b := &staticBounds{b: Bounds{Start: 0, End: secs(1000)}, ok: true}
	c := newTestClock(b)
	if err := c.SetSpeed(100); err != nil {
		t.Fatal(err)
	}
	c.Play()
	for i := 0; i < 5; i++ {
		c.Tick() // cursor at 500s
	}

	b.b = Bounds{Start: 0, End: secs(300)}
	c.Tick()
	st := c.State()
	if *st.Cursor != secs(300) {
		t.Errorf("cursor = %d, want clamped to new end %d", *st.Cursor, secs(300))
	}
	if st.Playing {
		t.Error("expected Paused once clamped to the new end")
	}
}

func TestBoundsVanishPausesPlayback(t *testing.T) {
	b := &staticBounds{b: Bounds{Start: 0, End: secs(100)}, ok: true}
	c := newTestClock(b)
	c.Play()

	b.ok = false
	c.Tick()
	if st := c.State(); st.Playing {
		t.Error("playback should pause when the selection empties")
	}
}

func TestRunStop(t *testing.T) {
	c := NewClock(&staticBounds{b: Bounds{Start: 0, End: secs(10)}, ok: true}, time.Millisecond, log.New(io.Discard, "", 0))
	c.Play()

	done := make(chan struct{})
	go func() {
		c.Run(t.Context())
		close(done)
	}()

	// The loop should drive the cursor to the end on its own.
	deadline := time.After(2 * time.Second)
	for {
		st := c.State()
		if st.Cursor != nil && *st.Cursor == secs(10) && !st.Playing {
			break
		}
		select {
		case <-deadline:
			t.Fatal("run loop never finished playback")
		case <-time.After(5 * time.Millisecond):
		}
	}

	c.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not terminate the run loop")
	}
}
