package playback

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrInvalidSpeed is returned by SetSpeed for non-positive factors.
var ErrInvalidSpeed = errors.New("playback: speed factor must be positive")

// DefaultSpeedPresets are the virtual-seconds-per-tick factors the dashboard
// offers (any positive factor is accepted by SetSpeed).
var DefaultSpeedPresets = []float64{2, 10, 30, 60}

// DefaultTickInterval is the wall-clock cadence of the clock loop. The speed
// factor scales virtual time per tick, so playback speed is independent of
// this interval.
const DefaultTickInterval = 200 * time.Millisecond

// Bounds is the time interval spanning all selected tracks' data, in unix
// nanoseconds.
type Bounds struct {
	Start int64
	End   int64
}

// Clamp forces t into the bounds.
func (b Bounds) Clamp(t int64) int64 {
	if t < b.Start {
		return b.Start
	}
	if t > b.End {
		return b.End
	}
	return t
}

// BoundsProvider supplies the current union bounds of the selected tracks.
// ok is false when no selected track has a parseable sample.
type BoundsProvider interface {
	Bounds() (Bounds, bool)
}

// PlaybackState is a read-only snapshot of the clock.
type PlaybackState struct {
	// Cursor is the current virtual time in unix nanoseconds; nil means the
	// clock has never been started (render latest known positions).
	Cursor  *int64
	Playing bool
	// Speed is virtual seconds advanced per tick.
	Speed float64
}

// Clock is the playback state machine: Idle (no cursor), Paused, Playing.
// Tick advances the shared virtual time cursor by the speed factor and
// clamps it to the selection bounds, pausing at the end rather than looping.
// All mutation goes through the exported operations; Run only calls Tick.
type Clock struct {
	bounds BoundsProvider
	logger *log.Logger

	interval time.Duration

	mu      sync.Mutex
	cursor  int64
	hasCur  bool
	playing bool
	speed   float64

	runMu  sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewClock creates a stopped clock in the Idle state. A zero interval uses
// DefaultTickInterval; a nil logger uses log.Default().
func NewClock(bounds BoundsProvider, interval time.Duration, logger *log.Logger) *Clock {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Clock{
		bounds:   bounds,
		logger:   logger,
		interval: interval,
		speed:    DefaultSpeedPresets[1],
	}
}

// State returns a snapshot of the clock.
func (c *Clock) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := PlaybackState{Playing: c.playing, Speed: c.speed}
	if c.hasCur {
		cur := c.cursor
		st.Cursor = &cur
	}
	return st
}

// Play starts playback. From Idle the cursor initialises to the start of the
// selection bounds; from Paused the cursor is kept. Without valid bounds
// (no selection, or only empty tracks) Play is a no-op.
func (c *Clock) Play() {
	b, ok := c.bounds.Bounds()
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasCur {
		c.cursor = b.Start
		c.hasCur = true
	}
	c.playing = true
}

// Pause stops advancing the cursor without moving it.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
}

// Seek moves the cursor to t clamped into the current bounds. Play/pause
// status is unchanged. Without valid bounds Seek is a no-op.
func (c *Clock) Seek(t int64) {
	b, ok := c.bounds.Bounds()
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = b.Clamp(t)
	c.hasCur = true
}

// SetSpeed updates the virtual-seconds-per-tick factor, effective from the
// next tick. Non-positive factors are rejected.
func (c *Clock) SetSpeed(factor float64) error {
	if factor <= 0 {
		return ErrInvalidSpeed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = factor
	return nil
}

// Tick advances the cursor by the speed factor in virtual seconds. Reaching
// the end of the bounds clamps the cursor there and pauses; a cursor left
// outside the bounds by a selection change is clamped back in. Tick does
// nothing unless Playing.
func (c *Clock) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing || !c.hasCur {
		return
	}
	b, ok := c.bounds.Bounds()
	if !ok {
		c.playing = false
		return
	}
	next := c.cursor + int64(c.speed*float64(time.Second))
	next = b.Clamp(next)
	c.cursor = next
	if next >= b.End {
		c.playing = false
	}
}

// Run drives Tick at the wall-clock interval until the context is cancelled
// or Stop is called.
func (c *Clock) Run(ctx context.Context) {
	c.runMu.Lock()
	if c.stopCh != nil {
		c.runMu.Unlock()
		return // already running
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	stopCh, doneCh := c.stopCh, c.doneCh
	c.runMu.Unlock()

	defer close(doneCh)

	c.logger.Printf("Playback clock running, tick interval %s", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Stop terminates a running loop and waits for it to exit.
func (c *Clock) Stop() {
	c.runMu.Lock()
	stopCh, doneCh := c.stopCh, c.doneCh
	c.stopCh, c.doneCh = nil, nil
	c.runMu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}
