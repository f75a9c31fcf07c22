package live

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/sudotools/fleetwatch/internal/fleetapi"
	"github.com/sudotools/fleetwatch/internal/playback"
)

// Fetcher supplies the backend's current-state feed.
type Fetcher interface {
	FetchLiveEntityPositions(ctx context.Context) ([]fleetapi.LivePosition, error)
}

// EntityUpdate mirrors the db entity record without importing it here.
type EntityUpdate struct {
	EntityID          string
	Kind              string
	DisplayName       string
	LastSeenUnixNanos int64
}

// Poller fetches live positions on a fixed cadence, keeps the latest sample
// per entity, records last-seen times, and broadcasts each poll result to
// the hub.
type Poller struct {
	fetcher  Fetcher
	hub      *Hub
	seen     func(EntityUpdate) error // nil disables last-seen recording
	interval time.Duration
	logger   *log.Logger

	mu     sync.RWMutex
	latest map[string]playback.PositionSample

	runMu  sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// PollerConfig contains configuration for Poller.
type PollerConfig struct {
	Fetcher  Fetcher
	Hub      *Hub // optional; nil disables broadcasting
	Seen     func(EntityUpdate) error
	Interval time.Duration
	Logger   *log.Logger
}

// NewPoller creates a poller from cfg. A zero interval defaults to 5s.
func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		fetcher:  cfg.Fetcher,
		hub:      cfg.Hub,
		seen:     cfg.Seen,
		interval: interval,
		logger:   logger,
		latest:   make(map[string]playback.PositionSample),
	}
}

// Snapshot returns the latest known position per entity.
func (p *Poller) Snapshot() map[string]playback.PositionSample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]playback.PositionSample, len(p.latest))
	for id, s := range p.latest {
		out[id] = s
	}
	return out
}

// PollOnce runs a single poll cycle: fetch, store, record last-seen,
// broadcast. Fetch failures are returned but leave the previous snapshot in
// place.
func (p *Poller) PollOnce(ctx context.Context) error {
	positions, err := p.fetcher.FetchLiveEntityPositions(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	for _, pos := range positions {
		p.latest[pos.EntityID] = pos.Sample
	}
	p.mu.Unlock()

	if p.seen != nil {
		for _, pos := range positions {
			ns, ok := pos.Sample.Instant()
			if !ok {
				continue
			}
			if err := p.seen(EntityUpdate{EntityID: pos.EntityID, LastSeenUnixNanos: ns}); err != nil {
				p.logger.Printf("failed to record last-seen for %s: %v", pos.EntityID, err)
			}
		}
	}

	if p.hub != nil && len(positions) > 0 {
		frame, err := json.Marshal(struct {
			Positions  []fleetapi.LivePosition `json:"positions"`
			ServerTime int64                   `json:"server_time"`
		}{positions, time.Now().UnixMilli()})
		if err != nil {
			p.logger.Printf("failed to marshal live frame: %v", err)
			return nil
		}
		p.hub.Broadcast(frame)
	}
	return nil
}

// Run polls on the configured cadence until the context is cancelled or Stop
// is called. Individual poll failures are logged and retried on the next
// tick.
func (p *Poller) Run(ctx context.Context) {
	p.runMu.Lock()
	if p.stopCh != nil {
		p.runMu.Unlock()
		return // already running
	}
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.runMu.Unlock()

	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				p.logger.Printf("live poll failed: %v", err)
			}
		}
	}
}

// Stop terminates a running poll loop and waits for it to exit.
func (p *Poller) Stop() {
	p.runMu.Lock()
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh, p.doneCh = nil, nil
	p.runMu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}
