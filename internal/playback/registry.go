package playback

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// PositionFetcher supplies raw position history for an entity over a time
// range. Implementations must return samples in non-decreasing timestamp
// order; the registry filters invalid entries but does not re-sort on the
// happy path.
type PositionFetcher interface {
	FetchEntityPositions(ctx context.Context, entityID string, start, end time.Time) ([]PositionSample, error)
}

// TrackRegistry maps entity IDs to their downsampled, indexed tracks and
// owns the currently selected entity set. Loads run concurrently per entity;
// each entity's fetch-then-index sequence publishes atomically, so readers
// observe either the previous track or the fully built replacement.
type TrackRegistry struct {
	fetcher   PositionFetcher
	maxPoints int
	logger    *log.Logger

	mu       sync.RWMutex
	selected map[string]bool
	tracks   map[string]*EntityTrack
	loadGen  map[string]uint64 // last-write-wins per entity
}

// NewTrackRegistry creates a registry with the given downsample budget.
// A nil logger falls back to log.Default().
func NewTrackRegistry(fetcher PositionFetcher, maxPoints int, logger *log.Logger) *TrackRegistry {
	if logger == nil {
		logger = log.Default()
	}
	return &TrackRegistry{
		fetcher:   fetcher,
		maxPoints: maxPoints,
		logger:    logger,
		selected:  make(map[string]bool),
		tracks:    make(map[string]*EntityTrack),
		loadGen:   make(map[string]uint64),
	}
}

// SetSelection replaces the selected entity set. Tracks of deselected
// entities are evicted to bound memory; newly selected entities have no
// track until LoadTrack completes for them.
func (r *TrackRegistry) SetSelection(entityIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		next[id] = true
	}
	for id := range r.tracks {
		if !next[id] {
			delete(r.tracks, id)
		}
	}
	r.selected = next
}

// Selected returns the currently selected entity IDs.
func (r *TrackRegistry) Selected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.selected))
	for id := range r.selected {
		ids = append(ids, id)
	}
	return ids
}

// IsSelected reports whether the entity is in the current selection.
func (r *TrackRegistry) IsSelected(entityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected[entityID]
}

// LoadTrack fetches history for one entity, downsamples it to the registry
// budget, builds the temporal index, and atomically replaces any prior track
// for that entity. A load that fails leaves the prior track (if any) in
// place. When loads for the same entity overlap, the most recently started
// one wins regardless of completion order.
func (r *TrackRegistry) LoadTrack(ctx context.Context, entityID string, start, end time.Time) error {
	r.mu.Lock()
	r.loadGen[entityID]++
	gen := r.loadGen[entityID]
	r.mu.Unlock()

	raw, err := r.fetcher.FetchEntityPositions(ctx, entityID, start, end)
	if err != nil {
		return fmt.Errorf("fetch positions for %s: %w", entityID, err)
	}

	reduced := Downsample(raw, r.maxPoints)
	track := &EntityTrack{
		EntityID: entityID,
		Samples:  reduced,
		index:    BuildIndex(reduced),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadGen[entityID] != gen {
		// A newer load superseded this one while the fetch was in flight.
		return nil
	}
	r.tracks[entityID] = track
	return nil
}

// LoadSelection starts a concurrent LoadTrack for every selected entity and
// waits for all of them. Individual failures are logged, not fatal: the
// coordinator treats a missing track the same as an empty one.
func (r *TrackRegistry) LoadSelection(ctx context.Context, start, end time.Time) {
	var wg sync.WaitGroup
	for _, id := range r.Selected() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := r.LoadTrack(ctx, id, start, end); err != nil {
				r.logger.Printf("track load failed for %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()
}

// GetTrack returns the current track for an entity, or nil when no track is
// loaded.
func (r *TrackRegistry) GetTrack(entityID string) *EntityTrack {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tracks[entityID]
}

// SelectedTracks returns the loaded tracks of the current selection.
func (r *TrackRegistry) SelectedTracks() []*EntityTrack {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tracks := make([]*EntityTrack, 0, len(r.selected))
	for id := range r.selected {
		if t, ok := r.tracks[id]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}
