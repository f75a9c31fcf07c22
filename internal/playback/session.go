package playback

import (
	"log"
	"time"
)

// Session is the coordinator the rendering side talks to: it owns a track
// registry and a clock, computes union bounds across the selected tracks,
// and resolves per-entity positions at the clock cursor. It is the only
// query surface the render layer consumes; the renderer polls it on its own
// cadence.
type Session struct {
	Registry *TrackRegistry
	Clock    *Clock
}

// NewSession wires a registry and a clock together. The clock reads the
// selection bounds back from the session.
func NewSession(fetcher PositionFetcher, maxPoints int, tickInterval time.Duration, logger *log.Logger) *Session {
	s := &Session{
		Registry: NewTrackRegistry(fetcher, maxPoints, logger),
	}
	s.Clock = NewClock(s, tickInterval, logger)
	return s
}

// Bounds computes the union time bounds across the currently selected
// tracks: min of all track starts, max of all track ends. Tracks with zero
// parseable samples are ignored; ok is false when nothing remains.
func (s *Session) Bounds() (Bounds, bool) {
	var b Bounds
	found := false
	for _, track := range s.Registry.SelectedTracks() {
		start, end, ok := track.Index().Span()
		if !ok {
			continue
		}
		if !found || start < b.Start {
			b.Start = start
		}
		if !found || end > b.End {
			b.End = end
		}
		found = true
	}
	return b, found
}

// Resolve returns the entity's position at the given instant: the latest
// sample at or before atNanos. A nil atNanos means no playback is active and
// resolves to the entity's last known sample. The second return is false
// when the entity has no track, its track is empty, or it has not appeared
// yet at that point in the combined timeline — such entities are simply not
// drawn.
func (s *Session) Resolve(entityID string, atNanos *int64) (PositionSample, bool) {
	track := s.Registry.GetTrack(entityID)
	if track == nil {
		return PositionSample{}, false
	}
	idx := track.Index()
	if atNanos == nil {
		return idx.Last()
	}
	i, ok := idx.QueryAtOrBefore(*atNanos)
	if !ok {
		return PositionSample{}, false
	}
	return idx.Sample(i), true
}

// ResolvePositions resolves every requested entity at the current cursor,
// once per tick or render frame. Entities without a position at the cursor
// are omitted from the map. Each entity resolves independently; tracks still
// loading are treated as absent.
func (s *Session) ResolvePositions(entityIDs []string) map[string]PositionSample {
	st := s.Clock.State()
	out := make(map[string]PositionSample, len(entityIDs))
	for _, id := range entityIDs {
		if sample, ok := s.Resolve(id, st.Cursor); ok {
			out[id] = sample
		}
	}
	return out
}
