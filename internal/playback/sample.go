// Package playback implements the temporal position playback engine behind
// the entity-history view: bounded downsampling of raw position series, a
// binary-searchable temporal index per entity, a registry of selected entity
// tracks, and a scrubbable variable-speed playback clock.
package playback

import (
	"time"
)

// PositionSample is a single timestamped position report for an entity.
// Timestamps arrive as strings on the wire (the game server emits RFC3339)
// and are parsed once, at index build time. A sample is immutable once
// created.
type PositionSample struct {
	Timestamp string  `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

// Instant parses the sample timestamp to unix nanoseconds. The second return
// is false when the timestamp cannot be parsed; such samples are excluded
// during index construction.
func (s PositionSample) Instant() (int64, bool) {
	t, err := time.Parse(time.RFC3339, s.Timestamp)
	if err != nil {
		// Some fleet backends emit space-separated timestamps without a zone.
		t, err = time.Parse("2006-01-02 15:04:05", s.Timestamp)
		if err != nil {
			return 0, false
		}
		t = t.UTC()
	}
	return t.UnixNano(), true
}

// EntityKind distinguishes the tracked subject types the dashboard knows.
type EntityKind string

const (
	EntityPlayer  EntityKind = "player"
	EntityVehicle EntityKind = "vehicle"
)

// EntityTrack is the loaded position history for one entity over one
// requested range. Tracks are replaced wholesale when a new range is loaded
// and evicted when the entity is deselected; the sample slice is never
// mutated in place.
type EntityTrack struct {
	EntityID string
	Samples  []PositionSample

	index *TemporalIndex
}

// Index returns the temporal index derived from the track's samples.
func (t *EntityTrack) Index() *TemporalIndex {
	return t.index
}

// Len reports the number of indexed (parseable) samples in the track.
func (t *EntityTrack) Len() int {
	if t == nil || t.index == nil {
		return 0
	}
	return t.index.Len()
}
