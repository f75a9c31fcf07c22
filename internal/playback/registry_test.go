package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

// fakeFetcher serves canned samples per entity and can be told to fail or to
// block until released, for exercising overlapping loads.
type fakeFetcher struct {
	mu      sync.Mutex
	samples map[string][]PositionSample
	err     error
	block   chan struct{} // when non-nil, fetches wait here
	calls   int
}

func (f *fakeFetcher) FetchEntityPositions(ctx context.Context, entityID string, start, end time.Time) ([]PositionSample, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	err := f.err
	samples := f.samples[entityID]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return samples, nil
}

func newTestRegistry(f *fakeFetcher, maxPoints int) *TrackRegistry {
	return NewTrackRegistry(f, maxPoints, log.New(io.Discard, "", 0))
}

func seriesFor(t *testing.T, n int) []PositionSample {
	t.Helper()
	out := make([]PositionSample, n)
	for i := range out {
		out[i] = sampleAt(t, int64(i*10))
	}
	return out
}

func TestLoadTrackDownsamplesAndIndexes(t *testing.T) {
	f := &fakeFetcher{samples: map[string][]PositionSample{
		"veh-1": seriesFor(t, 11),
	}}
	r := newTestRegistry(f, 5)
	r.SetSelection([]string{"veh-1"})

	if err := r.LoadTrack(context.Background(), "veh-1", time.Unix(baseEpoch, 0), time.Unix(baseEpoch+1000, 0)); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}

	track := r.GetTrack("veh-1")
	if track == nil {
		t.Fatal("track not stored")
	}
	if len(track.Samples) != 5 {
		t.Errorf("expected 5 downsampled points, got %d", len(track.Samples))
	}
	if track.Len() != 5 {
		t.Errorf("expected index length 5, got %d", track.Len())
	}
	if last, ok := track.Index().Last(); !ok || last.Timestamp != sampleAt(t, 100).Timestamp {
		t.Errorf("final sample not preserved: %+v", last)
	}
}

func TestLoadTrackFailureKeepsPriorTrack(t *testing.T) {
	f := &fakeFetcher{samples: map[string][]PositionSample{
		"p-1": seriesFor(t, 3),
	}}
	r := newTestRegistry(f, 100)
	r.SetSelection([]string{"p-1"})

	if err := r.LoadTrack(context.Background(), "p-1", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	f.mu.Lock()
	f.err = errors.New("backend unavailable")
	f.mu.Unlock()

	err := r.LoadTrack(context.Background(), "p-1", time.Time{}, time.Time{})
	if err == nil {
		t.Fatal("expected load error")
	}
	if track := r.GetTrack("p-1"); track == nil || track.Len() != 3 {
		t.Errorf("prior track should survive a failed reload, got %+v", track)
	}
}

func TestSetSelectionEvictsDeselected(t *testing.T) {
	f := &fakeFetcher{samples: map[string][]PositionSample{
		"a": seriesFor(t, 2),
		"b": seriesFor(t, 2),
	}}
	r := newTestRegistry(f, 100)
	r.SetSelection([]string{"a", "b"})
	r.LoadSelection(context.Background(), time.Time{}, time.Time{})

	if r.GetTrack("a") == nil || r.GetTrack("b") == nil {
		t.Fatal("expected both tracks loaded")
	}

	r.SetSelection([]string{"b"})
	if r.GetTrack("a") != nil {
		t.Error("deselected track should be evicted")
	}
	if r.GetTrack("b") == nil {
		t.Error("still-selected track should remain")
	}
	if r.IsSelected("a") || !r.IsSelected("b") {
		t.Errorf("selection state wrong: %v", r.Selected())
	}
}

// A load started later must win even when the earlier fetch resolves after
// it (last-write-wins by entity).
func TestOverlappingLoadsLastWriteWins(t *testing.T) {
	block := make(chan struct{})
	f := &fakeFetcher{
		samples: map[string][]PositionSample{"e": seriesFor(t, 2)},
		block:   block,
	}
	r := newTestRegistry(f, 100)
	r.SetSelection([]string{"e"})

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- r.LoadTrack(context.Background(), "e", time.Time{}, time.Time{})
	}()

	// Wait for the first fetch to be in flight.
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		calls := f.calls
		f.mu.Unlock()
		if calls >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first fetch never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Second load completes immediately with a longer series.
	f.mu.Lock()
	f.block = nil
	f.samples["e"] = seriesFor(t, 4)
	f.mu.Unlock()
	if err := r.LoadTrack(context.Background(), "e", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("second load: %v", err)
	}

	// Release the first fetch; its stale result must not overwrite.
	close(block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first load: %v", err)
	}

	track := r.GetTrack("e")
	if track == nil || track.Len() != 4 {
		t.Fatalf("stale load overwrote newer track: %+v", track)
	}
}

func TestLoadSelectionConcurrent(t *testing.T) {
	samples := make(map[string][]PositionSample)
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("ent-%d", i)
		samples[ids[i]] = seriesFor(t, 20)
	}
	f := &fakeFetcher{samples: samples}
	r := newTestRegistry(f, 10)
	r.SetSelection(ids)
	r.LoadSelection(context.Background(), time.Time{}, time.Time{})

	tracks := r.SelectedTracks()
	if len(tracks) != len(ids) {
		t.Fatalf("expected %d loaded tracks, got %d", len(ids), len(tracks))
	}
	for _, track := range tracks {
		if track.Len() == 0 {
			t.Errorf("track %s empty after load", track.EntityID)
		}
	}
}
