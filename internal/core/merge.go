package core

import (
	"fmt"
	"maps"
	"time"

	"github.com/valter-silva-au/signal-radar/pkg/models"
)

// MergeOptions bounds the sequences and channel values a merge produces.
type MergeOptions struct {
	FeedLimit       int
	RadarEventLimit int
	ArcLimit        int
	ChannelMin      float64
	ChannelMax      float64
}

// DefaultMergeOptions mirrors the defaults in DefaultConfig.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{
		FeedLimit:       50,
		RadarEventLimit: 24,
		ArcLimit:        12,
		ChannelMin:      0,
		ChannelMax:      100,
	}
}

// Violation is a delta field that was refused instead of applied.
type Violation struct {
	Field string
	Err   error
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: %v", v.Field, v.Err)
}

// MergeResult is the output of Merge and MergeSnapshot.
type MergeResult struct {
	Model      models.ViewModel
	Violations []Violation
}

// Merge combines current with a partial delta. It never mutates current.
//
// Field policies:
//   - channels: keyed partial update; omitted channels are untouched
//   - feed, radar events, arcs: prepend newest-first, dedupe by id, cap
//   - panels, notice: atomic replace
//   - entity: set once, later changes are refused
//   - revision: always incremented here, never read from the delta
func Merge(current models.ViewModel, delta models.Delta, opts MergeOptions, now time.Time) MergeResult {
	next := cloneViewModel(current)
	var violations []Violation

	if delta.Entity != nil {
		switch {
		case next.Entity == nil:
			e := *delta.Entity
			next.Entity = &e
		case *next.Entity != *delta.Entity:
			violations = append(violations, Violation{
				Field: "entity",
				Err:   fmt.Errorf("%w: have %s, got %s", ErrEntityRedefined, next.Entity.ID, delta.Entity.ID),
			})
		}
	}

	for id, patch := range delta.Channels {
		if id == "" {
			violations = append(violations, Violation{Field: "channels", Err: fmt.Errorf("channel patch without id")})
			continue
		}
		if next.Channels == nil {
			next.Channels = make(map[string]models.ChannelState)
		}
		next.Channels[id] = applyPatch(next.Channels[id], id, patch, opts, now)
	}

	var dropped int
	next.Feed, dropped = prependCapped(next.Feed, delta.Feed, feedKey, opts.FeedLimit)
	if dropped > 0 {
		violations = append(violations, Violation{Field: "feed", Err: fmt.Errorf("%d item(s) without id", dropped)})
	}
	next.RadarEvents, dropped = prependCapped(next.RadarEvents, delta.RadarEvents, radarEventKey, opts.RadarEventLimit)
	if dropped > 0 {
		violations = append(violations, Violation{Field: "radarEvents", Err: fmt.Errorf("%d item(s) without id", dropped)})
	}
	next.Arcs, dropped = prependCapped(next.Arcs, delta.Arcs, arcKey, opts.ArcLimit)
	if dropped > 0 {
		violations = append(violations, Violation{Field: "arcs", Err: fmt.Errorf("%d item(s) without id", dropped)})
	}

	if delta.Panels != nil {
		next.Panels = clonePanels(delta.Panels)
	}

	if delta.ClearNotice {
		next.Notice = nil
	}
	if delta.Notice != nil {
		n := *delta.Notice
		next.Notice = &n
	}

	next.Revision = current.Revision + 1
	return MergeResult{Model: next, Violations: violations}
}

// MergeSnapshot applies a full reveal snapshot. Channels, radar events, arcs
// and panels are replaced outright; snapshot feed items are prepended so
// diagnostics already in the feed survive the reveal.
func MergeSnapshot(current models.ViewModel, snap models.Snapshot, opts MergeOptions, now time.Time) MergeResult {
	next := cloneViewModel(current)
	var violations []Violation

	next.Channels = make(map[string]models.ChannelState, len(snap.Channels))
	for id, ch := range snap.Channels {
		if id == "" {
			violations = append(violations, Violation{Field: "channels", Err: fmt.Errorf("snapshot channel without id")})
			continue
		}
		ch.ID = id
		ch.Value = clamp(ch.Value, opts.ChannelMin, opts.ChannelMax)
		ch.Confidence = clamp(ch.Confidence, 0, 1)
		ch.Direction = models.DirectionOf(ch.Delta)
		if ch.LastUpdatedAt.IsZero() {
			ch.LastUpdatedAt = now
		}
		next.Channels[id] = ch
	}

	var dropped int
	next.Feed, dropped = prependCapped(next.Feed, snap.Feed, feedKey, opts.FeedLimit)
	if dropped > 0 {
		violations = append(violations, Violation{Field: "feed", Err: fmt.Errorf("%d item(s) without id", dropped)})
	}
	next.RadarEvents, _ = prependCapped(nil, snap.RadarEvents, radarEventKey, opts.RadarEventLimit)
	next.Arcs, _ = prependCapped(nil, snap.Arcs, arcKey, opts.ArcLimit)
	next.Panels = clonePanels(snap.Panels)

	next.Revision = current.Revision + 1
	return MergeResult{Model: next, Violations: violations}
}

func applyPatch(ch models.ChannelState, id string, patch models.ChannelPatch, opts MergeOptions, now time.Time) models.ChannelState {
	if ch.ID == "" {
		ch = models.ChannelState{ID: id, Direction: models.DirectionFlat}
	}
	if patch.Value != nil {
		ch.Value = *patch.Value
	}
	ch.Value = clamp(ch.Value, opts.ChannelMin, opts.ChannelMax)
	if patch.Delta != nil {
		ch.Delta = *patch.Delta
		ch.Direction = models.DirectionOf(ch.Delta)
	}
	if patch.Confidence != nil {
		ch.Confidence = clamp(*patch.Confidence, 0, 1)
	}
	if patch.LastUpdatedAt != nil {
		ch.LastUpdatedAt = *patch.LastUpdatedAt
	} else {
		ch.LastUpdatedAt = now
	}
	return ch
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// itemKey exposes the id and ordering timestamp of a bounded-sequence item.
type itemKey[T any] func(T) (string, time.Time)

func feedKey(f models.FeedItem) (string, time.Time)         { return f.ID, f.Timestamp }
func radarEventKey(e models.RadarEvent) (string, time.Time) { return e.ID, e.Timestamp }
func arcKey(a models.Arc) (string, time.Time)               { return a.ID, a.Timestamp }

// prependCapped places incoming items ahead of current, skipping ids that
// are already present, and truncates to limit. Incoming items older than an
// item already in current are interleaved by timestamp so the sequence stays
// non-increasing from head to tail. It returns the number of incoming items
// dropped for lacking an id.
func prependCapped[T any](current, incoming []T, key itemKey[T], limit int) ([]T, int) {
	if len(incoming) == 0 {
		return capSlice(current, limit), 0
	}

	seen := make(map[string]struct{}, len(current)+len(incoming))
	for _, item := range current {
		id, _ := key(item)
		seen[id] = struct{}{}
	}

	fresh := make([]T, 0, len(incoming))
	dropped := 0
	for _, item := range incoming {
		id, _ := key(item)
		if id == "" {
			dropped++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, item)
	}
	sortNewestFirst(fresh, key)

	out := make([]T, 0, len(fresh)+len(current))
	i, j := 0, 0
	for i < len(fresh) && j < len(current) {
		_, ft := key(fresh[i])
		_, ct := key(current[j])
		if !ft.Before(ct) {
			out = append(out, fresh[i])
			i++
		} else {
			out = append(out, current[j])
			j++
		}
	}
	out = append(out, fresh[i:]...)
	out = append(out, current[j:]...)

	return capSlice(out, limit), dropped
}

// sortNewestFirst is a stable insertion sort; deltas are small and almost
// always already ordered.
func sortNewestFirst[T any](items []T, key itemKey[T]) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			_, a := key(items[j-1])
			_, b := key(items[j])
			if !a.Before(b) {
				break
			}
			items[j-1], items[j] = items[j], items[j-1]
		}
	}
}

func capSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit:limit]
	}
	return items
}

func cloneViewModel(vm models.ViewModel) models.ViewModel {
	out := vm
	if vm.Entity != nil {
		e := *vm.Entity
		out.Entity = &e
	}
	if vm.Channels != nil {
		out.Channels = maps.Clone(vm.Channels)
	}
	out.Feed = cloneSlice(vm.Feed)
	out.RadarEvents = cloneSlice(vm.RadarEvents)
	out.Arcs = cloneSlice(vm.Arcs)
	out.Panels = clonePanels(vm.Panels)
	if vm.Notice != nil {
		n := *vm.Notice
		out.Notice = &n
	}
	return out
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func clonePanels(p *models.Panels) *models.Panels {
	if p == nil {
		return nil
	}
	out := *p
	if p.Metrics != nil {
		out.Metrics = maps.Clone(p.Metrics)
	}
	return &out
}
