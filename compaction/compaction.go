/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
// Package compaction merges a level's small segments into fewer, larger
// ones and hands the result over atomically: readers keep using the old
// segment list until the merge finishes, then a single pointer swap
// publishes the new one and the drained segments' cached state is
// invalidated.
//
// Grounded on storage/partition.go's repartition: old shards stay live
// for reads while newshards are built in the background, then the
// table's shard pointer is swapped in one step. Generalized from a
// whole-table resharding operation to a level-aware N-segments-into-one
// merge.
package compaction

import (
	"os"
	"sort"
	"sync"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/flush"
	"github.com/sneldb/sneldb/schema"
	"github.com/sneldb/sneldb/segment/zone"
)

// Loader reconstructs a segment's rows for merging.
type Loader struct{}

// Load opens segment dir and returns every row it contains.
func (Loader) Load(dir string) ([]event.Event, error) {
	sr, err := zone.OpenSegmentReader(dir)
	if err != nil {
		return nil, err
	}
	defer sr.Close()
	return sr.ReadAll()
}

// Merger k-way merges already-sorted per-segment row slices into one
// timestamp-ordered slice.
type Merger struct{}

// Merge combines sorted per-segment rows, preserving (timestamp, event
// id) order across segment boundaries.
func (Merger) Merge(perSegment [][]event.Event) []event.Event {
	total := 0
	for _, s := range perSegment {
		total += len(s)
	}
	out := make([]event.Event, 0, total)
	idx := make([]int, len(perSegment))
	for {
		best := -1
		for i, rows := range perSegment {
			if idx[i] >= len(rows) {
				continue
			}
			if best == -1 || event.Less(rows[idx[i]], perSegment[best][idx[best]]) {
				best = i
			}
		}
		if best == -1 {
			break
		}
		out = append(out, perSegment[best][idx[best]])
		idx[best]++
	}
	return out
}

// Handover atomically swaps a shard's segment list and forgets the
// drained segments' cached state.
type Handover struct {
	mu           sync.Mutex
	segments     []flush.SegmentMeta
	onInvalidate func(segmentID string)
}

// NewHandover creates a Handover seeded with the shard's current segment
// list. onInvalidate, if non-nil, is called once per drained segment id
// after the new segment list is live, so query caches can drop anything
// keyed on it.
func NewHandover(initial []flush.SegmentMeta, onInvalidate func(segmentID string)) *Handover {
	return &Handover{segments: append([]flush.SegmentMeta(nil), initial...), onInvalidate: onInvalidate}
}

// Segments returns the currently published segment list.
func (h *Handover) Segments() []flush.SegmentMeta {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]flush.SegmentMeta(nil), h.segments...)
}

// Add registers a newly flushed segment (not part of a compaction).
func (h *Handover) Add(seg flush.SegmentMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.segments = append(h.segments, seg)
}

// CommitBatch atomically replaces drained with replacement in the
// segment list, then invalidates each drained segment's cached state
// and removes its directory from disk. The swap happens before any
// deletion or invalidation, and the directories are removed right
// after it: nothing waits for a read that captured the old segment
// list before the swap.
func (h *Handover) CommitBatch(drained []flush.SegmentMeta, replacement flush.SegmentMeta) {
	drainedIDs := make(map[string]struct{}, len(drained))
	for _, s := range drained {
		drainedIDs[s.ID] = struct{}{}
	}

	h.mu.Lock()
	kept := h.segments[:0]
	for _, s := range h.segments {
		if _, gone := drainedIDs[s.ID]; !gone {
			kept = append(kept, s)
		}
	}
	h.segments = append(kept, replacement)
	h.mu.Unlock()

	for _, s := range drained {
		if h.onInvalidate != nil {
			h.onInvalidate(s.ID)
		}
		os.RemoveAll(s.Dir)
	}
}

// Compactor merges a batch of segments into one, in ascending RowCount
// order so the smallest segments combine first (mirrors a level-based
// LSM compaction schedule: small segments accumulate and are folded
// together before they compete with a level's larger segments).
type Compactor struct {
	manager  *flush.Manager
	loader   Loader
	merger   Merger
	handover *Handover
	schemas  map[string]*schema.Schema
}

// NewCompactor creates a Compactor writing merged segments through manager.
func NewCompactor(manager *flush.Manager, handover *Handover, schemas map[string]*schema.Schema) *Compactor {
	return &Compactor{manager: manager, loader: Loader{}, merger: Merger{}, handover: handover, schemas: schemas}
}

// CompactBatch merges the given segments into one and commits the
// result through the Compactor's Handover.
func (c *Compactor) CompactBatch(batch []flush.SegmentMeta) (flush.SegmentMeta, error) {
	sorted := append([]flush.SegmentMeta(nil), batch...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RowCount < sorted[j].RowCount })

	perSegment := make([][]event.Event, len(sorted))
	for i, seg := range sorted {
		rows, err := c.loader.Load(seg.Dir)
		if err != nil {
			return flush.SegmentMeta{}, err
		}
		perSegment[i] = rows
	}
	merged := c.merger.Merge(perSegment)

	result, err := c.manager.Flush(merged, c.schemas)
	if err != nil {
		return flush.SegmentMeta{}, err
	}
	c.handover.CommitBatch(sorted, result)
	return result, nil
}
