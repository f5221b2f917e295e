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
// Package replay reconstructs a (event_type, context_id) event stream,
// choosing between scanning raw storage outright and reading a
// materialized snapshot plus only the storage delta written since it.
package replay

import (
	"context"
	"sort"

	"github.com/sneldb/sneldb/event"
)

// Snapshot names a materialized query result replay can read instead
// of rescanning every event: the span of timestamps it already covers
// and where its body lives.
type Snapshot struct {
	StartTS uint64
	EndTS   uint64
	Path    string
}

// Request describes one replay: which context and event type, and
// optionally a SINCE timestamp and a Snapshot to read ahead of it.
type Request struct {
	EventType string
	ContextID string
	Since     *uint64
	Snapshot  *Snapshot
}

// RawSource scans storage directly for a context's events of one type,
// at or after since. Implemented by the shard package's Worker.
type RawSource interface {
	Scan(ctx context.Context, eventType, contextID string, since uint64) ([]event.Event, error)
}

// SnapshotSource loads a materialized snapshot's events, already
// filtered to one event type.
type SnapshotSource interface {
	Load(ctx context.Context, snap Snapshot, eventType string) ([]event.Event, error)
}

// Engine decides which replay strategy a Request calls for and
// executes it.
type Engine struct {
	raw  RawSource
	snap SnapshotSource
}

// NewEngine creates a replay Engine backed by raw and snap.
func NewEngine(raw RawSource, snap SnapshotSource) *Engine {
	return &Engine{raw: raw, snap: snap}
}

// Replay executes req and returns its event stream sorted by
// non-decreasing timestamp — the replay monotonicity invariant holds
// regardless of which strategy produced the rows.
//
// IgnoreSnapshot: no SINCE given, or req carries no Snapshot — scan raw
// storage, filtering by timestamp >= SINCE if SINCE was given.
//
// UseSnapshot: load the snapshot's rows (already end_ts-bounded),
// filtered by SINCE if given; scan raw storage for the delta
// timestamp >= max(snapshot.EndTS+1, SINCE); concatenate and sort.
func (e *Engine) Replay(ctx context.Context, req Request) ([]event.Event, error) {
	if req.Snapshot == nil || req.Since == nil {
		return e.ignoreSnapshot(ctx, req)
	}
	return e.useSnapshot(ctx, req, *req.Snapshot)
}

func (e *Engine) ignoreSnapshot(ctx context.Context, req Request) ([]event.Event, error) {
	since := uint64(0)
	if req.Since != nil {
		since = *req.Since
	}
	rows, err := e.raw.Scan(ctx, req.EventType, req.ContextID, since)
	if err != nil {
		return nil, err
	}
	return sortByTimestamp(rows), nil
}

func (e *Engine) useSnapshot(ctx context.Context, req Request, snap Snapshot) ([]event.Event, error) {
	snapRows, err := e.snap.Load(ctx, snap, req.EventType)
	if err != nil {
		return nil, err
	}
	if req.Since != nil {
		snapRows = filterSince(snapRows, *req.Since)
	}

	deltaSince := snap.EndTS + 1
	if req.Since != nil && *req.Since > deltaSince {
		deltaSince = *req.Since
	}
	deltaRows, err := e.raw.Scan(ctx, req.EventType, req.ContextID, deltaSince)
	if err != nil {
		return nil, err
	}

	merged := make([]event.Event, 0, len(snapRows)+len(deltaRows))
	merged = append(merged, snapRows...)
	merged = append(merged, deltaRows...)
	return sortByTimestamp(merged), nil
}

func filterSince(rows []event.Event, since uint64) []event.Event {
	out := rows[:0:0]
	for _, r := range rows {
		if r.Timestamp >= since {
			out = append(out, r)
		}
	}
	return out
}

func sortByTimestamp(rows []event.Event) []event.Event {
	sort.SliceStable(rows, func(i, j int) bool { return event.Less(rows[i], rows[j]) })
	return rows
}
