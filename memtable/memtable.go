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
// Package memtable holds the row buffer a shard appends into between
// flushes: an unsorted, growable slice of events guarded by a single
// mutex, generalized from storage/shard.go's storageShard.inserts delta
// buffer to the fixed event tuple this store persists.
package memtable

import (
	"sync"

	"github.com/sneldb/sneldb/event"
)

// Table is a bounded, append-only buffer of events for one shard. Rows are
// kept in insertion order; callers needing flush-time ordering sort the
// slice Drain returns.
type Table struct {
	mu       sync.Mutex
	rows     []event.Event
	capacity int
}

// New creates an empty Table with the given row capacity hint. Capacity
// is advisory: Push never rejects a row, it only drives ShouldFlush.
func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = 1
	}
	return &Table{rows: make([]event.Event, 0, capacity), capacity: capacity}
}

// Push appends ev to the buffer.
func (t *Table) Push(ev event.Event) {
	t.mu.Lock()
	t.rows = append(t.rows, ev)
	t.mu.Unlock()
}

// Len returns the number of rows currently buffered.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Cap returns the configured flush-trigger capacity.
func (t *Table) Cap() int { return t.capacity }

// ShouldFlush reports whether the buffer has reached its configured
// capacity and should be handed off to a passive buffer for flushing.
func (t *Table) ShouldFlush() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows) >= t.capacity
}

// Snapshot returns a copy of the currently buffered rows without clearing
// the table, used by reads that must see unflushed writes.
func (t *Table) Snapshot() []event.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]event.Event, len(t.rows))
	copy(out, t.rows)
	return out
}

// Drain atomically removes and returns every buffered row, leaving the
// table empty. Called once a Table is frozen into a passive buffer ahead
// of flush.
func (t *Table) Drain() []event.Event {
	t.mu.Lock()
	rows := t.rows
	t.rows = make([]event.Event, 0, t.capacity)
	t.mu.Unlock()
	return rows
}
