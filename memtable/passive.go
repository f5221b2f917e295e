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
package memtable

import (
	"sync"

	"github.com/sneldb/sneldb/event"
)

// Passive is a frozen, read-only view of a Table that has been handed off
// to the flush pipeline. Reads keep consulting it until the flush
// publishes its segment, so a row is never invisible between freeze and
// publish. Mirrors storage/shard.go's storageShard.next chaining, where
// the old shard stays queryable while a rebuild runs in the background.
type Passive struct {
	rows []event.Event
	done bool
}

// Rows returns the frozen rows p holds, for the flush pipeline to write
// out once it picks p up.
func (p *Passive) Rows() []event.Event { return p.rows }

// Queue holds every Passive buffer still awaiting publish, oldest first.
type Queue struct {
	mu      sync.RWMutex
	entries []*Passive
}

// NewQueue returns an empty passive-buffer queue.
func NewQueue() *Queue { return &Queue{} }

// Freeze drains t and pushes the frozen rows onto the queue, returning
// the Passive handle the flush pipeline will later mark Publish on.
func (q *Queue) Freeze(t *Table) *Passive {
	p := &Passive{rows: t.Drain()}
	q.mu.Lock()
	q.entries = append(q.entries, p)
	q.mu.Unlock()
	return p
}

// Publish drops p from the queue once its rows are durably present in a
// flushed segment. Rows in p become visible only through the segment
// from this point; the queue never re-serves them.
func (q *Queue) Publish(p *Passive) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p.done = true
	kept := q.entries[:0]
	for _, e := range q.entries {
		if !e.done {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}

// Snapshot returns the concatenation of every not-yet-published passive
// buffer's rows, for a read that must see writes already frozen out of
// the active Table but not yet queryable through a segment.
func (q *Queue) Snapshot() []event.Event {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []event.Event
	for _, p := range q.entries {
		out = append(out, p.rows...)
	}
	return out
}

// Len reports how many passive buffers are still awaiting publish.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}
