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
// Package flow runs a query as a small pipeline of operators connected
// by bounded channels of row batches: a Source produces batches, Filter
// and Project narrow them, Aggregate folds them — the same
// producer/bounded-channel/consumer shape storage/scan.go uses for its
// map-reduce table scan, generalized from one ad hoc scan function into
// composable operators a query plan assembles per request.
package flow

import (
	"context"
	"sync"

	"github.com/sneldb/sneldb/event"
)

// Batch is an immutable slice of rows moving through a pipeline stage.
// Operators never mutate a Batch in place; Filter and Project produce
// new ones, except that Project with no fields returns its input
// Channel unchanged.
type Batch struct {
	Rows []event.Event
}

var batchPool = sync.Pool{New: func() any { return &Batch{Rows: make([]event.Event, 0, 256)} }}

// GetBatch returns a pooled, empty Batch.
func GetBatch() *Batch {
	b := batchPool.Get().(*Batch)
	b.Rows = b.Rows[:0]
	return b
}

// PutBatch returns b to the pool once nothing downstream still holds it.
func PutBatch(b *Batch) { batchPool.Put(b) }

// Channel is a bounded, single-producer/single-consumer pipe of
// batches. Send and Recv both honor ctx cancellation, treating it as a
// benign end of stream rather than an error: a cancelled query drains
// quietly instead of surfacing "channel closed" as a failure.
type Channel struct {
	ch     chan *Batch
	closed chan struct{}
	once   sync.Once
}

// NewChannel creates a Channel buffering up to capacity batches.
func NewChannel(capacity int) *Channel {
	return &Channel{ch: make(chan *Batch, capacity), closed: make(chan struct{})}
}

// Send delivers b downstream, or drops it silently once the channel has
// been closed or ctx cancelled.
func (c *Channel) Send(ctx context.Context, b *Batch) {
	select {
	case c.ch <- b:
	case <-c.closed:
	case <-ctx.Done():
	}
}

// Recv returns the next batch, or (nil, false) once the stream has
// ended — either because Close was called or ctx was cancelled. Both
// are treated identically by callers: stop reading, do not error.
func (c *Channel) Recv(ctx context.Context) (*Batch, bool) {
	select {
	case b, ok := <-c.ch:
		return b, ok
	case <-c.closed:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Close signals every blocked Send/Recv to stop and closes the
// underlying channel exactly once.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.closed)
		close(c.ch)
	})
}
