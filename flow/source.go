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
package flow

import (
	"context"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/segment/zone"
)

// batchSize is the row count per Batch a Source emits. Chosen to match
// zone.DefaultRowsPerZone so a segment source's natural unit (one zone)
// fills exactly one batch.
const batchSize = zone.DefaultRowsPerZone

// RowSource produces rows for a pipeline to chunk into batches. A
// memtable passive-buffer snapshot and a segment's reconstructed rows
// both satisfy it by returning their full row set; the Source operator
// does the chunking so callers never build Batch values by hand.
type RowSource interface {
	Rows() ([]event.Event, error)
}

// StaticRows adapts an already-materialized row slice (a memtable
// snapshot, a passive-buffer queue snapshot) into a RowSource.
type StaticRows []event.Event

// Rows returns the wrapped slice.
func (r StaticRows) Rows() ([]event.Event, error) { return []event.Event(r), nil }

// SegmentSource adapts a segment directory into a RowSource. Rows
// reads every zone of the segment into memory in one call.
type SegmentSource struct {
	dir string
}

// NewSegmentSource creates a RowSource over the segment at dir.
func NewSegmentSource(dir string) SegmentSource { return SegmentSource{dir: dir} }

// Rows opens the segment, reads every zone, and closes it.
func (s SegmentSource) Rows() ([]event.Event, error) {
	sr, err := zone.OpenSegmentReader(s.dir)
	if err != nil {
		return nil, err
	}
	defer sr.Close()
	return sr.ReadAll()
}

// Source runs src in its own goroutine, chunking its rows into
// fixed-size batches and feeding them into the returned Channel. The
// channel is closed once every row has been sent or ctx is cancelled,
// mirroring storage/scan.go's gls.Go producer feeding a bounded
// chan scm.Scmer that the caller drains until it closes.
func Source(ctx context.Context, src RowSource) (*Channel, <-chan error) {
	out := NewChannel(4)
	errc := make(chan error, 1)
	go func() {
		defer out.Close()
		defer close(errc)
		rows, err := src.Rows()
		if err != nil {
			errc <- err
			return
		}
		for start := 0; start < len(rows); start += batchSize {
			end := start + batchSize
			if end > len(rows) {
				end = len(rows)
			}
			b := GetBatch()
			b.Rows = append(b.Rows, rows[start:end]...)
			out.Send(ctx, b)
		}
	}()
	return out, errc
}
