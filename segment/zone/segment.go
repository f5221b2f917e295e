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
package zone

import (
	"strconv"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/snelerr"
)

// SegmentReader reconstructs full events out of a segment directory's
// fixed columns (context_id, event_type, timestamp, event_id, payload),
// independent of whatever schema-declared field columns also live
// there. Used by the flow engine's segment source and by compaction,
// which both need whole rows rather than one field at a time.
type SegmentReader struct {
	dir   string
	zones []Meta
	cols  map[string]*ColumnReader
}

// OpenSegmentReader opens every fixed column of the segment at dir.
func OpenSegmentReader(dir string) (*SegmentReader, error) {
	zones, err := ReadMeta(dir)
	if err != nil {
		return nil, err
	}
	sr := &SegmentReader{dir: dir, zones: zones, cols: make(map[string]*ColumnReader)}
	for _, field := range []string{"context_id", "event_type", "timestamp", "event_id", "payload"} {
		cr, err := OpenColumnReader(dir, field)
		if err != nil {
			sr.Close()
			return nil, err
		}
		sr.cols[field] = cr
	}
	return sr, nil
}

// Zones returns the segment's zone metadata.
func (sr *SegmentReader) Zones() []Meta { return sr.zones }

// ReadZoneRows reconstructs every event in the given zone.
func (sr *SegmentReader) ReadZoneRows(zoneID int) ([]event.Event, error) {
	ctxCol, err := sr.cols["context_id"].ReadZone(zoneID)
	if err != nil {
		return nil, err
	}
	typeCol, err := sr.cols["event_type"].ReadZone(zoneID)
	if err != nil {
		return nil, err
	}
	tsCol, err := sr.cols["timestamp"].ReadZone(zoneID)
	if err != nil {
		return nil, err
	}
	idCol, err := sr.cols["event_id"].ReadZone(zoneID)
	if err != nil {
		return nil, err
	}
	payloadCol, err := sr.cols["payload"].ReadZone(zoneID)
	if err != nil {
		return nil, err
	}

	n := ctxCol.Len()
	rows := make([]event.Event, n)
	for i := 0; i < n; i++ {
		ctx, _ := ctxCol.At(i)
		etype, _ := typeCol.At(i)
		tsStr, _ := tsCol.At(i)
		idStr, _ := idCol.At(i)
		payload, _ := payloadCol.At(i)
		ts, err := strconv.ParseUint(tsStr, 10, 64)
		if err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: parse timestamp column")
		}
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: parse event_id column")
		}
		rows[i] = event.Event{
			EventID: id, Timestamp: ts, EventType: etype, ContextID: ctx,
			Payload: []byte(payload),
		}
	}
	return rows, nil
}

// ReadAll reconstructs every row in the segment, in zone order.
func (sr *SegmentReader) ReadAll() ([]event.Event, error) {
	var all []event.Event
	for _, z := range sr.zones {
		rows, err := sr.ReadZoneRows(z.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// Close releases every open column reader.
func (sr *SegmentReader) Close() error {
	var first error
	for _, cr := range sr.cols {
		if err := cr.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
