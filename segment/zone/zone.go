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
// Package zone lays rows flushed out of a memtable into fixed-size,
// contiguous row ranges ("zones") and serializes each field into its own
// compressed column block, generalizing storage/storage-int.go's
// per-column Serialize/Deserialize idiom from a single whole-table
// column to many small per-zone column blocks that pruning indexes can
// skip independently.
package zone

import (
	"sort"

	"github.com/sneldb/sneldb/event"
)

// Meta describes one zone's row range within a segment: Rows are sorted by
// event.SortKey (context id, timestamp, event id) within the zone, and
// zones are laid out back to back covering the whole segment.
type Meta struct {
	ID        int
	StartRow  int
	RowCount  int
	MinTS     uint64
	MaxTS     uint64
}

// DefaultRowsPerZone bounds how many rows land in one zone; smaller zones
// prune more precisely at the cost of more index entries.
const DefaultRowsPerZone = 4096

// Plan sorts rows by (context_id, timestamp, event_id) and slices them
// into contiguous zones of at most rowsPerZone rows each, returning the
// sorted rows alongside their zone metadata.
func Plan(rows []event.Event, rowsPerZone int) ([]event.Event, []Meta) {
	if rowsPerZone <= 0 {
		rowsPerZone = DefaultRowsPerZone
	}
	sorted := make([]event.Event, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return event.SortKey(sorted[i], sorted[j]) })

	var zones []Meta
	for start := 0; start < len(sorted); start += rowsPerZone {
		end := start + rowsPerZone
		if end > len(sorted) {
			end = len(sorted)
		}
		z := Meta{ID: len(zones), StartRow: start, RowCount: end - start}
		z.MinTS, z.MaxTS = sorted[start].Timestamp, sorted[start].Timestamp
		for _, r := range sorted[start:end] {
			if r.Timestamp < z.MinTS {
				z.MinTS = r.Timestamp
			}
			if r.Timestamp > z.MaxTS {
				z.MaxTS = r.Timestamp
			}
		}
		zones = append(zones, z)
	}
	return sorted, zones
}

// Rows returns the row slice of sorted that belongs to zone z.
func Rows(sorted []event.Event, z Meta) []event.Event {
	return sorted[z.StartRow : z.StartRow+z.RowCount]
}
