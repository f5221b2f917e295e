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
// Package flush drains a frozen (passive) memtable into a new, immutable
// segment: zones are planned, every field's column and pruning indexes
// are written, and the segment is registered so reads can find it —
// after which the originating passive buffer is published and dropped.
//
// Grounded on storage/partition.go's repartition/rebuild pair: a
// background worker builds the new, compressed representation while the
// old one stays live for reads, then an atomic pointer swap publishes
// it; generalized here from whole-table column rebuilds to one-time
// memtable-to-segment materialization, and from partition.go's
// half-the-cores worker pool to a per-field fan-out bounded by
// runtime.NumCPU.
package flush

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/schema"
	"github.com/sneldb/sneldb/segment/pruning"
	"github.com/sneldb/sneldb/segment/zone"
	"github.com/sneldb/sneldb/snelerr"
)

// SegmentMeta is a segment's entry in the shard's segment list.
type SegmentMeta struct {
	ID       string
	Dir      string
	RowCount int
	MinTS    uint64
	MaxTS    uint64
}

// Manager flushes passive memtable rows into segments under baseDir.
type Manager struct {
	baseDir     string
	shardID     int
	rowsPerZone int
}

// NewManager creates a flush Manager writing segments under
// <baseDir>/shard-<shardID>/segments.
func NewManager(baseDir string, shardID, rowsPerZone int) *Manager {
	if rowsPerZone <= 0 {
		rowsPerZone = zone.DefaultRowsPerZone
	}
	return &Manager{baseDir: baseDir, shardID: shardID, rowsPerZone: rowsPerZone}
}

func (m *Manager) segmentsDir() string {
	return filepath.Join(m.baseDir, fmt.Sprintf("shard-%d", m.shardID), "segments")
}

// Flush plans zones for rows, writes every field's column and pruning
// indexes (fanned out across up to runtime.NumCPU() workers), and
// returns the new segment's metadata. schemas maps event_type to its
// Schema so every declared field gets a column, not just the fields
// present in this particular batch of rows.
func (m *Manager) Flush(rows []event.Event, schemas map[string]*schema.Schema) (SegmentMeta, error) {
	if len(rows) == 0 {
		return SegmentMeta{}, snelerr.New(snelerr.BadRequest, "flush: no rows to flush")
	}
	sorted, zones := zone.Plan(rows, m.rowsPerZone)

	segID := uuid.NewString()
	dir := filepath.Join(m.segmentsDir(), segID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return SegmentMeta{}, snelerr.Wrap(snelerr.Internal, err, "flush: mkdir segment")
	}

	fields := collectFields(sorted, schemas)

	zoneIDs := make([]int, len(zones))
	for i, z := range zones {
		zoneIDs[i] = z.ID
	}
	mins := make([]uint64, len(zones))
	maxs := make([]uint64, len(zones))
	for i, z := range zones {
		mins[i], maxs[i] = z.MinTS, z.MaxTS
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.NumCPU())
	errs := make(chan error, len(fields)+2)

	wg.Add(1)
	sem <- struct{}{}
	go func() {
		defer wg.Done()
		defer func() { <-sem }()
		get := func(row int) (string, bool) { return string(sorted[row].Payload), true }
		if err := zone.WriteColumn(dir, "payload", zones, get); err != nil {
			errs <- err
		}
	}()

	for _, field := range fields {
		field := field
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := writeField(dir, field, sorted, zones); err != nil {
				errs <- err
			}
		}()
	}
	wg.Add(1)
	sem <- struct{}{}
	go func() {
		defer wg.Done()
		defer func() { <-sem }()
		ti := pruning.BuildTemporalIndex(zoneIDs, mins, maxs)
		if err := ti.Write(dir); err != nil {
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return SegmentMeta{}, err
		}
	}

	if err := zone.WriteMeta(dir, zones); err != nil {
		return SegmentMeta{}, err
	}

	meta := SegmentMeta{ID: segID, Dir: dir, RowCount: len(sorted)}
	if len(zones) > 0 {
		meta.MinTS, meta.MaxTS = zones[0].MinTS, zones[len(zones)-1].MaxTS
	}
	return meta, nil
}

// writeField writes one field's column block plus whichever pruning
// indexes suit its observed values: an EnumBitmap when every non-null
// value matches a small, stable set of variants (<=32, the point an
// enum-style index stops paying for itself), a RangeIndex always (cheap,
// and every comparable field benefits from range pruning), and a
// ZoneXor as the general-purpose equality fallback.
func writeField(dir, field string, sorted []event.Event, zones []zone.Meta) error {
	get := func(row int) (string, bool) { return fieldValue(sorted[row], field) }
	if err := zone.WriteColumn(dir, field, zones, get); err != nil {
		return err
	}

	valuesByZone := make([][]string, len(zones))
	var allDistinct = map[string]struct{}{}
	zoneIDs := make([]int, len(zones))
	mins := make([]string, len(zones))
	maxs := make([]string, len(zones))
	var flatValues []string
	var flatZones []int

	for i, z := range zones {
		seen := map[string]struct{}{}
		var min, max string
		first := true
		for row := z.StartRow; row < z.StartRow+z.RowCount; row++ {
			v, ok := fieldValue(sorted[row], field)
			if !ok {
				continue
			}
			if _, dup := seen[v]; !dup {
				seen[v] = struct{}{}
				valuesByZone[i] = append(valuesByZone[i], v)
			}
			allDistinct[v] = struct{}{}
			flatValues = append(flatValues, v)
			flatZones = append(flatZones, z.ID)
			enc := pruning.SortableValue(v)
			if first || enc < min {
				min = enc
			}
			if first || enc > max {
				max = enc
			}
			first = false
		}
		zoneIDs[i] = z.ID
		mins[i], maxs[i] = min, max
	}

	if err := pruning.BuildRangeIndex(zoneIDs, mins, maxs).Write(dir, field); err != nil {
		return err
	}
	if err := pruning.NewZoneIndex(flatValues, flatZones).Write(dir, field); err != nil {
		return err
	}
	if len(allDistinct) > 0 && len(allDistinct) <= 32 {
		variants := make([]string, 0, len(allDistinct))
		for v := range allDistinct {
			variants = append(variants, v)
		}
		bm := pruning.NewEnumBitmap(variants)
		idxOf := make(map[string]int, len(variants))
		for i, v := range variants {
			idxOf[v] = i
		}
		for i, values := range valuesByZone {
			for _, v := range values {
				bm.Mark(idxOf[v], zones[i].ID)
			}
		}
		if err := bm.Write(dir, field); err != nil {
			return err
		}
	}
	return pruning.BuildZoneXor(zoneIDs, valuesByZone).Write(dir, field)
}

// fieldValue extracts field's string representation from a row: the
// fixed event columns by name, otherwise a lookup into the JSON payload.
func fieldValue(ev event.Event, field string) (string, bool) {
	switch field {
	case "context_id":
		return ev.ContextID, true
	case "event_type":
		return ev.EventType, true
	case "timestamp":
		return fmt.Sprintf("%020d", ev.Timestamp), true
	case "event_id":
		return fmt.Sprintf("%020d", ev.EventID), true
	}
	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return "", false
	}
	v, ok := payload[field]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

// collectFields returns every field worth writing a column for: the four
// fixed event columns plus every declared payload field across schemas.
func collectFields(rows []event.Event, schemas map[string]*schema.Schema) []string {
	fields := []string{"context_id", "event_type", "timestamp", "event_id"}
	seen := map[string]struct{}{"context_id": {}, "event_type": {}, "timestamp": {}, "event_id": {}}
	for _, s := range schemas {
		for name := range s.Fields {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				fields = append(fields, name)
			}
		}
	}
	return fields
}
