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
package shard

import (
	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/flow"
	"github.com/sneldb/sneldb/segment/pruning"
	"github.com/sneldb/sneldb/segment/zone"
	"github.com/sneldb/sneldb/zoneselect"
)

// segmentRows reads a query's candidate rows out of one flushed segment:
// the zone selector narrows which zones are even opened, using whatever
// per-field indexes happen to exist on disk; a field with no index (or
// one still mid-build) conservatively selects every zone. Row-level
// filtering still happens afterward in the flow pipeline, so a
// conservative selection here only costs extra reads, never a wrong
// answer.
func segmentRows(segmentID, dir string, predicates []flow.Predicate) ([]event.Event, error) {
	sr, err := zone.OpenSegmentReader(dir)
	if err != nil {
		return nil, err
	}
	defer sr.Close()

	zones := sr.Zones()
	allZones := make([]int, len(zones))
	for i, z := range zones {
		allZones[i] = z.ID
	}

	sel := &zoneselect.Selector{
		SegmentID: segmentID,
		AllZones:  allZones,
		Pruners:   fieldPruners(dir, predicates),
	}
	var candidates []pruning.CandidateZone
	if len(predicates) == 0 {
		candidates = make([]pruning.CandidateZone, len(allZones))
		for i, id := range allZones {
			candidates[i] = pruning.CandidateZone{SegmentID: segmentID, ZoneID: id}
		}
	} else {
		candidates = sel.Select(predicatesToExpr(predicates))
	}

	seen := make(map[int]struct{}, len(candidates))
	var out []event.Event
	for _, c := range candidates {
		if _, ok := seen[c.ZoneID]; ok {
			continue
		}
		seen[c.ZoneID] = struct{}{}
		rows, err := sr.ReadZoneRows(c.ZoneID)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// fieldPruners opens whatever pruning indexes exist for each predicate's
// field, in the enum/range/xor attempt order zoneselect.FieldPruners
// documents. A missing or unreadable index file is treated as "no
// opinion for this field", not an error.
func fieldPruners(dir string, predicates []flow.Predicate) map[string]zoneselect.FieldPruners {
	out := make(map[string]zoneselect.FieldPruners, len(predicates))
	for _, p := range predicates {
		if _, ok := out[p.Field]; ok {
			continue
		}
		var fp zoneselect.FieldPruners
		if bm, err := pruning.ReadEnumBitmap(dir, p.Field); err == nil {
			fp = append(fp, pruning.EnumPruner{Bitmap: bm})
		}
		if ri, err := pruning.ReadRangeIndex(dir, p.Field); err == nil {
			fp = append(fp, pruning.RangePruner{Index: ri})
		}
		if zx, err := pruning.ReadZoneXor(dir, p.Field); err == nil {
			fp = append(fp, pruning.XorPruner{Filters: zx})
		}
		if len(fp) > 0 {
			out[p.Field] = fp
		}
	}
	return out
}

// predicatesToExpr ANDs every predicate together into a zoneselect.Expr
// tree; doQuery's predicates are always AND-combined (see flow.Filter).
func predicatesToExpr(predicates []flow.Predicate) zoneselect.Expr {
	children := make([]zoneselect.Expr, len(predicates))
	for i, p := range predicates {
		children[i] = zoneselect.Expr{Term: &zoneselect.Term{
			Field: p.Field,
			Op:    p.Op,
			Value: p.Value,
		}}
	}
	return zoneselect.Expr{Op: zoneselect.And, Children: children}
}
