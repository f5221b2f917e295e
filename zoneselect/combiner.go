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
// Package zoneselect walks a WHERE clause's logical tree and narrows the
// zones a query must visit, without ever decompressing a column block
// unless pruning leaves more than one candidate value.
//
// Grounded directly on zone_combiner.rs: AND intersects the pruned sets
// starting from the smallest (least work to shrink further), OR unions
// with dedup, and NOT passes its single input through unchanged (the
// original's documented behavior for multi-input NOT — returning empty —
// is preserved rather than "fixed", since this store's WHERE trees never
// produce a NOT with more than one child).
package zoneselect

import (
	"sort"

	"github.com/sneldb/sneldb/segment/pruning"
)

// LogicalOp is how a node in the WHERE tree combines its children's zones.
type LogicalOp uint8

const (
	And LogicalOp = iota
	Or
	Not
)

type zoneKey struct {
	segmentID string
	zoneID    int
}

func keyOf(z pruning.CandidateZone) zoneKey { return zoneKey{z.SegmentID, z.ZoneID} }

func sortAndDedup(zones []pruning.CandidateZone) []pruning.CandidateZone {
	sort.Slice(zones, func(i, j int) bool {
		a, b := zones[i], zones[j]
		if a.SegmentID != b.SegmentID {
			return a.SegmentID < b.SegmentID
		}
		return a.ZoneID < b.ZoneID
	})
	out := zones[:0]
	var last zoneKey
	for i, z := range zones {
		k := keyOf(z)
		if i == 0 || k != last {
			out = append(out, z)
			last = k
		}
	}
	return out
}

func intersectSorted(a, b []pruning.CandidateZone) []pruning.CandidateZone {
	var out []pruning.CandidateZone
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ka, kb := keyOf(a[i]), keyOf(b[j])
		switch {
		case ka == kb:
			out = append(out, a[i])
			i++
			j++
		case ka.segmentID < kb.segmentID || (ka.segmentID == kb.segmentID && ka.zoneID < kb.zoneID):
			i++
		default:
			j++
		}
	}
	return out
}

// Combine merges the per-term candidate zone sets produced by pruners
// beneath one logical node. A single input set is returned sorted and
// deduplicated, regardless of op.
func Combine(op LogicalOp, sets [][]pruning.CandidateZone) []pruning.CandidateZone {
	if len(sets) == 0 {
		return nil
	}
	if len(sets) == 1 {
		cp := append([]pruning.CandidateZone(nil), sets[0]...)
		return sortAndDedup(cp)
	}

	switch op {
	case Or:
		var all []pruning.CandidateZone
		for _, s := range sets {
			all = append(all, s...)
		}
		return sortAndDedup(all)

	case And:
		smallest := 0
		for i, s := range sets {
			if len(s) < len(sets[smallest]) {
				smallest = i
			}
		}
		base := sortAndDedup(append([]pruning.CandidateZone(nil), sets[smallest]...))
		for i, s := range sets {
			if i == smallest || len(base) == 0 {
				continue
			}
			other := sortAndDedup(append([]pruning.CandidateZone(nil), s...))
			base = intersectSorted(base, other)
		}
		return base

	case Not:
		return nil

	default:
		return nil
	}
}
