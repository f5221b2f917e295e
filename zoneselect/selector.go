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
package zoneselect

import "github.com/sneldb/sneldb/segment/pruning"

// Expr is a node in a WHERE clause's logical tree: either a leaf Term
// (field op value) or an internal node combining children with a
// LogicalOp.
type Expr struct {
	Op       LogicalOp
	Children []Expr
	Term     *Term // non-nil only on leaf nodes
}

// Term is one field comparison.
type Term struct {
	Field string
	Op    pruning.CompareOp
	Value string
}

// FieldPruners is the ordered set of pruners available for one field,
// tried in the order listed. The first pruner to report ok=true decides
// the term; builder.rs's attempt-then-fall-through dispatch (enum, then
// range/surf, then xor, finally full scan) is mirrored by the caller's
// ordering when constructing this list.
type FieldPruners []pruning.ZonePruner

// Selector evaluates an Expr tree against a segment's available indexes.
type Selector struct {
	SegmentID string
	AllZones  []int
	Pruners   map[string]FieldPruners // field -> pruners, in attempt order
}

// Select returns the candidate zones the tree could match. A leaf whose
// field has no pruner, or whose pruners all decline, conservatively
// returns every zone in the segment.
func (s *Selector) Select(e Expr) []pruning.CandidateZone {
	if e.Term != nil {
		return s.selectTerm(*e.Term)
	}
	sets := make([][]pruning.CandidateZone, len(e.Children))
	for i, c := range e.Children {
		sets[i] = s.Select(c)
	}
	return Combine(e.Op, sets)
}

func (s *Selector) selectTerm(t Term) []pruning.CandidateZone {
	args := pruning.Args{SegmentID: s.SegmentID, Op: t.Op, Value: t.Value}
	for _, p := range s.Pruners[t.Field] {
		if zones, ok := p.Apply(args); ok {
			return zones
		}
	}
	return s.allZonesAsCandidates()
}

func (s *Selector) allZonesAsCandidates() []pruning.CandidateZone {
	out := make([]pruning.CandidateZone, len(s.AllZones))
	for i, id := range s.AllZones {
		out[i] = pruning.CandidateZone{SegmentID: s.SegmentID, ZoneID: id}
	}
	return out
}
