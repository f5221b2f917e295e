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

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/segment/pruning"
)

type fakePruner struct {
	zones []pruning.CandidateZone
	ok    bool
}

func (f fakePruner) Apply(pruning.Args) ([]pruning.CandidateZone, bool) { return f.zones, f.ok }

func TestSelectorAndIntersects(t *testing.T) {
	s := &Selector{
		SegmentID: "seg-1",
		AllZones:  []int{0, 1, 2, 3},
		Pruners: map[string]FieldPruners{
			"plan": {fakePruner{ok: true, zones: []pruning.CandidateZone{{SegmentID: "seg-1", ZoneID: 1}, {SegmentID: "seg-1", ZoneID: 2}}}},
			"amount": {fakePruner{ok: true, zones: []pruning.CandidateZone{{SegmentID: "seg-1", ZoneID: 2}, {SegmentID: "seg-1", ZoneID: 3}}}},
		},
	}
	expr := Expr{Op: And, Children: []Expr{
		{Term: &Term{Field: "plan", Op: pruning.Eq, Value: "pro"}},
		{Term: &Term{Field: "amount", Op: pruning.Gte, Value: "10"}},
	}}
	zones := s.Select(expr)
	require.Len(t, zones, 1)
	require.Equal(t, 2, zones[0].ZoneID)
}

func TestSelectorFallsBackToAllZones(t *testing.T) {
	s := &Selector{SegmentID: "seg-1", AllZones: []int{0, 1}, Pruners: map[string]FieldPruners{}}
	zones := s.Select(Expr{Term: &Term{Field: "unindexed", Op: pruning.Eq, Value: "x"}})
	require.Len(t, zones, 2)
}

func TestSelectorOrUnionsAndDedups(t *testing.T) {
	s := &Selector{
		SegmentID: "seg-1",
		AllZones:  []int{0, 1, 2},
		Pruners: map[string]FieldPruners{
			"a": {fakePruner{ok: true, zones: []pruning.CandidateZone{{SegmentID: "seg-1", ZoneID: 0}}}},
			"b": {fakePruner{ok: true, zones: []pruning.CandidateZone{{SegmentID: "seg-1", ZoneID: 0}, {SegmentID: "seg-1", ZoneID: 1}}}},
		},
	}
	expr := Expr{Op: Or, Children: []Expr{
		{Term: &Term{Field: "a", Op: pruning.Eq, Value: "x"}},
		{Term: &Term{Field: "b", Op: pruning.Eq, Value: "y"}},
	}}
	zones := s.Select(expr)
	require.Len(t, zones, 2)
}
