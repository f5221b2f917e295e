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
package pruning

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnumBitmapWriteReadAndPrune(t *testing.T) {
	bm := NewEnumBitmap([]string{"free", "pro", "team"})
	bm.Mark(0, 1)
	bm.Mark(1, 2)
	bm.Mark(1, 3)

	dir := t.TempDir()
	require.NoError(t, bm.Write(dir, "plan"))
	loaded, err := ReadEnumBitmap(dir, "plan")
	require.NoError(t, err)

	pruner := EnumPruner{Bitmap: loaded}
	zones, ok := pruner.Apply(Args{SegmentID: "seg-1", Op: Eq, Value: "pro"})
	require.True(t, ok)
	require.Len(t, zones, 2)

	zones, ok = pruner.Apply(Args{SegmentID: "seg-1", Op: Neq, Value: "pro"})
	require.True(t, ok)
	require.Len(t, zones, 1)
	require.Equal(t, 1, zones[0].ZoneID)

	_, ok = pruner.Apply(Args{Op: Gt, Value: "pro"})
	require.False(t, ok)
}

func TestRangeIndexWriteReadAndPrune(t *testing.T) {
	mins := sortableStrings("10", "20", "30")
	maxs := sortableStrings("15", "25", "35")
	ri := BuildRangeIndex([]int{0, 1, 2}, mins, maxs)
	dir := t.TempDir()
	require.NoError(t, ri.Write(dir, "amount"))
	loaded, err := ReadRangeIndex(dir, "amount")
	require.NoError(t, err)

	pruner := RangePruner{Index: loaded}
	zones, ok := pruner.Apply(Args{SegmentID: "seg-1", Op: Gte, Value: "25"})
	require.True(t, ok)
	require.Len(t, zones, 2)
}

// TestRangeIndexMixedDigitWidth reproduces a store of ids 1..20 split
// across zones: a plain string comparison would let every single-digit
// id satisfy ">10", since "2" sorts after "10" lexicographically.
func TestRangeIndexMixedDigitWidth(t *testing.T) {
	zoneIDs := []int{0, 1}
	mins := sortableStrings("1", "11")
	maxs := sortableStrings("10", "20")
	ri := BuildRangeIndex(zoneIDs, mins, maxs)

	pruner := RangePruner{Index: ri}
	zones, ok := pruner.Apply(Args{SegmentID: "seg-1", Op: Gt, Value: "10"})
	require.True(t, ok)
	require.Len(t, zones, 1)
	require.Equal(t, 1, zones[0].ZoneID)
}

func sortableStrings(vals ...string) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = SortableValue(v)
	}
	return out
}

func TestZoneIndexLookup(t *testing.T) {
	zi := NewZoneIndex([]string{"a", "b", "a", "c"}, []int{0, 1, 2, 3})
	dir := t.TempDir()
	require.NoError(t, zi.Write(dir, "event_type"))
	loaded, err := ReadZoneIndex(dir, "event_type")
	require.NoError(t, err)

	pruner := ZoneIndexPruner{Index: loaded}
	zones, ok := pruner.Apply(Args{SegmentID: "seg-1", Op: Eq, Value: "a"})
	require.True(t, ok)
	require.Len(t, zones, 2)

	zones, ok = pruner.Apply(Args{SegmentID: "seg-1", Op: Eq, Value: "missing"})
	require.True(t, ok)
	require.Empty(t, zones)
}

func TestZoneXorMembership(t *testing.T) {
	zx := BuildZoneXor([]int{0, 1}, [][]string{{"a", "b", "c"}, {"x", "y"}})
	dir := t.TempDir()
	require.NoError(t, zx.Write(dir, "context_id"))
	loaded, err := ReadZoneXor(dir, "context_id")
	require.NoError(t, err)

	pruner := XorPruner{Filters: loaded}
	zones, ok := pruner.Apply(Args{SegmentID: "seg-1", Op: Eq, Value: "a"})
	require.True(t, ok)
	require.Contains(t, zoneIDs(zones), 0)
}

func zoneIDs(zones []CandidateZone) []int {
	out := make([]int, len(zones))
	for i, z := range zones {
		out[i] = z.ZoneID
	}
	return out
}

func TestTemporalIndexOverlap(t *testing.T) {
	ti := BuildTemporalIndex([]int{0, 1}, []uint64{0, 100}, []uint64{50, 200})
	dir := t.TempDir()
	require.NoError(t, ti.Write(dir))
	loaded, err := ReadTemporalIndex(dir)
	require.NoError(t, err)

	zones := loaded.Overlapping(40, 60)
	require.ElementsMatch(t, []int{0}, zones)
}
