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
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"

	"github.com/sneldb/sneldb/binformat"
	"github.com/sneldb/sneldb/snelerr"
)

// RangeIndex holds each zone's min/max value, already run through
// SortableValue at write time so byte-lexicographic order matches
// numeric order for numeric fields, to answer Gt/Gte/Lt/Lte terms
// without visiting a column block. It is this repo's zone-level
// stand-in for a succinct range filter: no off-the-shelf library
// covers this, so a plain sorted min/max table was chosen over
// vendoring a bespoke trie, at segment write time the cost is a sort,
// at query time a linear scan over a handful of zone entries.
type RangeIndex struct {
	entries []rangeEntry
}

type rangeEntry struct {
	zoneID   int
	min, max string
}

// BuildRangeIndex indexes one zone id -> (min, max) pair per zone.
func BuildRangeIndex(zoneIDs []int, mins, maxs []string) *RangeIndex {
	entries := make([]rangeEntry, len(zoneIDs))
	for i, id := range zoneIDs {
		entries[i] = rangeEntry{zoneID: id, min: mins[i], max: maxs[i]}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].min < entries[j].min })
	return &RangeIndex{entries: entries}
}

func rangeIndexKind() binformat.FileKind { return binformat.KindZoneSurf }

func rangeIndexPath(segmentDir, column string) string {
	return filepath.Join(segmentDir, column+".zsrf")
}

// Write persists the index to segmentDir/column.zsrf.
func (ri *RangeIndex) Write(segmentDir, column string) error {
	f, err := os.Create(rangeIndexPath(segmentDir, column))
	if err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "pruning: create zsrf")
	}
	defer f.Close()
	if err := binformat.NewHeader(rangeIndexKind()).Write(f); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "pruning: write zsrf header")
	}
	binary.Write(f, binary.LittleEndian, uint32(len(ri.entries)))
	for _, e := range ri.entries {
		binary.Write(f, binary.LittleEndian, int32(e.zoneID))
		writeString(f, e.min)
		writeString(f, e.max)
	}
	return nil
}

func writeString(f *os.File, s string) {
	binary.Write(f, binary.LittleEndian, uint16(len(s)))
	f.WriteString(s)
}

func readString(f *os.File) (string, error) {
	var l uint16
	if err := binary.Read(f, binary.LittleEndian, &l); err != nil {
		return "", err
	}
	buf := make([]byte, l)
	if _, err := f.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadRangeIndex loads a previously written index.
func ReadRangeIndex(segmentDir, column string) (*RangeIndex, error) {
	f, err := os.Open(rangeIndexPath(segmentDir, column))
	if err != nil {
		return nil, snelerr.Wrap(snelerr.NotFound, err, "pruning: open zsrf")
	}
	defer f.Close()
	if _, err := binformat.ReadHeader(f, rangeIndexKind()); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: zsrf count")
	}
	entries := make([]rangeEntry, count)
	for i := range entries {
		var id int32
		if err := binary.Read(f, binary.LittleEndian, &id); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: zsrf zone id")
		}
		min, err := readString(f)
		if err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: zsrf min")
		}
		max, err := readString(f)
		if err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: zsrf max")
		}
		entries[i] = rangeEntry{zoneID: int(id), min: min, max: max}
	}
	return &RangeIndex{entries: entries}, nil
}

// RangePruner answers Gt/Gte/Lt/Lte terms by comparing the query value
// against each zone's [min, max] bounds.
type RangePruner struct {
	Index *RangeIndex
}

func (p RangePruner) Apply(args Args) ([]CandidateZone, bool) {
	value := SortableValue(args.Value)
	var match func(min, max string) bool
	switch args.Op {
	case Gt:
		match = func(_, max string) bool { return max > value }
	case Gte:
		match = func(_, max string) bool { return max >= value }
	case Lt:
		match = func(min, _ string) bool { return min < value }
	case Lte:
		match = func(min, _ string) bool { return min <= value }
	default:
		return nil, false
	}
	var zones []CandidateZone
	for _, e := range p.Index.entries {
		if match(e.min, e.max) {
			zones = append(zones, CandidateZone{SegmentID: args.SegmentID, ZoneID: e.zoneID})
		}
	}
	return zones, true
}
