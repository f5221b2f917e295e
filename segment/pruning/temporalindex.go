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

// TemporalIndex is a dedicated min/max-timestamp index per zone,
// separate from RangeIndex so timestamp pruning (every query implicitly
// or explicitly bounds a time window) never competes for a generic
// string-keyed index and can compare uint64s directly, no lexicographic
// normalization required.
type TemporalIndex struct {
	entries []temporalEntry
}

type temporalEntry struct {
	zoneID   int
	min, max uint64
}

// BuildTemporalIndex indexes zoneIDs against per-zone (min, max) timestamps.
func BuildTemporalIndex(zoneIDs []int, mins, maxs []uint64) *TemporalIndex {
	entries := make([]temporalEntry, len(zoneIDs))
	for i, id := range zoneIDs {
		entries[i] = temporalEntry{zoneID: id, min: mins[i], max: maxs[i]}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].min < entries[j].min })
	return &TemporalIndex{entries: entries}
}

func temporalIndexPath(segmentDir string) string {
	return filepath.Join(segmentDir, "timestamp.tfi")
}

// Write persists the index to segmentDir/timestamp.tfi.
func (ti *TemporalIndex) Write(segmentDir string) error {
	f, err := os.Create(temporalIndexPath(segmentDir))
	if err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "pruning: create tfi")
	}
	defer f.Close()
	if err := binformat.NewHeader(binformat.KindTemporalIndex).Write(f); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "pruning: write tfi header")
	}
	binary.Write(f, binary.LittleEndian, uint32(len(ti.entries)))
	for _, e := range ti.entries {
		binary.Write(f, binary.LittleEndian, int32(e.zoneID))
		binary.Write(f, binary.LittleEndian, e.min)
		binary.Write(f, binary.LittleEndian, e.max)
	}
	return nil
}

// ReadTemporalIndex loads a previously written index.
func ReadTemporalIndex(segmentDir string) (*TemporalIndex, error) {
	f, err := os.Open(temporalIndexPath(segmentDir))
	if err != nil {
		return nil, snelerr.Wrap(snelerr.NotFound, err, "pruning: open tfi")
	}
	defer f.Close()
	if _, err := binformat.ReadHeader(f, binformat.KindTemporalIndex); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: tfi count")
	}
	entries := make([]temporalEntry, count)
	for i := range entries {
		var id int32
		var e temporalEntry
		if err := binary.Read(f, binary.LittleEndian, &id); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: tfi zone id")
		}
		if err := binary.Read(f, binary.LittleEndian, &e.min); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: tfi min")
		}
		if err := binary.Read(f, binary.LittleEndian, &e.max); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: tfi max")
		}
		e.zoneID = int(id)
		entries[i] = e
	}
	return &TemporalIndex{entries: entries}, nil
}

// Overlapping returns every zone whose [min, max] timestamp range
// intersects [from, to].
func (ti *TemporalIndex) Overlapping(from, to uint64) []int {
	var zones []int
	for _, e := range ti.entries {
		if e.max >= from && e.min <= to {
			zones = append(zones, e.zoneID)
		}
	}
	return zones
}
