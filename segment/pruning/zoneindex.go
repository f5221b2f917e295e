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

	"github.com/google/btree"

	"github.com/sneldb/sneldb/binformat"
	"github.com/sneldb/sneldb/snelerr"
)

type zoneIndexEntry struct {
	value string
	zones []int
}

func (a zoneIndexEntry) Less(b btree.Item) bool {
	return a.value < b.(zoneIndexEntry).value
}

// ZoneIndex is an ordered value -> zone-id-list index for general
// (non-enum, low-cardinality-agnostic) Eq lookups, built over
// google/btree the same way storage/index.go keeps its in-memory delta
// index ordered for range scans.
type ZoneIndex struct {
	tree *btree.BTree
}

// NewZoneIndex builds an index from a flat list of (value, zoneID) pairs
// collected while writing a segment's zones.
func NewZoneIndex(values []string, zoneIDs []int) *ZoneIndex {
	tree := btree.New(8)
	byValue := make(map[string][]int)
	order := make([]string, 0, len(values))
	for i, v := range values {
		if _, seen := byValue[v]; !seen {
			order = append(order, v)
		}
		byValue[v] = append(byValue[v], zoneIDs[i])
	}
	for _, v := range order {
		tree.ReplaceOrInsert(zoneIndexEntry{value: v, zones: dedupInts(byValue[v])})
	}
	return &ZoneIndex{tree: tree}
}

func dedupInts(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// Lookup returns the zone ids associated with an exact value.
func (zi *ZoneIndex) Lookup(value string) ([]int, bool) {
	item := zi.tree.Get(zoneIndexEntry{value: value})
	if item == nil {
		return nil, false
	}
	return item.(zoneIndexEntry).zones, true
}

func zoneIndexPath(segmentDir, column string) string {
	return filepath.Join(segmentDir, column+".idx")
}

// Write persists the index to segmentDir/column.idx.
func (zi *ZoneIndex) Write(segmentDir, column string) error {
	f, err := os.Create(zoneIndexPath(segmentDir, column))
	if err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "pruning: create idx")
	}
	defer f.Close()
	if err := binformat.NewHeader(binformat.KindZoneIndex).Write(f); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "pruning: write idx header")
	}
	binary.Write(f, binary.LittleEndian, uint32(zi.tree.Len()))
	var writeErr error
	zi.tree.Ascend(func(it btree.Item) bool {
		e := it.(zoneIndexEntry)
		writeString(f, e.value)
		binary.Write(f, binary.LittleEndian, uint32(len(e.zones)))
		for _, z := range e.zones {
			binary.Write(f, binary.LittleEndian, int32(z))
		}
		return true
	})
	return writeErr
}

// ReadZoneIndex loads a previously written index.
func ReadZoneIndex(segmentDir, column string) (*ZoneIndex, error) {
	f, err := os.Open(zoneIndexPath(segmentDir, column))
	if err != nil {
		return nil, snelerr.Wrap(snelerr.NotFound, err, "pruning: open idx")
	}
	defer f.Close()
	if _, err := binformat.ReadHeader(f, binformat.KindZoneIndex); err != nil {
		return nil, err
	}
	var entryCount uint32
	if err := binary.Read(f, binary.LittleEndian, &entryCount); err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: idx entry count")
	}
	tree := btree.New(8)
	for i := uint32(0); i < entryCount; i++ {
		value, err := readString(f)
		if err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: idx value")
		}
		var zoneCount uint32
		if err := binary.Read(f, binary.LittleEndian, &zoneCount); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: idx zone count")
		}
		zones := make([]int, zoneCount)
		for j := range zones {
			var z int32
			if err := binary.Read(f, binary.LittleEndian, &z); err != nil {
				return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: idx zone id")
			}
			zones[j] = int(z)
		}
		tree.ReplaceOrInsert(zoneIndexEntry{value: value, zones: zones})
	}
	return &ZoneIndex{tree: tree}, nil
}

// ZoneIndexPruner answers Eq terms via an exact-match ZoneIndex lookup.
type ZoneIndexPruner struct {
	Index *ZoneIndex
}

func (p ZoneIndexPruner) Apply(args Args) ([]CandidateZone, bool) {
	if args.Op != Eq {
		return nil, false
	}
	ids, ok := p.Index.Lookup(args.Value)
	if !ok {
		return []CandidateZone{}, true
	}
	zones := make([]CandidateZone, len(ids))
	for i, id := range ids {
		zones[i] = CandidateZone{SegmentID: args.SegmentID, ZoneID: id}
	}
	return zones, true
}
