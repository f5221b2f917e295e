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
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/FastFilter/xorfilter"

	"github.com/sneldb/sneldb/binformat"
	"github.com/sneldb/sneldb/snelerr"
)

func hashValue(v string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(v))
	return h.Sum64()
}

// ZoneXor is a per-zone XOR8 point filter: one filter per zone, each
// built from that zone's distinct field values. Answers Eq terms on
// fields an EnumBitmap isn't a fit for (unbounded string/numeric
// cardinality) with a false-positive rate in the range an 8-bit XOR
// filter gives, never a false negative.
type ZoneXor struct {
	ZoneIDs []int
	filters []*xorfilter.Xor8
}

// BuildZoneXor constructs one XOR8 filter per zone from that zone's
// distinct values. A zone with zero distinct values gets a nil filter,
// since xorfilter.Populate requires a non-empty key set, and Apply
// never returns such a zone as a candidate.
func BuildZoneXor(zoneIDs []int, valuesByZone [][]string) *ZoneXor {
	zx := &ZoneXor{ZoneIDs: zoneIDs, filters: make([]*xorfilter.Xor8, len(zoneIDs))}
	for i, values := range valuesByZone {
		if len(values) == 0 {
			continue
		}
		keys := make([]uint64, len(values))
		for j, v := range values {
			keys[j] = hashValue(v)
		}
		f, err := xorfilter.Populate(keys)
		if err != nil {
			continue
		}
		zx.filters[i] = f
	}
	return zx
}

func zxfPath(segmentDir, column string) string {
	return filepath.Join(segmentDir, column+".zxf")
}

// Write persists the per-zone filters to segmentDir/column.zxf.
func (zx *ZoneXor) Write(segmentDir, column string) error {
	f, err := os.Create(zxfPath(segmentDir, column))
	if err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "pruning: create zxf")
	}
	defer f.Close()
	if err := binformat.NewHeader(binformat.KindZoneXor).Write(f); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "pruning: write zxf header")
	}
	binary.Write(f, binary.LittleEndian, uint32(len(zx.ZoneIDs)))
	for i, id := range zx.ZoneIDs {
		binary.Write(f, binary.LittleEndian, int32(id))
		filt := zx.filters[i]
		if filt == nil {
			binary.Write(f, binary.LittleEndian, uint64(0))
			continue
		}
		binary.Write(f, binary.LittleEndian, filt.Seed)
		binary.Write(f, binary.LittleEndian, filt.BlockLength)
		binary.Write(f, binary.LittleEndian, uint32(len(filt.Fingerprints)))
		binary.Write(f, binary.LittleEndian, filt.Fingerprints)
	}
	return nil
}

// ReadZoneXor loads a previously written per-zone filter set.
func ReadZoneXor(segmentDir, column string) (*ZoneXor, error) {
	f, err := os.Open(zxfPath(segmentDir, column))
	if err != nil {
		return nil, snelerr.Wrap(snelerr.NotFound, err, "pruning: open zxf")
	}
	defer f.Close()
	if _, err := binformat.ReadHeader(f, binformat.KindZoneXor); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: zxf count")
	}
	zx := &ZoneXor{ZoneIDs: make([]int, count), filters: make([]*xorfilter.Xor8, count)}
	for i := range zx.ZoneIDs {
		var id int32
		if err := binary.Read(f, binary.LittleEndian, &id); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: zxf zone id")
		}
		zx.ZoneIDs[i] = int(id)
		var seed uint64
		if err := binary.Read(f, binary.LittleEndian, &seed); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: zxf seed")
		}
		if seed == 0 {
			continue // no filter was written for this zone (empty at build time)
		}
		var blockLength uint32
		if err := binary.Read(f, binary.LittleEndian, &blockLength); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: zxf block length")
		}
		var fpCount uint32
		if err := binary.Read(f, binary.LittleEndian, &fpCount); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: zxf fingerprint count")
		}
		fps := make([]uint8, fpCount)
		if err := binary.Read(f, binary.LittleEndian, fps); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: zxf fingerprints")
		}
		zx.filters[i] = &xorfilter.Xor8{Seed: seed, BlockLength: blockLength, Fingerprints: fps}
	}
	return zx, nil
}

// XorPruner answers Eq terms by testing value membership against every
// zone's XOR8 filter. A zone with no filter (empty at build time) is
// never a candidate; a zone whose filter reports "maybe" is.
type XorPruner struct {
	Filters *ZoneXor
}

func (p XorPruner) Apply(args Args) ([]CandidateZone, bool) {
	if args.Op != Eq {
		return nil, false
	}
	key := hashValue(args.Value)
	var zones []CandidateZone
	for i, id := range p.Filters.ZoneIDs {
		f := p.Filters.filters[i]
		if f != nil && f.Contains(key) {
			zones = append(zones, CandidateZone{SegmentID: args.SegmentID, ZoneID: id})
		}
	}
	return zones, true
}
