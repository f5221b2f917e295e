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

	"github.com/RoaringBitmap/roaring"

	"github.com/sneldb/sneldb/binformat"
	"github.com/sneldb/sneldb/snelerr"
)

// EnumBitmap is a per-zone, per-variant roaring bitmap of zone ids: one
// bitmap per known enum variant, each bit set for the zones that contain
// at least one row equal to that variant. Built once at flush time for
// enum-typed fields and reused by Eq/Neq lookups without ever touching a
// column block.
type EnumBitmap struct {
	Variants []string
	byValue  []*roaring.Bitmap
}

// NewEnumBitmap allocates an empty bitmap set for the given variants.
func NewEnumBitmap(variants []string) *EnumBitmap {
	b := &EnumBitmap{Variants: variants, byValue: make([]*roaring.Bitmap, len(variants))}
	for i := range b.byValue {
		b.byValue[i] = roaring.New()
	}
	return b
}

// Mark records that zoneID contains a row with the given variant index.
func (b *EnumBitmap) Mark(variantIdx, zoneID int) {
	if variantIdx < 0 || variantIdx >= len(b.byValue) {
		return
	}
	b.byValue[variantIdx].Add(uint32(zoneID))
}

func ebmPath(segmentDir, column string) string {
	return filepath.Join(segmentDir, column+".ebm")
}

// Write persists the bitmap set to segmentDir/column.ebm.
func (b *EnumBitmap) Write(segmentDir, column string) error {
	f, err := os.Create(ebmPath(segmentDir, column))
	if err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "pruning: create ebm")
	}
	defer f.Close()
	if err := binformat.NewHeader(binformat.KindEnumBitmap).Write(f); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "pruning: write ebm header")
	}
	binary.Write(f, binary.LittleEndian, uint32(len(b.Variants)))
	for _, v := range b.Variants {
		binary.Write(f, binary.LittleEndian, uint16(len(v)))
		f.WriteString(v)
	}
	for _, bm := range b.byValue {
		raw, err := bm.ToBytes()
		if err != nil {
			return snelerr.Wrap(snelerr.Internal, err, "pruning: serialize roaring bitmap")
		}
		binary.Write(f, binary.LittleEndian, uint32(len(raw)))
		f.Write(raw)
	}
	return nil
}

// ReadEnumBitmap loads a previously written bitmap set.
func ReadEnumBitmap(segmentDir, column string) (*EnumBitmap, error) {
	f, err := os.Open(ebmPath(segmentDir, column))
	if err != nil {
		return nil, snelerr.Wrap(snelerr.NotFound, err, "pruning: open ebm")
	}
	defer f.Close()
	if _, err := binformat.ReadHeader(f, binformat.KindEnumBitmap); err != nil {
		return nil, err
	}
	var variantCount uint32
	if err := binary.Read(f, binary.LittleEndian, &variantCount); err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: ebm variant count")
	}
	variants := make([]string, variantCount)
	for i := range variants {
		var l uint16
		if err := binary.Read(f, binary.LittleEndian, &l); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: ebm variant length")
		}
		buf := make([]byte, l)
		if _, err := f.Read(buf); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: ebm variant bytes")
		}
		variants[i] = string(buf)
	}
	b := NewEnumBitmap(variants)
	for i := range b.byValue {
		var l uint32
		if err := binary.Read(f, binary.LittleEndian, &l); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: ebm bitmap length")
		}
		raw := make([]byte, l)
		if _, err := f.Read(raw); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: ebm bitmap bytes")
		}
		bm := roaring.New()
		if _, err := bm.FromBuffer(raw); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "pruning: ebm bitmap decode")
		}
		b.byValue[i] = bm
	}
	return b, nil
}

// variantIndex finds val's position among the bitmap's known variants.
func (b *EnumBitmap) variantIndex(val string) (int, bool) {
	for i, v := range b.Variants {
		if v == val {
			return i, true
		}
	}
	return -1, false
}

// ZonesFor returns the zone ids flagged for variant val under op (Eq or
// Neq); Neq unions every other variant's zones, since a zone can contain
// more than one variant.
func (b *EnumBitmap) ZonesFor(op CompareOp, val string) (*roaring.Bitmap, bool) {
	idx, ok := b.variantIndex(val)
	if !ok {
		return nil, false
	}
	switch op {
	case Eq:
		return b.byValue[idx].Clone(), true
	case Neq:
		out := roaring.New()
		for i, bm := range b.byValue {
			if i != idx {
				out.Or(bm)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// EnumPruner answers Eq/Neq terms against an enum field's EnumBitmap.
type EnumPruner struct {
	Bitmap *EnumBitmap
}

func (p EnumPruner) Apply(args Args) ([]CandidateZone, bool) {
	if args.Op != Eq && args.Op != Neq {
		return nil, false
	}
	bm, ok := p.Bitmap.ZonesFor(args.Op, args.Value)
	if !ok {
		return nil, false
	}
	zones := make([]CandidateZone, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		zones = append(zones, CandidateZone{SegmentID: args.SegmentID, ZoneID: int(it.Next())})
	}
	return zones, true
}
