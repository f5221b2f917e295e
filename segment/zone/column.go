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
package zone

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/exp/mmap"

	"github.com/sneldb/sneldb/binformat"
	"github.com/sneldb/sneldb/snelerr"
)

// Extractor pulls one field's string representation out of a row, paired
// with whether the field was present (false means null/missing).
type Extractor func(row int) (string, bool)

// zoneBlockIndex is one entry in a .zfc compression index: where zone
// ID's compressed bytes live in the column file, and how large the
// decompressed form is.
type zoneBlockIndex struct {
	ZoneID     int
	Offset     int64
	CompLen    int64
	RawLen     int64
	RowCount   int
}

// ColumnPaths returns the column data file and its .zfc compression index
// path for field within a segment directory.
func ColumnPaths(segmentDir, field string) (dataPath, zfcPath string) {
	return filepath.Join(segmentDir, field+".col"),
		filepath.Join(segmentDir, field+".zfc")
}

// WriteColumn compresses one field's values, zone by zone, into a single
// column file plus its .zfc index. Each zone is LZ4-compressed
// independently so a reader only ever decompresses the zones a prune
// step selected, never the whole column.
func WriteColumn(segmentDir, field string, zones []Meta, get Extractor) error {
	dataPath, zfcPath := ColumnPaths(segmentDir, field)
	df, err := os.Create(dataPath)
	if err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "zone: create column file")
	}
	defer df.Close()
	if err := binformat.NewHeader(binformat.KindSegmentColumn).Write(df); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "zone: write column header")
	}

	var indexEntries []zoneBlockIndex
	var offset int64 = binformat.Len
	for _, z := range zones {
		var raw bytes.Buffer
		for row := z.StartRow; row < z.StartRow+z.RowCount; row++ {
			v, ok := get(row)
			if !ok {
				binary.Write(&raw, binary.LittleEndian, int32(-1))
				continue
			}
			binary.Write(&raw, binary.LittleEndian, int32(len(v)))
			raw.WriteString(v)
		}
		compressed := make([]byte, lz4.CompressBlockBound(raw.Len()))
		var c lz4.Compressor
		n, err := c.CompressBlock(raw.Bytes(), compressed)
		if err != nil {
			return snelerr.Wrap(snelerr.Internal, err, "zone: lz4 compress")
		}
		if n == 0 {
			// incompressible block: lz4 signals this by returning 0; store raw
			n = raw.Len()
			compressed = raw.Bytes()
		}
		if _, err := df.Write(compressed[:n]); err != nil {
			return snelerr.Wrap(snelerr.Internal, err, "zone: write column block")
		}
		indexEntries = append(indexEntries, zoneBlockIndex{
			ZoneID: z.ID, Offset: offset, CompLen: int64(n), RawLen: int64(raw.Len()), RowCount: z.RowCount,
		})
		offset += int64(n)
	}
	return writeZFC(zfcPath, indexEntries)
}

func writeZFC(path string, entries []zoneBlockIndex) error {
	f, err := os.Create(path)
	if err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "zone: create zfc")
	}
	defer f.Close()
	if err := binformat.NewHeader(binformat.KindZoneOffsets).Write(f); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "zone: write zfc header")
	}
	binary.Write(f, binary.LittleEndian, uint32(len(entries)))
	for _, e := range entries {
		binary.Write(f, binary.LittleEndian, int32(e.ZoneID))
		binary.Write(f, binary.LittleEndian, e.Offset)
		binary.Write(f, binary.LittleEndian, e.CompLen)
		binary.Write(f, binary.LittleEndian, e.RawLen)
		binary.Write(f, binary.LittleEndian, int32(e.RowCount))
	}
	return nil
}

func readZFC(path string) ([]zoneBlockIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, snelerr.Wrap(snelerr.Internal, err, "zone: open zfc")
	}
	defer f.Close()
	if _, err := binformat.ReadHeader(f, binformat.KindZoneOffsets); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zfc entry count")
	}
	entries := make([]zoneBlockIndex, count)
	for i := range entries {
		var zoneID, rowCount int32
		var e zoneBlockIndex
		if err := binary.Read(f, binary.LittleEndian, &zoneID); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zfc zone id")
		}
		if err := binary.Read(f, binary.LittleEndian, &e.Offset); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zfc offset")
		}
		if err := binary.Read(f, binary.LittleEndian, &e.CompLen); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zfc complen")
		}
		if err := binary.Read(f, binary.LittleEndian, &e.RawLen); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zfc rawlen")
		}
		if err := binary.Read(f, binary.LittleEndian, &rowCount); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zfc rowcount")
		}
		e.ZoneID, e.RowCount = int(zoneID), int(rowCount)
		entries[i] = e
	}
	return entries, nil
}

// ColumnValues is a zero-copy-ish view over one zone's decompressed
// column block: a flat byte buffer plus per-row (start, len) ranges,
// with -1 len marking a null/missing value. Mirrors the original
// engine's ColumnValues, which layers the same range-into-block view
// over a decompressed block instead of re-materializing a string slice.
type ColumnValues struct {
	buf    []byte
	ranges []columnRange
}

type columnRange struct {
	start, length int
	null          bool
}

// Len returns the number of rows in this zone's column block.
func (c *ColumnValues) Len() int { return len(c.ranges) }

// At returns row i's string value and whether it was present.
func (c *ColumnValues) At(i int) (string, bool) {
	r := c.ranges[i]
	if r.null {
		return "", false
	}
	return string(c.buf[r.start : r.start+r.length]), true
}

// ColumnReader opens a column file for random zone access via its .zfc
// index, memory-mapping the data file so only the pages a read actually
// touches are paged in.
type ColumnReader struct {
	r       *mmap.ReaderAt
	entries map[int]zoneBlockIndex
}

// OpenColumnReader opens field's column file and zfc index for segmentDir.
func OpenColumnReader(segmentDir, field string) (*ColumnReader, error) {
	dataPath, zfcPath := ColumnPaths(segmentDir, field)
	entries, err := readZFC(zfcPath)
	if err != nil {
		return nil, err
	}
	r, err := mmap.Open(dataPath)
	if err != nil {
		return nil, snelerr.Wrap(snelerr.Internal, err, "zone: mmap column file")
	}
	byID := make(map[int]zoneBlockIndex, len(entries))
	for _, e := range entries {
		byID[e.ZoneID] = e
	}
	return &ColumnReader{r: r, entries: byID}, nil
}

// ReadZone decompresses and returns zoneID's column values.
func (cr *ColumnReader) ReadZone(zoneID int) (*ColumnValues, error) {
	e, ok := cr.entries[zoneID]
	if !ok {
		return nil, snelerr.New(snelerr.NotFound, fmt.Sprintf("zone: no column block for zone %d", zoneID))
	}
	compressed := make([]byte, e.CompLen)
	if _, err := cr.r.ReadAt(compressed, e.Offset); err != nil && err != io.EOF {
		return nil, snelerr.Wrap(snelerr.Internal, err, "zone: read column block")
	}
	raw := make([]byte, e.RawLen)
	n, err := lz4.UncompressBlock(compressed, raw)
	if err != nil {
		// the block was stored uncompressed when lz4 judged it incompressible
		if int64(len(compressed)) == e.RawLen {
			raw = compressed
			n = len(raw)
		} else {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: lz4 decompress")
		}
	}
	raw = raw[:n]

	cv := &ColumnValues{buf: raw, ranges: make([]columnRange, 0, e.RowCount)}
	pos := 0
	for pos < len(raw) && len(cv.ranges) < e.RowCount {
		l := int32(binary.LittleEndian.Uint32(raw[pos : pos+4]))
		pos += 4
		if l < 0 {
			cv.ranges = append(cv.ranges, columnRange{null: true})
			continue
		}
		cv.ranges = append(cv.ranges, columnRange{start: pos, length: int(l)})
		pos += int(l)
	}
	return cv, nil
}

// Close releases the memory-mapped column file.
func (cr *ColumnReader) Close() error { return cr.r.Close() }
