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
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/sneldb/sneldb/binformat"
	"github.com/sneldb/sneldb/snelerr"
)

// MetaPath returns the zones.meta metadata file path for a segment directory.
func MetaPath(segmentDir string) string {
	return filepath.Join(segmentDir, "zones.meta")
}

// WriteMeta persists the zone layout of a segment so readers can rebuild
// row ranges without re-planning them.
func WriteMeta(segmentDir string, zones []Meta) error {
	f, err := os.Create(MetaPath(segmentDir))
	if err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "zone: create zones.meta")
	}
	defer f.Close()
	if err := binformat.NewHeader(binformat.KindZoneMeta).Write(f); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "zone: write zones.meta header")
	}
	binary.Write(f, binary.LittleEndian, uint32(len(zones)))
	for _, z := range zones {
		binary.Write(f, binary.LittleEndian, int32(z.ID))
		binary.Write(f, binary.LittleEndian, int32(z.StartRow))
		binary.Write(f, binary.LittleEndian, int32(z.RowCount))
		binary.Write(f, binary.LittleEndian, z.MinTS)
		binary.Write(f, binary.LittleEndian, z.MaxTS)
	}
	return nil
}

// ReadMeta loads a segment's zone layout back from disk.
func ReadMeta(segmentDir string) ([]Meta, error) {
	f, err := os.Open(MetaPath(segmentDir))
	if err != nil {
		return nil, snelerr.Wrap(snelerr.Internal, err, "zone: open zones.meta")
	}
	defer f.Close()
	if _, err := binformat.ReadHeader(f, binformat.KindZoneMeta); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zones.meta count")
	}
	zones := make([]Meta, count)
	for i := range zones {
		var id, start, rowCount int32
		var z Meta
		if err := binary.Read(f, binary.LittleEndian, &id); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zones.meta id")
		}
		if err := binary.Read(f, binary.LittleEndian, &start); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zones.meta start")
		}
		if err := binary.Read(f, binary.LittleEndian, &rowCount); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zones.meta rowcount")
		}
		if err := binary.Read(f, binary.LittleEndian, &z.MinTS); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zones.meta startts")
		}
		if err := binary.Read(f, binary.LittleEndian, &z.MaxTS); err != nil {
			return nil, snelerr.Wrap(snelerr.Corrupt, err, "zone: zones.meta endts")
		}
		z.ID, z.StartRow, z.RowCount = int(id), int(start), int(rowCount)
		zones[i] = z
	}
	return zones, nil
}
