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
// Package binformat defines the common binary file header shared by every
// on-disk artifact: the schema store, segment column files, zone offset
// indexes, snapshot metadata, and WAL archives.
//
// Grounded on the per-type Serialize/Deserialize idiom in
// storage/storage-int.go (binary.Write of small fixed fields ahead of a
// bulk payload) generalized into one shared header so every writer in
// this repo agrees on magic/version/kind instead of reinventing framing.
package binformat

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic identifies a SnelDB binary artifact, independent of FileKind.
const Magic uint32 = 0x534e4c31 // "SNL1"

// Version is the current on-disk format version. Legacy var-bytes column
// blocks without a header are detected by size, not by version (an open
// Open Question 2); any future format bump should always carry a header.
const Version uint16 = 1

// FileKind distinguishes the artifacts that share the BinaryHeader framing.
type FileKind uint8

const (
	KindSchemaStore FileKind = iota
	KindSegmentColumn
	KindZoneOffsets // .zfc compression index
	KindZoneMeta    // .zones
	KindZoneIndex   // .idx
	KindIndexCatalog
	KindXorFilter
	KindZoneSurf
	KindEnumBitmap
	KindTemporalIndex
	KindZoneXor
	KindEventSnapshotMeta
	KindWalArchive
)

// Header is written verbatim at the start of every binary artifact.
type Header struct {
	Magic         uint32
	Version       uint16
	Kind          FileKind
	ReservedFlags uint8
}

// Len is the fixed on-disk size of a Header.
const Len = 4 + 2 + 1 + 1

// NewHeader builds a header for the given artifact kind.
func NewHeader(kind FileKind) Header {
	return Header{Magic: Magic, Version: Version, Kind: kind}
}

// Write serializes the header to w.
func (h Header) Write(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, h.Magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, h.Version); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(h.Kind)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, h.ReservedFlags)
}

// ReadHeader parses and validates a header, returning a Corrupt-flavored
// error on bad magic or truncated input.
func ReadHeader(r io.Reader, want FileKind) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h.Magic); err != nil {
		return h, fmt.Errorf("binformat: %w: %v", ErrCorrupt, err)
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("binformat: %w: bad magic %#x", ErrCorrupt, h.Magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return h, fmt.Errorf("binformat: %w: %v", ErrCorrupt, err)
	}
	var kind, flags uint8
	if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return h, fmt.Errorf("binformat: %w: %v", ErrCorrupt, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return h, fmt.Errorf("binformat: %w: %v", ErrCorrupt, err)
	}
	h.Kind = FileKind(kind)
	h.ReservedFlags = flags
	if h.Kind != want {
		return h, fmt.Errorf("binformat: %w: expected kind %d, got %d", ErrCorrupt, want, h.Kind)
	}
	return h, nil
}

// ErrCorrupt marks every header validation failure so callers can match on
// it with errors.Is against the Corrupt error kind.
var ErrCorrupt = fmt.Errorf("corrupt binary artifact")
