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
package wal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sneldb/sneldb/binformat"
	"github.com/sneldb/sneldb/snelerr"
)

// ArchiveHeader is the typed header prefixing a zstd-compressed WAL
// archive body.
type ArchiveHeader struct {
	ShardID          int
	LogID            uint64
	EntryCount       uint64
	StartTS          uint64
	EndTS            uint64
	CreatedAt        int64
	Compression      string
	CompressionLevel int
	FormatVersion    uint16
}

func archivePath(dir string, shardID int, logID uint64) string {
	return filepath.Join(dir, fmt.Sprintf("shard-%d", shardID), fmt.Sprintf("wal-%d.wal.zst", logID))
}

// Archive compresses log's decoded entries into a single typed .wal.zst
// file and returns its path. Called on rotation; the closed
// log's raw frames are decoded once so the archive carries entries, not
// raw CRC-framed bytes — a corrupt frame found here is dropped, mirroring
// ReplayTail's skip-and-continue posture.
func Archive(l *Log, dir string, level int) (string, error) {
	entries, err := l.ReplayTail()
	if err != nil {
		return "", err
	}

	var startTS, endTS uint64
	if len(entries) > 0 {
		startTS, endTS = entries[0].Timestamp, entries[0].Timestamp
		for _, e := range entries {
			if e.Timestamp < startTS {
				startTS = e.Timestamp
			}
			if e.Timestamp > endTS {
				endTS = e.Timestamp
			}
		}
	}
	hdr := ArchiveHeader{
		ShardID: l.shardID, LogID: l.logID, EntryCount: uint64(len(entries)),
		StartTS: startTS, EndTS: endTS, CreatedAt: time.Now().Unix(),
		Compression: "zstd", CompressionLevel: level, FormatVersion: binformat.Version,
	}

	path := archivePath(dir, l.shardID, l.logID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", snelerr.Wrap(snelerr.Internal, err, "wal: mkdir for archive")
	}
	f, err := os.Create(path)
	if err != nil {
		return "", snelerr.Wrap(snelerr.Internal, err, "wal: create archive")
	}
	defer f.Close()

	if err := binformat.NewHeader(binformat.KindWalArchive).Write(f); err != nil {
		return "", snelerr.Wrap(snelerr.Internal, err, "wal: write archive binary header")
	}
	if err := writeArchiveHeader(f, hdr); err != nil {
		return "", snelerr.Wrap(snelerr.Internal, err, "wal: write archive typed header")
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return "", snelerr.Wrap(snelerr.Internal, err, "wal: new zstd writer")
	}
	var body bytes.Buffer
	for _, e := range entries {
		b := encodeBody(e)
		binary.Write(&body, binary.LittleEndian, uint32(len(b)))
		body.Write(b)
	}
	if _, err := zw.Write(body.Bytes()); err != nil {
		zw.Close()
		return "", snelerr.Wrap(snelerr.Internal, err, "wal: zstd write")
	}
	if err := zw.Close(); err != nil {
		return "", snelerr.Wrap(snelerr.Internal, err, "wal: zstd close")
	}
	return path, nil
}

func writeArchiveHeader(w io.Writer, h ArchiveHeader) error {
	binary.Write(w, binary.LittleEndian, int64(h.ShardID))
	binary.Write(w, binary.LittleEndian, h.LogID)
	binary.Write(w, binary.LittleEndian, h.EntryCount)
	binary.Write(w, binary.LittleEndian, h.StartTS)
	binary.Write(w, binary.LittleEndian, h.EndTS)
	binary.Write(w, binary.LittleEndian, h.CreatedAt)
	compBytes := make([]byte, 16)
	copy(compBytes, h.Compression)
	if _, err := w.Write(compBytes); err != nil {
		return err
	}
	binary.Write(w, binary.LittleEndian, int32(h.CompressionLevel))
	return binary.Write(w, binary.LittleEndian, h.FormatVersion)
}

func readArchiveHeader(r io.Reader) (ArchiveHeader, error) {
	var h ArchiveHeader
	var shardID int64
	if err := binary.Read(r, binary.LittleEndian, &shardID); err != nil {
		return h, err
	}
	h.ShardID = int(shardID)
	if err := binary.Read(r, binary.LittleEndian, &h.LogID); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.EntryCount); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.StartTS); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.EndTS); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.CreatedAt); err != nil {
		return h, err
	}
	compBytes := make([]byte, 16)
	if _, err := io.ReadFull(r, compBytes); err != nil {
		return h, err
	}
	h.Compression = string(bytes.TrimRight(compBytes, "\x00"))
	var level int32
	if err := binary.Read(r, binary.LittleEndian, &level); err != nil {
		return h, err
	}
	h.CompressionLevel = int(level)
	return h, binary.Read(r, binary.LittleEndian, &h.FormatVersion)
}

// ReplayArchive decodes every entry out of a .wal.zst file produced by
// Archive.
func ReplayArchive(path string) (ArchiveHeader, []Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return ArchiveHeader{}, nil, snelerr.Wrap(snelerr.Internal, err, "wal: open archive")
	}
	defer f.Close()

	if _, err := binformat.ReadHeader(f, binformat.KindWalArchive); err != nil {
		return ArchiveHeader{}, nil, err
	}
	hdr, err := readArchiveHeader(f)
	if err != nil {
		return hdr, nil, snelerr.Wrap(snelerr.Corrupt, err, "wal: archive typed header")
	}

	zr, err := zstd.NewReader(f)
	if err != nil {
		return hdr, nil, snelerr.Wrap(snelerr.Internal, err, "wal: new zstd reader")
	}
	defer zr.Close()

	entries := make([]Entry, 0, hdr.EntryCount)
	for {
		var l uint32
		if err := binary.Read(zr, binary.LittleEndian, &l); err != nil {
			break
		}
		b := make([]byte, l)
		if _, err := io.ReadFull(zr, b); err != nil {
			break
		}
		e, err := decodeBody(b)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return hdr, entries, nil
}
