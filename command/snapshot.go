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
package command

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/persistence"
	"github.com/sneldb/sneldb/replay"
	"github.com/sneldb/sneldb/snelerr"
)

// snapshotSegmentID is the pseudo-segment every REMEMBER snapshot lives
// under, so SnapshotStore can reuse a plain persistence.Backend instead
// of needing a storage concern of its own.
const snapshotSegmentID = "snapshots"

func snapshotFileName(name string) string { return name + ".snap" }

// snapshotHeader precedes the compressed body: enough to reconstruct
// the Snapshot{StartTS,EndTS} replay needs without decompressing first.
type snapshotHeader struct {
	StartTS uint64
	EndTS   uint64
	RawLen  uint32
}

// SnapshotStore persists REMEMBER QUERY results as named, LZ4-compressed
// snapshots and satisfies replay.SnapshotSource, so Engine.Replay can
// read one back ahead of rescanning raw storage. Compression reuses
// pierrec/lz4/v4, the same library and compress-then-frame idiom
// segment/zone/column.go uses for column blocks, though the frame here
// is a whole JSON-encoded row set rather than a columnar block.
type SnapshotStore struct {
	backend persistence.Backend
}

// NewSnapshotStore wraps backend for snapshot storage.
func NewSnapshotStore(backend persistence.Backend) *SnapshotStore {
	return &SnapshotStore{backend: backend}
}

// Write materializes rows under name and returns the Snapshot a later
// REPLAY's Request.Snapshot should reference. StartTS and EndTS are the
// smallest and largest row timestamps, whatever order rows come in.
func (s *SnapshotStore) Write(name string, rows []event.Event) (replay.Snapshot, error) {
	var startTS, endTS uint64
	for i, r := range rows {
		if i == 0 || r.Timestamp < startTS {
			startTS = r.Timestamp
		}
		if r.Timestamp > endTS {
			endTS = r.Timestamp
		}
	}

	raw, err := json.Marshal(rows)
	if err != nil {
		return replay.Snapshot{}, snelerr.Wrap(snelerr.Internal, err, "command: marshal snapshot rows")
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	var c lz4.Compressor
	n, err := c.CompressBlock(raw, compressed)
	if err != nil {
		return replay.Snapshot{}, snelerr.Wrap(snelerr.Internal, err, "command: lz4 compress snapshot")
	}
	if n == 0 {
		// incompressible: lz4 signals this by returning 0, store raw instead
		compressed = raw
	} else {
		compressed = compressed[:n]
	}

	fileName := snapshotFileName(name)
	w, err := s.backend.WriteFile(snapshotSegmentID, fileName)
	if err != nil {
		return replay.Snapshot{}, err
	}
	defer w.Close()

	hdr := snapshotHeader{StartTS: startTS, EndTS: endTS, RawLen: uint32(len(raw))}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return replay.Snapshot{}, snelerr.Wrap(snelerr.Internal, err, "command: write snapshot header")
	}
	if _, err := w.Write(compressed); err != nil {
		return replay.Snapshot{}, snelerr.Wrap(snelerr.Internal, err, "command: write snapshot body")
	}

	return replay.Snapshot{StartTS: startTS, EndTS: endTS, Path: fileName}, nil
}

// Load satisfies replay.SnapshotSource: decompress snap's body and keep
// only the rows matching eventType, since one snapshot may cover a
// query that spanned several event types.
func (s *SnapshotStore) Load(_ context.Context, snap replay.Snapshot, eventType string) ([]event.Event, error) {
	r, err := s.backend.ReadFile(snapshotSegmentID, snap.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var hdr snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "command: read snapshot header")
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "command: read snapshot body")
	}

	raw := make([]byte, hdr.RawLen)
	if uint32(len(body)) == hdr.RawLen {
		raw = body // was stored uncompressed
	} else if _, err := lz4.UncompressBlock(body, raw); err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "command: lz4 decompress snapshot")
	}

	var rows []event.Event
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, snelerr.Wrap(snelerr.Corrupt, err, "command: unmarshal snapshot rows")
	}

	out := rows[:0:0]
	for _, r := range rows {
		if r.EventType == eventType {
			out = append(out, r)
		}
	}
	return out, nil
}
