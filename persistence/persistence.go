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
// Package persistence abstracts where named files live: a local disk,
// an S3-compatible bucket, or a Ceph RADOS pool. The REMEMBER snapshot
// store (command.SnapshotStore) writes through it; the flush,
// compaction and WAL code write to the local filesystem directly.
//
// Grounded on storage/persistence.go's PersistenceEngine interface,
// generalized from that interface's column/schema/log vocabulary (built
// for a whole-database, per-column storage engine) to this store's own
// artifact shape: every shard/segment is a directory of a handful of
// named files (zones.meta, per-field columns and indexes, the WAL's
// archived segments), so Backend deals in segment-scoped named files
// rather than per-column blobs.
package persistence

import "io"

// Backend is where one shard's on-disk artifacts are read and written.
// segmentID identifies a directory; name is one file within it.
type Backend interface {
	ReadFile(segmentID, name string) (io.ReadCloser, error)
	WriteFile(segmentID, name string) (io.WriteCloser, error)
	RemoveFile(segmentID, name string) error

	// ListSegments returns every segment id currently present under
	// prefix, for startup recovery scans.
	ListSegments(prefix string) ([]string, error)
	// RemoveSegment deletes every file belonging to segmentID.
	RemoveSegment(segmentID string) error
}

// Factory creates a Backend scoped to one database name, mirroring
// storage/persistence.go's PersistenceFactory: the same Factory can
// back multiple independently-rooted databases (tests, multi-tenant
// deployments) without the caller constructing per-backend-kind config
// by hand.
type Factory interface {
	Open(dbName string) Backend
}

// NotFoundReader is returned by a Backend whose file does not exist, so
// callers that must distinguish "no such file" from a transport error
// get a typed io.ReadCloser rather than a nil check.
type NotFoundReader struct {
	Err error
}

func (r NotFoundReader) Read([]byte) (int, error) { return 0, r.Err }
func (r NotFoundReader) Close() error              { return nil }
