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
// Package wal implements the per-shard, segmented, append-only write-ahead
// log: entries framed as [len][crc32][payload],
// files named wal-<log_id>.log, rotated by size, archived to .wal.zst on
// rotation, and replayed (archives then live tails) on shard startup.
//
// Grounded on storage/persistence-files.go's OpenLog/ReplayLog
// pair, generalized from memcp's free-form scheme log entries to the
// fixed (context_id, timestamp, event_type, payload, event_id) tuple this
// store requires, and extended with size-based rotation and zstd archival,
// neither of which the original single-file log needed.
package wal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sneldb/sneldb/snelerr"
)

// FsyncPolicy controls when Append durably persists a frame. The default
// is PerStore: every accepted Store fsyncs
// before the caller is told the write is durable, trading throughput for
// the strongest read-your-writes guarantee; PerBatch amortizes fsync
// across N appends for higher throughput at the cost of losing up to N-1
// unflushed frames on an unclean crash.
type FsyncPolicy uint8

const (
	PerStore FsyncPolicy = iota
	PerBatch
)

// Log is one shard's active write-ahead log segment.
type Log struct {
	dir         string
	shardID     int
	logID       uint64
	rotateBytes int64
	fsync       FsyncPolicy
	batchSize   int

	mu        sync.Mutex
	f         *os.File
	size      int64
	unsynced  int
	diagCRC   atomic.Int64 // corrupt-frame counter, surfaced for diagnostics
}

// Options configures a new Log.
type Options struct {
	Dir         string
	ShardID     int
	RotateBytes int64 // rotate once the active file exceeds this size
	Fsync       FsyncPolicy
	BatchSize   int // only used when Fsync == PerBatch
}

func logPath(dir string, shardID int, logID uint64) string {
	return filepath.Join(dir, fmt.Sprintf("shard-%d", shardID), fmt.Sprintf("wal-%d.log", logID))
}

// Open creates or reopens the log with the given logID for append.
func Open(opts Options, logID uint64) (*Log, error) {
	path := logPath(opts.Dir, opts.ShardID, logID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, snelerr.Wrap(snelerr.Internal, err, "wal: mkdir")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o640)
	if err != nil {
		return nil, snelerr.Wrap(snelerr.Internal, err, "wal: open")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, snelerr.Wrap(snelerr.Internal, err, "wal: stat")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 1
	}
	return &Log{
		dir: opts.Dir, shardID: opts.ShardID, logID: logID,
		rotateBytes: opts.RotateBytes, fsync: opts.Fsync, batchSize: batch,
		f: f, size: fi.Size(),
	}, nil
}

// LogID returns this log segment's id.
func (l *Log) LogID() uint64 { return l.logID }

// Path returns the file path backing this log segment.
func (l *Log) Path() string { return logPath(l.dir, l.shardID, l.logID) }

// Append writes one entry durably per the configured FsyncPolicy. A write
// or fsync failure is returned to the caller and not retried here; the
// shard worker fails that Store and keeps running.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := writeFrame(l.f, e)
	if err != nil {
		return err
	}
	l.size += int64(n)
	l.unsynced++
	if l.fsync == PerStore || l.unsynced >= l.batchSize {
		if err := l.f.Sync(); err != nil {
			return snelerr.Wrap(snelerr.Internal, err, "wal: fsync")
		}
		l.unsynced = 0
	}
	return nil
}

// ShouldRotate reports whether the active file has crossed the configured
// rotation threshold.
func (l *Log) ShouldRotate() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateBytes > 0 && l.size >= l.rotateBytes
}

// Size returns the current file size in bytes.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// CorruptFrames returns the number of CRC-mismatched frames skipped while
// replaying this log (diagnostic counter).
func (l *Log) CorruptFrames() int64 { return l.diagCRC.Load() }

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Sync(); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "wal: final fsync")
	}
	return l.f.Close()
}

// ReplayTail replays every valid frame currently in this log file from the
// start, skipping corrupt frames (bumping CorruptFrames) without aborting
// the rest of the file.
func (l *Log) ReplayTail() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return nil, snelerr.Wrap(snelerr.Internal, err, "wal: seek for replay")
	}
	var entries []Entry
	for {
		e, err := readFrame(l.f)
		if err != nil {
			if err == ErrCorruptFrame {
				l.diagCRC.Add(1)
				continue
			}
			break // EOF or truncated length/body: stop replaying this file
		}
		entries = append(entries, e)
	}
	if _, err := l.f.Seek(0, io.SeekEnd); err != nil {
		return entries, snelerr.Wrap(snelerr.Internal, err, "wal: seek to end after replay")
	}
	return entries, nil
}
