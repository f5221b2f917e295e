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
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sneldb/sneldb/snelerr"
)

// ShardLog owns the rotation lifecycle for one shard's WAL: the currently
// active Log, the next log id to open, and the high-water mark of the
// last flush: a size-segmented log, archived on rotation.
type ShardLog struct {
	opts  Options
	level int

	mu           sync.Mutex
	active       *Log
	nextLogID    uint64
	lastFlushed  uint64 // highest log_id durably flushed into a segment
}

// OpenShardLog creates a ShardLog whose active log segment is log id 0,
// reopened for append if that file already exists.
func OpenShardLog(opts Options, compressionLevel int) (*ShardLog, error) {
	l, err := Open(opts, 0)
	if err != nil {
		return nil, err
	}
	return &ShardLog{opts: opts, level: compressionLevel, active: l, nextLogID: 1}, nil
}

// Append routes to the active log, rotating first if it has crossed the
// configured size threshold.
func (s *ShardLog) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active.ShouldRotate() {
		if _, err := s.rotateLocked(); err != nil {
			return err
		}
	}
	return s.active.Append(e)
}

// rotateLocked closes the active log, archives it to .wal.zst, and opens
// a fresh one. Must be called with s.mu held. Returns the id of the log
// that was just archived, so a caller can later MarkFlushed it once its
// rows are durably in a segment.
func (s *ShardLog) rotateLocked() (uint64, error) {
	old := s.active
	archivedID := old.LogID()
	if _, err := Archive(old, s.opts.Dir, s.level); err != nil {
		return 0, err
	}
	if err := old.Close(); err != nil {
		return 0, err
	}
	next, err := Open(s.opts, s.nextLogID)
	if err != nil {
		return 0, err
	}
	s.active = next
	s.nextLogID++
	return archivedID, nil
}

// ForceRotate rotates unconditionally, used by the shard's explicit FLUSH
// command and by a Store-triggered flush. Returns the id of the log that
// was archived, to pass to MarkFlushed once the triggering flush
// publishes its segment.
func (s *ShardLog) ForceRotate() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked()
}

// MarkFlushed records that every WAL entry up to and including logID has
// been durably written into a segment; archives at or below this id
// become eligible for removal by Cleanup and remain on disk for
// recovery until then.
func (s *ShardLog) MarkFlushed(logID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logID > s.lastFlushed {
		s.lastFlushed = logID
	}
}

// Cleanup removes archived .wal.zst files at or below the last flushed
// log id, keeping the active (and any not-yet-flushed) logs untouched.
func (s *ShardLog) Cleanup() error {
	s.mu.Lock()
	lastFlushed := s.lastFlushed
	shardDir := filepath.Join(s.opts.Dir, "shard-"+strconv.Itoa(s.opts.ShardID))
	s.mu.Unlock()

	entries, err := os.ReadDir(shardDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return snelerr.Wrap(snelerr.Internal, err, "wal: readdir for cleanup")
	}
	for _, ent := range entries {
		id, ok := parseArchiveLogID(ent.Name())
		if !ok || id > lastFlushed {
			continue
		}
		os.Remove(filepath.Join(shardDir, ent.Name()))
	}
	return nil
}

func parseArchiveLogID(name string) (uint64, bool) {
	if !strings.HasPrefix(name, "wal-") || !strings.HasSuffix(name, ".wal.zst") {
		return 0, false
	}
	idStr := strings.TrimSuffix(strings.TrimPrefix(name, "wal-"), ".wal.zst")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Close flushes and closes the active log.
func (s *ShardLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Close()
}

// Recover replays, in order, (a) every archived entry whose log_id exceeds
// lastFlushedID, then (b) the live .log tail(s). It
// returns the combined entries plus the log id to resume appending after.
func Recover(opts Options, lastFlushedID uint64) (entries []Entry, resumeLogID uint64, err error) {
	shardDir := filepath.Join(opts.Dir, "shard-"+strconv.Itoa(opts.ShardID))
	dirEntries, readErr := os.ReadDir(shardDir)
	if readErr != nil && !os.IsNotExist(readErr) {
		return nil, 0, snelerr.Wrap(snelerr.Internal, readErr, "wal: readdir for recovery")
	}

	var archiveIDs, liveIDs []uint64
	for _, ent := range dirEntries {
		if id, ok := parseArchiveLogID(ent.Name()); ok {
			archiveIDs = append(archiveIDs, id)
			continue
		}
		if id, ok := parseLiveLogID(ent.Name()); ok {
			liveIDs = append(liveIDs, id)
		}
	}
	sort.Slice(archiveIDs, func(i, j int) bool { return archiveIDs[i] < archiveIDs[j] })
	sort.Slice(liveIDs, func(i, j int) bool { return liveIDs[i] < liveIDs[j] })

	for _, id := range archiveIDs {
		if id <= lastFlushedID {
			continue
		}
		_, archived, aerr := ReplayArchive(archivePath(opts.Dir, opts.ShardID, id))
		if aerr != nil {
			continue // a corrupt archive is skipped, not fatal: recovery tolerates a bad file
		}
		entries = append(entries, archived...)
	}
	for _, id := range liveIDs {
		l, lerr := Open(opts, id)
		if lerr != nil {
			continue
		}
		tail, terr := l.ReplayTail()
		if terr == nil {
			entries = append(entries, tail...)
		}
		l.Close()
		if id >= resumeLogID {
			resumeLogID = id
		}
	}
	return entries, resumeLogID, nil
}

func parseLiveLogID(name string) (uint64, bool) {
	if !strings.HasPrefix(name, "wal-") || !strings.HasSuffix(name, ".log") {
		return 0, false
	}
	idStr := strings.TrimSuffix(strings.TrimPrefix(name, "wal-"), ".log")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
