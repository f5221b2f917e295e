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
package persistence

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sneldb/sneldb/snelerr"
)

// FileFactory opens a FileBackend rooted at Basepath/dbName, mirroring
// storage/persistence-files.go's FileFactory.
type FileFactory struct {
	Basepath string
}

// Open satisfies Factory.
func (f *FileFactory) Open(dbName string) Backend {
	return &FileBackend{root: filepath.Join(f.Basepath, dbName)}
}

// FileBackend stores every segment as a plain directory of files on
// local disk.
type FileBackend struct {
	root string
}

// NewFileBackend creates a FileBackend rooted at root directly, for
// callers that already have a base directory (e.g. shard.Config.BaseDir)
// and do not need a Factory's per-database indirection.
func NewFileBackend(root string) *FileBackend {
	return &FileBackend{root: root}
}

func (b *FileBackend) path(segmentID, name string) string {
	return filepath.Join(b.root, segmentID, name)
}

func (b *FileBackend) ReadFile(segmentID, name string) (io.ReadCloser, error) {
	f, err := os.Open(b.path(segmentID, name))
	if err != nil {
		return NotFoundReader{Err: err}, nil
	}
	return f, nil
}

func (b *FileBackend) WriteFile(segmentID, name string) (io.WriteCloser, error) {
	p := b.path(segmentID, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return nil, snelerr.Wrap(snelerr.Internal, err, "persistence: mkdir")
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, snelerr.Wrap(snelerr.Internal, err, "persistence: create")
	}
	return f, nil
}

func (b *FileBackend) RemoveFile(segmentID, name string) error {
	if err := os.Remove(b.path(segmentID, name)); err != nil && !os.IsNotExist(err) {
		return snelerr.Wrap(snelerr.Internal, err, "persistence: remove")
	}
	return nil
}

func (b *FileBackend) ListSegments(prefix string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(b.root, prefix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, snelerr.Wrap(snelerr.Internal, err, "persistence: readdir")
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(prefix, e.Name()))
		}
	}
	return out, nil
}

func (b *FileBackend) RemoveSegment(segmentID string) error {
	if err := os.RemoveAll(filepath.Join(b.root, segmentID)); err != nil {
		return snelerr.Wrap(snelerr.Internal, err, "persistence: removeall")
	}
	return nil
}
