//go:build ceph

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
	"bytes"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

// Open satisfies Factory, building with -tags=ceph.
func (f *CephFactory) Open(dbName string) Backend {
	pfx := path.Join(strings.TrimSuffix(f.Prefix, "/"), dbName)
	return &CephBackend{factory: f, prefix: pfx}
}

// CephBackend stores every segment's files as RADOS objects named
// <prefix>/<segmentID>/<name>, one IOContext per pool shared across all
// reads and writes.
type CephBackend struct {
	factory *CephFactory
	prefix  string

	mu     sync.Mutex
	conn   *rados.Conn
	ioctx  *rados.IOContext
	opened bool
}

func (b *CephBackend) ensureOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return
	}

	conn, err := rados.NewConnWithClusterAndUser(b.factory.ClusterName, b.factory.UserName)
	if err != nil {
		panic(err)
	}
	if b.factory.ConfFile != "" {
		if err := conn.ReadConfigFile(b.factory.ConfFile); err != nil {
			panic(err)
		}
	} else {
		_ = conn.ReadDefaultConfigFile()
	}
	if err := conn.Connect(); err != nil {
		panic(err)
	}

	ioctx, err := conn.OpenIOContext(b.factory.Pool)
	if err != nil {
		conn.Shutdown()
		panic(err)
	}

	b.conn = conn
	b.ioctx = ioctx
	b.opened = true
}

func (b *CephBackend) obj(segmentID, name string) string {
	return path.Join(b.prefix, segmentID, name)
}

func (b *CephBackend) ReadFile(segmentID, name string) (io.ReadCloser, error) {
	b.ensureOpen()
	obj := b.obj(segmentID, name)
	stat, err := b.ioctx.Stat(obj)
	if err != nil {
		return NotFoundReader{Err: err}, nil
	}
	data := make([]byte, stat.Size)
	n, err := b.ioctx.Read(obj, data, 0)
	if err != nil {
		return NotFoundReader{Err: err}, nil
	}
	return io.NopCloser(bytes.NewReader(data[:n])), nil
}

type cephWriteCloser struct {
	b      *CephBackend
	obj    string
	buf    bytes.Buffer
	closed bool
}

func (w *cephWriteCloser) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *cephWriteCloser) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.b.ioctx.WriteFull(w.obj, w.buf.Bytes())
}

func (b *CephBackend) WriteFile(segmentID, name string) (io.WriteCloser, error) {
	b.ensureOpen()
	return &cephWriteCloser{b: b, obj: b.obj(segmentID, name)}, nil
}

func (b *CephBackend) RemoveFile(segmentID, name string) error {
	b.ensureOpen()
	return b.ioctx.Delete(b.obj(segmentID, name))
}

func (b *CephBackend) ListSegments(prefix string) ([]string, error) {
	b.ensureOpen()
	iter, err := b.ioctx.Iter()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	listPrefix := path.Join(b.prefix, prefix) + "/"
	seen := make(map[string]struct{})
	var out []string
	for iter.Next() {
		name := iter.Value()
		if !strings.HasPrefix(name, listPrefix) {
			continue
		}
		rest := strings.TrimPrefix(name, listPrefix)
		segID := path.Join(prefix, strings.SplitN(rest, "/", 2)[0])
		if _, ok := seen[segID]; !ok {
			seen[segID] = struct{}{}
			out = append(out, segID)
		}
	}
	return out, iter.Err()
}

func (b *CephBackend) RemoveSegment(segmentID string) error {
	b.ensureOpen()
	iter, err := b.ioctx.Iter()
	if err != nil {
		return err
	}
	defer iter.Close()

	listPrefix := path.Join(b.prefix, segmentID) + "/"
	var names []string
	for iter.Next() {
		name := iter.Value()
		if strings.HasPrefix(name, listPrefix) {
			names = append(names, name)
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	for _, name := range names {
		if err := b.ioctx.Delete(name); err != nil {
			return err
		}
	}
	return nil
}
