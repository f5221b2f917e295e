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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileBackendWriteThenRead(t *testing.T) {
	b := NewFileBackend(t.TempDir())

	w, err := b.WriteFile("seg-1", "zones.meta")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := b.ReadFile("seg-1", "zones.meta")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestFileBackendReadMissingFileIsNotFound(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	r, err := b.ReadFile("seg-1", "missing")
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.Error(t, err)
}

func TestFileBackendListAndRemoveSegment(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	w, err := b.WriteFile("seg-1", "a")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	w, err = b.WriteFile("seg-2", "a")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	segs, err := b.ListSegments("")
	require.NoError(t, err)
	require.Len(t, segs, 2)

	require.NoError(t, b.RemoveSegment("seg-1"))
	segs, err = b.ListSegments("")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, "seg-2", segs[0])
}

func TestFileFactoryOpenScopesByDatabaseName(t *testing.T) {
	f := &FileFactory{Basepath: t.TempDir()}
	b := f.Open("mydb")
	w, err := b.WriteFile("seg-1", "a")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := b.ReadFile("seg-1", "a")
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	require.NoError(t, err)
}
