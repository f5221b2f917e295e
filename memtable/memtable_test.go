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
package memtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/event"
)

func TestTablePushAndDrain(t *testing.T) {
	tbl := New(4)
	require.False(t, tbl.ShouldFlush())
	for i := uint64(0); i < 4; i++ {
		tbl.Push(event.Event{EventID: i, ContextID: "c1"})
	}
	require.True(t, tbl.ShouldFlush())
	require.Equal(t, 4, tbl.Len())

	rows := tbl.Drain()
	require.Len(t, rows, 4)
	require.Equal(t, 0, tbl.Len())
	require.False(t, tbl.ShouldFlush())
}

func TestTableSnapshotDoesNotClear(t *testing.T) {
	tbl := New(10)
	tbl.Push(event.Event{EventID: 1})
	snap := tbl.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, 1, tbl.Len())
}

func TestQueueFreezeAndPublish(t *testing.T) {
	tbl := New(2)
	tbl.Push(event.Event{EventID: 1})
	tbl.Push(event.Event{EventID: 2})

	q := NewQueue()
	p := q.Freeze(tbl)
	require.Equal(t, 1, q.Len())
	require.Equal(t, 0, tbl.Len())
	require.Len(t, q.Snapshot(), 2)

	q.Publish(p)
	require.Equal(t, 0, q.Len())
	require.Empty(t, q.Snapshot())
}
