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
package zone

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/event"
)

func TestWriteAndReadColumnRoundTrip(t *testing.T) {
	rows := []event.Event{
		{EventID: 1, Timestamp: 1, EventType: "a"},
		{EventID: 2, Timestamp: 2, EventType: "b"},
		{EventID: 3, Timestamp: 3, EventType: "a"},
	}
	sorted, zones := Plan(rows, 2)
	require.Len(t, zones, 2)

	dir := t.TempDir()
	get := func(row int) (string, bool) {
		if row == 1 {
			return "", false
		}
		return sorted[row].EventType, true
	}
	require.NoError(t, WriteColumn(dir, "event_type", zones, get))

	r, err := OpenColumnReader(dir, "event_type")
	require.NoError(t, err)
	defer r.Close()

	z0, err := r.ReadZone(0)
	require.NoError(t, err)
	require.Equal(t, 2, z0.Len())
	v0, ok0 := z0.At(0)
	require.True(t, ok0)
	require.Equal(t, "a", v0)
	_, ok1 := z0.At(1)
	require.False(t, ok1)

	z1, err := r.ReadZone(1)
	require.NoError(t, err)
	require.Equal(t, 1, z1.Len())
	v, ok := z1.At(0)
	require.True(t, ok)
	require.Equal(t, "a", v)

	_, err = filepath.Abs(dir)
	require.NoError(t, err)
}
