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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/event"
)

func TestPlanSortsAndSlicesZones(t *testing.T) {
	rows := []event.Event{
		{EventID: 3, Timestamp: 30},
		{EventID: 1, Timestamp: 10},
		{EventID: 2, Timestamp: 20},
	}
	sorted, zones := Plan(rows, 2)
	require.Len(t, zones, 2)
	require.Equal(t, uint64(10), sorted[0].Timestamp)
	require.Equal(t, uint64(30), sorted[2].Timestamp)

	require.Equal(t, 0, zones[0].StartRow)
	require.Equal(t, 2, zones[0].RowCount)
	require.Equal(t, uint64(10), zones[0].MinTS)
	require.Equal(t, uint64(20), zones[0].MaxTS)

	require.Equal(t, 2, zones[1].StartRow)
	require.Equal(t, 1, zones[1].RowCount)

	require.Len(t, Rows(sorted, zones[1]), 1)
}
