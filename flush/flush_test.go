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
package flush

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/schema"
	"github.com/sneldb/sneldb/segment/zone"
)

func TestManagerFlushWritesSegment(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, 0, 2)

	rows := []event.Event{
		{EventID: 1, Timestamp: 1, ContextID: "c1", EventType: "user_created", Payload: mustJSON(t, map[string]any{"plan": "free"})},
		{EventID: 2, Timestamp: 2, ContextID: "c2", EventType: "user_created", Payload: mustJSON(t, map[string]any{"plan": "pro"})},
		{EventID: 3, Timestamp: 3, ContextID: "c1", EventType: "user_created", Payload: mustJSON(t, map[string]any{"plan": "pro"})},
	}
	schemas := map[string]*schema.Schema{
		"user_created": {EventType: "user_created", Fields: map[string]schema.FieldType{"plan": {Kind: schema.KindEnum, Variants: []string{"free", "pro"}}}},
	}

	meta, err := m.Flush(rows, schemas)
	require.NoError(t, err)
	require.Equal(t, 3, meta.RowCount)
	require.NotEmpty(t, meta.Dir)

	zones, err := zone.ReadMeta(meta.Dir)
	require.NoError(t, err)
	require.NotEmpty(t, zones)

	cr, err := zone.OpenColumnReader(meta.Dir, "plan")
	require.NoError(t, err)
	defer cr.Close()
	zv, err := cr.ReadZone(zones[0].ID)
	require.NoError(t, err)
	require.Equal(t, zones[0].RowCount, zv.Len())
}

func mustJSON(t *testing.T, v map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
