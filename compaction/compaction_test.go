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
package compaction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/flush"
	"github.com/sneldb/sneldb/schema"
	"github.com/sneldb/sneldb/segment/zone"
)

func mkEvent(t *testing.T, id, ts uint64, ctx string) event.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"n": id})
	require.NoError(t, err)
	return event.Event{EventID: id, Timestamp: ts, ContextID: ctx, EventType: "evt", Payload: payload}
}

func TestCompactorMergesSegmentsAndInvalidatesDrained(t *testing.T) {
	dir := t.TempDir()
	m := flush.NewManager(dir, 0, 2)
	schemas := map[string]*schema.Schema{"evt": {EventType: "evt", Fields: map[string]schema.FieldType{}}}

	seg1, err := m.Flush([]event.Event{mkEvent(t, 1, 1, "c1"), mkEvent(t, 2, 2, "c1")}, schemas)
	require.NoError(t, err)
	seg2, err := m.Flush([]event.Event{mkEvent(t, 3, 3, "c2")}, schemas)
	require.NoError(t, err)

	var invalidated []string
	h := NewHandover([]flush.SegmentMeta{seg1, seg2}, func(id string) { invalidated = append(invalidated, id) })

	compactor := NewCompactor(m, h, schemas)
	merged, err := compactor.CompactBatch([]flush.SegmentMeta{seg1, seg2})
	require.NoError(t, err)
	require.Equal(t, 3, merged.RowCount)

	require.ElementsMatch(t, []string{seg1.ID, seg2.ID}, invalidated)
	require.Len(t, h.Segments(), 1)
	require.Equal(t, merged.ID, h.Segments()[0].ID)
}

// TestCompactorOutputIsSortedByContextID covers scenario 4: compaction's
// re-flush through zone.Plan must produce a context_id-ordered column,
// not just a timestamp-ordered one, so pruning on context_id still
// narrows zones after a merge.
func TestCompactorOutputIsSortedByContextID(t *testing.T) {
	dir := t.TempDir()
	m := flush.NewManager(dir, 0, 2)
	schemas := map[string]*schema.Schema{"evt": {EventType: "evt", Fields: map[string]schema.FieldType{}}}

	seg1, err := m.Flush([]event.Event{mkEvent(t, 1, 1, "c3"), mkEvent(t, 2, 2, "c1")}, schemas)
	require.NoError(t, err)
	seg2, err := m.Flush([]event.Event{mkEvent(t, 3, 3, "c2"), mkEvent(t, 4, 4, "c1")}, schemas)
	require.NoError(t, err)

	h := NewHandover([]flush.SegmentMeta{seg1, seg2}, func(string) {})
	compactor := NewCompactor(m, h, schemas)
	merged, err := compactor.CompactBatch([]flush.SegmentMeta{seg1, seg2})
	require.NoError(t, err)

	sr, err := zone.OpenSegmentReader(merged.Dir)
	require.NoError(t, err)
	defer sr.Close()

	rows, err := sr.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for i := 1; i < len(rows); i++ {
		require.LessOrEqual(t, rows[i-1].ContextID, rows[i].ContextID)
	}
}
