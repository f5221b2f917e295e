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
package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/event"
)

type fakeRaw struct {
	rows []event.Event
}

func (f fakeRaw) Scan(ctx context.Context, eventType, contextID string, since uint64) ([]event.Event, error) {
	var out []event.Event
	for _, r := range f.rows {
		if r.EventType == eventType && r.ContextID == contextID && r.Timestamp >= since {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeSnapshot struct {
	rows []event.Event
}

func (f fakeSnapshot) Load(ctx context.Context, snap Snapshot, eventType string) ([]event.Event, error) {
	var out []event.Event
	for _, r := range f.rows {
		if r.EventType == eventType {
			out = append(out, r)
		}
	}
	return out, nil
}

func ev(id, ts uint64, ctx, etype string) event.Event {
	return event.Event{EventID: id, Timestamp: ts, ContextID: ctx, EventType: etype}
}

func TestReplayIgnoreSnapshotFiltersBySince(t *testing.T) {
	raw := fakeRaw{rows: []event.Event{
		ev(1, 1, "ctx-42", "evt"),
		ev(2, 5, "ctx-42", "evt"),
		ev(3, 9, "ctx-42", "evt"),
	}}
	e := NewEngine(raw, fakeSnapshot{})
	since := uint64(5)

	rows, err := e.Replay(context.Background(), Request{EventType: "evt", ContextID: "ctx-42", Since: &since})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, uint64(5), rows[0].Timestamp)
	require.Equal(t, uint64(9), rows[1].Timestamp)
}

func TestReplayUseSnapshotConcatenatesAndSorts(t *testing.T) {
	snap := fakeSnapshot{rows: []event.Event{
		ev(1, 1, "ctx-42", "evt"),
		ev(2, 5, "ctx-42", "evt"),
	}}
	raw := fakeRaw{rows: []event.Event{
		ev(3, 6, "ctx-42", "evt"),
		ev(4, 7, "ctx-42", "evt"),
	}}
	e := NewEngine(raw, snap)
	since := uint64(3)

	rows, err := e.Replay(context.Background(), Request{
		EventType: "evt", ContextID: "ctx-42", Since: &since,
		Snapshot: &Snapshot{StartTS: 0, EndTS: 5, Path: "snap.bin"},
	})
	require.NoError(t, err)
	// snapshot row ts=1 is dropped by SINCE=3, delta starts at end_ts+1=6
	require.Len(t, rows, 3)
	ts := []uint64{rows[0].Timestamp, rows[1].Timestamp, rows[2].Timestamp}
	require.Equal(t, []uint64{5, 6, 7}, ts)
}

func TestTwoPointerMatchFollowedBy(t *testing.T) {
	rows := []event.Event{
		ev(1, 1, "c1", "view"),
		ev(2, 2, "c1", "purchase"),
		ev(3, 5, "c1", "view"),
		ev(4, 6, "c1", "purchase"),
	}
	matches := TwoPointerMatch(rows, "view", "purchase", FollowedBy, nil)
	require.Len(t, matches, 2)
	require.Equal(t, uint64(1), matches[0].A.Timestamp)
	require.Equal(t, uint64(2), matches[0].B.Timestamp)
	require.Equal(t, uint64(5), matches[1].A.Timestamp)
	require.Equal(t, uint64(6), matches[1].B.Timestamp)
}

func TestTwoPointerMatchPrecededBy(t *testing.T) {
	rows := []event.Event{
		ev(1, 1, "c1", "signup"),
		ev(2, 2, "c1", "activate"),
		ev(3, 10, "c1", "activate"),
	}
	matches := TwoPointerMatch(rows, "activate", "signup", PrecededBy, nil)
	require.Len(t, matches, 2)
	for _, m := range matches {
		require.Equal(t, "signup", m.B.EventType)
		require.True(t, m.B.Timestamp < m.A.Timestamp)
	}
}
