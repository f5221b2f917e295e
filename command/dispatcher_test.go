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
package command

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/persistence"
	"github.com/sneldb/sneldb/query"
	"github.com/sneldb/sneldb/replay"
	"github.com/sneldb/sneldb/schema"
)

// fakeShard is an in-memory Shard stand-in: every Store appends to its
// own rows slice, Query filters by event_type only (just enough to
// exercise Dispatcher routing without pulling in the real shard
// package's WAL/memtable machinery).
type fakeShard struct {
	id      int
	schemas map[string]*schema.Schema
	rows    []event.Event
	nextID  uint64
	flushes int
}

func (f *fakeShard) ShardID() int { return f.id }

func (f *fakeShard) Define(_ context.Context, s *schema.Schema) error {
	f.schemas[s.EventType] = s
	return nil
}

func (f *fakeShard) Store(_ context.Context, eventType, contextID string, payload json.RawMessage) (uint64, error) {
	f.nextID++
	f.rows = append(f.rows, event.Event{
		EventID: f.nextID, EventType: eventType, ContextID: contextID, Payload: payload,
	})
	return f.nextID, nil
}

func (f *fakeShard) Query(_ context.Context, req query.Request) ([]event.Event, error) {
	var out []event.Event
	for _, r := range f.rows {
		if fakeShardMatches(r, req) {
			out = append(out, r)
		}
	}
	return out, nil
}

func fakeShardMatches(r event.Event, req query.Request) bool {
	for _, p := range req.Predicates {
		if p.Field == "event_type" && p.Value != r.EventType {
			return false
		}
	}
	return true
}

func (f *fakeShard) Flush(_ context.Context) error {
	f.flushes++
	return nil
}

func newFakeShards(n int) []Shard {
	out := make([]Shard, n)
	for i := range out {
		out[i] = &fakeShard{id: i, schemas: map[string]*schema.Schema{}}
	}
	return out
}

func newTestDispatcher(t *testing.T, n int) (*Dispatcher, []Shard) {
	t.Helper()
	reg, err := schema.OpenRegistry(filepath.Join(t.TempDir(), "schema.log"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	shards := newFakeShards(n)
	queriers := make([]query.ShardQuerier, n)
	for i, s := range shards {
		queriers[i] = s.(query.ShardQuerier)
	}
	orch := query.NewOrchestrator(queriers)

	backend := persistence.NewFileBackend(t.TempDir())
	snaps := NewSnapshotStore(backend)

	return NewDispatcher(reg, shards, orch, replay.NewEngine(nil, snaps), snaps), shards
}

func TestDispatcherDefinePropagatesToEveryShard(t *testing.T) {
	d, shards := newTestDispatcher(t, 3)
	s, err := d.Define(context.Background(), Define{
		EventType: "login",
		Fields:    map[string]schema.FieldType{"user": {Kind: schema.KindString}},
	})
	require.NoError(t, err)

	for _, sh := range shards {
		fs := sh.(*fakeShard)
		require.Same(t, s, fs.schemas["login"])
	}
}

func TestDispatcherStoreRoutesSameContextToSameShard(t *testing.T) {
	d, shards := newTestDispatcher(t, 4)
	_, err := d.Define(context.Background(), Define{
		EventType: "login",
		Fields:    map[string]schema.FieldType{"user": {Kind: schema.KindString}},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := d.Store(context.Background(), Store{
			EventType: "login", ContextID: "user-42", Payload: json.RawMessage(`{"user":"a"}`),
		})
		require.NoError(t, err)
	}

	want := ShardFor("user-42", 4)
	for i, sh := range shards {
		fs := sh.(*fakeShard)
		if i == want {
			require.Len(t, fs.rows, 5)
		} else {
			require.Empty(t, fs.rows)
		}
	}
}

func TestDispatcherQueryMergesAcrossShards(t *testing.T) {
	d, _ := newTestDispatcher(t, 2)
	_, err := d.Define(context.Background(), Define{
		EventType: "login",
		Fields:    map[string]schema.FieldType{"user": {Kind: schema.KindString}},
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := d.Store(context.Background(), Store{
			EventType: "login", ContextID: "ctx", Payload: json.RawMessage(`{"user":"a"}`),
		})
		require.NoError(t, err)
	}

	res, err := d.Query(context.Background(), Query{Request: query.Request{}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)
}

func TestDispatcherFlushCallsEveryShard(t *testing.T) {
	d, shards := newTestDispatcher(t, 3)
	require.NoError(t, d.Flush(context.Background()))
	for _, sh := range shards {
		require.Equal(t, 1, sh.(*fakeShard).flushes)
	}
}

func TestDispatcherRememberWritesReadableSnapshot(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)
	_, err := d.Define(context.Background(), Define{
		EventType: "login",
		Fields:    map[string]schema.FieldType{"user": {Kind: schema.KindString}},
	})
	require.NoError(t, err)
	_, err = d.Store(context.Background(), Store{
		EventType: "login", ContextID: "ctx", Payload: json.RawMessage(`{"user":"a"}`),
	})
	require.NoError(t, err)

	snap, err := d.Remember(context.Background(), Remember{Name: "daily", Query: query.Request{}})
	require.NoError(t, err)
	require.Equal(t, "daily.snap", snap.Path)

	rows, err := d.snaps.Load(context.Background(), snap, "login")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDispatcherCompareRunsEveryQuery(t *testing.T) {
	d, _ := newTestDispatcher(t, 1)
	_, err := d.Define(context.Background(), Define{
		EventType: "login",
		Fields:    map[string]schema.FieldType{"user": {Kind: schema.KindString}},
	})
	require.NoError(t, err)
	_, err = d.Store(context.Background(), Store{
		EventType: "login", ContextID: "ctx", Payload: json.RawMessage(`{"user":"a"}`),
	})
	require.NoError(t, err)

	res, err := d.Compare(context.Background(), Compare{Queries: []query.Request{{}, {}}})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	require.Len(t, res.Results[0].Rows, 1)
	require.Len(t, res.Results[1].Rows, 1)
}
