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
package flow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/segment/pruning"
)

func mkRow(t *testing.T, id, ts uint64, ctx, etype string, fields map[string]any) event.Event {
	t.Helper()
	payload, err := json.Marshal(fields)
	require.NoError(t, err)
	return event.Event{EventID: id, Timestamp: ts, ContextID: ctx, EventType: etype, Payload: payload}
}

func TestSourceChunksRowsIntoBatches(t *testing.T) {
	rows := make([]event.Event, 0, batchSize+5)
	for i := 0; i < batchSize+5; i++ {
		rows = append(rows, mkRow(t, uint64(i), uint64(i), "c", "evt", map[string]any{"n": i}))
	}
	ctx := context.Background()
	ch, errc := Source(ctx, StaticRows(rows))

	total := 0
	batches := 0
	for {
		b, ok := ch.Recv(ctx)
		if !ok {
			break
		}
		total += len(b.Rows)
		batches++
		PutBatch(b)
	}
	require.NoError(t, <-errc)
	require.Equal(t, len(rows), total)
	require.Equal(t, 2, batches)
}

func TestFilterKeepsOnlyMatchingRows(t *testing.T) {
	rows := []event.Event{
		mkRow(t, 1, 1, "c1", "login", map[string]any{"n": 1}),
		mkRow(t, 2, 2, "c1", "logout", map[string]any{"n": 2}),
		mkRow(t, 3, 3, "c2", "login", map[string]any{"n": 3}),
	}
	ctx := context.Background()
	src, _ := Source(ctx, StaticRows(rows))
	filtered := Filter(ctx, src, []Predicate{{Field: "event_type", Op: pruning.Eq, Value: "login"}})

	var kept []event.Event
	for {
		b, ok := filtered.Recv(ctx)
		if !ok {
			break
		}
		kept = append(kept, b.Rows...)
		PutBatch(b)
	}
	require.Len(t, kept, 2)
	for _, r := range kept {
		require.Equal(t, "login", r.EventType)
	}
}

func TestProjectNarrowsPayloadFields(t *testing.T) {
	rows := []event.Event{mkRow(t, 1, 1, "c1", "evt", map[string]any{"a": 1.0, "b": 2.0})}
	ctx := context.Background()
	src, _ := Source(ctx, StaticRows(rows))
	projected := Project(ctx, src, []string{"a"})

	b, ok := projected.Recv(ctx)
	require.True(t, ok)
	require.Len(t, b.Rows, 1)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b.Rows[0].Payload, &m))
	require.Equal(t, map[string]any{"a": 1.0}, m)
}

func TestAggregateCountAllAndSumGroupedByField(t *testing.T) {
	rows := []event.Event{
		mkRow(t, 1, 1, "c1", "evt", map[string]any{"region": "eu", "amount": 10.0}),
		mkRow(t, 2, 2, "c1", "evt", map[string]any{"region": "eu", "amount": 5.0}),
		mkRow(t, 3, 3, "c1", "evt", map[string]any{"region": "us", "amount": 7.0}),
	}
	ctx := context.Background()

	src, _ := Source(ctx, StaticRows(rows))
	partial, err := Aggregate(ctx, src, Spec{Func: CountAll, GroupBy: []string{"region"}})
	require.NoError(t, err)
	require.Len(t, partial, 2)

	src2, _ := Source(ctx, StaticRows(rows))
	sums, err := Aggregate(ctx, src2, Spec{Func: Sum, Field: "amount", GroupBy: []string{"region"}})
	require.NoError(t, err)
	for key, r := range sums {
		if key == "region=eu\x00" {
			require.Equal(t, 15.0, r.Value(Sum))
		}
		if key == "region=us\x00" {
			require.Equal(t, 7.0, r.Value(Sum))
		}
	}
}

func TestAggregateConcurrentMergesPartials(t *testing.T) {
	ctx := context.Background()
	shard1 := []event.Event{mkRow(t, 1, 1, "c1", "evt", map[string]any{"n": 1.0})}
	shard2 := []event.Event{mkRow(t, 2, 2, "c2", "evt", map[string]any{"n": 2.0})}

	ch1, _ := Source(ctx, StaticRows(shard1))
	ch2, _ := Source(ctx, StaticRows(shard2))

	partial, err := AggregateConcurrent(ctx, []*Channel{ch1, ch2}, Spec{Func: Sum, Field: "n"})
	require.NoError(t, err)
	require.Equal(t, 3.0, partial[""].Value(Sum))
}
