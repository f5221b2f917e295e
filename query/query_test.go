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
package query

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/flow"
)

type fakeShard struct {
	id   int
	rows []event.Event
}

func (f fakeShard) ShardID() int { return f.id }
func (f fakeShard) Query(ctx context.Context, req Request) ([]event.Event, error) {
	var out []event.Event
	for _, r := range f.rows {
		keep := true
		for _, p := range req.Predicates {
			if !p.Match(r) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, nil
}

func mkEvent(t *testing.T, id, ts uint64, ctx string, n float64) event.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"n": n})
	require.NoError(t, err)
	return event.Event{EventID: id, Timestamp: ts, ContextID: ctx, EventType: "evt", Payload: payload}
}

func TestOrchestratorFoldMergeWithoutOrder(t *testing.T) {
	s1 := fakeShard{id: 0, rows: []event.Event{mkEvent(t, 1, 10, "c1", 1)}}
	s2 := fakeShard{id: 1, rows: []event.Event{mkEvent(t, 2, 20, "c2", 2)}}
	o := NewOrchestrator([]ShardQuerier{s1, s2})

	res, err := o.Execute(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestOrchestratorKWayMergeOrdersAcrossShards(t *testing.T) {
	s1 := fakeShard{id: 0, rows: []event.Event{mkEvent(t, 1, 30, "c1", 1), mkEvent(t, 2, 10, "c1", 1)}}
	s2 := fakeShard{id: 1, rows: []event.Event{mkEvent(t, 3, 20, "c2", 1)}}
	o := NewOrchestrator([]ShardQuerier{s1, s2})

	res, err := o.Execute(context.Background(), Request{OrderBy: &OrderBy{Field: "timestamp", Ascending: true}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	ts := []uint64{res.Rows[0].Timestamp, res.Rows[1].Timestamp, res.Rows[2].Timestamp}
	require.Equal(t, []uint64{10, 20, 30}, ts)
}

func TestOrchestratorKWayMergeRespectsPagination(t *testing.T) {
	s1 := fakeShard{id: 0, rows: []event.Event{mkEvent(t, 1, 30, "c1", 1), mkEvent(t, 2, 10, "c1", 1)}}
	s2 := fakeShard{id: 1, rows: []event.Event{mkEvent(t, 3, 20, "c2", 1)}}
	o := NewOrchestrator([]ShardQuerier{s1, s2})

	res, err := o.Execute(context.Background(), Request{
		OrderBy: &OrderBy{Field: "timestamp", Ascending: true},
		Offset:  1,
		Limit:   1,
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, uint64(20), res.Rows[0].Timestamp)
}

func TestOrchestratorAggregatesAcrossShards(t *testing.T) {
	s1 := fakeShard{id: 0, rows: []event.Event{mkEvent(t, 1, 1, "c1", 10)}}
	s2 := fakeShard{id: 1, rows: []event.Event{mkEvent(t, 2, 2, "c2", 5)}}
	o := NewOrchestrator([]ShardQuerier{s1, s2})

	res, err := o.Execute(context.Background(), Request{Aggregate: &flow.Spec{Func: flow.Sum, Field: "n"}})
	require.NoError(t, err)
	require.Equal(t, 15.0, res.Partial[""].Value(flow.Sum))
}

func TestCompareRunsQueriesConcurrentlyAndLabelsByIndex(t *testing.T) {
	s1 := fakeShard{id: 0, rows: []event.Event{mkEvent(t, 1, 1, "c1", 1), mkEvent(t, 2, 2, "c1", 1)}}
	o := NewOrchestrator([]ShardQuerier{s1})

	reqA := Request{Predicates: []flow.Predicate{{Field: "context_id", Value: "c1"}}}
	reqB := Request{}

	result, err := Compare(context.Background(), o, []Request{reqA, reqB})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
}
