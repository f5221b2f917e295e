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
	"sync"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/flow"
)

// ShardQuerier is one shard's side of a query: apply the request's
// predicates and projection locally, returning the surviving rows in
// no guaranteed order (KWayMerge sorts each shard's rows itself). The shard
// package's Worker implements this by running a flow.Source ->
// flow.Filter -> flow.Project pipeline over its memtable snapshot and
// segment list.
type ShardQuerier interface {
	ShardID() int
	Query(ctx context.Context, req Request) ([]event.Event, error)
}

// Orchestrator fans a Request out across every registered shard and
// merges the per-shard answers into one Result.
type Orchestrator struct {
	shards []ShardQuerier
}

// NewOrchestrator creates an Orchestrator dispatching to shards.
func NewOrchestrator(shards []ShardQuerier) *Orchestrator {
	return &Orchestrator{shards: shards}
}

// Execute dispatches req to every shard concurrently, then merges
// their answers: a k-way merge when req.OrderBy is set, a partial
// aggregate merge when req.Aggregate is set, or a plain fold otherwise.
// Mirrors QueryOrchestrator::execute's dispatch_to_shards followed by
// merge_results' choice between merge_with_order and
// merge_without_order.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (Result, error) {
	type shardOutcome struct {
		id   int
		rows []event.Event
		err  error
	}

	outcomes := make(chan shardOutcome, len(o.shards))
	var wg sync.WaitGroup
	for _, s := range o.shards {
		wg.Add(1)
		go func(sq ShardQuerier) {
			defer wg.Done()
			rows, err := sq.Query(ctx, req)
			outcomes <- shardOutcome{id: sq.ShardID(), rows: rows, err: err}
		}(s)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	perShard := make(map[int][]event.Event, len(o.shards))
	var firstErr error
	for oc := range outcomes {
		if oc.err != nil && firstErr == nil {
			firstErr = oc.err
			continue
		}
		perShard[oc.id] = oc.rows
	}
	if firstErr != nil {
		return Result{}, firstErr
	}

	ordered := make([][]event.Event, 0, len(perShard))
	for _, s := range o.shards {
		ordered = append(ordered, perShard[s.ShardID()])
	}

	if req.Aggregate != nil {
		partial, err := aggregateRows(ordered, *req.Aggregate)
		if err != nil {
			return Result{}, err
		}
		return Result{Partial: partial}, nil
	}

	var rows []event.Event
	if req.OrderBy != nil {
		rows = KWayMerge(ordered, *req.OrderBy, req.Offset, req.Limit)
	} else {
		rows = FoldMerge(ordered, req.Offset, req.Limit)
	}
	return Result{Rows: rows}, nil
}

// aggregateRows folds every shard's already-filtered rows through the
// flow package's aggregate pipeline, one in-process channel per shard
// so AggregateConcurrent can merge their partials as each finishes.
func aggregateRows(perShard [][]event.Event, spec flow.Spec) (flow.Partial, error) {
	ctx := context.Background()
	channels := make([]*flow.Channel, 0, len(perShard))
	for _, rows := range perShard {
		ch, _ := flow.Source(ctx, flow.StaticRows(rows))
		channels = append(channels, ch)
	}
	return flow.AggregateConcurrent(ctx, channels, spec)
}
