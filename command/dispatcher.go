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
	"hash/fnv"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/query"
	"github.com/sneldb/sneldb/replay"
	"github.com/sneldb/sneldb/schema"
	"github.com/sneldb/sneldb/snelerr"
)

// Shard is the slice of shard.Worker the dispatcher needs: registering
// schema updates, accepting stores, and force-flushing. Kept as its own
// interface (rather than importing shard directly) so command has no
// dependency on how a shard actually runs.
type Shard interface {
	query.ShardQuerier
	Define(ctx context.Context, s *schema.Schema) error
	Store(ctx context.Context, eventType, contextID string, payload json.RawMessage) (uint64, error)
	Flush(ctx context.Context) error
}

// Dispatcher binds the seven command shapes to the engine components that
// actually carry them out, the same role storage.Init(en) played by
// wiring scm builtins straight to table/shard functions rather than
// interpreting a command language of its own.
type Dispatcher struct {
	registry *schema.Registry
	shards   []Shard
	orch     *query.Orchestrator
	replay   *replay.Engine
	snaps    *SnapshotStore
}

// NewDispatcher builds a Dispatcher over shards, all sharing registry
// for schema lookups, orch for query fan-out, replayEngine for REPLAY,
// and snaps for REMEMBER QUERY.
func NewDispatcher(registry *schema.Registry, shards []Shard, orch *query.Orchestrator, replayEngine *replay.Engine, snaps *SnapshotStore) *Dispatcher {
	return &Dispatcher{registry: registry, shards: shards, orch: orch, replay: replayEngine, snaps: snaps}
}

// ShardFor picks which of n shards owns contextID: every Store and
// single-context Replay for the same context_id must land on the same
// shard, so routing is a pure function of the id, not round-robin.
func ShardFor(contextID string, n int) int {
	h := fnv.New64a()
	h.Write([]byte(contextID))
	return int(h.Sum64() % uint64(n))
}

// Define registers cmd's schema in the registry, then pushes it to
// every shard so subsequent Store/Query calls see it.
func (d *Dispatcher) Define(ctx context.Context, cmd Define) (*schema.Schema, error) {
	s, err := d.registry.Define(cmd.EventType, cmd.Fields)
	if err != nil {
		return nil, err
	}
	for _, sh := range d.shards {
		if err := sh.Define(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Store routes cmd to the one shard that owns its context_id.
func (d *Dispatcher) Store(ctx context.Context, cmd Store) (uint64, error) {
	if len(d.shards) == 0 {
		return 0, snelerr.New(snelerr.Internal, "command: no shards registered")
	}
	sh := d.shards[ShardFor(cmd.ContextID, len(d.shards))]
	return sh.Store(ctx, cmd.EventType, cmd.ContextID, cmd.Payload)
}

// Query fans cmd out across every shard and merges the result.
func (d *Dispatcher) Query(ctx context.Context, cmd Query) (query.Result, error) {
	return d.orch.Execute(ctx, cmd.Request)
}

// Compare runs every one of cmd's queries concurrently and reports them
// in request order.
func (d *Dispatcher) Compare(ctx context.Context, cmd Compare) (query.CompareResult, error) {
	return query.Compare(ctx, d.orch, cmd.Queries)
}

// Replay reconstructs cmd's event stream.
func (d *Dispatcher) Replay(ctx context.Context, cmd Replay) ([]event.Event, error) {
	return d.replay.Replay(ctx, cmd.Request)
}

// Flush forces every shard to rotate its WAL and flush its memtable,
// regardless of whether it has reached capacity on its own.
func (d *Dispatcher) Flush(ctx context.Context) error {
	errCh := make(chan error, len(d.shards))
	for _, sh := range d.shards {
		go func(s Shard) { errCh <- s.Flush(ctx) }(sh)
	}
	var first error
	for range d.shards {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Remember runs cmd's query and materializes the result under cmd.Name
// for a later REPLAY to read ahead of raw storage.
func (d *Dispatcher) Remember(ctx context.Context, cmd Remember) (replay.Snapshot, error) {
	res, err := d.orch.Execute(ctx, cmd.Query)
	if err != nil {
		return replay.Snapshot{}, err
	}
	return d.snaps.Write(cmd.Name, res.Rows)
}
