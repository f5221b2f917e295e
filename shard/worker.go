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
// Package shard is the single-threaded actor owning one shard's
// MemTable, passive-buffer queue, segment list, WAL handle, and base
// directory: a bounded inbox of Define/Store/Query/Scan/Flush requests, each
// processed one at a time so writes never race each other.
//
// Grounded on storage/partition.go's goroutine-pool dispatch for the
// concurrency shape, and storage/shard.go's single delta-buffer-per-
// shard ownership for why a shard, not the whole store, is the unit of
// serialization.
package shard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sneldb/sneldb/compaction"
	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/flow"
	"github.com/sneldb/sneldb/flush"
	"github.com/sneldb/sneldb/memtable"
	"github.com/sneldb/sneldb/query"
	"github.com/sneldb/sneldb/schema"
	"github.com/sneldb/sneldb/snelerr"
	"github.com/sneldb/sneldb/wal"
)

// Worker is one shard's actor. Every exported method sends a closure
// into inbox and blocks on a per-call reply channel (or ctx
// cancellation); run drains inbox on a single goroutine, so two
// concurrent Store calls to the same Worker are always serialized.
type Worker struct {
	id int

	table    *memtable.Table
	queue    *memtable.Queue
	walog    *wal.ShardLog
	flushMgr *flush.Manager
	handover *compaction.Handover
	compactr *compaction.Compactor

	schemas     map[string]*schema.Schema
	nextEventID uint64

	inbox  chan func()
	closed chan struct{}
}

// Config bundles everything NewWorker needs to construct one shard.
type Config struct {
	ID               int
	BaseDir          string
	MemtableCapacity int
	RowsPerZone      int
	WAL              wal.Options
	WALCompression   int
	InboxCapacity    int
	OnSegmentInvalid func(segmentID string) // called per drained segment id after a compaction commit (cmd/sneldbd wires it to the cache and broadcaster)
}

// NewWorker opens the shard's WAL, recovers its rows, and starts the
// actor's run loop. schemas seeds the field registry snapshot this
// shard flushes against; callers hand it an updated snapshot through
// Define whenever the registry changes.
func NewWorker(cfg Config, schemas map[string]*schema.Schema) (*Worker, error) {
	shardLog, err := wal.OpenShardLog(cfg.WAL, cfg.WALCompression)
	if err != nil {
		return nil, err
	}

	if cfg.MemtableCapacity <= 0 {
		cfg.MemtableCapacity = 4096
	}
	if cfg.InboxCapacity <= 0 {
		cfg.InboxCapacity = 256
	}

	fm := flush.NewManager(cfg.BaseDir, cfg.ID, cfg.RowsPerZone)
	handover := compaction.NewHandover(nil, cfg.OnSegmentInvalid)

	w := &Worker{
		id:       cfg.ID,
		table:    memtable.New(cfg.MemtableCapacity),
		queue:    memtable.NewQueue(),
		walog:    shardLog,
		flushMgr: fm,
		handover: handover,
		compactr: compaction.NewCompactor(fm, handover, schemas),
		schemas:  cloneSchemas(schemas),
		inbox:    make(chan func(), cfg.InboxCapacity),
		closed:   make(chan struct{}),
	}

	entries, _, err := wal.Recover(cfg.WAL, 0)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		ev := e.ToEvent()
		w.table.Push(ev)
		if ev.EventID >= w.nextEventID {
			w.nextEventID = ev.EventID + 1
		}
	}

	go w.run()
	return w, nil
}

func cloneSchemas(in map[string]*schema.Schema) map[string]*schema.Schema {
	out := make(map[string]*schema.Schema, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (w *Worker) run() {
	for {
		select {
		case fn, ok := <-w.inbox:
			if !ok {
				return
			}
			fn()
		case <-w.closed:
			return
		}
	}
}

// ShardID satisfies query.ShardQuerier.
func (w *Worker) ShardID() int { return w.id }

// send enqueues fn on the actor's inbox and waits for it to run, or for
// ctx to be cancelled first — whichever comes first.
func (w *Worker) send(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case w.inbox <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Define registers (or updates) eventType's schema against future
// Store calls and flushes. Schema redefinition conflicts are caught by
// the registry before Define is ever called; this just refreshes the
// shard's local snapshot.
func (w *Worker) Define(ctx context.Context, s *schema.Schema) error {
	return w.send(ctx, func() {
		w.schemas[s.EventType] = s
		w.compactr = compaction.NewCompactor(w.flushMgr, w.handover, w.schemas)
	})
}

// Store validates payload against eventType's schema, appends a WAL
// entry, and inserts the event into the active MemTable; once that
// insert brings the table to capacity, the table is moved to the
// passive queue and a flush is triggered. Returns the assigned EventID.
func (w *Worker) Store(ctx context.Context, eventType, contextID string, payload json.RawMessage) (uint64, error) {
	var id uint64
	var err error
	sendErr := w.send(ctx, func() {
		id, err = w.doStore(eventType, contextID, payload)
	})
	if sendErr != nil {
		return 0, sendErr
	}
	return id, err
}

func (w *Worker) doStore(eventType, contextID string, payload json.RawMessage) (uint64, error) {
	s, ok := w.schemas[eventType]
	if !ok {
		return 0, snelerr.New(snelerr.BadRequest, "shard: unknown event type: "+eventType)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return 0, snelerr.Wrap(snelerr.BadRequest, err, "shard: payload must be a JSON object")
	}
	if err := s.Validate(decoded); err != nil {
		return 0, err
	}

	id := w.nextEventID
	w.nextEventID++
	ev := event.Event{
		EventID:   id,
		Timestamp: uint64(time.Now().Unix()),
		EventType: eventType,
		ContextID: contextID,
		Payload:   payload,
	}

	if err := w.walog.Append(wal.FromEvent(ev)); err != nil {
		return 0, err
	}
	w.table.Push(ev)

	if w.table.ShouldFlush() {
		w.triggerFlush()
	}
	return id, nil
}

// triggerFlush freezes the active table into the passive queue and
// flushes it in the background: the freeze is synchronous (the actor
// already holds exclusive access while processing this message) but
// the expensive column-writing work runs off the actor goroutine so it
// never blocks the next Store/Query in line.
func (w *Worker) triggerFlush() {
	passive := w.queue.Freeze(w.table)
	logID, err := w.walog.ForceRotate()
	if err != nil {
		return // the error is dropped (not logged or returned); the shard keeps running
	}
	go func() {
		meta, err := w.flushMgr.Flush(passive.Rows(), w.schemas)
		if err != nil {
			return // the error is dropped (not logged or returned); the shard keeps running
		}
		if err := w.send(context.Background(), func() {
			w.handover.Add(meta)
			w.queue.Publish(passive)
			w.walog.MarkFlushed(logID)
		}); err != nil {
			return
		}
	}()
}

// Flush forces a flush of whatever is currently in the active table,
// regardless of capacity, mirroring the explicit FLUSH command.
func (w *Worker) Flush(ctx context.Context) error {
	return w.send(ctx, func() {
		if w.table.Len() == 0 {
			return
		}
		w.triggerFlush()
	})
}

// Query answers req against this shard's memtable, passive buffers,
// and segments: predicates and projection are applied per-row, zone
// pruning narrows which zones of each segment are even read.
func (w *Worker) Query(ctx context.Context, req query.Request) ([]event.Event, error) {
	var rows []event.Event
	var err error
	sendErr := w.send(ctx, func() {
		rows, err = w.doQuery(req)
	})
	if sendErr != nil {
		return nil, sendErr
	}
	return rows, err
}

func (w *Worker) doQuery(req query.Request) ([]event.Event, error) {
	var all []event.Event
	all = append(all, w.table.Snapshot()...)
	all = append(all, w.queue.Snapshot()...)

	for _, seg := range w.handover.Segments() {
		rows, err := segmentRows(seg.ID, seg.Dir, req.Predicates)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}

	ctxb := context.Background()
	src, errc := flow.Source(ctxb, flow.StaticRows(all))
	filtered := flow.Filter(ctxb, src, req.Predicates)
	projected := flow.Project(ctxb, filtered, req.Project)

	var out []event.Event
	for {
		b, ok := projected.Recv(ctxb)
		if !ok {
			break
		}
		out = append(out, b.Rows...)
		flow.PutBatch(b)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return out, nil
}

// Scan satisfies replay.RawSource: every row of eventType for
// contextID at or after since, across memtable, passive buffers, and
// segments.
func (w *Worker) Scan(ctx context.Context, eventType, contextID string, since uint64) ([]event.Event, error) {
	req := query.Request{Predicates: []flow.Predicate{
		{Field: "event_type", Value: eventType},
		{Field: "context_id", Value: contextID},
	}}
	rows, err := w.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	var out []event.Event
	for _, r := range rows {
		if r.Timestamp >= since {
			out = append(out, r)
		}
	}
	return out, nil
}

// Close stops the actor loop and closes the WAL.
func (w *Worker) Close() error {
	close(w.closed)
	return w.walog.Close()
}
