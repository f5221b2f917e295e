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
// Command sneldbd is the store's entrypoint: it reads SNELDB_CONFIG,
// wires every package built under this module into one running
// process, and serves the /command HTTP adapter until a signal tells
// it to drain and exit.
//
// Grounded on main.go's "build globals, wire storage.Init, serve"
// shape and go-impl/main.go's flag-driven bring-up, generalized from a
// single scm environment to this store's shard/query/replay/command
// graph.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dc0d/onexit"
	"go.uber.org/zap"

	"github.com/sneldb/sneldb/cache"
	"github.com/sneldb/sneldb/command"
	"github.com/sneldb/sneldb/config"
	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/query"
	"github.com/sneldb/sneldb/replay"
	"github.com/sneldb/sneldb/schema"
	"github.com/sneldb/sneldb/server"
	"github.com/sneldb/sneldb/shard"
	"github.com/sneldb/sneldb/wal"
)

func main() {
	fmt.Print(`sneldb Copyright (C) 2023  Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sneldbd: logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	onexit.Register(func() { logger.Sync() })

	loader, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	onexit.Register(func() { loader.Close() })

	if err := run(logger, loader); err != nil {
		logger.Fatal("sneldbd", zap.Error(err))
	}
}

// scanAdapter routes replay's raw-storage fallback to whichever shard
// owns contextID, the same hash command.ShardFor uses for Store so a
// replay always reads back from where its events were written.
type scanAdapter struct {
	shards []*shard.Worker
}

func (a scanAdapter) Scan(ctx context.Context, eventType, contextID string, since uint64) ([]event.Event, error) {
	w := a.shards[command.ShardFor(contextID, len(a.shards))]
	return w.Scan(ctx, eventType, contextID, since)
}

func run(logger *zap.Logger, loader *config.Loader) error {
	cfg := loader.Current()

	registryPath := filepath.Join(cfg.Storage.BaseDir, "schemas.log")
	registry, err := schema.OpenRegistry(registryPath)
	if err != nil {
		return err
	}
	onexit.Register(func() { registry.Close() })

	persistenceFactory, err := cfg.PersistenceFactory()
	if err != nil {
		return err
	}
	snapBackend := persistenceFactory.Open("snapshots")
	snaps := command.NewSnapshotStore(snapBackend)

	shared := cache.New(cfg.Cache.CapacityBytes, logger)
	broadcaster := server.NewBroadcaster()

	onInvalidate := func(segmentID string) {
		shared.InvalidateSegment(segmentID)
		broadcaster.Notify("segment_invalidated", map[string]string{"segment_id": segmentID})
	}

	numShards := cfg.NumShards
	if numShards <= 0 {
		numShards = 1
	}
	schemas := registry.Snapshot()

	workers := make([]*shard.Worker, numShards)
	shardQueriers := make([]query.ShardQuerier, numShards)
	dispatchShards := make([]command.Shard, numShards)
	for i := 0; i < numShards; i++ {
		w, err := shard.NewWorker(shard.Config{
			ID:               i,
			BaseDir:          cfg.Storage.BaseDir,
			MemtableCapacity: cfg.Memtable.Capacity,
			RowsPerZone:      0, // zone.DefaultRowsPerZone; config exposes no override yet
			WAL: wal.Options{
				Dir:       cfg.WAL.Dir,
				ShardID:   i,
				Fsync:     wal.PerBatch,
				BatchSize: cfg.WAL.BatchSize,
			},
			OnSegmentInvalid: onInvalidate,
		}, schemas)
		if err != nil {
			return err
		}
		workers[i] = w
		shardQueriers[i] = w
		dispatchShards[i] = w
	}
	onexit.Register(func() {
		for _, w := range workers {
			w.Close()
		}
	})

	orch := query.NewOrchestrator(shardQueriers)
	replayEngine := replay.NewEngine(scanAdapter{shards: workers}, snaps)
	dispatcher := command.NewDispatcher(registry, dispatchShards, orch, replayEngine, snaps)

	auth := server.Auth{Secrets: cfg.Server.AuthSecrets}
	srv := server.New(dispatcher, auth, broadcaster)

	loader.OnReload(func(c *config.Config) {
		shared.Resize(c.Cache.CapacityBytes)
		logger.Info("config reloaded", zap.Int("shards", c.NumShards))
	})

	httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Routes()}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("listen", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dispatcher.Flush(shutdownCtx); err != nil {
		logger.Warn("flush on shutdown", zap.Error(err))
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	onexit.Exit(0)
	return nil
}
