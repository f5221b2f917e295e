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
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sneldb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseConfig = `
server:
  addr: ":8080"
  auth:
    alice: "74657374"
wal:
  dir: /tmp/wal
  batch_size: 32
storage:
  backend: file
  base_dir: /tmp/data
memtable:
  capacity: 5000
cache:
  capacity: "64MB"
shards: 4
`

func TestLoadFileParsesEveryField(t *testing.T) {
	path := writeConfig(t, baseConfig)
	l, err := LoadFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	cfg := l.Current()
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, []byte("test"), cfg.Server.AuthSecrets["alice"])
	require.Equal(t, "/tmp/wal", cfg.WAL.Dir)
	require.Equal(t, 32, cfg.WAL.BatchSize)
	require.Equal(t, "file", cfg.Storage.Backend)
	require.Equal(t, "/tmp/data", cfg.Storage.BaseDir)
	require.Equal(t, 5000, cfg.Memtable.Capacity)
	require.Equal(t, int64(64*1024*1024), cfg.Cache.CapacityBytes)
	require.Equal(t, 4, cfg.NumShards)
}

func TestLoadFileAppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, "storage:\n  base_dir: /tmp/data\n")
	l, err := LoadFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	cfg := l.Current()
	require.Equal(t, 1, cfg.NumShards)
	require.Equal(t, 1, cfg.WAL.BatchSize)
	require.Equal(t, 10000, cfg.Memtable.Capacity)
	require.Equal(t, int64(256<<20), cfg.Cache.CapacityBytes)
}

func TestLoadFailsWithoutAccessibleFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestPersistenceFactorySelectsFileBackendByDefault(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{BaseDir: "/tmp/data"}}
	f, err := cfg.PersistenceFactory()
	require.NoError(t, err)
	require.NotNil(t, f)
}

func TestPersistenceFactoryRejectsUnknownBackend(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Backend: "bogus"}}
	_, err := cfg.PersistenceFactory()
	require.Error(t, err)
}

func TestLoaderReloadsOnFileChange(t *testing.T) {
	path := writeConfig(t, baseConfig)
	l, err := LoadFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	reloaded := make(chan *Config, 1)
	l.OnReload(func(c *Config) { reloaded <- c })

	updated := baseConfig[:len(baseConfig)-len("shards: 4\n")] + "shards: 8\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case cfg := <-reloaded:
		require.Equal(t, 8, cfg.NumShards)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
