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
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	units "github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/sneldb/sneldb/snelerr"
)

const envVar = "SNELDB_CONFIG"

// Loader owns the live Config plus the watcher keeping it current:
// every write to the file SNELDB_CONFIG points at is re-parsed in
// place, and everyone holding a Loader sees the update on their next
// Current call.
type Loader struct {
	v *viper.Viper

	mu  sync.RWMutex
	cfg *Config

	watcher  *fsnotify.Watcher
	onReload []func(*Config)
}

// Load reads the file named by SNELDB_CONFIG and starts watching it
// for changes. The env var is required; there is no default path.
func Load() (*Loader, error) {
	path := os.Getenv(envVar)
	if path == "" {
		return nil, snelerr.New(snelerr.BadRequest, "config: "+envVar+" is not set")
	}
	return LoadFile(path)
}

// LoadFile reads and watches the config file at path directly,
// bypassing SNELDB_CONFIG - mainly for tests.
func LoadFile(path string) (*Loader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, snelerr.Wrap(snelerr.BadRequest, err, "config: cannot access "+path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, snelerr.Wrap(snelerr.BadRequest, err, "config: read "+path)
	}

	l := &Loader{v: v}
	cfg, err := l.parse()
	if err != nil {
		return nil, err
	}
	l.cfg = cfg

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, snelerr.Wrap(snelerr.Internal, err, "config: create watcher")
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, snelerr.Wrap(snelerr.Internal, err, "config: watch "+path)
	}
	l.watcher = watcher
	go l.watch(path)

	return l, nil
}

func (l *Loader) watch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for event := range l.watcher.Events {
		eventAbs, err := filepath.Abs(event.Name)
		if err != nil || eventAbs != abs {
			continue
		}
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		if err := l.v.ReadInConfig(); err != nil {
			continue // keep serving the last good config
		}
		cfg, err := l.parse()
		if err != nil {
			continue
		}

		l.mu.Lock()
		l.cfg = cfg
		callbacks := append([]func(*Config){}, l.onReload...)
		l.mu.Unlock()

		for _, cb := range callbacks {
			cb(cfg)
		}
	}
}

// Current returns the most recently loaded Config.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// OnReload registers cb to run (with the new Config) every time the
// watched file is reloaded. Registered callbacks never fire for the
// initial Load/LoadFile - only for subsequent changes.
func (l *Loader) OnReload(cb func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = append(l.onReload, cb)
}

// Close stops watching the config file.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}

func (l *Loader) parse() (*Config, error) {
	v := l.v

	cacheCapacity, err := parseSize(v.GetString("cache.capacity"), 256<<20)
	if err != nil {
		return nil, snelerr.Wrap(snelerr.BadRequest, err, "config: cache.capacity")
	}

	secrets := make(map[string][]byte)
	for user, secret := range v.GetStringMapString("server.auth") {
		decoded, err := hex.DecodeString(secret)
		if err != nil {
			return nil, snelerr.Wrap(snelerr.BadRequest, err, "config: server.auth."+user)
		}
		secrets[user] = decoded
	}

	numShards := v.GetInt("shards")
	if numShards <= 0 {
		numShards = 1
	}
	batchSize := v.GetInt("wal.batch_size")
	if batchSize <= 0 {
		batchSize = 1
	}
	memtableCap := v.GetInt("memtable.capacity")
	if memtableCap <= 0 {
		memtableCap = 10000
	}

	return &Config{
		Server: ServerConfig{
			Addr:        v.GetString("server.addr"),
			AuthSecrets: secrets,
		},
		WAL: WALConfig{
			Dir:       v.GetString("wal.dir"),
			BatchSize: batchSize,
		},
		Storage: StorageConfig{
			Backend: v.GetString("storage.backend"),
			BaseDir: v.GetString("storage.base_dir"),
			S3: S3Config{
				AccessKeyID:     v.GetString("storage.s3.access_key_id"),
				SecretAccessKey: v.GetString("storage.s3.secret_access_key"),
				Region:          v.GetString("storage.s3.region"),
				Endpoint:        v.GetString("storage.s3.endpoint"),
				Bucket:          v.GetString("storage.s3.bucket"),
				Prefix:          v.GetString("storage.s3.prefix"),
				ForcePathStyle:  v.GetBool("storage.s3.force_path_style"),
			},
			Ceph: CephConfig{
				UserName:    v.GetString("storage.ceph.user_name"),
				ClusterName: v.GetString("storage.ceph.cluster_name"),
				ConfFile:    v.GetString("storage.ceph.conf_file"),
				Pool:        v.GetString("storage.ceph.pool"),
				Prefix:      v.GetString("storage.ceph.prefix"),
			},
		},
		Memtable:  MemtableConfig{Capacity: memtableCap},
		Cache:     CacheConfig{CapacityBytes: cacheCapacity},
		NumShards: numShards,
	}, nil
}

// parseSize turns a human size ("512MB", "2GiB") into bytes via
// docker/go-units, the same library a container runtime uses to parse
// --memory flags. An empty string means "use fallback" rather than an
// error, since cache.capacity is optional.
func parseSize(s string, fallback int64) (int64, error) {
	if s == "" {
		return fallback, nil
	}
	return units.RAMInBytes(s)
}
