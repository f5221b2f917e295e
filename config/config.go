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
// Package config resolves the store's configuration from a file whose
// path is supplied by the SNELDB_CONFIG environment variable, the way
// storage/settings.go resolved a process-wide Settings value but
// backed by a real file format and hot-reloadable in place. Grounded
// on paramtable.BaseTable.LoadYaml for the viper-based load, and on
// a previously unused fsnotify dependency for the live-reload watch.
package config

// Config is the fully resolved, typed configuration for one sneldbd
// process.
type Config struct {
	Server    ServerConfig
	WAL       WALConfig
	Storage   StorageConfig
	Memtable  MemtableConfig
	Cache     CacheConfig
	NumShards int
}

// ServerConfig is the /command HTTP adapter's own settings.
type ServerConfig struct {
	Addr        string
	AuthSecrets map[string][]byte
}

// WALConfig controls per-shard write-ahead logging.
type WALConfig struct {
	Dir       string
	BatchSize int
}

// StorageConfig selects and configures the persistence.Backend the
// REMEMBER snapshot store writes through. Backend is one of "file",
// "s3", "ceph"; only the matching sub-struct is consulted. Shard
// flush and compaction write segment directories under BaseDir on the
// local filesystem, not through the backend.
type StorageConfig struct {
	Backend string
	BaseDir string
	S3      S3Config
	Ceph    CephConfig
}

// S3Config mirrors persistence.S3Factory's fields.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// CephConfig mirrors persistence.CephFactory's fields.
type CephConfig struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

// MemtableConfig bounds how many rows a shard buffers before an
// automatic flush.
type MemtableConfig struct {
	Capacity int
}

// CacheConfig bounds the process-wide cache.Cache's byte budget.
type CacheConfig struct {
	CapacityBytes int64
}
