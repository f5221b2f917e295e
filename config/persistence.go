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
	"github.com/sneldb/sneldb/persistence"
	"github.com/sneldb/sneldb/snelerr"
)

// PersistenceFactory builds the persistence.Factory named by
// Storage.Backend. An unknown backend name is rejected here with a
// BadRequest; a ceph backend built without -tags=ceph is only caught
// when its Factory is opened, since the stub's Open panics.
func (c *Config) PersistenceFactory() (persistence.Factory, error) {
	switch c.Storage.Backend {
	case "", "file":
		return &persistence.FileFactory{Basepath: c.Storage.BaseDir}, nil
	case "s3":
		return &persistence.S3Factory{
			AccessKeyID:     c.Storage.S3.AccessKeyID,
			SecretAccessKey: c.Storage.S3.SecretAccessKey,
			Region:          c.Storage.S3.Region,
			Endpoint:        c.Storage.S3.Endpoint,
			Bucket:          c.Storage.S3.Bucket,
			Prefix:          c.Storage.S3.Prefix,
			ForcePathStyle:  c.Storage.S3.ForcePathStyle,
		}, nil
	case "ceph":
		return &persistence.CephFactory{
			UserName:    c.Storage.Ceph.UserName,
			ClusterName: c.Storage.Ceph.ClusterName,
			ConfFile:    c.Storage.Ceph.ConfFile,
			Pool:        c.Storage.Ceph.Pool,
			Prefix:      c.Storage.Ceph.Prefix,
		}, nil
	default:
		return nil, snelerr.New(snelerr.BadRequest, "config: unknown storage backend: "+c.Storage.Backend)
	}
}
