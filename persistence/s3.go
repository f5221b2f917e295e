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
package persistence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Factory creates S3Backends against one bucket, one per database
// under Prefix/dbName. Mirrors storage/persistence-s3.go's S3Factory.
type S3Factory struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // custom endpoint for S3-compatible stores (MinIO, etc.)
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// Open satisfies Factory.
func (f *S3Factory) Open(dbName string) Backend {
	pfx := strings.TrimSuffix(f.Prefix, "/")
	if pfx != "" {
		pfx = pfx + "/" + dbName
	} else {
		pfx = dbName
	}
	return &S3Backend{factory: f, prefix: pfx}
}

// S3Backend stores every segment's files as objects keyed by
// <prefix>/<segmentID>/<name>. S3 has no real directories, so
// ListSegments/RemoveSegment page through ListObjectsV2 under the
// segment's key prefix.
type S3Backend struct {
	factory *S3Factory
	prefix  string

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

func (b *S3Backend) ensureOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if b.factory.Region != "" {
		opts = append(opts, config.WithRegion(b.factory.Region))
	}
	if b.factory.AccessKeyID != "" && b.factory.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.factory.AccessKeyID, b.factory.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		panic(fmt.Sprintf("persistence: load AWS config: %v", err))
	}

	var s3Opts []func(*s3.Options)
	if b.factory.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(b.factory.Endpoint) })
	}
	if b.factory.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	b.client = s3.NewFromConfig(cfg, s3Opts...)
	b.opened = true
}

func (b *S3Backend) key(segmentID, name string) string {
	return b.prefix + "/" + segmentID + "/" + name
}

func (b *S3Backend) ReadFile(segmentID, name string) (io.ReadCloser, error) {
	b.ensureOpen()
	resp, err := b.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.factory.Bucket),
		Key:    aws.String(b.key(segmentID, name)),
	})
	if err != nil {
		return NotFoundReader{Err: err}, nil
	}
	return resp.Body, nil
}

// s3WriteCloser buffers the whole object in memory and PUTs it on
// Close, since S3 objects are not appendable.
type s3WriteCloser struct {
	b      *S3Backend
	key    string
	buf    bytes.Buffer
}

func (w *s3WriteCloser) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *s3WriteCloser) Close() error {
	_, err := w.b.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(w.b.factory.Bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	return err
}

func (b *S3Backend) WriteFile(segmentID, name string) (io.WriteCloser, error) {
	b.ensureOpen()
	return &s3WriteCloser{b: b, key: b.key(segmentID, name)}, nil
}

func (b *S3Backend) RemoveFile(segmentID, name string) error {
	b.ensureOpen()
	_, err := b.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(b.factory.Bucket),
		Key:    aws.String(b.key(segmentID, name)),
	})
	return err
}

func (b *S3Backend) ListSegments(prefix string) ([]string, error) {
	b.ensureOpen()
	listPrefix := b.prefix + "/" + prefix
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.factory.Bucket),
		Prefix:    aws.String(listPrefix),
		Delimiter: aws.String("/"),
	})
	var out []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, err
		}
		for _, cp := range page.CommonPrefixes {
			segID := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), b.prefix+"/"), "/")
			out = append(out, segID)
		}
	}
	return out, nil
}

func (b *S3Backend) RemoveSegment(segmentID string) error {
	b.ensureOpen()
	listPrefix := b.prefix + "/" + segmentID + "/"
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.factory.Bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if _, err := b.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
				Bucket: aws.String(b.factory.Bucket),
				Key:    obj.Key,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
