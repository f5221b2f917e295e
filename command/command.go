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
// Package command shapes the seven operations the store exposes to a
// caller: DEFINE, STORE, QUERY, REPLAY, FLUSH, REMEMBER QUERY, and
// COMPARE.
// Parsing a textual command into one of these shapes is the server's
// job, not this package's — mirrors storage.Init(en)'s binding
// surface, which exposed one Go closure per scm builtin rather than a
// parser of its own (scm parsing lived in the scm package, upstream of
// storage entirely).
package command

import (
	"encoding/json"

	"github.com/sneldb/sneldb/query"
	"github.com/sneldb/sneldb/replay"
	"github.com/sneldb/sneldb/schema"
)

// Define registers an event type's schema. Repeating an identical
// definition is a no-op; redefining a type with a different field set
// is rejected.
type Define struct {
	EventType string
	Fields    map[string]schema.FieldType
}

// Store inserts one event.
type Store struct {
	EventType string
	ContextID string
	Payload   json.RawMessage
}

// Query runs a read against however many shards the dispatcher fans
// out to.
type Query struct {
	Request query.Request
}

// Replay reconstructs one context's ordered event stream for one event
// type.
type Replay struct {
	Request replay.Request
}

// Flush forces rotation on every shard.
type Flush struct{}

// Remember materializes a query's result into a named snapshot for
// replay to read ahead of instead of rescanning raw storage. The core
// only writes the snapshot body and its high-water mark; cataloging
// which name maps to which snapshot path is an external concern.
type Remember struct {
	Name  string
	Query query.Request
}

// Compare runs several queries concurrently and reports each one's own
// result, keyed by request order.
type Compare struct {
	Queries []query.Request
}
