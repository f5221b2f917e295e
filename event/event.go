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
// Package event defines the tuple that flows through every layer of the
// engine: WAL, memtable, segment, and the query/flow pipeline.
package event

import "encoding/json"

// Event is the immutable unit of storage. EventID is assigned
// monotonically within a shard at ingest time; (Timestamp, EventID) forms
// a total order per shard.
type Event struct {
	EventID   uint64          `json:"event_id"`
	Timestamp uint64          `json:"timestamp"` // seconds since epoch
	EventType string          `json:"event_type"`
	ContextID string          `json:"context_id"`
	Payload   json.RawMessage `json:"payload"`
}

// Less orders events by (Timestamp, EventID), the per-shard total order
// invariant events must satisfy.
func Less(a, b Event) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.EventID < b.EventID
}

// SortKey orders rows within a zone by (ContextID, Timestamp, EventID),
// the flush-time zone ordering.
func SortKey(a, b Event) bool {
	if a.ContextID != b.ContextID {
		return a.ContextID < b.ContextID
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.EventID < b.EventID
}
