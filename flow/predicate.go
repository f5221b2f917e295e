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
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/segment/pruning"
)

// Predicate tests one row. Filter applies a row's Predicate after the
// zone selector has already discarded the zones it could rule out
// entirely; Predicate is the fallback row-level check for whatever a
// zone-level pruner could not decide.
type Predicate struct {
	Field string
	Op    pruning.CompareOp
	Value string
}

// fieldValue reads Field out of ev: the four fixed columns are read
// directly off the struct, anything else is looked up in the decoded
// payload. Unlike flush.fieldValue, timestamp and event_id come back
// as unpadded decimal text.
func (p Predicate) fieldValue(ev event.Event) (string, bool) {
	switch p.Field {
	case "context_id":
		return ev.ContextID, true
	case "event_type":
		return ev.EventType, true
	case "timestamp":
		return strconv.FormatUint(ev.Timestamp, 10), true
	case "event_id":
		return strconv.FormatUint(ev.EventID, 10), true
	default:
		var m map[string]any
		if err := json.Unmarshal(ev.Payload, &m); err != nil {
			return "", false
		}
		v, ok := m[p.Field]
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%v", v), true
	}
}

// FieldValue reads field out of ev the same way a Predicate does,
// exported for callers (the query orchestrator's ORDER BY merge) that
// need a row's sort key without building a full Predicate.
func FieldValue(ev event.Event, field string) (string, bool) {
	return Predicate{Field: field}.fieldValue(ev)
}

// Match reports whether ev satisfies the predicate. A missing field
// never matches, regardless of Op. Gt/Gte/Lt/Lte run the comparison
// through pruning.SortableValue first: plain string comparison over
// unpadded decimal text puts "2" after "10", which is wrong for every
// numeric field, not just the zero-padded timestamp/event_id columns.
func (p Predicate) Match(ev event.Event) bool {
	val, ok := p.fieldValue(ev)
	if !ok {
		return false
	}
	switch p.Op {
	case pruning.Eq:
		return val == p.Value
	case pruning.Neq:
		return val != p.Value
	case pruning.Gt:
		return pruning.SortableValue(val) > pruning.SortableValue(p.Value)
	case pruning.Gte:
		return pruning.SortableValue(val) >= pruning.SortableValue(p.Value)
	case pruning.Lt:
		return pruning.SortableValue(val) < pruning.SortableValue(p.Value)
	case pruning.Lte:
		return pruning.SortableValue(val) <= pruning.SortableValue(p.Value)
	default:
		return false
	}
}

// Filter consumes in, keeping only rows every predicate matches, and
// returns a Channel of the surviving batches. Empty batches are not
// forwarded, so a downstream Aggregate never sees a zero-row Batch.
func Filter(ctx context.Context, in *Channel, preds []Predicate) *Channel {
	out := NewChannel(4)
	go func() {
		defer out.Close()
		for {
			b, ok := in.Recv(ctx)
			if !ok {
				return
			}
			kept := GetBatch()
			for _, row := range b.Rows {
				matches := true
				for _, p := range preds {
					if !p.Match(row) {
						matches = false
						break
					}
				}
				if matches {
					kept.Rows = append(kept.Rows, row)
				}
			}
			PutBatch(b)
			if len(kept.Rows) > 0 {
				out.Send(ctx, kept)
			} else {
				PutBatch(kept)
			}
		}
	}()
	return out
}
