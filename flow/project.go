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

	"github.com/sneldb/sneldb/event"
)

// Project narrows each row's payload to the given fields. An empty
// fields list is a no-op passthrough (the common "select *" case),
// skipping the JSON round-trip entirely rather than marshaling an
// identical payload back out.
func Project(ctx context.Context, in *Channel, fields []string) *Channel {
	if len(fields) == 0 {
		return in
	}
	out := NewChannel(4)
	go func() {
		defer out.Close()
		for {
			b, ok := in.Recv(ctx)
			if !ok {
				return
			}
			projected := GetBatch()
			for _, row := range b.Rows {
				projected.Rows = append(projected.Rows, projectRow(row, fields))
			}
			PutBatch(b)
			out.Send(ctx, projected)
		}
	}()
	return out
}

// projectRow rebuilds ev's payload containing only the named fields.
// A field absent from the original payload is simply omitted, not
// padded with a null — the projection describes what to keep, not a
// fixed output shape.
func projectRow(ev event.Event, fields []string) event.Event {
	var m map[string]any
	if err := json.Unmarshal(ev.Payload, &m); err != nil {
		return ev
	}
	narrowed := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			narrowed[f] = v
		}
	}
	raw, err := json.Marshal(narrowed)
	if err != nil {
		return ev
	}
	ev.Payload = raw
	return ev
}
