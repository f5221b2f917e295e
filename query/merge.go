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
package query

import (
	"container/heap"
	"sort"

	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/flow"
	"github.com/sneldb/sneldb/segment/pruning"
)

// cursor walks one shard's already row-sorted result set.
type cursor struct {
	rows []event.Event
	pos  int
}

func (c *cursor) done() bool { return c.pos >= len(c.rows) }
func (c *cursor) peek() event.Event { return c.rows[c.pos] }

// mergeHeap is a container/heap of cursors ordered by their current
// row's OrderBy field, so Pop always returns the cursor whose next row
// sorts first across every shard.
type mergeHeap struct {
	cursors []*cursor
	ob      OrderBy
}

func (h mergeHeap) Len() int { return len(h.cursors) }
func (h mergeHeap) Less(i, j int) bool {
	vi, _ := flow.FieldValue(h.cursors[i].peek(), h.ob.Field)
	vj, _ := flow.FieldValue(h.cursors[j].peek(), h.ob.Field)
	vi, vj = pruning.SortableValue(vi), pruning.SortableValue(vj)
	if h.ob.Ascending {
		return vi < vj
	}
	return vi > vj
}
func (h mergeHeap) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }
func (h *mergeHeap) Push(x any)   { h.cursors = append(h.cursors, x.(*cursor)) }
func (h *mergeHeap) Pop() any {
	old := h.cursors
	n := len(old)
	item := old[n-1]
	h.cursors = old[:n-1]
	return item
}

// KWayMerge sorts each shard's rows in perShard by ob (a stable sort,
// so no input order is assumed), then merges them into one sequence
// sorted by ob, stopping once offset+limit rows (or every row, if limit<=0)
// have been produced. Field values go through pruning.SortableValue
// before they are compared, so numeric fields sort numerically. Mirrors KWayMerger::merge/apply_pagination: the merge
// itself is capped at offset+limit so a merge never does more
// comparison work than the page it will actually return.
func KWayMerge(perShard [][]event.Event, ob OrderBy, offset, limit int) []event.Event {
	capRows := offset + limit
	if limit <= 0 {
		capRows = 0 // unbounded
	}

	h := &mergeHeap{ob: ob}
	for _, rows := range perShard {
		sorted := append([]event.Event(nil), rows...)
		sort.SliceStable(sorted, func(i, j int) bool {
			vi, _ := flow.FieldValue(sorted[i], ob.Field)
			vj, _ := flow.FieldValue(sorted[j], ob.Field)
			vi, vj = pruning.SortableValue(vi), pruning.SortableValue(vj)
			if ob.Ascending {
				return vi < vj
			}
			return vi > vj
		})
		if len(sorted) > 0 {
			h.cursors = append(h.cursors, &cursor{rows: sorted})
		}
	}
	heap.Init(h)

	var out []event.Event
	for h.Len() > 0 {
		if capRows > 0 && len(out) >= capRows {
			break
		}
		top := h.cursors[0]
		out = append(out, top.peek())
		top.pos++
		if top.done() {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return Paginate(out, offset, limit)
}

// Paginate slices rows to [offset, offset+limit). A non-positive limit
// means "no limit" — only offset is applied.
func Paginate(rows []event.Event, offset, limit int) []event.Event {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// FoldMerge concatenates every shard's rows in shard order, for
// requests with no ORDER BY — mirrors merge_without_order's plain
// accumulation when there is no sort key to interleave by.
func FoldMerge(perShard [][]event.Event, offset, limit int) []event.Event {
	var out []event.Event
	for _, rows := range perShard {
		out = append(out, rows...)
	}
	return Paginate(out, offset, limit)
}
