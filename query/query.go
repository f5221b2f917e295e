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
// Package query fans a request out across every shard, then merges
// each shard's answer back into one result: a k-way merge when an
// ORDER BY is present, a plain fold otherwise, or a partial-aggregate
// merge when the request is an aggregate query.
//
// Grounded on command/handlers/query_orchestrator.rs's QueryOrchestrator
// (discover, dispatch_to_shards, merge_results choosing between
// merge_with_order's k-way merge and merge_without_order's fold).
package query

import (
	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/flow"
)

// OrderBy names the sort the merge must preserve across shard
// boundaries. Ascending false means descending.
type OrderBy struct {
	Field     string
	Ascending bool
}

// Request describes one query: which rows to keep, which fields to
// keep on each row, how to order and page the result, and — if this is
// an aggregate query — what to fold rows into instead of returning
// them.
type Request struct {
	Predicates []flow.Predicate
	Project    []string
	OrderBy    *OrderBy
	Limit      int
	Offset     int
	Aggregate  *flow.Spec
}

// Result is what Orchestrator.Execute returns: either a page of rows,
// or an aggregate Partial, depending on whether Request.Aggregate was
// set.
type Result struct {
	Rows    []event.Event
	Partial flow.Partial
}
