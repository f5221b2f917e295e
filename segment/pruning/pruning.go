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
// Package pruning holds the per-zone index types a query consults to skip
// zones before any column block is decompressed, and the pruner
// interface each index type implements to answer one comparison.
//
// Grounded on storage/index.go's StorageIndex (a btree.BTree keyed by
// value, mapping to row ids) generalized from whole-table row ids to
// per-zone candidate sets, and on the zone/selector/pruner/*.rs files
// (enum_pruner.rs, range_pruner.rs) for the attempt-then-fall-through
// dispatch a CompareOp takes across index kinds.
package pruning

// CompareOp is the comparison a WHERE clause term applies to a field.
type CompareOp uint8

const (
	Eq CompareOp = iota
	Neq
	Gt
	Gte
	Lt
	Lte
)

// CandidateZone is a zone a pruner has not ruled out for a given term.
type CandidateZone struct {
	SegmentID string
	ZoneID    int
}

// Args bundles everything a ZonePruner needs to answer one term.
type Args struct {
	SegmentID string
	UID       string
	Column    string
	Op        CompareOp
	Value     string
}

// ZonePruner narrows the zones a term could match. It returns ok=false
// when it has no opinion (wrong op, no index present, unsupported value
// type) so the caller falls through to the next pruner, and finally to
// "every zone is a candidate" if none apply.
type ZonePruner interface {
	Apply(args Args) (zones []CandidateZone, ok bool)
}
