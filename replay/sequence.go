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
package replay

import "github.com/sneldb/sneldb/event"

// Link names how two event types in a sequence relate to each other.
type Link uint8

const (
	FollowedBy Link = iota
	PrecededBy
)

// Matched pairs one A-typed row with the B-typed row its Link matched
// it against.
type Matched struct {
	A event.Event
	B event.Event
}

// WhereClause narrows an otherwise-matched (A, B) pair further — a
// SEQUENCE query's WHERE applies across both sides of the match, not
// to each row independently.
type WhereClause func(a, b event.Event) bool

// TwoPointerMatch finds every (A, B) pair related by link within rows
// already sorted by timestamp, in O(len(rows)) by walking two pointers
// across the rows filtered to each event type rather than comparing
// every A against every B. Grounded on
// read/sequence/two_pointer_matcher.rs's TwoPointerMatcher: one-shot,
// single-link sequence matching (A FOLLOWED BY B / A PRECEDED BY B),
// not the general multi-link sequence graph the original engine also
// supports — SEQUENCE queries with more than one link are out of scope
// here.
func TwoPointerMatch(rows []event.Event, typeA, typeB string, link Link, where WhereClause) []Matched {
	aRows := filterType(rows, typeA)
	bRows := filterType(rows, typeB)
	if len(aRows) == 0 || len(bRows) == 0 {
		return nil
	}
	if link == FollowedBy {
		return matchFollowedBy(aRows, bRows, where)
	}
	return matchPrecededBy(aRows, bRows, where)
}

func filterType(rows []event.Event, eventType string) []event.Event {
	var out []event.Event
	for _, r := range rows {
		if r.EventType == eventType {
			out = append(out, r)
		}
	}
	return out
}

// matchFollowedBy pairs each A with the earliest B whose timestamp is
// >= A's. The B pointer only advances past B rows earlier than the
// current A, since such a B can never match a later A; a matched B
// stays in place and may pair with later As too.
func matchFollowedBy(aRows, bRows []event.Event, where WhereClause) []Matched {
	var out []Matched
	aPtr, bPtr := 0, 0
	for aPtr < len(aRows) && bPtr < len(bRows) {
		a, b := aRows[aPtr], bRows[bPtr]
		if b.Timestamp >= a.Timestamp {
			if where == nil || where(a, b) {
				out = append(out, Matched{A: a, B: b})
			}
			aPtr++
		} else {
			bPtr++
		}
	}
	return out
}

// matchPrecededBy pairs each A with the latest B strictly before it:
// for each A, b_ptr is advanced as far as it can go while still
// preceding A, then that B is paired (or the pair is dropped by
// where), and a_ptr moves on — b_ptr never needs to rewind since A's
// timestamps only increase.
func matchPrecededBy(aRows, bRows []event.Event, where WhereClause) []Matched {
	var out []Matched
	aPtr, bPtr := 0, 0
	for aPtr < len(aRows) && bPtr < len(bRows) {
		a := aRows[aPtr]
		if bRows[bPtr].Timestamp < a.Timestamp {
			latest := bPtr
			for latest+1 < len(bRows) && bRows[latest+1].Timestamp < a.Timestamp {
				latest++
			}
			b := bRows[latest]
			if where == nil || where(a, b) {
				out = append(out, Matched{A: a, B: b})
			}
			bPtr = latest
			aPtr++
		} else {
			aPtr++
		}
	}
	return out
}
