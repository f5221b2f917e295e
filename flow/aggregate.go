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
	"sync"

	"github.com/sneldb/sneldb/event"
)

// Func names one of the aggregate functions a query can request.
type Func uint8

const (
	CountAll Func = iota
	CountField
	CountUnique
	Sum
	Min
	Max
	Avg
)

// Spec describes one aggregate column of a query: which function over
// which field, grouped by zero or more fields, optionally bucketed by
// Timestamp into fixed-width windows (a "time_bucket(3600)" group-by).
type Spec struct {
	Func          Func
	Field         string
	GroupBy       []string
	BucketSeconds uint64
}

// Result is one group's running accumulator. Distinct is only
// populated for CountUnique; it is the expensive part of a partial and
// is merged by set union rather than counted early, since the same
// value can appear in two different shards' partials.
type Result struct {
	Count    uint64
	Sum      float64
	Min      float64
	Max      float64
	hasRange bool
	Distinct map[string]struct{}
}

func newResult() *Result { return &Result{Distinct: make(map[string]struct{})} }

func (r *Result) observe(val float64) {
	if !r.hasRange {
		r.Min, r.Max = val, val
		r.hasRange = true
		return
	}
	if val < r.Min {
		r.Min = val
	}
	if val > r.Max {
		r.Max = val
	}
}

// Value collapses the accumulator into the number spec.Func describes.
func (r *Result) Value(fn Func) float64 {
	switch fn {
	case CountAll, CountField:
		return float64(r.Count)
	case CountUnique:
		return float64(len(r.Distinct))
	case Sum:
		return r.Sum
	case Min:
		return r.Min
	case Max:
		return r.Max
	case Avg:
		if r.Count == 0 {
			return 0
		}
		return r.Sum / float64(r.Count)
	default:
		return 0
	}
}

// Partial maps a group key (the group-by field values and/or time
// bucket, joined) to its running accumulator. Two Partials computed
// from disjoint row sets can always be merged into an equivalent
// single-pass result, which is what lets Aggregate run once per shard
// concurrently instead of funneling every row through one accumulator.
type Partial map[string]*Result

// MergePartials combines b into a and returns a, mutating a in place.
// Safe to fold a stream of per-shard partials one at a time as they
// complete rather than collecting all of them before merging.
func MergePartials(a, b Partial) Partial {
	for k, rb := range b {
		ra, ok := a[k]
		if !ok {
			a[k] = rb
			continue
		}
		ra.Count += rb.Count
		ra.Sum += rb.Sum
		if rb.hasRange {
			ra.observe(rb.Min)
			ra.observe(rb.Max)
		}
		for v := range rb.Distinct {
			ra.Distinct[v] = struct{}{}
		}
	}
	return a
}

func groupKey(ev event.Event, spec Spec) (string, bool) {
	key := ""
	for _, f := range spec.GroupBy {
		v, ok := Predicate{Field: f}.fieldValue(ev)
		if !ok {
			return "", false
		}
		key += f + "=" + v + "\x00"
	}
	if spec.BucketSeconds > 0 {
		bucket := ev.Timestamp / spec.BucketSeconds * spec.BucketSeconds
		key += "time_bucket=" + strconv.FormatUint(bucket, 10)
	}
	return key, true
}

func numericValue(ev event.Event, field string) (float64, bool) {
	var m map[string]any
	if err := json.Unmarshal(ev.Payload, &m); err != nil {
		return 0, false
	}
	v, ok := m[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	default:
		f, err := strconv.ParseFloat(fmt.Sprintf("%v", n), 64)
		return f, err == nil
	}
}

// Aggregate drains in to completion, folding every row into spec's
// accumulator(s), one per distinct group key.
func Aggregate(ctx context.Context, in *Channel, spec Spec) (Partial, error) {
	partial := make(Partial)
	for {
		b, ok := in.Recv(ctx)
		if !ok {
			return partial, nil
		}
		for _, row := range b.Rows {
			key, ok := groupKey(row, spec)
			if !ok {
				continue
			}
			r, exists := partial[key]
			if !exists {
				r = newResult()
				partial[key] = r
			}
			accumulate(r, spec, row)
		}
		PutBatch(b)
	}
}

func accumulate(r *Result, spec Spec, row event.Event) {
	switch spec.Func {
	case CountAll:
		r.Count++
	case CountField:
		if _, ok := (Predicate{Field: spec.Field}).fieldValue(row); ok {
			r.Count++
		}
	case CountUnique:
		if v, ok := (Predicate{Field: spec.Field}).fieldValue(row); ok {
			r.Distinct[v] = struct{}{}
		}
	case Sum, Avg:
		if v, ok := numericValue(row, spec.Field); ok {
			r.Sum += v
			r.Count++
		}
	case Min, Max:
		if v, ok := numericValue(row, spec.Field); ok {
			r.observe(v)
			r.Count++
		}
	}
}

// AggregateConcurrent runs Aggregate over every channel in its own
// goroutine and merges the resulting partials as each completes,
// mirroring storage/scan.go's pattern of fanning a scan out across
// shards and folding each shard's intermediate result into one total
// as it arrives rather than waiting for every shard up front.
func AggregateConcurrent(ctx context.Context, ins []*Channel, spec Spec) (Partial, error) {
	type outcome struct {
		partial Partial
		err     error
	}
	results := make(chan outcome, len(ins))
	var wg sync.WaitGroup
	for _, in := range ins {
		wg.Add(1)
		go func(ch *Channel) {
			defer wg.Done()
			p, err := Aggregate(ctx, ch, spec)
			results <- outcome{partial: p, err: err}
		}(in)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	total := make(Partial)
	var firstErr error
	for o := range results {
		if o.err != nil && firstErr == nil {
			firstErr = o.err
			continue
		}
		MergePartials(total, o.partial)
	}
	return total, firstErr
}
