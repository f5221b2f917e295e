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
	"context"
	"fmt"

	"github.com/sneldb/sneldb/snelerr"
)

// CompareResult pairs each of a Compare request's queries with its own
// Result, in request order, so a caller can tell which query produced
// which rows without re-running anything.
type CompareResult struct {
	Results []Result
}

// Compare runs every request in reqs concurrently against o and
// collects their results in request order. Grounded on
// ComparisonExecutionPipeline::execute_streaming: run every query in
// parallel (join_all), then fail the whole comparison if any single
// query failed. Fewer than two requests is a BadRequest.
func Compare(ctx context.Context, o *Orchestrator, reqs []Request) (CompareResult, error) {
	if len(reqs) < 2 {
		return CompareResult{}, snelerr.New(snelerr.BadRequest, "query: compare requires at least two queries")
	}

	results := make([]Result, len(reqs))
	errs := make([]error, len(reqs))

	done := make(chan int, len(reqs))
	for i, req := range reqs {
		go func(idx int, r Request) {
			res, err := o.Execute(ctx, r)
			results[idx] = res
			errs[idx] = err
			done <- idx
		}(i, req)
	}
	for range reqs {
		<-done
	}

	for i, err := range errs {
		if err != nil {
			return CompareResult{}, fmt.Errorf("query %d failed: %w", i, err)
		}
	}
	return CompareResult{Results: results}, nil
}
