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
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetMissThenHit(t *testing.T) {
	c := New(1024, nil)
	_, ok := c.Get("a")
	require.False(t, ok)

	c.Put("a", "value-a", 8, "seg-1")
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "value-a", v)

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
}

func TestPutEvictsLeastRecentlyUsedUnderBudget(t *testing.T) {
	c := New(16, nil)
	c.Put("a", "A", 8, "")
	c.Put("b", "B", 8, "")
	// touching a makes b the least-recently-used entry
	c.Get("a")
	c.Put("c", "C", 8, "")

	_, ok := c.Get("b")
	require.False(t, ok)
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
	require.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestInvalidateSegmentDropsOnlyItsEntries(t *testing.T) {
	c := New(1024, nil)
	c.Put("a", "A", 8, "seg-1")
	c.Put("b", "B", 8, "seg-2")

	c.InvalidateSegment("seg-1")

	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok)
}

func TestResizeEvictsDownToNewBudgetPreservingRecency(t *testing.T) {
	c := New(1024, nil)
	c.Put("a", "A", 8, "")
	c.Put("b", "B", 8, "")
	c.Get("a") // a is now most-recently-used

	c.Resize(8)

	_, ok := c.Get("b")
	require.False(t, ok)
	_, ok = c.Get("a")
	require.True(t, ok)
}

func TestGetOrLoadCoalescesConcurrentMisses(t *testing.T) {
	c := New(1024, nil)
	var loads atomic.Int64

	load := func(ctx context.Context) (any, int64, error) {
		loads.Add(1)
		return "loaded", 8, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "k", "", load)
			require.NoError(t, err)
			require.Equal(t, "loaded", v)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), loads.Load())
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "loaded", v)
}
