// Copyright © 2024 loonghao
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package device

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loonghao/ferrocp/common"
)

func TestCacheKeyUsesParentDirForFiles(t *testing.T) {
	a := assert.New(t)

	// A path with an extension keys on its parent directory, so sibling
	// files share one entry.
	a.Equal("/data/media", CacheKey("/data/media/movie.mkv"))
	a.Equal(CacheKey("/data/media/movie.mkv"), CacheKey("/data/media/other.iso"))
	// A bare directory keys on itself.
	a.Equal("/data/media", CacheKey("/data/media"))
}

func TestCacheInsertGetPromotes(t *testing.T) {
	a := assert.New(t)

	c := NewCache(nil, nil, WithMaxEntries(2))
	c.Insert("/mnt/a", common.EDeviceClass.SSD())
	c.Insert("/mnt/b", common.EDeviceClass.HDD())

	class, ok := c.Get("/mnt/a")
	a.True(ok)
	a.Equal(common.EDeviceClass.SSD(), class)

	// /mnt/a was just promoted; inserting a third entry evicts /mnt/b.
	c.Insert("/mnt/c", common.EDeviceClass.RamDisk())
	_, ok = c.Get("/mnt/b")
	a.False(ok)
	_, ok = c.Get("/mnt/a")
	a.True(ok)
	_, ok = c.Get("/mnt/c")
	a.True(ok)

	a.Equal(2, c.Len())
	a.Equal(uint64(1), c.Stats().Evictions)
}

func TestCacheNeverExceedsMaxEntries(t *testing.T) {
	a := assert.New(t)

	c := NewCache(nil, nil, WithMaxEntries(8))
	for i := 0; i < 100; i++ {
		c.Insert(fmt.Sprintf("/mnt/vol%d", i), common.EDeviceClass.SSD())
		a.LessOrEqual(c.Len(), 8)
	}
}

func TestCacheExpiryReportsMiss(t *testing.T) {
	a := assert.New(t)

	now := time.Now()
	clock := func() time.Time { return now }
	c := NewCache(nil, nil, WithTTL(time.Minute), WithClock(clock))

	c.Insert("/mnt/a", common.EDeviceClass.SSD())
	_, ok := c.Get("/mnt/a")
	a.True(ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("/mnt/a")
	a.False(ok)
	a.Equal(0, c.Len())
	a.Equal(uint64(1), c.Stats().ExpiredRemovals)
}

func TestCacheCleanupExpired(t *testing.T) {
	a := assert.New(t)

	now := time.Now()
	clock := func() time.Time { return now }
	c := NewCache(nil, nil, WithTTL(time.Minute), WithClock(clock))

	c.Insert("/mnt/a", common.EDeviceClass.SSD())
	now = now.Add(30 * time.Second)
	c.Insert("/mnt/b", common.EDeviceClass.HDD())
	now = now.Add(45 * time.Second)

	a.Equal(1, c.CleanupExpired()) // only /mnt/a is past the TTL
	a.Equal(1, c.Len())
}

func TestCacheLRUListMatchesIndex(t *testing.T) {
	a := assert.New(t)

	c := NewCache(nil, nil, WithMaxEntries(4))
	paths := []string{"/p/one", "/p/two", "/p/three", "/p/four", "/p/five", "/p/six"}
	for i, p := range paths {
		c.Insert(p, common.EDeviceClass.SSD())
		if i%2 == 0 {
			c.Get(paths[0]) // churn the ordering
		}
	}

	// Walk the list from head to tail and confirm it covers exactly the
	// indexed keys, each once.
	c.mu.Lock()
	seen := map[string]bool{}
	for key := c.head; key != ""; key = c.entries[key].next {
		a.False(seen[key], "key %s appears twice in the LRU list", key)
		seen[key] = true
	}
	a.Equal(len(c.entries), len(seen))
	for key := range c.entries {
		a.True(seen[key], "indexed key %s missing from the LRU list", key)
	}
	// head and tail are the unique unlinked ends.
	if c.head != "" {
		a.Empty(c.entries[c.head].prev)
		a.Empty(c.entries[c.tail].next)
	}
	c.mu.Unlock()
}

func TestGetOrResolveDegradesToUnknown(t *testing.T) {
	a := assert.New(t)

	failing := OracleFunc(func(context.Context, string) (common.DeviceClass, error) {
		return common.EDeviceClass.Unknown(), fmt.Errorf("probe exploded")
	})
	c := NewCache(failing, nil)

	a.Equal(common.EDeviceClass.Unknown(), c.GetOrResolve(context.Background(), "/mnt/a"))
	// Failures are not cached; a healthy oracle would be consulted again.
	a.Equal(0, c.Len())
}

func TestGetOrResolveCachesOracleAnswer(t *testing.T) {
	a := assert.New(t)

	var calls int32
	counting := OracleFunc(func(context.Context, string) (common.DeviceClass, error) {
		atomic.AddInt32(&calls, 1)
		return common.EDeviceClass.SSD(), nil
	})
	c := NewCache(counting, nil)

	for i := 0; i < 5; i++ {
		a.Equal(common.EDeviceClass.SSD(), c.GetOrResolve(context.Background(), "/mnt/disk/file.bin"))
	}
	a.Equal(int32(1), atomic.LoadInt32(&calls))
}

func TestBackgroundRefreshReplacesInPlace(t *testing.T) {
	a := assert.New(t)

	now := time.Now()
	clock := func() time.Time { return now }
	answer := common.EDeviceClass.HDD()
	oracle := OracleFunc(func(context.Context, string) (common.DeviceClass, error) {
		return answer, nil
	})
	c := NewCache(oracle, nil,
		WithTTL(time.Minute), WithRefreshThreshold(0.5),
		WithRefreshInterval(time.Millisecond), WithClock(clock))

	c.Insert("/mnt/a", common.EDeviceClass.HDD())

	// Age past the refresh threshold; the Get queues a refresh.
	now = now.Add(45 * time.Second)
	_, ok := c.Get("/mnt/a")
	a.True(ok)

	answer = common.EDeviceClass.SSD()
	now = now.Add(time.Second)
	a.Equal(1, c.DrainRefreshQueue(context.Background()))

	class, ok := c.Get("/mnt/a")
	a.True(ok)
	a.Equal(common.EDeviceClass.SSD(), class)
}

func TestCacheStatsEstimateMemory(t *testing.T) {
	a := assert.New(t)

	c := NewCache(nil, nil)
	c.Insert("/mnt/somewhere", common.EDeviceClass.SSD())
	stats := c.Stats()
	a.Equal(1, stats.Entries)
	a.Greater(stats.EstimatedMemory, 0)
}
