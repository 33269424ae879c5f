package palette

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexCache(t *testing.T) {
	t.Parallel()

	c := newIndexCache()
	var builds int
	build := func() (*Index, error) {
		builds++
		return newIndex("a.html"), nil
	}

	first, err := c.get("a.html", build)
	require.NoError(t, err)
	second, err := c.get("a.html", build)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, builds)
	require.Equal(t, 1, c.len())

	c.flush()
	require.Equal(t, 0, c.len())
	third, err := c.get("a.html", build)
	require.NoError(t, err)
	require.NotSame(t, first, third)
	require.Equal(t, 2, builds)
}

func TestIndexCacheSkipsErrors(t *testing.T) {
	t.Parallel()

	c := newIndexCache()
	boom := errors.New("boom")
	_, err := c.get("a.html", func() (*Index, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, c.len())

	idx, err := c.get("a.html", func() (*Index, error) { return newIndex("a.html"), nil })
	require.NoError(t, err)
	require.NotNil(t, idx)
}

func TestIndexCacheFlushDuringBuild(t *testing.T) {
	t.Parallel()

	c := newIndexCache()
	idx, err := c.get("a.html", func() (*Index, error) {
		c.flush()
		return newIndex("a.html"), nil
	})
	require.NoError(t, err)
	require.NotNil(t, idx)
	require.Equal(t, 0, c.len(), "an index built before a flush must not be cached after it")
}

func TestIndexCacheConcurrent(t *testing.T) {
	t.Parallel()

	c := newIndexCache()
	var wg sync.WaitGroup
	results := make([]*Index, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := c.get("a.html", func() (*Index, error) {
				return newIndex("a.html"), nil
			})
			if err == nil {
				results[i] = idx
			}
		}()
	}
	wg.Wait()
	for _, idx := range results {
		require.NotNil(t, idx)
		require.Equal(t, "a.html", idx.Name)
	}
	require.Equal(t, 1, c.len())
}
