package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_GetSet(t *testing.T) {
	c, err := NewLRU[[]string](2, 0)
	require.NoError(t, err)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", []string{"alpha"})
	c.Set("b", []string{"beta"})
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"alpha"}, got)

	// "b" is now least recently used and goes first.
	c.Set("c", []string{"gamma"})
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestLRU_DefaultSize(t *testing.T) {
	c, err := NewLRU[int](0, 0)
	require.NoError(t, err)

	for i := 0; i < DefaultSize+10; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	assert.Equal(t, DefaultSize, c.Len())
}

func TestLRU_Expiry(t *testing.T) {
	c, err := NewLRU[int](8, 20*time.Millisecond)
	require.NoError(t, err)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("a")
		return !ok
	}, time.Second, 10*time.Millisecond, "entry should expire")
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c, err := NewLRU[int](64, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("%d-%d", g, i%16)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
