package audio

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEvictsOldestInsertedEntry(t *testing.T) {
	c := NewCache(DefaultCacheSize)
	clips := make([]*Clip, 0, DefaultCacheSize+1)
	for i := 0; i <= DefaultCacheSize; i++ {
		clip := NewClip([]byte{byte(i)}, "")
		clips = append(clips, clip)
		c.Put(CacheKey{Text: fmt.Sprintf("line %d", i), Voice: "alloy"}, clip)
	}

	assert.Equal(t, DefaultCacheSize, c.Len())
	_, ok := c.Get(CacheKey{Text: "line 0", Voice: "alloy"})
	assert.False(t, ok, "oldest entry should be evicted")
	assert.True(t, clips[0].Released())

	for i := 1; i <= DefaultCacheSize; i++ {
		got, ok := c.Get(CacheKey{Text: fmt.Sprintf("line %d", i), Voice: "alloy"})
		require.True(t, ok, "entry %d", i)
		assert.Same(t, clips[i], got)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCacheReadsDoNotRefreshPosition(t *testing.T) {
	c := NewCache(2)
	a := CacheKey{Text: "a", Voice: "nova"}
	c.Put(a, NewClip([]byte("a"), ""))
	c.Put(CacheKey{Text: "b", Voice: "nova"}, NewClip([]byte("b"), ""))

	_, ok := c.Get(a)
	require.True(t, ok)

	c.Put(CacheKey{Text: "c", Voice: "nova"}, NewClip([]byte("c"), ""))
	_, ok = c.Get(a)
	assert.False(t, ok)
}

func TestCacheKeyIncludesVoice(t *testing.T) {
	c := NewCache(4)
	c.Put(CacheKey{Text: "Hello", Voice: "alloy"}, NewClip([]byte("1"), ""))

	_, ok := c.Get(CacheKey{Text: "Hello", Voice: "shimmer"})
	assert.False(t, ok)
	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCacheReplaceKeepsPositionAndReleasesOld(t *testing.T) {
	c := NewCache(2)
	key := CacheKey{Text: "a", Voice: "nova"}
	first := NewClip([]byte("first"), "")
	second := NewClip([]byte("second"), "")

	c.Put(key, first)
	c.Put(CacheKey{Text: "b", Voice: "nova"}, NewClip([]byte("b"), ""))
	c.Put(key, second)

	assert.True(t, first.Released())
	assert.Equal(t, 2, c.Len())

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Same(t, second, got)

	// "a" kept its original slot, so it is still the oldest.
	c.Put(CacheKey{Text: "c", Voice: "nova"}, NewClip([]byte("c"), ""))
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestCacheEvictionKeepsRetainedClipAlive(t *testing.T) {
	c := NewCache(1)
	playing := NewClip([]byte("still playing"), "")
	c.Put(CacheKey{Text: "a"}, playing)
	require.True(t, playing.Retain())

	c.Put(CacheKey{Text: "b"}, NewClip([]byte("b"), ""))
	assert.False(t, playing.Released())
	assert.Equal(t, []byte("still playing"), playing.Bytes())

	playing.Release()
	assert.True(t, playing.Released())
	assert.Nil(t, playing.Bytes())
}

func TestCacheClearReleasesEverything(t *testing.T) {
	c := NewCache(4)
	a := NewClip([]byte("a"), "")
	b := NewClip([]byte("b"), "")
	c.Put(CacheKey{Text: "a"}, a)
	c.Put(CacheKey{Text: "b"}, b)

	c.Clear()

	assert.Zero(t, c.Len())
	assert.True(t, a.Released())
	assert.True(t, b.Released())
}

func TestCacheEvictHook(t *testing.T) {
	c := NewCache(1)
	var evicted []CacheKey
	c.SetEvictHook(func(k CacheKey) { evicted = append(evicted, k) })

	c.Put(CacheKey{Text: "a"}, NewClip([]byte("a"), ""))
	c.Put(CacheKey{Text: "b"}, NewClip([]byte("b"), ""))

	assert.Equal(t, []CacheKey{{Text: "a"}}, evicted)
}
