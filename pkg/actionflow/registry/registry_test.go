package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemory(t *testing.T) {
	s := NewMemory[string, int]()
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Len())
}

func TestSetAndGet(t *testing.T) {
	s := NewMemory[string, int]()

	s.Set("one", 1)
	s.Set("two", 2)

	v, ok := s.Get("one")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = s.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, v)
}

func TestSetReplaces(t *testing.T) {
	s := NewMemory[string, string]()

	s.Set("handler", "old")
	s.Set("handler", "new")

	v, ok := s.Get("handler")
	assert.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, s.Len())
}

func TestDelete(t *testing.T) {
	s := NewMemory[string, int]()
	s.Set("key", 42)

	assert.True(t, s.Delete("key"))
	assert.False(t, s.Has("key"))

	// Idempotent
	assert.False(t, s.Delete("key"))
}

func TestKeysAndLen(t *testing.T) {
	s := NewMemory[string, int]()
	s.Set("a", 1)
	s.Set("b", 2)
	s.Set("c", 3)

	assert.Equal(t, 3, s.Len())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, s.Keys())
}

func TestClear(t *testing.T) {
	s := NewMemory[string, int]()
	s.Set("a", 1)
	s.Set("b", 2)

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has("a"))

	// Usable after clear
	s.Set("c", 3)
	assert.True(t, s.Has("c"))
}

func TestRange(t *testing.T) {
	s := NewMemory[string, int]()
	s.Set("one", 1)
	s.Set("two", 2)

	visited := make(map[string]int)
	s.Range(func(k string, v int) bool {
		visited[k] = v
		return true
	})

	assert.Equal(t, map[string]int{"one": 1, "two": 2}, visited)
}

func TestRangeEarlyStop(t *testing.T) {
	s := NewMemory[string, int]()
	s.Set("one", 1)
	s.Set("two", 2)
	s.Set("three", 3)

	count := 0
	s.Range(func(string, int) bool {
		count++
		return false
	})

	assert.Equal(t, 1, count)
}

func TestRangeAllowsMutation(t *testing.T) {
	s := NewMemory[string, int]()
	s.Set("one", 1)
	s.Set("two", 2)

	s.Range(func(k string, _ int) bool {
		s.Delete(k)
		s.Set(k+"-copy", 0)
		return true
	})

	assert.ElementsMatch(t, []string{"one-copy", "two-copy"}, s.Keys())
}

func TestGetOrCreate(t *testing.T) {
	s := NewMemory[string, *int]()

	first := s.GetOrCreate("k", func() *int { v := 1; return &v })
	second := s.GetOrCreate("k", func() *int { v := 2; return &v })

	assert.Same(t, first, second)
	assert.Equal(t, 1, *second)
}

func TestGetOrCreateConcurrent(t *testing.T) {
	s := NewMemory[string, int]()
	var calls atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.GetOrCreate("shared", func() int {
				calls.Add(1)
				return 7
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	v, _ := s.Get("shared")
	assert.Equal(t, 7, v)
}

func TestConcurrentAccess(t *testing.T) {
	s := NewMemory[int, int]()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.Set(n, n*n)
		}(i)
		go func(n int) {
			defer wg.Done()
			_, _ = s.Get(n)
			_ = s.Keys()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len())
}
