package safe_map

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeMap_StoreLoadDelete(t *testing.T) {
	m := NewSafeMap[string, int]()

	_, ok := m.Load("a")
	assert.False(t, ok)

	m.Store("a", 1)
	v, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, m.Len())

	m.Delete("a")
	_, ok = m.Load("a")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestSafeMap_Clear(t *testing.T) {
	m := NewSafeMap[string, bool]()
	m.Store("svc1", true)
	m.Store("svc2", true)

	m.Clear()

	assert.Equal(t, 0, m.Len())
	m.Store("svc3", true)
	assert.Equal(t, 1, m.Len())
}

func TestSafeMap_ConcurrentAccess(t *testing.T) {
	m := NewSafeMap[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Store(i, i*2)
			m.Load(i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, m.Len())
	v, ok := m.Load(10)
	assert.True(t, ok)
	assert.Equal(t, 20, v)
}

func TestSafeMap_LoadOrCreate(t *testing.T) {
	m := NewSafeMap[string, int]()
	calls := 0
	create := func() int { calls++; return 7 }

	v, created := m.LoadOrCreate("dev", create)
	assert.True(t, created)
	assert.Equal(t, 7, v)

	m.Store("dev", 9)
	v, created = m.LoadOrCreate("dev", create)
	assert.False(t, created)
	assert.Equal(t, 9, v)
	assert.Equal(t, 1, calls)
}

func TestSafeMap_ValuesAndDeleteFunc(t *testing.T) {
	m := NewSafeMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)
	m.Store("c", 3)

	assert.ElementsMatch(t, []int{1, 2, 3}, m.Values())

	removed := m.DeleteFunc(func(_ string, v int) bool { return v >= 2 })
	assert.ElementsMatch(t, []string{"b", "c"}, removed)
	assert.Equal(t, []int{1}, m.Values())
}
