package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceIDs_Sequence(t *testing.T) {
	g := NewSequenceIDs("q")
	assert.Equal(t, "q-1", g.Generate())
	assert.Equal(t, "q-2", g.Generate())
	assert.Equal(t, int64(2), g.Issued())

	g.Reset()
	assert.Equal(t, "q-1", g.Generate())
}

func TestSequenceIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "req-1", NewSequenceIDs("").Generate())
}

func TestSequenceIDs_ConcurrentUnique(t *testing.T) {
	g := NewSequenceIDs("c")
	const n = 100

	var mu sync.Mutex
	seen := make(map[string]bool, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	assert.Equal(t, int64(n), g.Issued())
}

func TestFixedID(t *testing.T) {
	assert.Equal(t, "abc", FixedID("abc").Generate())
	assert.Equal(t, "req-fixed", FixedID("").Generate())
}

func TestSalesModel_Fresh(t *testing.T) {
	a, b := SalesModel(), SalesModel()
	assert.NotSame(t, a, b)

	c := a.EntityContainer()
	require.NotNil(t, c)
	_, ok := c.FindEntitySet("Orders")
	assert.True(t, ok)
	assert.Len(t, SalesRows()["Orders"], 5)
}
