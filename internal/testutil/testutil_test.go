package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_DoesNotMove(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewFixedClock(at)

	assert.Equal(t, at, c.Now())
	assert.Equal(t, at, c.Now())
}

func TestFixedClock_SetAndAdvance(t *testing.T) {
	c := NewFixedClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	c.Advance(90 * time.Minute)
	assert.Equal(t, time.Date(2024, 6, 1, 13, 30, 0, 0, time.UTC), c.Now())

	c.Set(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), c.Now())
}

func TestSequentialIDs_Order(t *testing.T) {
	g := NewSequentialIDs("run")

	assert.Equal(t, "run-0001", g.Generate())
	assert.Equal(t, "run-0002", g.Generate())
	assert.Equal(t, "run-0003", g.Generate())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "id-0001", NewSequentialIDs("").Generate())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	g := NewSequentialIDs("x")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := g.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000, "all IDs should be unique")
}
