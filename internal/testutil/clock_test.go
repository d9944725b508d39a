package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(1700000000000), clock.Peek().UnixMilli())
	assert.Equal(t, int64(1700000000000), clock.Now().UnixMilli())
}

func TestDeterministicClock_AdvancesPerRead(t *testing.T) {
	clock := NewDeterministicClock()

	assert.Equal(t, int64(1700000000000), clock.Now().UnixMilli())
	assert.Equal(t, int64(1700000000001), clock.Now().UnixMilli())
	assert.Equal(t, int64(1700000000002), clock.Now().UnixMilli())
	assert.Equal(t, int64(1700000000003), clock.Peek().UnixMilli())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()

	clock.Now()
	clock.Now()
	clock.Reset()

	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_Frozen(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewDeterministicClockAt(start, 0)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const numGoroutines = 50
	const readsPerGoroutine = 20

	var mu sync.Mutex
	seen := make(map[int64]bool)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < readsPerGoroutine; j++ {
				ms := clock.Now().UnixMilli()
				mu.Lock()
				seen[ms] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, numGoroutines*readsPerGoroutine, "every read should observe a distinct instant")
}
