package subscription

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	t.Parallel()

	km := newKeyedMutex()

	var mu sync.Mutex
	counters := map[string]int{}

	var wg sync.WaitGroup
	for range 50 {
		for _, key := range []string{"sub_a", "sub_b"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release := km.Lock(key)
				defer release()
				mu.Lock()
				counters[key]++
				mu.Unlock()
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, 50, counters["sub_a"])
	assert.Equal(t, 50, counters["sub_b"])
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	t.Parallel()

	km := newKeyedMutex()

	release := km.Lock("sub_123")
	km.mu.Lock()
	require.Len(t, km.entries, 1)
	km.mu.Unlock()

	release()

	km.mu.Lock()
	assert.Empty(t, km.entries)
	km.mu.Unlock()
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	km := newKeyedMutex()

	releaseA := km.Lock("sub_a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB := km.Lock("sub_b")
		releaseB()
		close(done)
	}()

	<-done
}
