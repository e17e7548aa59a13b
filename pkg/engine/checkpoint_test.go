package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernaezTlon/x-following-cleaner/pkg/store"
)

func TestCheckpointerThrottlesByIndexDelta(t *testing.T) {
	ms := store.NewMemoryStore()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := newCheckpointer(ms, store.KeyScanState, 5, 10*time.Second, func() time.Time { return clock })

	require.NoError(t, cp.force(map[string]int{"index": 0}, 0))
	assert.Equal(t, 1, ms.Writes(store.KeyScanState))

	for i := 1; i <= 4; i++ {
		require.NoError(t, cp.maybeSave(map[string]int{"index": i}, i))
	}
	assert.Equal(t, 1, ms.Writes(store.KeyScanState), "writes below the index delta should be suppressed")

	require.NoError(t, cp.maybeSave(map[string]int{"index": 5}, 5))
	assert.Equal(t, 2, ms.Writes(store.KeyScanState))
}

func TestCheckpointerTriggersOnElapsedInterval(t *testing.T) {
	ms := store.NewMemoryStore()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := newCheckpointer(ms, store.KeyScanState, 5, 10*time.Second, func() time.Time { return clock })

	require.NoError(t, cp.force(map[string]int{"index": 0}, 0))
	require.NoError(t, cp.maybeSave(map[string]int{"index": 1}, 1))
	assert.Equal(t, 1, ms.Writes(store.KeyScanState))

	clock = clock.Add(11 * time.Second)
	require.NoError(t, cp.maybeSave(map[string]int{"index": 1}, 1))
	assert.Equal(t, 2, ms.Writes(store.KeyScanState), "elapsed interval should force a write even with no index progress")
}

func TestCheckpointerForceResetsWindow(t *testing.T) {
	ms := store.NewMemoryStore()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := newCheckpointer(ms, store.KeyScanState, 5, 10*time.Second, func() time.Time { return clock })

	require.NoError(t, cp.force(nil, 3))
	require.NoError(t, cp.maybeSave(nil, 7))
	assert.Equal(t, 1, ms.Writes(store.KeyScanState), "delta counts from the forced index")

	require.NoError(t, cp.maybeSave(nil, 8))
	assert.Equal(t, 2, ms.Writes(store.KeyScanState))
}
