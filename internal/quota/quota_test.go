package quota

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracker_ReserveWithinLimit(t *testing.T) {
	t.Parallel()
	tr := NewTracker(1000)

	require.True(t, tr.Reserve(SearchCost))
	require.True(t, tr.Reserve(50*DetailsCost))
	require.Equal(t, 150, tr.Used())
	require.Equal(t, 850, tr.Remaining())
	require.False(t, tr.Exhausted())
}

func TestTracker_RefusalLatches(t *testing.T) {
	t.Parallel()
	tr := NewTracker(250)

	require.True(t, tr.Reserve(200))
	// 100 would overrun; refusal latches the tracker.
	require.False(t, tr.Reserve(100))
	// A cost that would still fit is refused after the latch.
	require.False(t, tr.Reserve(10))
	require.True(t, tr.Exhausted())
	require.Equal(t, 200, tr.Used())
	require.Equal(t, 0, tr.Remaining())
}

func TestTracker_Reset(t *testing.T) {
	t.Parallel()
	tr := NewTracker(100)

	require.True(t, tr.Reserve(100))
	require.False(t, tr.Reserve(1))
	require.True(t, tr.Exhausted())

	tr.Reset()
	require.Equal(t, 0, tr.Used())
	require.False(t, tr.Exhausted())
	require.True(t, tr.Reserve(100))
}

func TestTracker_ExactFit(t *testing.T) {
	t.Parallel()
	tr := NewTracker(100)
	require.True(t, tr.Reserve(100))
	require.Equal(t, 0, tr.Remaining())
	require.False(t, tr.Exhausted())
}

func TestTracker_NegativeCost(t *testing.T) {
	t.Parallel()
	tr := NewTracker(100)
	require.False(t, tr.Reserve(-5))
	require.Equal(t, 0, tr.Used())
}

func TestTracker_ConcurrentReserveNeverOverruns(t *testing.T) {
	t.Parallel()
	tr := NewTracker(10000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Reserve(7)
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, tr.Used(), 10000)
	require.Equal(t, 0, tr.Used()%7)
}
