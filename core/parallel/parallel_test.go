package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	smErrors "github.com/soundmind-ml/soundmind/pkg/errors"
)

func TestParallelizeCoversAllItems(t *testing.T) {
	const n = 1000
	covered := make([]int32, n)

	Parallelize(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&covered[i], 1)
		}
	})

	for i, c := range covered {
		require.Equal(t, int32(1), c, "index %d visited %d times", i, c)
	}
}

func TestParallelizeZeroItems(t *testing.T) {
	called := false
	Parallelize(0, func(start, end int) { called = true })
	assert.False(t, called)
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	var mu sync.Mutex
	var ranges [][2]int

	ParallelizeWithThreshold(10, 100, func(start, end int) {
		mu.Lock()
		ranges = append(ranges, [2]int{start, end})
		mu.Unlock()
	})

	// Below threshold the whole range arrives in one call.
	require.Len(t, ranges, 1)
	assert.Equal(t, [2]int{0, 10}, ranges[0])
}

func TestParallelizeIndexedCollectsError(t *testing.T) {
	var calls int32
	err := ParallelizeIndexed(8, func(i int) error {
		atomic.AddInt32(&calls, 1)
		if i == 5 {
			return smErrors.NewValueError("worker", "boom")
		}
		return nil
	})

	require.Error(t, err)
	// Every index still ran despite the failure.
	assert.Equal(t, int32(8), calls)
}

func TestParallelizeIndexedNoError(t *testing.T) {
	sums := make([]int, 16)
	err := ParallelizeIndexed(16, func(i int) error {
		sums[i] = i * i
		return nil
	})

	require.NoError(t, err)
	for i, s := range sums {
		assert.Equal(t, i*i, s)
	}
}
