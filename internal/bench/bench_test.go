package bench

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunFixedSize(t *testing.T) {
	cfg := Config{
		Size:       64,
		Iterations: 50,
		Threads:    4,
	}

	result, err := Run(cfg)
	require.NoError(t, err)

	require.Equal(t, int64(cfg.Iterations*cfg.Threads), result.Memalloc.Allocations)
	require.Equal(t, int64(cfg.Iterations*cfg.Threads), result.Platform.Allocations)
	require.Len(t, result.Memalloc.PerWorker, cfg.Threads)
	require.GreaterOrEqual(t, result.SpeedupRatio(), float64(0))
}

func TestRunRandomSizeRange(t *testing.T) {
	cfg := Config{
		Min:        16,
		Max:        2048,
		Iterations: 50,
		Threads:    2,
	}

	result, err := Run(cfg)
	require.NoError(t, err)
	require.Equal(t, int64(cfg.Iterations*cfg.Threads), result.Memalloc.Allocations)
}

func TestRunHonorsTuningOptions(t *testing.T) {
	cfg := Config{
		Size:           32,
		Iterations:     20,
		Threads:        2,
		ArenaPages:     1,
		ThreadCacheCap: 1,
	}

	result, err := Run(cfg)
	require.NoError(t, err)
	require.Equal(t, int64(cfg.Iterations*cfg.Threads), result.Memalloc.Allocations)
}

func TestAllocationFailureErrorMessage(t *testing.T) {
	err := &AllocationFailureError{Comparator: "memalloc", Size: 4096}
	require.Contains(t, err.Error(), "memalloc")
	require.Contains(t, err.Error(), "4096")
}
