package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNG_Reset(t *testing.T) {
	rng := NewRNG(4711)

	a := rng.Uint64()
	rng.Reset()
	b := rng.Uint64()

	assert.Equal(t, a, b)
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestZipf(t *testing.T) {
	rng := NewRNG(4711)

	counts := make([]int, 10)
	for range 1000 {
		v := rng.Zipf(10, 1.5)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 10)
		counts[v]++
	}

	assert.Greater(t, counts[0], counts[9])
	assert.Equal(t, 0, rng.Zipf(1, 1.5))
}

func TestWorkload(t *testing.T) {
	cfg := WorkloadConfig{Ops: 2000, FreeRate: 0.4, GetRate: 0.2, InitRate: 0.5, Skew: 1.2}

	ops := NewRNG(4711).Workload(cfg)
	require.Len(t, ops, cfg.Ops)

	// Targeted ops never run against an empty set, and picks stay in range.
	live := 0
	kinds := map[OpKind]int{}
	for _, op := range ops {
		kinds[op.Kind]++
		switch op.Kind {
		case OpCreate:
			live++
		case OpFree:
			require.Positive(t, live)
			require.GreaterOrEqual(t, op.Pick, 0)
			require.Less(t, op.Pick, live)
			live--
		case OpGet:
			require.Positive(t, live)
			require.Less(t, op.Pick, live)
		}
	}

	assert.Positive(t, kinds[OpCreate])
	assert.Positive(t, kinds[OpFree])
	assert.Positive(t, kinds[OpGet])

	// Same seed, same workload.
	assert.Equal(t, ops, NewRNG(4711).Workload(cfg))
}

func TestOpKind_String(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "free", OpFree.String())
	assert.Equal(t, "get", OpGet.String())
}
