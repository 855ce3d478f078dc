package testutil

import (
	"math"
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Zipf returns a Zipfian-distributed value in [0, n).
// Uses Zipf's law: P(k) ∝ 1/k^s where s is the skew parameter.
// s=1.0 gives standard Zipf, s=1.5 gives heavy-tail (80/20 rule).
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	// Compute normalization constant (harmonic number with exponent s)
	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	// Sample from uniform and use inverse transform
	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1 // 0-indexed
		}
	}

	return n - 1
}

// OpKind is the type of a workload step.
type OpKind uint8

const (
	// OpCreate allocates a new handle.
	OpCreate OpKind = iota
	// OpFree releases a live handle.
	OpFree
	// OpGet reads a live handle.
	OpGet
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpFree:
		return "free"
	case OpGet:
		return "get"
	default:
		return "unknown"
	}
}

// Op is one step of an allocation workload.
//
// Pick selects the target among the live handles for OpFree and OpGet:
// the consumer takes live[Pick % len(live)]. Ops that target a handle are
// only emitted while at least one handle is live.
type Op struct {
	Kind OpKind
	Init bool
	Pick int
}

// WorkloadConfig shapes a generated workload.
type WorkloadConfig struct {
	// Ops is the number of steps.
	Ops int
	// FreeRate is the probability of a free step while handles are live.
	FreeRate float64
	// GetRate is the probability of a get step while handles are live.
	GetRate float64
	// InitRate is the probability that a create asks for a zeroed record.
	InitRate float64
	// Skew, when positive, picks targets with a Zipf distribution so that
	// recently created handles are hit more often.
	Skew float64
}

// Workload generates a deterministic create/free/get sequence.
func (r *RNG) Workload(cfg WorkloadConfig) []Op {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]Op, 0, cfg.Ops)
	live := 0
	for range cfg.Ops {
		u := r.rand.Float64()
		switch {
		case live > 0 && u < cfg.FreeRate:
			ops = append(ops, Op{Kind: OpFree, Pick: r.pickLocked(live, cfg.Skew)})
			live--
		case live > 0 && u < cfg.FreeRate+cfg.GetRate:
			ops = append(ops, Op{Kind: OpGet, Pick: r.pickLocked(live, cfg.Skew)})
		default:
			ops = append(ops, Op{Kind: OpCreate, Init: r.rand.Float64() < cfg.InitRate})
			live++
		}
	}
	return ops
}

func (r *RNG) pickLocked(live int, skew float64) int {
	if skew <= 0 {
		return r.rand.Intn(live)
	}
	// Rank 0 is the most recently created handle.
	return live - 1 - r.zipfLocked(min(live, 1024), skew)
}
