// Package testutil provides testing utilities for segpool.
//
// This package is intended for use in tests and benchmarks only.
//
// # Workloads
//
//	rng := testutil.NewRNG(seed)
//	ops := rng.Workload(testutil.WorkloadConfig{Ops: 10_000, FreeRate: 0.3})
//	for _, op := range ops {
//	    switch op.Kind {
//	    case testutil.OpCreate: ...
//	    case testutil.OpFree:   victim := live[op.Pick%len(live)]
//	    }
//	}
package testutil
