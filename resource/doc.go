// Package resource implements the Controller that governs memory, background
// workers and IO for pools and their snapshots.
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                        Controller                           │
//	├─────────────────┬─────────────────┬─────────────────────────┤
//	│  Memory Budget  │  Background     │  IO Rate Limiter        │
//	│  (semaphore)    │  Workers (sem)  │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  pool segment   │  snapshot block │  snapshot writes and    │
//	│  growth         │  compression    │  reads                  │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// # Memory Budget
//
// A pool reserves the bytes of every segment it allocates and releases them
// on Close. Several pools can share one Controller to cap their combined
// footprint:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//	p, err := segpool.New[Particle](segpool.WithMemoryBudget(rc))
//
// # IO
//
// RateLimitedWriter and RateLimitedReader charge every byte against the
// token bucket configured by IOLimitBytesPerSec.
//
// A nil *Controller is valid and imposes no limits.
package resource
