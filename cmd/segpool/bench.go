package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/segpool"
	"github.com/hupe1980/segpool/blobstore"
	"github.com/hupe1980/segpool/resource"
	"github.com/hupe1980/segpool/snapshot"
	"github.com/hupe1980/segpool/testutil"
)

type benchRecord struct {
	ID      uint64
	Payload [48]byte
}

type benchConfig struct {
	ops         int
	seed        int64
	freeRate    float64
	getRate     float64
	initRate    float64
	skew        float64
	capacity    uint32
	offHeap     bool
	memoryLimit int64
	workers     int64
	saveDir     string
	name        string
	compression string
}

type benchReport struct {
	Ops      int                       `json:"ops"`
	Elapsed  time.Duration             `json:"elapsed_ns"`
	Pool     segpool.Stats             `json:"pool"`
	Metrics  segpool.BasicMetricsStats `json:"metrics"`
	Budget   budgetReport              `json:"budget"`
	Snapshot string                    `json:"snapshot,omitempty"`
}

type budgetReport struct {
	LimitBytes int64 `json:"limit_bytes"`
	PeakBytes  int64 `json:"peak_bytes"`
	Workers    int64 `json:"workers"`
}

func init() {
	rootCmd.AddCommand(newBenchCmd())
}

func newBenchCmd() *cobra.Command {
	cfg := benchConfig{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a seeded create/free workload",
		Long: `The bench command replays a deterministic workload of creates, frees
and reads against a pool and reports pool statistics and allocator metrics.

Example:
  segpool bench --ops 1000000 --free-rate 0.4
  segpool bench --off-heap --save ./snapshots --compression zstd`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.ops, "ops", 100_000, "Number of workload steps")
	flags.Int64Var(&cfg.seed, "seed", 4711, "Workload seed")
	flags.Float64Var(&cfg.freeRate, "free-rate", 0.35, "Probability of a free step")
	flags.Float64Var(&cfg.getRate, "get-rate", 0.25, "Probability of a read step")
	flags.Float64Var(&cfg.initRate, "init-rate", 0.5, "Probability that a create zeroes the record")
	flags.Float64Var(&cfg.skew, "skew", 0, "Zipf skew for picking targets (0 = uniform)")
	flags.Uint32Var(&cfg.capacity, "capacity", 16, "Initial pool capacity")
	flags.BoolVar(&cfg.offHeap, "off-heap", false, "Store segments in anonymous memory mappings")
	flags.Int64Var(&cfg.memoryLimit, "memory-limit", 0, "Segment memory budget in bytes (0 = unlimited)")
	flags.Int64Var(&cfg.workers, "workers", 0, "Snapshot compression workers (0 = one)")
	flags.StringVar(&cfg.saveDir, "save", "", "Write a snapshot to this directory")
	flags.StringVar(&cfg.name, "name", "bench.snap", "Snapshot blob name")
	flags.StringVar(&cfg.compression, "compression", "lz4", "Snapshot compression (none, lz4, zstd)")
	return cmd
}

func runBench(ctx context.Context, w io.Writer, cfg benchConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}

	compression, err := snapshot.ParseCompression(cfg.compression)
	if err != nil {
		return err
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:     cfg.memoryLimit,
		MaxBackgroundWorkers: cfg.workers,
	})

	metrics := &segpool.BasicMetricsCollector{}
	opts := []segpool.Option{
		segpool.WithCapacity(cfg.capacity),
		segpool.WithMemoryBudget(rc),
		segpool.WithMetricsCollector(metrics),
		segpool.WithLogger(poolLogger()),
	}
	if cfg.offHeap {
		opts = append(opts, segpool.WithOffHeap())
	}

	pool, err := segpool.New[benchRecord](opts...)
	if err != nil {
		return err
	}
	defer pool.Close()

	ops := testutil.NewRNG(cfg.seed).Workload(testutil.WorkloadConfig{
		Ops:      cfg.ops,
		FreeRate: cfg.freeRate,
		GetRate:  cfg.getRate,
		InitRate: cfg.initRate,
		Skew:     cfg.skew,
	})

	live := make([]segpool.Handle, 0, cfg.ops)
	start := time.Now()
	for i, op := range ops {
		switch op.Kind {
		case testutil.OpCreate:
			h, err := pool.TryCreate(op.Init)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			pool.MustGet(h).ID = uint64(i)
			live = append(live, h)
		case testutil.OpFree:
			j := op.Pick % len(live)
			pool.Free(live[j])
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
		case testutil.OpGet:
			if _, err := pool.Get(live[op.Pick%len(live)]); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}

	report := benchReport{
		Ops:     len(ops),
		Elapsed: time.Since(start),
		Pool:    pool.Stats(),
		Metrics: metrics.GetStats(),
		Budget: budgetReport{
			LimitBytes: rc.Config().MemoryLimitBytes,
			PeakBytes:  rc.PeakMemoryUsage(),
			Workers:    rc.Config().MaxBackgroundWorkers,
		},
	}

	if cfg.saveDir != "" {
		store := blobstore.NewLocalStore(cfg.saveDir)
		if err := pool.Save(ctx, store, cfg.name,
			snapshot.WithCompression(compression),
			snapshot.WithResourceController(rc),
		); err != nil {
			return err
		}
		report.Snapshot = cfg.name
	}

	if jsonOut {
		return printJSON(w, report)
	}
	printBenchReport(w, report)
	return nil
}

func printBenchReport(w io.Writer, r benchReport) {
	perOp := time.Duration(0)
	if r.Ops > 0 {
		perOp = r.Elapsed / time.Duration(r.Ops)
	}

	fmt.Fprintf(w, "ops:        %d in %s (%s/op)\n", r.Ops, r.Elapsed, perOp)
	fmt.Fprintf(w, "watermark:  %d\n", r.Pool.Watermark)
	fmt.Fprintf(w, "live:       %d\n", r.Pool.Live)
	fmt.Fprintf(w, "capacity:   %d (size %d, %d segments)\n", r.Pool.Capacity, r.Pool.Size, r.Pool.Segments)
	fmt.Fprintf(w, "holes:      %d\n", r.Pool.Holes)
	fmt.Fprintf(w, "sweeps:     %d (%d holes found)\n", r.Metrics.SweepCount, r.Metrics.SweepHoles)
	fmt.Fprintf(w, "grows:      %d\n", r.Metrics.GrowCount)
	fmt.Fprintf(w, "reused:     %d of %d creates\n", r.Metrics.ReuseCount, r.Metrics.CreateCount)
	fmt.Fprintf(w, "reserved:   %d bytes (peak %d)\n", r.Pool.ReservedBytes, r.Budget.PeakBytes)
	if r.Budget.LimitBytes > 0 {
		fmt.Fprintf(w, "budget:     %d bytes\n", r.Budget.LimitBytes)
	}
	if r.Snapshot != "" {
		fmt.Fprintf(w, "snapshot:   %s\n", r.Snapshot)
	}
}
