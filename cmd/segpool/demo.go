package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/segpool"
)

type demoRecord struct {
	X int32
}

func init() {
	rootCmd.AddCommand(newDemoCmd())
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Show slot reuse and stale records",
		Long: `The demo command creates two records, frees them, and then creates
twenty more. Once the first segment fills up, the sweep hands the freed
slots back out and their old values show through.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.OutOrStdout(), segpool.Default[demoRecord]())
		},
	}
}

func runDemo(w io.Writer, pool *segpool.Pool[demoRecord]) error {
	o1 := pool.Create(false)
	o2 := pool.Create(true)

	pool.MustGet(o1).X = 10
	pool.MustGet(o2).X = 5

	pool.Free(o1)
	pool.Free(o2)

	for i := range int32(20) {
		h, err := pool.TryCreate(false)
		if err != nil {
			return err
		}
		rec := pool.MustGet(h)
		if rec.X > 0 {
			fmt.Fprintf(w, "Reused obj(%d): %d\n", h, rec.X)
		}
		rec.X = i
		fmt.Fprintf(w, "Setting obj%d: %d\n", h, rec.X)
	}
	return nil
}
