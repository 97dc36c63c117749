// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/gpubuf"
)

func newBenchCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time Resize, Reset and Set on a buffer",
		Long: `Run a loop of Resize, Reset and Set on a float32 buffer and report
the time per iteration together with memory statistics.

Each iteration alternates between the full and the half resolution so
that every Resize reallocates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, v)
		},
	}
	cmd.Flags().Int("width", 1280, "buffer width")
	cmd.Flags().Int("height", 720, "buffer height")
	cmd.Flags().String("location", "host", "buffer location: host or device")
	cmd.Flags().Int("iterations", 100, "number of iterations")
	cmd.Flags().Bool("pool", false, "recycle storage through a pool")
	bindFlags(v, cmd)
	return cmd
}

func runBench(cmd *cobra.Command, v *viper.Viper) error {
	out := cmd.OutOrStdout()

	full := gpubuf.Res(v.GetInt("bench.width"), v.GetInt("bench.height"))
	if full.Empty() {
		return fmt.Errorf("invalid resolution %s", full)
	}
	iterations := v.GetInt("bench.iterations")
	if iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	loc, err := gpubuf.ParseLocation(v.GetString("bench.location"))
	if err != nil {
		return err
	}

	var (
		alloc  gpubuf.Allocator
		budget *gpubuf.Budget
	)
	switch loc {
	case gpubuf.Host:
		budget = gpubuf.NewBudget(0)
		alloc = &gpubuf.HostAllocator{Budget: budget, MmapThreshold: gpubuf.DefaultMmapThreshold}
	case gpubuf.Device:
		dev, err := openDevice(v)
		if err != nil {
			return err
		}
		if dev == nil {
			return errors.New("device location needs a backend other than none")
		}
		defer dev.Close()
		alloc, budget = dev, dev.Budget()
	}

	var pool *gpubuf.Pool
	if v.GetBool("bench.pool") {
		pool = gpubuf.NewPool(alloc, 0)
		defer pool.Clear()
		alloc = pool
	}

	b := gpubuf.NewBuffer2D[float32](loc, "Bench", gpubuf.WithAllocator(alloc))
	defer b.Close()

	src := make([]float32, full.Count())
	for i := range src {
		src[i] = float32(i)
	}
	half := gpubuf.Res(max(full.Width/2, 1), max(full.Height/2, 1))

	start := time.Now()
	for i := range iterations {
		r := full
		if i%2 == 1 {
			r = half
		}
		if err := b.Resize(r); err != nil {
			return err
		}
		if err := b.Reset(); err != nil {
			return err
		}
		if err := b.SetSlice(r, src); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	fmt.Fprintf(out, "%s %s buffer, %d iterations: %d ns/op\n",
		full, loc, iterations, elapsed.Nanoseconds()/int64(iterations))
	fmt.Fprintf(out, "modified: %d\n", b.ModifiedTime())
	fmt.Fprintf(out, "memory: %s\n", budget.Stats())
	if pool != nil {
		s := pool.Stats()
		fmt.Fprintf(out, "pool: %d allocations, %d reuses, %d misses, %d evictions\n",
			s.Allocations, s.Reuses, s.Misses, s.Evictions)
	}
	return nil
}
