// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/gpubuf"
)

func newProbeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Open the device and run a transfer self-test",
		Long: `Open the configured backend, print the selected adapter and its
limits, then upload a small buffer and read it back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd, v)
		},
	}
}

func runProbe(cmd *cobra.Command, v *viper.Viper) error {
	out := cmd.OutOrStdout()

	dev, err := openDevice(v)
	if err != nil {
		return err
	}
	if dev == nil {
		fmt.Fprintln(out, "backend: none")
		fmt.Fprintln(out, "no device, host buffers only")
		return nil
	}
	defer dev.Close()

	limits := dev.Limits()
	fmt.Fprintf(out, "backend: %s\n", v.GetString("backend"))
	fmt.Fprintf(out, "adapter: %s\n", dev.Name())
	fmt.Fprintf(out, "max buffer size: %d bytes\n", limits.MaxBufferSize)

	want := make([]uint32, 16)
	for i := range want {
		want[i] = uint32(i*i + 1)
	}

	b := gpubuf.NewBuffer2D[uint32](gpubuf.Device, "Probe", gpubuf.WithAllocator(dev))
	defer b.Close()
	if err := b.SetSlice(gpubuf.Res(4, 4), want); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	got := make([]uint32, len(want))
	if err := b.ReadInto(got); err != nil {
		return fmt.Errorf("readback: %w", err)
	}

	switch {
	case slices.Equal(got, want):
		fmt.Fprintln(out, "round trip: ok")
	case v.GetString("backend") == "noop":
		fmt.Fprintln(out, "round trip: transfers completed, contents not retained by noop backend")
	default:
		return fmt.Errorf("round trip mismatch: got %v, want %v", got, want)
	}
	fmt.Fprintf(out, "memory: %s\n", dev.Budget().Stats())
	return nil
}
