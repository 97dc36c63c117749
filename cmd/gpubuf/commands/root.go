// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package commands implements the gpubuf command line.
package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gogpu/gpubuf"
)

// NewRootCommand builds the gpubuf command tree. Flags may also be set
// through GPUBUF_* environment variables, e.g. GPUBUF_BACKEND=vulkan or
// GPUBUF_BENCH_ITERATIONS=1000.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GPUBUF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "gpubuf",
		Short: "Host and device 2D buffer tooling",
		Long: `gpubuf exercises typed 2D buffers in host memory and on GPU devices.

It can probe a hal backend, benchmark buffer operations and render
random seed buffers to PNG.`,
		Version:      gpubuf.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if v.GetBool("verbose") {
				gpubuf.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
			return nil
		},
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "log buffer and device lifecycle to stderr")
	root.PersistentFlags().String("backend", "noop", "hal backend: vulkan, noop or none")
	_ = v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))
	_ = v.BindPFlag("backend", root.PersistentFlags().Lookup("backend"))

	root.AddCommand(
		newProbeCommand(v),
		newBenchCommand(v),
		newSeedsCommand(v),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// openDevice opens the configured backend. It returns a nil device for
// backend "none".
func openDevice(v *viper.Viper) (*gpubuf.GPUDevice, error) {
	opts := []gpubuf.DeviceOption{gpubuf.WithDeviceBudget(gpubuf.NewBudget(0))}

	switch backend := strings.ToLower(v.GetString("backend")); backend {
	case "vulkan":
		return gpubuf.OpenDevice(gputypes.BackendVulkan, opts...)
	case "noop":
		return gpubuf.OpenNoopDevice(opts...)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want vulkan, noop or none)", backend)
	}
}

// bindFlags binds every local flag of cmd to "<cmd>.<flag>" in v.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(cmd.Name()+"."+f.Name, f)
	})
}
