// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package commands

import (
	"fmt"
	"image"
	"image/png"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/gpubuf"
)

func newSeedsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seeds",
		Short: "Render a random seed buffer as a grayscale PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeeds(cmd, v)
		},
	}
	cmd.Flags().Int("width", 256, "image width")
	cmd.Flags().Int("height", 256, "image height")
	cmd.Flags().StringP("output", "o", "seeds.png", "output file")
	cmd.Flags().Uint64("seed", 0, "generator seed, 0 for a random one")
	bindFlags(v, cmd)
	return cmd
}

func runSeeds(cmd *cobra.Command, v *viper.Viper) error {
	r := gpubuf.Res(v.GetInt("seeds.width"), v.GetInt("seeds.height"))
	if r.Empty() {
		return fmt.Errorf("invalid resolution %s", r)
	}

	var opts []gpubuf.Option
	if seed := v.GetUint64("seeds.seed"); seed != 0 {
		opts = append(opts, gpubuf.WithRand(rand.New(rand.NewPCG(seed, seed))))
	}
	b := gpubuf.NewRandomSeedBuffer(gpubuf.Host, "Random Seeds", opts...)
	defer b.Close()
	if err := b.Resize(r); err != nil {
		return err
	}

	img := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	for i, s := range b.Data() {
		img.Pix[i] = uint8(s >> 24)
	}

	output := v.GetString("seeds.output")
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s seeds to %s\n", r, output)
	return nil
}
