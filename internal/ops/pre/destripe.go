// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package pre

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mlnoga/vsnr/internal/fits"
	"github.com/mlnoga/vsnr/internal/ops"
	"github.com/mlnoga/vsnr/internal/stats"
	"github.com/mlnoga/vsnr/internal/vsnr"
)

// Removes stationary stripe noise from every channel of an image
type OpDestripe struct {
	ops.OpUnaryBase
	Filters      vsnr.Bank        `json:"filters"`
	Iterations   int              `json:"iterations"`
	Beta         float64          `json:"beta"`
	Parallelism  vsnr.Parallelism `json:"parallelism"`
	NoisePattern string           `json:"noisePattern"` // Optional file for the removed noise, .fits or colorized .jpg
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDestripeDefaults() }) } // register the operator for JSON decoding

// Vertical stripes of a few pixels width
func DefaultFilters() vsnr.Bank {
	return vsnr.Bank{vsnr.NewGabor(1, 1, 40, 0)}
}

func NewOpDestripeDefaults() *OpDestripe {
	return NewOpDestripe(DefaultFilters(), vsnr.DefaultConfig(), "")
}

func NewOpDestripe(filters vsnr.Bank, cfg vsnr.Config, noisePattern string) *OpDestripe {
	op := &OpDestripe{
		OpUnaryBase:  ops.OpUnaryBase{OpBase: ops.OpBase{Type: "destripe", Active: true}},
		Filters:      filters,
		Iterations:   cfg.Iterations,
		Beta:         cfg.Beta,
		Parallelism:  cfg.Parallelism,
		NoisePattern: noisePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpDestripe) UnmarshalJSON(data []byte) error {
	type defaults OpDestripe
	def := defaults(*NewOpDestripeDefaults())
	def.Filters = nil
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	if def.Filters == nil {
		def.Filters = DefaultFilters()
	}
	*op = OpDestripe(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpDestripe) Config() vsnr.Config {
	return vsnr.Config{Iterations: op.Iterations, Beta: op.Beta, Parallelism: op.Parallelism}
}

func (op *OpDestripe) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	d := &vsnr.Denoiser{Backend: c.Backend, Log: c.Log, ID: f.ID}
	var noise *fits.Image
	if op.NoisePattern != "" {
		if fileName := ops.ExpandPattern(op.NoisePattern, f.ID); c.Sandboxed && !ops.IsPathAllowed(fileName) {
			return nil, fmt.Errorf("%d: Filename %s outside current directory tree, aborting", f.ID, fileName)
		}
		noise = fits.NewImageFromImage(f)
	}

	for ch := 0; ch < f.Channels(); ch++ {
		in, err := f.Channel(ch)
		if err != nil {
			return nil, err
		}
		out, err := d.Denoise(in, op.Filters, op.Config())
		if err != nil {
			return nil, fmt.Errorf("%d: channel %d: %w", f.ID, ch, err)
		}

		vBefore, hBefore := stats.StripeLevels(in.Pix, in.Cols)
		vAfter, hAfter := stats.StripeLevels(out.Pix, out.Cols)
		fmt.Fprintf(c.Log, "%d: Channel %d stripe levels vertical %.4g -> %.4g, horizontal %.4g -> %.4g\n",
			f.ID, ch, vBefore, vAfter, hBefore, hAfter)

		if noise != nil {
			removed := vsnr.NewImage(in.Rows, in.Cols)
			for i := range removed.Pix {
				removed.Pix[i] = in.Pix[i] - out.Pix[i]
			}
			if err := noise.SetChannel(ch, removed); err != nil {
				return nil, err
			}
		}
		if err := f.SetChannel(ch, out); err != nil {
			return nil, err
		}
	}

	f.Header.History = append(f.Header.History, fmt.Sprintf("vsnr %d filters, %d iterations, beta %g", len(op.Filters), op.Iterations, op.Beta))
	f.UpdateStats()
	if noise != nil {
		if err := op.saveNoise(noise, c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Writes the removed noise as FITS, or as colorized JPEG clipped at three standard deviations
func (op *OpDestripe) saveNoise(noise *fits.Image, c *ops.Context) error {
	fileName := ops.ExpandPattern(op.NoisePattern, noise.ID)
	noise.UpdateStats()
	switch ops.FormatOf(fileName) {
	case "fits":
		fmt.Fprintf(c.Log, "%d: Writing removed noise to %s\n", noise.ID, fileName)
		return noise.WriteFile(fileName)
	case "jpeg":
		plane := stats.ToFloat64(noise.Data[:noise.Width()*noise.Height()])
		_, sigma, err := stats.EstimateNoise(plane, 256)
		if err != nil || sigma == 0 {
			sigma = noise.Stats.StdDev
		}
		limit := float32(3 * sigma)
		if limit == 0 || math.IsNaN(float64(limit)) {
			limit = 1
		}
		fmt.Fprintf(c.Log, "%d: Writing removed noise to %s, clipped at +-%.4g\n", noise.ID, fileName, limit)
		return noise.WriteNoiseJPGToFile(fileName, limit, 95)
	}
	return fmt.Errorf("%d: unknown suffix for noise file %s", noise.ID, fileName)
}
