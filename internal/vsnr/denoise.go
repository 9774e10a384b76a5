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


package vsnr

import (
	"fmt"
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/mlnoga/vsnr/internal/grid"
	"github.com/mlnoga/vsnr/internal/spectral"
)

// Removes structured noise from images on a given execution backend
type Denoiser struct {
	Backend grid.Backend // nil selects the CPU backend
	Log     io.Writer    // nil discards log output
	ID      int          // image ID used as log prefix
}

// Denoises an image with the default CPU backend and no logging
func Denoise(img *Image, bank Bank, cfg Config) (*Image, error) {
	return (&Denoiser{}).Denoise(img, bank, cfg)
}

// Denoises an image with the given filter bank. All inputs are validated before
// any computation starts. The input image is not modified
func (d *Denoiser) Denoise(img *Image, bank Bank, cfg Config) (*Image, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := bank.Validate(); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	logw := d.Log
	if logw == nil {
		logw = io.Discard
	}
	backend := d.Backend
	if backend == nil {
		backend = grid.CPU()
	}
	exec, err := grid.NewExecutor(backend, int(cfg.Parallelism))
	if err != nil {
		return nil, err
	}
	need := WorkingSetBytes(img.Rows, img.Cols, len(bank))
	if avail := backend.MemoryBytes(); need > avail {
		return nil, fmt.Errorf("%w: need %d MB of working memory, have %d MB", ErrBackendUnavailable, need>>20, avail>>20)
	}

	start := time.Now()
	fmt.Fprintf(logw, "%d: Destriping %s image with %d filters %v, %d iterations, beta %g, width %d\n",
		d.ID, img.DimensionsToString(), len(bank), bank, cfg.Iterations, cfg.Beta, exec.Width())

	plan := spectral.NewPlan(img.Rows, img.Cols, exec)
	kernels, err := BuildKernels(bank, plan)
	if err != nil {
		return nil, err
	}
	solver, err := NewSolver(kernels, plan, exec, cfg)
	if err != nil {
		return nil, err
	}

	// Work on values in [-1,1] so noise levels and beta are independent of scale
	// max|u0| rather than max(u0), so all-negative images scale to [-1,0] too
	vmax := math.Max(math.Abs(floats.Max(img.Pix)), math.Abs(floats.Min(img.Pix)))
	u0 := img.Pix
	if vmax > 0 {
		u0 = floats.ScaleTo(make([]float64, len(img.Pix)), 1/vmax, img.Pix)
	}
	u, err := solver.Solve(u0)
	if err != nil {
		return nil, err
	}
	if vmax > 0 {
		floats.Scale(vmax, u)
	}

	removed := floats.Distance(img.Pix, u, 2) / math.Sqrt(float64(len(u)))
	fmt.Fprintf(logw, "%d: Removed noise RMS %.4g, primal residual %.3g, last change %.3g in %v\n",
		d.ID, removed, solver.Residual, solver.Change, time.Since(start))
	return Assemble(u, img.Rows, img.Cols)
}
