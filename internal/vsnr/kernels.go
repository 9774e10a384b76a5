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
	"math"

	"github.com/mlnoga/vsnr/internal/spectral"
)

// Builds the frequency response of a single filter on the grid of the given plan.
// Dirac filters have a flat response equal to the noise level. Gabor filters are
// rotated anisotropic Gaussians centered on the origin with periodic wrap-around,
// normalized to unit sum and scaled by the noise level
func BuildKernel(f Filter, plan *spectral.Plan) ([]complex128, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	kernel := make([]complex128, plan.Len())
	switch f.Kind {
	case KindDirac:
		for i := range kernel {
			kernel[i] = complex(f.NoiseLevel, 0)
		}
	case KindGabor:
		spatial := gaborSpatial(f, plan.Rows, plan.Cols)
		if err := plan.Forward(kernel, spatial); err != nil {
			return nil, err
		}
	}
	return kernel, nil
}

// Builds the frequency responses for a whole bank. Fails before computing anything
// if any filter is invalid
func BuildKernels(bank Bank, plan *spectral.Plan) ([][]complex128, error) {
	if err := bank.Validate(); err != nil {
		return nil, err
	}
	kernels := make([][]complex128, len(bank))
	for i, f := range bank {
		k, err := BuildKernel(f, plan)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		kernels[i] = k
	}
	return kernels, nil
}

// Signed offset of index i from the origin on a periodic axis of length n
func periodicOffset(i, n int) float64 {
	if i > n/2 {
		return float64(i - n)
	}
	return float64(i)
}

// Spatial Gabor kernel, row-major rows x cols
func gaborSpatial(f Filter, rows, cols int) []float64 {
	theta := f.WrappedTheta() * math.Pi / 180
	sin, cos := math.Sincos(theta)
	sx2, sy2 := 2*f.Sigma[0]*f.Sigma[0], 2*f.Sigma[1]*f.Sigma[1]

	data := make([]float64, rows*cols)
	sum := 0.0
	for r := 0; r < rows; r++ {
		y := -periodicOffset(r, rows) // rows grow downwards
		for c := 0; c < cols; c++ {
			x := periodicOffset(c, cols)
			xr := x*cos + y*sin
			yr := -x*sin + y*cos
			v := math.Exp(-xr*xr/sx2 - yr*yr/sy2)
			data[r*cols+c] = v
			sum += v
		}
	}
	scale := f.NoiseLevel / sum // sum>=1 from the origin term
	for i := range data {
		data[i] *= scale
	}
	return data
}
