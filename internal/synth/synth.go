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


// Synthetic test images with stripe noise
package synth

import (
	"fmt"
	"math"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/vsnr/internal/vsnr"
)

// Parameters of a synthetic image
type Options struct {
	Rows       int     `json:"rows"`
	Cols       int     `json:"cols"`
	Background float64 `json:"background"` // Mean background level
	Gradient   float64 `json:"gradient"`   // Background increase from top left to bottom right
	Stars      int     `json:"stars"`      // Number of Gaussian point sources
	StarPeak   float64 `json:"starPeak"`   // Maximum peak height of a point source
	Vertical   float64 `json:"vertical"`   // Amplitude of per-column offsets
	Horizontal float64 `json:"horizontal"` // Amplitude of per-row offsets
	Noise      float64 `json:"noise"`      // Amplitude of white noise
}

func DefaultOptions() Options {
	return Options{
		Rows:       256,
		Cols:       256,
		Background: 1000,
		Gradient:   200,
		Stars:      50,
		StarPeak:   5000,
		Vertical:   50,
		Horizontal: 0,
		Noise:      10,
	}
}

func (o Options) Validate() error {
	if o.Rows < 1 || o.Cols < 1 {
		return fmt.Errorf("invalid synthetic image size %dx%d", o.Rows, o.Cols)
	}
	if o.Stars < 0 || o.Vertical < 0 || o.Horizontal < 0 || o.Noise < 0 {
		return fmt.Errorf("synthetic image amplitudes must not be negative")
	}
	return nil
}

// Uniform random value in [-1,1)
func symmetric(rng *fastrand.RNG) float64 {
	return float64(rng.Uint32n(1<<24))/(1<<23) - 1
}

// Generates a clean image and a copy corrupted by stripes and white noise
func Stripes(o Options, rng *fastrand.RNG) (clean, noisy *vsnr.Image, err error) {
	if err := o.Validate(); err != nil {
		return nil, nil, err
	}
	clean = vsnr.NewImage(o.Rows, o.Cols)
	diag := float64(o.Rows + o.Cols)
	for r := 0; r < o.Rows; r++ {
		for c := 0; c < o.Cols; c++ {
			clean.Set(r, c, o.Background+o.Gradient*float64(r+c)/diag)
		}
	}

	const starSigma = 1.5
	for s := 0; s < o.Stars; s++ {
		yc, xc := int(rng.Uint32n(uint32(o.Rows))), int(rng.Uint32n(uint32(o.Cols)))
		peak := o.StarPeak * float64(rng.Uint32n(1000)+1) / 1000
		for dy := -5; dy <= 5; dy++ {
			for dx := -5; dx <= 5; dx++ {
				y, x := yc+dy, xc+dx
				if y < 0 || y >= o.Rows || x < 0 || x >= o.Cols {
					continue
				}
				v := peak * math.Exp(-float64(dx*dx+dy*dy)/(2*starSigma*starSigma))
				clean.Set(y, x, clean.At(y, x)+v)
			}
		}
	}

	cols := make([]float64, o.Cols)
	for c := range cols {
		cols[c] = o.Vertical * symmetric(rng)
	}
	rows := make([]float64, o.Rows)
	for r := range rows {
		rows[r] = o.Horizontal * symmetric(rng)
	}
	noisy = vsnr.NewImage(o.Rows, o.Cols)
	for r := 0; r < o.Rows; r++ {
		for c := 0; c < o.Cols; c++ {
			noisy.Set(r, c, clean.At(r, c)+cols[c]+rows[r]+o.Noise*symmetric(rng))
		}
	}
	return clean, noisy, nil
}
