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


// Package spectral implements the 2-D discrete Fourier transform of row-major images,
// with row and column passes partitioned across a grid executor.
package spectral

import (
	"fmt"

	"github.com/mlnoga/vsnr/internal/grid"
)

// A 2-D transform plan for row-major rows x cols grids
type Plan struct {
	Rows int
	Cols int
	exec *grid.Executor
}

// Creates a transform plan for the given grid dimensions, running on the given executor
func NewPlan(rows, cols int, exec *grid.Executor) *Plan {
	return &Plan{Rows: rows, Cols: cols, exec: exec}
}

// Number of elements of the grid
func (p *Plan) Len() int { return p.Rows * p.Cols }

func (p *Plan) checkLen(name string, l int) error {
	if l != p.Rows*p.Cols {
		return fmt.Errorf("spectral: %s has %d elements, want %dx%d", name, l, p.Rows, p.Cols)
	}
	return nil
}

// Transforms the real spatial grid src into frequency space dst
func (p *Plan) Forward(dst []complex128, src []float64) error {
	if err := p.checkLen("dst", len(dst)); err != nil {
		return err
	}
	if err := p.checkLen("src", len(src)); err != nil {
		return err
	}
	err := p.exec.MapBlocks(len(src), func(b grid.Block) {
		for i := b.Lo; i < b.Hi; i++ {
			dst[i] = complex(src[i], 0)
		}
	})
	if err != nil {
		return err
	}
	return p.transform(dst, false)
}

// Transforms the complex spatial grid src into frequency space dst. dst and src may be the same slice
func (p *Plan) ForwardComplex(dst, src []complex128) error {
	if err := p.checkLen("dst", len(dst)); err != nil {
		return err
	}
	if err := p.checkLen("src", len(src)); err != nil {
		return err
	}
	copy(dst, src)
	return p.transform(dst, false)
}

// Transforms frequency space src back into a complex spatial grid dst, normalized
// so that InverseComplex(ForwardComplex(x))==x. dst and src may be the same slice
func (p *Plan) InverseComplex(dst, src []complex128) error {
	if err := p.checkLen("dst", len(dst)); err != nil {
		return err
	}
	if err := p.checkLen("src", len(src)); err != nil {
		return err
	}
	copy(dst, src)
	return p.transform(dst, true)
}

// Transforms frequency space src back into the spatial domain, keeping the real part only.
// src is left unchanged
func (p *Plan) Inverse(dst []float64, src []complex128) error {
	if err := p.checkLen("dst", len(dst)); err != nil {
		return err
	}
	if err := p.checkLen("src", len(src)); err != nil {
		return err
	}
	tmp := getArrayOfComplex128FromPool(len(src))
	defer putArrayOfComplex128IntoPool(tmp)
	copy(tmp, src)
	if err := p.transform(tmp, true); err != nil {
		return err
	}
	return p.exec.MapBlocks(len(dst), func(b grid.Block) {
		for i := b.Lo; i < b.Hi; i++ {
			dst[i] = real(tmp[i])
		}
	})
}

// In-place 2-D transform: all rows, then all columns. Each pass is a barrier
func (p *Plan) transform(data []complex128, inverse bool) error {
	rows, cols := p.Rows, p.Cols

	if cols > 1 {
		err := p.exec.MapBlocks(rows, func(b grid.Block) {
			fft := getFFTFromPool(cols)
			buf := getArrayOfComplex128FromPool(cols)
			for r := b.Lo; r < b.Hi; r++ {
				row := data[r*cols : (r+1)*cols]
				copy(buf, row)
				if inverse {
					fft.Sequence(row, buf)
				} else {
					fft.Coefficients(row, buf)
				}
			}
			putArrayOfComplex128IntoPool(buf)
			putFFTIntoPool(fft)
		})
		if err != nil {
			return err
		}
	}

	if rows > 1 {
		err := p.exec.MapBlocks(cols, func(b grid.Block) {
			fft := getFFTFromPool(rows)
			in := getArrayOfComplex128FromPool(rows)
			out := getArrayOfComplex128FromPool(rows)
			for c := b.Lo; c < b.Hi; c++ {
				for r := 0; r < rows; r++ {
					in[r] = data[r*cols+c]
				}
				if inverse {
					fft.Sequence(out, in)
				} else {
					fft.Coefficients(out, in)
				}
				for r := 0; r < rows; r++ {
					data[r*cols+c] = out[r]
				}
			}
			putArrayOfComplex128IntoPool(out)
			putArrayOfComplex128IntoPool(in)
			putFFTIntoPool(fft)
		})
		if err != nil {
			return err
		}
	}

	if !inverse {
		return nil
	}
	// gonum returns unnormalized sequences
	scale := complex(1/float64(rows*cols), 0)
	return p.exec.MapBlocks(len(data), func(b grid.Block) {
		for i := b.Lo; i < b.Hi; i++ {
			data[i] *= scale
		}
	})
}
