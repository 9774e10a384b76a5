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
)

// A 2-D real image with row-major pixels
type Image struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Pix  []float64 `json:"data"`
}

// Creates a zero image of given dimensions
func NewImage(rows, cols int) *Image {
	return &Image{Rows: rows, Cols: cols, Pix: make([]float64, rows*cols)}
}

func (i *Image) At(row, col int) float64 { return i.Pix[row*i.Cols+col] }

func (i *Image) Set(row, col int, v float64) { i.Pix[row*i.Cols+col] = v }

func (i *Image) DimensionsToString() string { return fmt.Sprintf("%dx%d", i.Rows, i.Cols) }

// Checks dimensions and that all pixel values are finite
func (i *Image) Validate() error {
	if i == nil || i.Rows < 1 || i.Cols < 1 {
		return fmt.Errorf("%w: empty image", ErrInvalidImageData)
	}
	if len(i.Pix) != i.Rows*i.Cols {
		return fmt.Errorf("%w: %d pixels for %dx%d image", ErrInvalidImageData, len(i.Pix), i.Rows, i.Cols)
	}
	for j, v := range i.Pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value %g at row %d column %d", ErrInvalidImageData, v, j/i.Cols, j%i.Cols)
		}
	}
	return nil
}

// Reshapes a flat row-major solution vector into an image. The data is not copied
func Assemble(flat []float64, rows, cols int) (*Image, error) {
	if rows < 1 || cols < 1 || len(flat) != rows*cols {
		return nil, fmt.Errorf("%w: cannot assemble %d values into %dx%d image", ErrInvalidImageData, len(flat), rows, cols)
	}
	return &Image{Rows: rows, Cols: cols, Pix: flat}, nil
}
