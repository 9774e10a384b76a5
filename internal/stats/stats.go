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


// Basic image statistics and stripe metrics
package stats

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistics of a data set
type Stats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Calculates statistics for the given data. Data must be non-empty
func NewStats(data []float64) *Stats {
	mean, std := stat.PopMeanStdDev(data, nil)
	return &Stats{Min: floats.Min(data), Max: floats.Max(data), Mean: mean, StdDev: std}
}

// Calculates statistics for float32 data
func NewStatsFloat32(data []float32) *Stats {
	return NewStats(ToFloat64(data))
}

func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g", s.Min, s.Max, s.Mean, s.StdDev)
}

// Converts float32 to float64 data
func ToFloat64(data []float32) []float64 {
	res := make([]float64, len(data))
	for i, v := range data {
		res[i] = float64(v)
	}
	return res
}

// Mean of every column of row-major data with given width
func ColumnMeans(data []float64, width int) []float64 {
	height := len(data) / width
	means := make([]float64, width)
	for y := 0; y < height; y++ {
		floats.Add(means, data[y*width:(y+1)*width])
	}
	floats.Scale(1/float64(height), means)
	return means
}

// Mean of every row of row-major data with given width
func RowMeans(data []float64, width int) []float64 {
	height := len(data) / width
	means := make([]float64, height)
	for y := range means {
		means[y] = stat.Mean(data[y*width:(y+1)*width], nil)
	}
	return means
}

// Strength of vertical and horizontal stripes, as standard deviation of
// the column and row means
func StripeLevels(data []float64, width int) (vertical, horizontal float64) {
	return stat.PopStdDev(ColumnMeans(data, width), nil), stat.PopStdDev(RowMeans(data, width), nil)
}
