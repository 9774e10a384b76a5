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


package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of data between min and max into given bins. Values
// outside the range are clamped into the first or last bin
func Histogram(data []float64, min, max float64, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	scale := float64(len(bins)-1) / (max - min)
	for _, d := range data {
		index := int((d - min) * scale)
		if index < 0 {
			index = 0
		} else if index >= len(bins) {
			index = len(bins) - 1
		}
		bins[index]++
	}
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float64) (x, y float64) {
	maxIndex, maxValue := 0, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	x = binCenter(maxIndex, len(bins), min, max)
	return x, float64(maxValue)
}

func binCenter(i, numBins int, min, max float64) float64 {
	return min + (float64(i)+0.5)*(max-min)/float64(numBins-1)
}

// Fits a normal distribution to the histogram by least squares, starting from
// the peak and the given initial sigma. Returns its mode and standard deviation
func GetModeStdDevFromHistogram(bins []int32, min, max, sigma0 float64) (mode, stdDev float64, err error) {
	if len(bins) < 2 || !(max > min) {
		return 0, 0, errors.New("histogram needs at least two bins and a non-empty range")
	}
	peak, peakVal := GetPeak(bins, min, max)
	binWidth := (max - min) / float64(len(bins)-1)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], math.Abs(x[2])+1e-12
			scaler := alpha * binWidth / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := 0.0
			for i, y := range bins {
				xmusig := (binCenter(i, len(bins), min, max) - mu) / sigma
				diff := float64(y) - scaler*math.Exp(-0.5*xmusig*xmusig)
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	// alpha is the total count under the curve
	alpha0 := peakVal * sigma0 * math.Sqrt(2*math.Pi) / binWidth
	result, err := optimize.Minimize(problem, []float64{alpha0, peak, sigma0}, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, 0, err
	}
	return result.X[1], math.Abs(result.X[2]), nil
}

// Estimates the mode and standard deviation of data by fitting a normal
// distribution to its histogram, which is robust against outliers
func EstimateNoise(data []float64, numBins int) (mode, stdDev float64, err error) {
	s := NewStats(data)
	if s.StdDev == 0 {
		return s.Mean, 0, nil
	}
	// clip to +-5 sigma around the mean so outliers do not flatten the histogram
	min, max := s.Mean-5*s.StdDev, s.Mean+5*s.StdDev
	bins := make([]int32, numBins)
	Histogram(data, min, max, bins)
	return GetModeStdDevFromHistogram(bins, min, max, s.StdDev)
}
