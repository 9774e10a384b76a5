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
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"

	"github.com/mlnoga/vsnr/internal/grid"
)

// Sequential test backend with a fixed width, optionally failing on dispatch
type fakeBackend struct {
	width  int
	memory uint64
	fail   bool
}

func (f *fakeBackend) MaxWidth() int       { return f.width }
func (f *fakeBackend) MemoryBytes() uint64 { return f.memory }
func (f *fakeBackend) Dispatch(blocks []grid.Block, fn func(b grid.Block)) error {
	if f.fail {
		return grid.ErrBackendUnavailable
	}
	for _, b := range blocks {
		fn(b)
	}
	return nil
}

func constantImage(rows, cols int, v float64) *Image {
	img := NewImage(rows, cols)
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// Smooth ramp plus vertical stripes and a bit of white noise
func stripedImage(rng *fastrand.RNG, rows, cols int) *Image {
	img := NewImage(rows, cols)
	stripes := make([]float64, cols)
	for c := range stripes {
		stripes[c] = float64(rng.Uint32n(1000))/1000 - 0.5
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			noise := float64(rng.Uint32n(1000))/50000 - 0.01
			img.Set(r, c, 1+0.01*float64(r)+stripes[c]+noise)
		}
	}
	return img
}

func columnMeanStdDev(img *Image) float64 {
	means := make([]float64, img.Cols)
	for c := range means {
		for r := 0; r < img.Rows; r++ {
			means[c] += img.At(r, c)
		}
		means[c] /= float64(img.Rows)
	}
	return stat.PopStdDev(means, nil)
}

func TestZeroImageStaysZero(t *testing.T) {
	out, err := Denoise(NewImage(4, 4), Bank{NewDirac(10)}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Pix {
		if v != 0 {
			t.Errorf("pix[%d]=%f; want 0", i, v)
		}
	}
}

func TestConstantImageUnchanged(t *testing.T) {
	for _, bank := range []Bank{{NewDirac(10)}, {NewGabor(2, 3, 40, 45), NewDirac(1)}} {
		out, err := Denoise(constantImage(4, 4, 100), bank, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		if out.Rows != 4 || out.Cols != 4 {
			t.Fatalf("shape %dx%d; want 4x4", out.Rows, out.Cols)
		}
		for i, v := range out.Pix {
			if math.Abs(v-100) > 1e-3 {
				t.Errorf("bank %v pix[%d]=%f; want 100", bank, i, v)
			}
		}
	}
}

func TestZeroKernelReturnsInput(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(3)
	img := stripedImage(&rng, 8, 6)
	plan := newTestPlan(t, 8, 6)
	exec, _ := grid.NewExecutor(grid.CPU(), 0)
	s, err := NewSolver([][]complex128{make([]complex128, 48)}, plan, exec, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.Solve(img.Pix)
	if err != nil {
		t.Fatal(err)
	}
	for i := range u {
		if math.Abs(u[i]-img.Pix[i]) > 1e-12 {
			t.Errorf("u[%d]=%f; want %f", i, u[i], img.Pix[i])
		}
	}
}

func TestOutputShape(t *testing.T) {
	for _, d := range [][2]int{{1, 1}, {1, 7}, {5, 3}, {9, 1}} {
		img := constantImage(d[0], d[1], 1)
		img.Pix[0] = 2
		out, err := Denoise(img, Bank{NewGabor(1, 1, 3, 90)}, Config{Iterations: 3, Beta: 10})
		if err != nil {
			t.Fatalf("%dx%d: %v", d[0], d[1], err)
		}
		if out.Rows != d[0] || out.Cols != d[1] || len(out.Pix) != d[0]*d[1] {
			t.Errorf("shape %dx%d len %d; want %dx%d", out.Rows, out.Cols, len(out.Pix), d[0], d[1])
		}
	}
}

func TestInputNotModified(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(5)
	img := stripedImage(&rng, 6, 6)
	orig := append([]float64(nil), img.Pix...)
	if _, err := Denoise(img, Bank{NewDirac(1)}, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	for i := range orig {
		if img.Pix[i] != orig[i] {
			t.Fatalf("input pix[%d] changed from %f to %f", i, orig[i], img.Pix[i])
		}
	}
}

func TestParallelismInvariance(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(7)
	img := stripedImage(&rng, 13, 11)
	bank := Bank{NewGabor(1, 0.5, 20, 0), NewDirac(0.5)}
	backend := &fakeBackend{width: 8, memory: 1 << 30}

	var ref []float64
	for _, p := range []Parallelism{1, 3, 8, Auto} {
		d := &Denoiser{Backend: backend}
		out, err := d.Denoise(img, bank, Config{Iterations: 10, Beta: 10, Parallelism: p})
		if err != nil {
			t.Fatal(err)
		}
		if ref == nil {
			ref = out.Pix
			continue
		}
		for i := range ref {
			if out.Pix[i] != ref[i] {
				t.Fatalf("parallelism %v pix[%d]=%g; want %g", p, i, out.Pix[i], ref[i])
			}
		}
	}

	// Real CPU backend gives identical results as well
	out, err := Denoise(img, bank, Config{Iterations: 10, Beta: 10})
	if err != nil {
		t.Fatal(err)
	}
	for i := range ref {
		if out.Pix[i] != ref[i] {
			t.Fatalf("cpu pix[%d]=%g; want %g", i, out.Pix[i], ref[i])
		}
	}
}

func TestDeterministic(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(11)
	img := stripedImage(&rng, 16, 16)
	bank := Bank{NewGabor(2, 0.5, 30, 0)}
	a, err := Denoise(img, bank, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Denoise(img, bank, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("pix[%d] %g != %g", i, a.Pix[i], b.Pix[i])
		}
	}
}

func TestRemovesVerticalStripes(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(13)
	img := stripedImage(&rng, 32, 32)
	out, err := Denoise(img, Bank{NewGabor(2, 0.3, 1000, 0)}, Config{Iterations: 200, Beta: 10})
	if err != nil {
		t.Fatal(err)
	}
	before, after := columnMeanStdDev(img), columnMeanStdDev(out)
	if after > 0.5*before {
		t.Errorf("column mean stddev %f after, %f before; want at most half", after, before)
	}
}

func TestConverges(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(17)
	img := stripedImage(&rng, 16, 16)
	plan := newTestPlan(t, 16, 16)
	exec, _ := grid.NewExecutor(grid.CPU(), 0)
	kernels, err := BuildKernels(Bank{NewGabor(2, 0.5, 100, 0)}, plan)
	if err != nil {
		t.Fatal(err)
	}
	changeAt := func(iterations int) float64 {
		s, err := NewSolver(kernels, plan, exec, Config{Iterations: iterations, Beta: 10})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.Solve(img.Pix); err != nil {
			t.Fatal(err)
		}
		return s.Change
	}
	early, late := changeAt(3), changeAt(100)
	if late >= early {
		t.Errorf("change after 100 iterations %g; want below %g after 3", late, early)
	}
}

func TestDenoiseErrors(t *testing.T) {
	good := constantImage(4, 4, 1)
	for _, tc := range []struct {
		Name string
		Img  *Image
		Bank Bank
		Cfg  Config
		Err  error
	}{
		{"empty bank", good, Bank{}, DefaultConfig(), ErrConfiguration},
		{"zero iterations", good, Bank{NewDirac(1)}, Config{Iterations: 0, Beta: 10}, ErrConfiguration},
		{"zero beta", good, Bank{NewDirac(1)}, Config{Iterations: 20, Beta: 0}, ErrConfiguration},
		{"zero sigma", good, Bank{NewGabor(1, 0, 3, 0)}, DefaultConfig(), ErrInvalidFilterParameter},
		{"underflowing sigma", good, Bank{NewGabor(1, 1e-200, 3, 0)}, DefaultConfig(), ErrInvalidFilterParameter},
		{"zero noise", good, Bank{NewDirac(0)}, DefaultConfig(), ErrInvalidFilterParameter},
		{"bad kind", good, Bank{{Kind: 5, NoiseLevel: 1}}, DefaultConfig(), ErrInvalidFilterKind},
		{"nil image", nil, Bank{NewDirac(1)}, DefaultConfig(), ErrInvalidImageData},
		{"empty image", &Image{}, Bank{NewDirac(1)}, DefaultConfig(), ErrInvalidImageData},
		{"short data", &Image{Rows: 2, Cols: 2, Pix: []float64{1}}, Bank{NewDirac(1)}, DefaultConfig(), ErrInvalidImageData},
		{"nan", &Image{Rows: 1, Cols: 2, Pix: []float64{1, math.NaN()}}, Bank{NewDirac(1)}, DefaultConfig(), ErrInvalidImageData},
	} {
		if _, err := Denoise(tc.Img, tc.Bank, tc.Cfg); !errors.Is(err, tc.Err) {
			t.Errorf("%s: err=%v; want %v", tc.Name, err, tc.Err)
		}
	}
}

func TestTinySigmaStaysFinite(t *testing.T) {
	out, err := Denoise(constantImage(4, 4, 7), Bank{NewGabor(1, 1e-100, 3, 0)}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Pix {
		if math.IsNaN(v) || math.Abs(v-7) > 1e-3 {
			t.Errorf("pix[%d]=%f; want 7", i, v)
		}
	}
}

func TestBackendErrors(t *testing.T) {
	img := constantImage(4, 4, 1)
	bank := Bank{NewDirac(1)}
	for _, b := range []*fakeBackend{
		{width: 2, memory: 1 << 30, fail: true},
		{width: 0, memory: 1 << 30},
		{width: 2, memory: 1024},
	} {
		d := &Denoiser{Backend: b}
		if _, err := d.Denoise(img, bank, DefaultConfig()); !errors.Is(err, ErrBackendUnavailable) {
			t.Errorf("backend %+v err=%v; want %v", *b, err, ErrBackendUnavailable)
		}
	}
}

func TestDenoiseLogs(t *testing.T) {
	var buf bytes.Buffer
	d := &Denoiser{Log: &buf, ID: 3}
	if _, err := d.Denoise(constantImage(4, 4, 1), Bank{NewDirac(1)}, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "3: Destriping 4x4 image") {
		t.Errorf("log=%q", buf.String())
	}
}

func TestShrink(t *testing.T) {
	for _, tc := range []struct{ X, T, Want float64 }{
		{3, 1, 2}, {-3, 1, -2}, {0.5, 1, 0}, {-1, 1, 0}, {1, 0, 1},
	} {
		if got := Shrink(tc.X, tc.T); got != tc.Want {
			t.Errorf("Shrink(%f,%f)=%f; want %f", tc.X, tc.T, got, tc.Want)
		}
	}
}
