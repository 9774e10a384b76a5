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
	"math/cmplx"

	"gonum.org/v1/gonum/floats"

	"github.com/mlnoga/vsnr/internal/grid"
	"github.com/mlnoga/vsnr/internal/spectral"
)

// ADMM solver for the destriping problem
//
//   min_lambda || grad(u0 - sum_k psi_k * lambda_k) ||_1 + sum_k || lambda_k ||_1
//
// with periodic forward differences. The splittings g = grad u and z_k = lambda_k
// carry scaled multipliers p and q_k. The coupled (u, lambda) update is solved
// in closed form per frequency bin, all other updates are pixel-wise shrinkages
type Solver struct {
	cfg     Config
	plan    *spectral.Plan
	exec    *grid.Executor
	kernels [][]complex128 // frequency responses Psi_k
	power   []float64      // sum_k |Psi_k|^2 per bin
	gx      []complex128   // horizontal difference symbol per column
	gy      []complex128   // vertical difference symbol per row

	// Primal residual ||grad u - g||_2 of the last iteration
	Residual float64
	// Norm of the change in u between the last two iterations
	Change float64
}

// Creates a solver for the given kernels. Kernels must match the plan dimensions
func NewSolver(kernels [][]complex128, plan *spectral.Plan, exec *grid.Executor, cfg Config) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(kernels) == 0 {
		return nil, fmt.Errorf("%w: no filter kernels", ErrConfiguration)
	}
	n := plan.Len()
	power := make([]float64, n)
	for k, kernel := range kernels {
		if len(kernel) != n {
			return nil, fmt.Errorf("%w: kernel %d has %d bins, want %d", ErrConfiguration, k, len(kernel), n)
		}
		for i, v := range kernel {
			power[i] += real(v)*real(v) + imag(v)*imag(v)
		}
	}
	return &Solver{
		cfg:     cfg,
		plan:    plan,
		exec:    exec,
		kernels: kernels,
		power:   power,
		gx:      differenceSymbol(plan.Cols),
		gy:      differenceSymbol(plan.Rows),
	}, nil
}

// Fourier symbol exp(2 pi i k/n) - 1 of the periodic forward difference
func differenceSymbol(n int) []complex128 {
	s := make([]complex128, n)
	for k := range s {
		s[k] = cmplx.Exp(complex(0, 2*math.Pi*float64(k)/float64(n))) - 1
	}
	return s
}

// Soft thresholding
func Shrink(x, t float64) float64 {
	if x > t {
		return x - t
	}
	if x < -t {
		return x + t
	}
	return 0
}

// Approximate bytes of working memory for a rows x cols grid and m filters,
// including kernels and transform scratch
func WorkingSetBytes(rows, cols, m int) uint64 {
	n := uint64(rows) * uint64(cols)
	complexArrays := uint64(6 + 2*m) // U0, U, W0, W1, scratch x2, Lambda_k, Psi_k
	realArrays := uint64(7 + 2*m)    // input, output, g, p, tmp, z_k, q_k
	return n * (16*complexArrays + 8*realArrays)
}

// Runs the configured number of iterations on the real image u0 of plan
// dimensions and returns the estimated clean image. u0 is not modified
func (s *Solver) Solve(u0 []float64) ([]float64, error) {
	n, m := s.plan.Len(), len(s.kernels)
	if len(u0) != n {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d grid", ErrInvalidImageData, len(u0), s.plan.Rows, s.plan.Cols)
	}
	cols := s.plan.Cols
	threshold := 1 / s.cfg.Beta

	U0 := make([]complex128, n)
	if err := s.plan.Forward(U0, u0); err != nil {
		return nil, err
	}
	U := make([]complex128, n)
	W := [2][]complex128{make([]complex128, n), make([]complex128, n)}
	g := [2][]float64{make([]float64, n), make([]float64, n)}
	p := [2][]float64{make([]float64, n), make([]float64, n)}
	lambda := make([][]complex128, m)
	z := make([][]float64, m)
	q := make([][]float64, m)
	for k := 0; k < m; k++ {
		lambda[k] = make([]complex128, n)
		z[k] = make([]float64, n)
		q[k] = make([]float64, n)
	}
	tmp := make([]float64, n)
	prev := make([]float64, n)
	u := make([]float64, n)
	partials := make([]float64, s.exec.Width())

	for it := 0; it < s.cfg.Iterations; it++ {
		// Transform the splitting targets g-p and z_k-q_k
		for d := 0; d < 2; d++ {
			gd, pd := g[d], p[d]
			if err := s.exec.MapBlocks(n, func(b grid.Block) {
				for i := b.Lo; i < b.Hi; i++ {
					tmp[i] = gd[i] - pd[i]
				}
			}); err != nil {
				return nil, err
			}
			if err := s.plan.Forward(W[d], tmp); err != nil {
				return nil, err
			}
		}
		for k := 0; k < m; k++ {
			zk, qk := z[k], q[k]
			if err := s.exec.MapBlocks(n, func(b grid.Block) {
				for i := b.Lo; i < b.Hi; i++ {
					tmp[i] = zk[i] - qk[i]
				}
			}); err != nil {
				return nil, err
			}
			if err := s.plan.Forward(lambda[k], tmp); err != nil {
				return nil, err
			}
		}

		// Closed-form (u, lambda) update per frequency bin. The system matrix is
		// identity plus a rank one term, inverted with Sherman-Morrison
		if err := s.exec.MapBlocks(n, func(b grid.Block) {
			for i := b.Lo; i < b.Hi; i++ {
				gx, gy := s.gx[i%cols], s.gy[i/cols]
				g2 := real(gx)*real(gx) + imag(gx)*imag(gx) + real(gy)*real(gy) + imag(gy)*imag(gy)
				h := cmplx.Conj(gx)*(gx*U0[i]-W[0][i]) + cmplx.Conj(gy)*(gy*U0[i]-W[1][i])
				var t complex128
				for k := 0; k < m; k++ {
					t += s.kernels[k][i] * lambda[k][i]
				}
				c := (h - complex(g2, 0)*t) / complex(1+g2*s.power[i], 0)
				for k := 0; k < m; k++ {
					lambda[k][i] += cmplx.Conj(s.kernels[k][i]) * c
				}
				U[i] = U0[i] - (t + complex(s.power[i], 0)*c)
			}
		}); err != nil {
			return nil, err
		}

		// Gradient splitting: g = shrink(grad u + p), p += grad u - g
		for i := range partials {
			partials[i] = 0
		}
		for d := 0; d < 2; d++ {
			Wd, gd, pd := W[d], g[d], p[d]
			if err := s.exec.MapBlocks(n, func(b grid.Block) {
				for i := b.Lo; i < b.Hi; i++ {
					sym := s.gx[i%cols]
					if d == 1 {
						sym = s.gy[i/cols]
					}
					Wd[i] = sym * U[i]
				}
			}); err != nil {
				return nil, err
			}
			if err := s.plan.Inverse(tmp, Wd); err != nil {
				return nil, err
			}
			if err := s.exec.MapBlocks(n, func(b grid.Block) {
				sum := 0.0
				for i := b.Lo; i < b.Hi; i++ {
					v := tmp[i] + pd[i]
					gd[i] = Shrink(v, threshold)
					r := tmp[i] - gd[i]
					sum += r * r
					pd[i] += r
				}
				partials[b.ID] += sum
			}); err != nil {
				return nil, err
			}
		}

		// Filter splitting: z_k = shrink(lambda_k + q_k), q_k += lambda_k - z_k
		for k := 0; k < m; k++ {
			zk, qk := z[k], q[k]
			if err := s.plan.Inverse(tmp, lambda[k]); err != nil {
				return nil, err
			}
			if err := s.exec.MapBlocks(n, func(b grid.Block) {
				for i := b.Lo; i < b.Hi; i++ {
					v := tmp[i] + qk[i]
					zk[i] = Shrink(v, threshold)
					qk[i] += tmp[i] - zk[i]
				}
			}); err != nil {
				return nil, err
			}
		}

		copy(prev, u)
		if err := s.plan.Inverse(u, U); err != nil {
			return nil, err
		}
		s.Residual = math.Sqrt(floats.Sum(partials))
		s.Change = floats.Distance(u, prev, 2)
	}
	return u, nil
}
