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


package spectral

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// 1-D transforms and scratch rows are recycled across blocks and iterations. Neither is safe
// for concurrent use, so every block takes its own from the pool.

// Pool of 1-D complex FFT plans, keyed by length
var poolFFT = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

// Pool of constant sized complex128 arrays, keyed by length
var poolComplex128 = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

// Returns a pool for 1-D FFT plans of the given length
func getSizedPoolFFT(size int) *sync.Pool {
	poolFFT.RLock()
	pool := poolFFT.m[size]
	poolFFT.RUnlock()
	if pool != nil {
		return pool
	}
	poolFFT.Lock()
	defer poolFFT.Unlock()
	if pool = poolFFT.m[size]; pool == nil {
		pool = &sync.Pool{
			New: func() interface{} {
				return fourier.NewCmplxFFT(size)
			},
		}
		poolFFT.m[size] = pool
	}
	return pool
}

// Retrieves a 1-D FFT plan of given length from the pool
func getFFTFromPool(size int) *fourier.CmplxFFT {
	return getSizedPoolFFT(size).Get().(*fourier.CmplxFFT)
}

// Returns a 1-D FFT plan to the pool
func putFFTIntoPool(fft *fourier.CmplxFFT) {
	getSizedPoolFFT(fft.Len()).Put(fft)
}

// Returns a pool for []complex128 arrays of the given size
func getSizedPoolComplex128(size int) *sync.Pool {
	poolComplex128.RLock()
	pool := poolComplex128.m[size]
	poolComplex128.RUnlock()
	if pool != nil {
		return pool
	}
	poolComplex128.Lock()
	defer poolComplex128.Unlock()
	if pool = poolComplex128.m[size]; pool == nil {
		pool = &sync.Pool{
			New: func() interface{} {
				return make([]complex128, size)
			},
		}
		poolComplex128.m[size] = pool
	}
	return pool
}

// Retrieves an array of given size and type from pool. Contents are undefined
func getArrayOfComplex128FromPool(size int) []complex128 {
	return getSizedPoolComplex128(size).Get().([]complex128)
}

// Returns an array of given size and type to the pool
func putArrayOfComplex128IntoPool(arr []complex128) {
	getSizedPoolComplex128(cap(arr)).Put(arr[:cap(arr)])
}

// Clears all pools, e.g. after processing a batch of large images
func ClearPools() {
	poolFFT.Lock()
	poolFFT.m = make(map[int]*sync.Pool)
	poolFFT.Unlock()
	poolComplex128.Lock()
	poolComplex128.m = make(map[int]*sync.Pool)
	poolComplex128.Unlock()
}
