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


// Package grid partitions a flat pixel or frequency grid into contiguous
// blocks and runs per-block kernels on an execution backend.
package grid

import (
	"errors"
	"fmt"
)

// Returned when the execution backend cannot be initialized, or fails while dispatching blocks
var ErrBackendUnavailable = errors.New("execution backend unavailable")

// A contiguous block [Lo, Hi) of a flat grid of n elements
type Block struct {
	ID int
	Lo int
	Hi int
}

func (b Block) Len() int { return b.Hi - b.Lo }

// An execution backend. Reports the maximum number of blocks it can run
// concurrently and the memory budget for a single run, and runs blocks
type Backend interface {
	MaxWidth() int
	MemoryBytes() uint64
	Dispatch(blocks []Block, f func(b Block)) error
}

// Splits [0,n) into min(width,n) contiguous blocks. Block sizes differ by at most one,
// the larger blocks come first
func Partition(n, width int) []Block {
	if n <= 0 {
		return nil
	}
	if width < 1 {
		width = 1
	}
	if width > n {
		width = n
	}
	blocks := make([]Block, width)
	base, rem := n/width, n%width
	lo := 0
	for i := range blocks {
		size := base
		if i < rem {
			size++
		}
		blocks[i] = Block{ID: i, Lo: lo, Hi: lo + size}
		lo += size
	}
	return blocks
}

// Executes per-block kernels on a backend with a fixed parallelism width
type Executor struct {
	backend Backend
	width   int
}

// Creates an executor. A width <= 0 selects the backend maximum, a width above the maximum is clamped down to it
func NewExecutor(backend Backend, width int) (*Executor, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrBackendUnavailable)
	}
	max := backend.MaxWidth()
	if max <= 0 {
		return nil, fmt.Errorf("%w: backend reports maximum width %d", ErrBackendUnavailable, max)
	}
	if width <= 0 || width > max {
		width = max
	}
	return &Executor{backend: backend, width: width}, nil
}

func (e *Executor) Width() int { return e.width }

func (e *Executor) Backend() Backend { return e.backend }

// Partitions [0,n) into blocks and invokes f once per block. Returns after all blocks
// have completed. f must write only to the region of its own block
func (e *Executor) MapBlocks(n int, f func(b Block)) error {
	blocks := Partition(n, e.width)
	if len(blocks) == 0 {
		return nil
	}
	return e.backend.Dispatch(blocks, f)
}
