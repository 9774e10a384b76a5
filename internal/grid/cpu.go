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

package grid

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	"golang.org/x/sync/errgroup"
)

// Description of the local CPU backend, as probed once per process
type Info struct {
	Name     string `json:"name"`
	MaxWidth int    `json:"maxWidth"`
	MemoryMB int    `json:"memoryMB"`
	AVX2     bool   `json:"avx2"`
}

func (i Info) String() string {
	return fmt.Sprintf("%s, width %d, memory budget %d MiB, AVX2 %v", i.Name, i.MaxWidth, i.MemoryMB, i.AVX2)
}

// Goroutine backend on the local CPUs
type cpuBackend struct {
	info   Info
	memory uint64
}

var cpuOnce sync.Once
var cpuSingleton *cpuBackend

// Returns the process-wide CPU backend. The hardware probe runs on first use only
func CPU() Backend {
	cpuOnce.Do(func() { cpuSingleton = probeCPU() })
	return cpuSingleton
}

// Returns the probed description of the process-wide CPU backend
func CPUInfo() Info {
	CPU()
	return cpuSingleton.info
}

func probeCPU() *cpuBackend {
	width := cpuid.CPU.LogicalCores
	if width <= 0 {
		width = runtime.NumCPU()
	}
	if procs := runtime.GOMAXPROCS(0); width > procs {
		width = procs
	}

	// same budget as for stacking: 70% of physical memory
	mem := memory.TotalMemory() * 7 / 10
	if mem == 0 {
		mem = math.MaxUint64 // unknown on this platform, do not limit
	}

	name := cpuid.CPU.BrandName
	if name == "" {
		name = runtime.GOARCH
	}
	return &cpuBackend{
		info: Info{
			Name:     name,
			MaxWidth: width,
			MemoryMB: int(mem / 1024 / 1024),
			AVX2:     cpuid.CPU.AVX2(),
		},
		memory: mem,
	}
}

func (c *cpuBackend) MaxWidth() int { return c.info.MaxWidth }

func (c *cpuBackend) MemoryBytes() uint64 { return c.memory }

// Runs all blocks, at most MaxWidth at a time. A panic inside a block is reported as ErrBackendUnavailable
func (c *cpuBackend) Dispatch(blocks []Block, f func(b Block)) error {
	if len(blocks) == 1 {
		return runBlock(blocks[0], f)
	}
	var g errgroup.Group
	g.SetLimit(c.info.MaxWidth)
	for _, b := range blocks {
		b := b
		g.Go(func() error { return runBlock(b, f) })
	}
	return g.Wait()
}

func runBlock(b Block, f func(b Block)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: block %d [%d,%d) failed: %v", ErrBackendUnavailable, b.ID, b.Lo, b.Hi, r)
		}
	}()
	f(b)
	return nil
}
