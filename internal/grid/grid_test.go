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
	"errors"
	"sync/atomic"
	"testing"
)

type partitionTestCase struct {
	N, Width int
	Sizes    []int
}

func TestPartition(t *testing.T) {
	tcs := []partitionTestCase{
		{0, 4, nil},
		{1, 4, []int{1}},
		{7, 1, []int{7}},
		{7, 3, []int{3, 2, 2}},
		{8, 4, []int{2, 2, 2, 2}},
		{3, 8, []int{1, 1, 1}},
		{5, 0, []int{5}},
	}
	for _, tc := range tcs {
		blocks := Partition(tc.N, tc.Width)
		if len(blocks) != len(tc.Sizes) {
			t.Errorf("n=%d width=%d len(blocks)=%d; want %d", tc.N, tc.Width, len(blocks), len(tc.Sizes))
			continue
		}
		lo := 0
		for i, b := range blocks {
			if b.ID != i || b.Lo != lo || b.Len() != tc.Sizes[i] {
				t.Errorf("n=%d width=%d block %d=%+v; want id %d lo %d len %d", tc.N, tc.Width, i, b, i, lo, tc.Sizes[i])
			}
			lo = b.Hi
		}
		if lo != tc.N {
			t.Errorf("n=%d width=%d blocks end at %d; want %d", tc.N, tc.Width, lo, tc.N)
		}
	}
}

// Sequential test backend with a fixed width, optionally failing on dispatch
type fakeBackend struct {
	width      int
	fail       bool
	dispatches int
}

func (f *fakeBackend) MaxWidth() int       { return f.width }
func (f *fakeBackend) MemoryBytes() uint64 { return 1 << 30 }
func (f *fakeBackend) Dispatch(blocks []Block, fn func(b Block)) error {
	f.dispatches++
	if f.fail {
		return ErrBackendUnavailable
	}
	for _, b := range blocks {
		fn(b)
	}
	return nil
}

func TestNewExecutorWidth(t *testing.T) {
	b := &fakeBackend{width: 4}
	for _, tc := range []struct{ Requested, Want int }{{0, 4}, {-1, 4}, {1, 1}, {3, 3}, {4, 4}, {64, 4}} {
		e, err := NewExecutor(b, tc.Requested)
		if err != nil {
			t.Fatalf("requested=%d err=%v", tc.Requested, err)
		}
		if e.Width() != tc.Want {
			t.Errorf("requested=%d width=%d; want %d", tc.Requested, e.Width(), tc.Want)
		}
	}
}

func TestNewExecutorUnavailable(t *testing.T) {
	if _, err := NewExecutor(nil, 0); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("nil backend err=%v; want ErrBackendUnavailable", err)
	}
	if _, err := NewExecutor(&fakeBackend{width: 0}, 0); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("zero width backend err=%v; want ErrBackendUnavailable", err)
	}
}

func TestMapBlocksCoversGridOnce(t *testing.T) {
	e, err := NewExecutor(CPU(), 0)
	if err != nil {
		t.Fatal(err)
	}
	n := 1000
	hits := make([]int32, n)
	var calls int32
	err = e.MapBlocks(n, func(b Block) {
		atomic.AddInt32(&calls, 1)
		for i := b.Lo; i < b.Hi; i++ {
			hits[i]++
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, h := range hits {
		if h != 1 {
			t.Errorf("hits[%d]=%d; want 1", i, h)
		}
	}
	if int(calls) != e.Width() && int(calls) != n {
		t.Errorf("calls=%d; want %d", calls, e.Width())
	}
}

func TestMapBlocksEmptyGrid(t *testing.T) {
	b := &fakeBackend{width: 2}
	e, _ := NewExecutor(b, 0)
	if err := e.MapBlocks(0, func(Block) { t.Error("called for empty grid") }); err != nil {
		t.Errorf("err=%v; want nil", err)
	}
	if b.dispatches != 0 {
		t.Errorf("dispatches=%d; want 0", b.dispatches)
	}
}

func TestDispatchPanicIsBackendError(t *testing.T) {
	e, err := NewExecutor(CPU(), 0)
	if err != nil {
		t.Fatal(err)
	}
	err = e.MapBlocks(16, func(b Block) {
		if b.ID == 0 {
			panic("boom")
		}
	})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("err=%v; want ErrBackendUnavailable", err)
	}
}

func TestCPUProbedOnce(t *testing.T) {
	a, b := CPU(), CPU()
	if a != b {
		t.Errorf("CPU() returned different backends")
	}
	if a.MaxWidth() < 1 {
		t.Errorf("MaxWidth()=%d; want >=1", a.MaxWidth())
	}
	if CPUInfo().MaxWidth != a.MaxWidth() {
		t.Errorf("CPUInfo().MaxWidth=%d; want %d", CPUInfo().MaxWidth, a.MaxWidth())
	}
}
