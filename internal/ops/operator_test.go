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


package ops

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/mlnoga/vsnr/internal/fits"
)

func TestMaterializeAll(t *testing.T) {
	boom := errors.New("boom")
	ins := []Promise{
		func() (*fits.Image, error) { return fits.NewImageFromNaxisn([]int32{1, 1}, nil), nil },
		func() (*fits.Image, error) { return nil, boom },
		func() (*fits.Image, error) { return fits.NewImageFromNaxisn([]int32{2, 1}, nil), nil },
	}
	outs, err := MaterializeAll(ins, 2, false)
	if !errors.Is(err, boom) {
		t.Errorf("err=%v; want %v", err, boom)
	}
	if len(outs) != 2 || outs[0].Pixels != 1 || outs[1].Pixels != 2 {
		t.Errorf("outs=%v; want two images in input order", outs)
	}
	if outs, err := MaterializeAll(ins[:1], 1, true); err != nil || len(outs) != 0 {
		t.Errorf("forget: outs=%v err=%v; want none", outs, err)
	}
}

func TestIsPathAllowed(t *testing.T) {
	for _, tc := range []struct {
		Path string
		Want bool
	}{
		{"in.fits", true}, {"data/in.fits", true}, {"/etc/passwd", false}, {"../in.fits", false}, {"a/../../b", false},
	} {
		if got := IsPathAllowed(tc.Path); got != tc.Want {
			t.Errorf("IsPathAllowed(%q)=%v; want %v", tc.Path, got, tc.Want)
		}
	}
}

func TestFormatOf(t *testing.T) {
	for _, tc := range []struct{ Name, Want string }{
		{"a.fits", "fits"}, {"a.FIT.gz", "fits"}, {"a.fts.gzip", "fits"}, {"a.tiff", "tiff"},
		{"a.jpg", "jpeg"}, {"a.JPEG", "jpeg"}, {"a.png", ""},
	} {
		if got := FormatOf(tc.Name); got != tc.Want {
			t.Errorf("FormatOf(%q)=%q; want %q", tc.Name, got, tc.Want)
		}
	}
}

func TestLoadSaveSequence(t *testing.T) {
	dir := t.TempDir()
	src := fits.NewImageFromNaxisn([]int32{3, 2}, []float32{1, 2, 3, 4, 5, 6})
	if err := src.WriteFile(filepath.Join(dir, "in.fits")); err != nil {
		t.Fatal(err)
	}
	c := &Context{Log: io.Discard, MaxThreads: 1}
	seq := NewOpSequence(
		NewOpLoadMany([]string{filepath.Join(dir, "*.fits")}),
		NewOpSave(filepath.Join(dir, "out%d.fits")),
	)
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := MaterializeAll(promises, c.MaxThreads, true); err != nil {
		t.Fatal(err)
	}
	back, err := fits.NewImageFromFile(filepath.Join(dir, "out0.fits"), 0, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if back.Data[5] != 6 {
		t.Errorf("data=%v", back.Data)
	}

	c.Sandboxed = true
	if _, err := NewOpLoad(0, filepath.Join(dir, "in.fits")).MakePromises(nil, c); err == nil {
		t.Error("expected sandbox to reject absolute path")
	}
}
