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

package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLogWriterTee(t *testing.T) {
	var out bytes.Buffer
	l := NewLogWriter(&out)
	l.Write([]byte("before\n"))

	fileName := filepath.Join(t.TempDir(), "test.log")
	if err := l.AlsoToFile(fileName); err != nil {
		t.Fatal(err)
	}
	l.Write([]byte("tee 1\n"))
	l.Write([]byte("tee 2\n"))
	if err := l.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	l.Write([]byte("after\n"))

	if got, want := out.String(), "before\ntee 1\ntee 2\nafter\n"; got != want {
		t.Errorf("stdout=%q; want %q", got, want)
	}
	file, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(file), "tee 1\ntee 2\n"; got != want {
		t.Errorf("file=%q; want %q", got, want)
	}
}

func TestLogAlsoToFileBadPath(t *testing.T) {
	l := NewLogWriter(&bytes.Buffer{})
	if err := l.AlsoToFile(filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Error("err=nil; want error for missing directory")
	}
	if err := l.Sync(); err != nil {
		t.Errorf("sync without file: %v", err)
	}
}
