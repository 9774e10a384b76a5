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
	"encoding/json"
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	for _, tc := range []struct {
		Name string
		Kind Kind
		Err  error
	}{
		{"Dirac", KindDirac, nil},
		{"gabor", KindGabor, nil},
		{" GABOR ", KindGabor, nil},
		{"Gauss", 0, ErrInvalidFilterKind},
		{"", 0, ErrInvalidFilterKind},
	} {
		k, err := ParseKind(tc.Name)
		if !errors.Is(err, tc.Err) {
			t.Errorf("ParseKind(%q) err=%v; want %v", tc.Name, err, tc.Err)
		}
		if err == nil && k != tc.Kind {
			t.Errorf("ParseKind(%q)=%v; want %v", tc.Name, k, tc.Kind)
		}
	}
}

func TestFilterValidate(t *testing.T) {
	for _, tc := range []struct {
		F   Filter
		Err error
	}{
		{NewDirac(10), nil},
		{NewGabor(2, 3, 40, 45), nil},
		{NewGabor(2, 3, 40, -720), nil},
		{NewDirac(0), ErrInvalidFilterParameter},
		{NewDirac(-1), ErrInvalidFilterParameter},
		{NewGabor(2, 0, 40, 0), ErrInvalidFilterParameter},
		{NewGabor(2, 3, -1, 0), ErrInvalidFilterParameter},
		{NewGabor(1, 1e-200, 3, 0), ErrInvalidFilterParameter},
		{NewGabor(1, 3, 1e200, 0), ErrInvalidFilterParameter},
		{NewGabor(1, 1e-100, 3, 0), nil},
		{Filter{Kind: Kind(7), NoiseLevel: 1}, ErrInvalidFilterKind},
	} {
		if err := tc.F.Validate(); !errors.Is(err, tc.Err) {
			t.Errorf("%v.Validate()=%v; want %v", tc.F, err, tc.Err)
		}
	}
}

func TestWrappedTheta(t *testing.T) {
	for _, tc := range []struct{ Theta, Want float64 }{
		{0, 0}, {45, 45}, {180, 0}, {225, 45}, {-45, 135}, {-180, 0}, {540.5, 0.5},
	} {
		got := Filter{Kind: KindGabor, Theta: tc.Theta}.WrappedTheta()
		if got != tc.Want {
			t.Errorf("theta=%f wrapped=%f; want %f", tc.Theta, got, tc.Want)
		}
	}
}

func TestEncodeBank(t *testing.T) {
	b := Bank{NewGabor(2, 3, 40, 45), NewDirac(10)}
	got := EncodeBank(b)
	want := []float32{1, 2, 3, 40, 45, 0, 10}
	if len(got) != len(want) {
		t.Fatalf("len=%d; want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("psis[%d]=%f; want %f", i, got[i], want[i])
		}
	}
}

func TestDecodeBank(t *testing.T) {
	b, err := DecodeBank([]float32{0, 10, 1, 0.5, 3, 40, 45}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 2 || b[0] != NewDirac(10) || b[1] != NewGabor(0.5, 3, 40, 45) {
		t.Errorf("bank=%v; want [Dirac(10) Gabor(0.5,3,40,45)]", b)
	}
}

func TestDecodeBankErrors(t *testing.T) {
	for _, tc := range []struct {
		Psis  []float32
		Count int
		Err   error
	}{
		{[]float32{2, 10}, 1, ErrInvalidFilterKind},
		{[]float32{0.5, 10}, 1, ErrInvalidFilterKind},
		{[]float32{0, 10}, 0, ErrConfiguration},
		{[]float32{}, 1, ErrInvalidFilterParameter},
		{[]float32{1, 2, 3}, 1, ErrInvalidFilterParameter},
		{[]float32{0, 10, 0}, 1, ErrInvalidFilterParameter},
		{[]float32{0, 0}, 1, ErrInvalidFilterParameter},
		{[]float32{1, 2, 0, 40, 45}, 1, ErrInvalidFilterParameter},
		{[]float32{0, 1}, 1 << 50, ErrInvalidFilterParameter},
		{[]float32{0, 1, 0, 1}, 3, ErrInvalidFilterParameter},
	} {
		if _, err := DecodeBank(tc.Psis, tc.Count); !errors.Is(err, tc.Err) {
			t.Errorf("DecodeBank(%v, %d) err=%v; want %v", tc.Psis, tc.Count, err, tc.Err)
		}
	}
}

func TestBankValidate(t *testing.T) {
	if err := (Bank{}).Validate(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("empty bank err=%v; want %v", err, ErrConfiguration)
	}
	if err := (Bank{NewDirac(1), NewGabor(1, 0, 1, 0)}).Validate(); !errors.Is(err, ErrInvalidFilterParameter) {
		t.Errorf("bad sigma err=%v; want %v", err, ErrInvalidFilterParameter)
	}
}

func TestFilterJSON(t *testing.T) {
	var b Bank
	in := `[{"name":"Gabor","noise_level":2,"sigma":[3,40],"theta":45},{"name":"dirac","noise_level":10}]`
	if err := json.Unmarshal([]byte(in), &b); err != nil {
		t.Fatal(err)
	}
	if len(b) != 2 || b[0] != NewGabor(2, 3, 40, 45) || b[1] != NewDirac(10) {
		t.Errorf("bank=%v", b)
	}

	out, err := json.Marshal(Bank{NewDirac(10)})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `[{"name":"Dirac","noise_level":10}]` {
		t.Errorf("json=%s", out)
	}

	var f Filter
	if err := json.Unmarshal([]byte(`{"name":"Gabor","noise_level":1}`), &f); !errors.Is(err, ErrInvalidFilterParameter) {
		t.Errorf("gabor without sigma err=%v; want %v", err, ErrInvalidFilterParameter)
	}
	if err := json.Unmarshal([]byte(`{"name":"Box","noise_level":1}`), &f); !errors.Is(err, ErrInvalidFilterKind) {
		t.Errorf("unknown name err=%v; want %v", err, ErrInvalidFilterKind)
	}
}

func TestParseParallelism(t *testing.T) {
	for _, tc := range []struct {
		S    string
		Want Parallelism
		Err  bool
	}{
		{"auto", Auto, false}, {"AUTO", Auto, false}, {"", Auto, false}, {"0", Auto, false},
		{"4", 4, false}, {"-1", Auto, true}, {"many", Auto, true},
	} {
		p, err := ParseParallelism(tc.S)
		if (err != nil) != tc.Err || p != tc.Want {
			t.Errorf("ParseParallelism(%q)=%v,%v; want %v, err %v", tc.S, p, err, tc.Want, tc.Err)
		}
	}
}

func TestConfigJSON(t *testing.T) {
	var c Config
	if err := json.Unmarshal([]byte(`{"iterations":5,"beta":2.5,"parallelism":"auto"}`), &c); err != nil {
		t.Fatal(err)
	}
	if c != (Config{Iterations: 5, Beta: 2.5, Parallelism: Auto}) {
		t.Errorf("config=%+v", c)
	}
	if err := json.Unmarshal([]byte(`{"parallelism":3}`), &c); err != nil || c.Parallelism != 3 {
		t.Errorf("parallelism=%v err=%v; want 3", c.Parallelism, err)
	}
	out, _ := json.Marshal(DefaultConfig())
	if string(out) != `{"iterations":20,"beta":10,"parallelism":"auto"}` {
		t.Errorf("json=%s", out)
	}
}

func TestConfigValidate(t *testing.T) {
	for _, c := range []Config{
		{Iterations: 0, Beta: 10},
		{Iterations: 20, Beta: 0},
		{Iterations: 20, Beta: 10, Parallelism: -2},
	} {
		if err := c.Validate(); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%+v.Validate()=%v; want %v", c, err, ErrConfiguration)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Error(err)
	}
}

func TestAssemble(t *testing.T) {
	img, err := Assemble([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if img.At(1, 0) != 4 || img.At(0, 2) != 3 {
		t.Errorf("img=%v", img.Pix)
	}
	if _, err := Assemble([]float64{1, 2, 3}, 2, 3); !errors.Is(err, ErrInvalidImageData) {
		t.Errorf("err=%v; want %v", err, ErrInvalidImageData)
	}
}
