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
	"fmt"
	"math"
	"strings"
)

// Kind of a noise filter. The numeric values are the tags of the flat filter encoding
type Kind int

const (
	KindDirac Kind = 0 // spatially uncorrelated noise
	KindGabor Kind = 1 // oriented, elongated noise such as stripes and curtains
)

func (k Kind) String() string {
	switch k {
	case KindDirac:
		return "Dirac"
	case KindGabor:
		return "Gabor"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Parses a filter kind from its name, case insensitive
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dirac":
		return KindDirac, nil
	case "gabor":
		return KindGabor, nil
	}
	return 0, fmt.Errorf("%w: filter name '%s' should be 'Dirac' or 'Gabor'", ErrInvalidFilterKind, name)
}

// A noise filter. Sigma and Theta are used by Gabor filters only
type Filter struct {
	Kind       Kind
	NoiseLevel float64    // Relative strength of the noise pattern. Scales the kernel linearly
	Sigma      [2]float64 // Standard deviations along the rotated x and y axes, in pixels
	Theta      float64    // Orientation in degrees, counter-clockwise from the horizontal axis
}

func NewDirac(noiseLevel float64) Filter {
	return Filter{Kind: KindDirac, NoiseLevel: noiseLevel}
}

func NewGabor(noiseLevel, sigmaX, sigmaY, theta float64) Filter {
	return Filter{Kind: KindGabor, NoiseLevel: noiseLevel, Sigma: [2]float64{sigmaX, sigmaY}, Theta: theta}
}

func (f Filter) String() string {
	if f.Kind == KindGabor {
		return fmt.Sprintf("Gabor(noise=%g, sigma=(%g,%g), theta=%g)", f.NoiseLevel, f.Sigma[0], f.Sigma[1], f.Theta)
	}
	return fmt.Sprintf("%v(noise=%g)", f.Kind, f.NoiseLevel)
}

// Orientation wrapped into [0,180) degrees
func (f Filter) WrappedTheta() float64 {
	t := math.Mod(f.Theta, 180)
	if t < 0 {
		t += 180
	}
	return t
}

func positiveFinite(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) // NaN fails x>0
}

// Checks kind and parameter domains
func (f Filter) Validate() error {
	switch f.Kind {
	case KindDirac, KindGabor:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidFilterKind, int(f.Kind))
	}
	if !positiveFinite(f.NoiseLevel) {
		return fmt.Errorf("%w: %v noise level %g must be positive", ErrInvalidFilterParameter, f.Kind, f.NoiseLevel)
	}
	if f.Kind == KindGabor {
		if !positiveFinite(f.Sigma[0]) || !positiveFinite(f.Sigma[1]) ||
			!positiveFinite(2*f.Sigma[0]*f.Sigma[0]) || !positiveFinite(2*f.Sigma[1]*f.Sigma[1]) {
			return fmt.Errorf("%w: Gabor sigma (%g, %g) must be positive with a representable variance", ErrInvalidFilterParameter, f.Sigma[0], f.Sigma[1])
		}
		if math.IsNaN(f.Theta) || math.IsInf(f.Theta, 0) {
			return fmt.Errorf("%w: Gabor theta %g must be finite", ErrInvalidFilterParameter, f.Theta)
		}
	}
	return nil
}

// JSON representation, with the field names of the filter dictionaries of the reference tooling
type filterJSON struct {
	Name       string      `json:"name"`
	NoiseLevel float64     `json:"noise_level"`
	Sigma      *[2]float64 `json:"sigma,omitempty"`
	Theta      *float64    `json:"theta,omitempty"`
}

func (f Filter) MarshalJSON() ([]byte, error) {
	fj := filterJSON{Name: f.Kind.String(), NoiseLevel: f.NoiseLevel}
	if f.Kind == KindGabor {
		sigma, theta := f.Sigma, f.Theta
		fj.Sigma, fj.Theta = &sigma, &theta
	}
	return json.Marshal(fj)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var fj filterJSON
	if err := json.Unmarshal(data, &fj); err != nil {
		return err
	}
	kind, err := ParseKind(fj.Name)
	if err != nil {
		return err
	}
	res := Filter{Kind: kind, NoiseLevel: fj.NoiseLevel}
	if kind == KindGabor {
		if fj.Sigma == nil || fj.Theta == nil {
			return fmt.Errorf("%w: Gabor filter needs sigma and theta", ErrInvalidFilterParameter)
		}
		res.Sigma, res.Theta = *fj.Sigma, *fj.Theta
	}
	*f = res
	return nil
}

// An ordered filter bank
type Bank []Filter

// Checks the bank is non-empty and all filters are valid
func (b Bank) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("%w: filter bank is empty", ErrConfiguration)
	}
	for i, f := range b {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
	}
	return nil
}

func (b Bank) String() string {
	parts := make([]string, len(b))
	for i, f := range b {
		parts[i] = f.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Number of parameters following the kind tag in the flat encoding
func paramCount(k Kind) int {
	if k == KindGabor {
		return 4
	}
	return 1
}

// Encodes the bank as a flat sequence of records: the kind tag, then noise level for Dirac,
// or noise level, sigma x, sigma y and theta for Gabor
func EncodeBank(b Bank) []float32 {
	psis := make([]float32, 0, len(b)*5)
	for _, f := range b {
		psis = append(psis, float32(f.Kind), float32(f.NoiseLevel))
		if f.Kind == KindGabor {
			psis = append(psis, float32(f.Sigma[0]), float32(f.Sigma[1]), float32(f.Theta))
		}
	}
	return psis
}

// Decodes count filter records from the flat encoding, and validates the result
func DecodeBank(psis []float32, count int) (Bank, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: filter count %d must be positive", ErrConfiguration, count)
	}
	if count > len(psis)/2 {
		return nil, fmt.Errorf("%w: %d filters need at least %d values, encoding has %d", ErrInvalidFilterParameter, count, 2*count, len(psis))
	}
	b := make(Bank, 0, count)
	pos := 0
	for i := 0; i < count; i++ {
		if pos >= len(psis) {
			return nil, fmt.Errorf("%w: filter %d missing, encoding has %d values", ErrInvalidFilterParameter, i, len(psis))
		}
		tag := psis[pos]
		var kind Kind
		switch tag {
		case 0:
			kind = KindDirac
		case 1:
			kind = KindGabor
		default:
			return nil, fmt.Errorf("%w: filter %d has tag %g", ErrInvalidFilterKind, i, tag)
		}
		pos++
		n := paramCount(kind)
		if pos+n > len(psis) {
			return nil, fmt.Errorf("%w: %v filter %d truncated after %d values", ErrInvalidFilterParameter, kind, i, len(psis)-pos)
		}
		p := psis[pos : pos+n]
		f := Filter{Kind: kind, NoiseLevel: float64(p[0])}
		if kind == KindGabor {
			f.Sigma = [2]float64{float64(p[1]), float64(p[2])}
			f.Theta = float64(p[3])
		}
		b = append(b, f)
		pos += n
	}
	if pos != len(psis) {
		return nil, fmt.Errorf("%w: %d trailing values after %d filters", ErrInvalidFilterParameter, len(psis)-pos, count)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
