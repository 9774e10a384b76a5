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
	"strconv"
	"strings"
)

// Number of blocks the grid is partitioned into. Auto selects the backend maximum
type Parallelism int

const Auto Parallelism = 0

// Parses "auto" or a positive integer
func ParseParallelism(s string) (Parallelism, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "auto") || s == "" {
		return Auto, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Auto, fmt.Errorf("%w: parallelism '%s' must be 'auto' or a positive integer", ErrConfiguration, s)
	}
	return Parallelism(n), nil
}

func (p Parallelism) String() string {
	if p == Auto {
		return "auto"
	}
	return strconv.Itoa(int(p))
}

func (p Parallelism) MarshalJSON() ([]byte, error) {
	if p == Auto {
		return []byte(`"auto"`), nil
	}
	return []byte(strconv.Itoa(int(p))), nil
}

func (p *Parallelism) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		res, err := ParseParallelism(s)
		if err != nil {
			return err
		}
		*p = res
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: parallelism %s must be 'auto' or an integer", ErrConfiguration, string(data))
	}
	*p = Parallelism(n)
	return nil
}

// Solver settings for one run
type Config struct {
	Iterations  int         `json:"iterations"`
	Beta        float64     `json:"beta"`
	Parallelism Parallelism `json:"parallelism"`
}

const (
	DefaultIterations = 20
	DefaultBeta       = 10.0
)

func DefaultConfig() Config {
	return Config{Iterations: DefaultIterations, Beta: DefaultBeta, Parallelism: Auto}
}

func (c Config) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: iterations %d must be positive", ErrConfiguration, c.Iterations)
	}
	if !positiveFinite(c.Beta) {
		return fmt.Errorf("%w: beta %g must be positive", ErrConfiguration, c.Beta)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism %d must be 'auto' or positive", ErrConfiguration, int(c.Parallelism))
	}
	return nil
}
