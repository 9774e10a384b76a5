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
	"errors"

	"github.com/mlnoga/vsnr/internal/grid"
)

// Errors returned by this package. All are wrapped with details, test with errors.Is
var (
	ErrInvalidFilterKind      = errors.New("invalid filter kind")
	ErrInvalidFilterParameter = errors.New("invalid filter parameter")
	ErrInvalidImageData       = errors.New("invalid image data")
	ErrConfiguration          = errors.New("configuration error")
	ErrBackendUnavailable     = grid.ErrBackendUnavailable
)
