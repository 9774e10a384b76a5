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


package fits

import (
	"fmt"
	"strings"

	"github.com/mlnoga/vsnr/internal/stats"
	"github.com/mlnoga/vsnr/internal/vsnr"
)

// A FITS image.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output
	FileName string // Original file name, if any, for log output

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i]
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i]
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y,channel)
	Pixels int32   // Number of pixels in the image. Product of Naxisn[]

	Data []float32 // The image data, channel planes one after the other

	Exposure float32      // Image exposure in seconds
	Stats    *stats.Stats // Basic image statistics
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	img := NewImage()
	img.Bitpix = -32
	img.Naxisn = append([]int32(nil), naxisn...)
	img.Pixels = numPixels
	img.Data = data
	return img
}

// Creates a FITS image with the same metadata as the given image. New data array will be allocated
func NewImageFromImage(src *Image) *Image {
	img := NewImageFromNaxisn(src.Naxisn, nil)
	img.ID, img.FileName, img.Exposure = src.ID, src.FileName, src.Exposure
	img.Header.History = append([]string(nil), src.Header.History...)
	return img
}

// Creates a single-channel FITS image from a plane
func NewImageFromPlane(p *vsnr.Image) *Image {
	img := NewImageFromNaxisn([]int32{int32(p.Cols), int32(p.Rows)}, nil)
	for i, v := range p.Pix {
		img.Data[i] = float32(v)
	}
	return img
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
	}
}

const fitsBlockSize int = 2880   // Block size of FITS header and data units
const HeaderLineSize int = 80    // Line size of a FITS header

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

func (f *Image) Width() int { return int(f.Naxisn[0]) }

func (f *Image) Height() int {
	if len(f.Naxisn) < 2 {
		return 1
	}
	return int(f.Naxisn[1])
}

// Number of channel planes. Axes beyond the third are folded into channels
func (f *Image) Channels() int {
	c := 1
	for i := 2; i < len(f.Naxisn); i++ {
		c *= int(f.Naxisn[i])
	}
	return c
}

// Calculates basic statistics over all channels
func (f *Image) UpdateStats() {
	if len(f.Data) > 0 {
		f.Stats = stats.NewStatsFloat32(f.Data)
	}
}

func (f *Image) plane(c int) ([]float32, error) {
	if len(f.Naxisn) == 0 || c < 0 || c >= f.Channels() {
		return nil, fmt.Errorf("%d: channel %d out of range for %s image", f.ID, c, f.DimensionsToString())
	}
	size := f.Width() * f.Height()
	if len(f.Data) < (c+1)*size {
		return nil, fmt.Errorf("%d: image data has %d values, want %d", f.ID, len(f.Data), f.Channels()*size)
	}
	return f.Data[c*size : (c+1)*size], nil
}

// Returns a copy of the given channel as a plane for denoising
func (f *Image) Channel(c int) (*vsnr.Image, error) {
	data, err := f.plane(c)
	if err != nil {
		return nil, err
	}
	p := vsnr.NewImage(f.Height(), f.Width())
	for i, v := range data {
		p.Pix[i] = float64(v)
	}
	return p, nil
}

// Replaces the given channel with the values of the plane
func (f *Image) SetChannel(c int, p *vsnr.Image) error {
	data, err := f.plane(c)
	if err != nil {
		return err
	}
	if p.Rows != f.Height() || p.Cols != f.Width() {
		return fmt.Errorf("%d: plane %s does not match image %s", f.ID, p.DimensionsToString(), f.DimensionsToString())
	}
	for i, v := range p.Pix {
		data[i] = float32(v)
	}
	return nil
}
