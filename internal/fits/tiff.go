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
	"image"
	"image/color"
	"io"
	"math"

	"golang.org/x/image/tiff"
)

// Maps a value to [0,1] using black point min, scale 1/(max-min) and inverse gamma.
// NaNs map to zero, else JPG and TIFF output breaks
func toUnit(v, min, scale float32, gammaInv float64) float64 {
	x := float64((v - min) * scale)
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	if gammaInv != 1 {
		x = math.Pow(x, gammaInv)
	}
	return x
}

// Converts the image into a Go image of the given bit depth, using the given min, max and gamma.
// Single-channel images become grayscale, three-channel images RGB
func (f *Image) toGoImage(min, max, gamma float32, depth16 bool) (image.Image, error) {
	width, height, channels := f.Width(), f.Height(), f.Channels()
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("%d: cannot export image with %d channels", f.ID, channels)
	}
	size := width * height
	scale := 1 / (max - min)
	gammaInv := float64(1 / gamma)
	rect := image.Rect(0, 0, width, height)

	var img image.Image
	switch {
	case channels == 1 && depth16:
		g := image.NewGray16(rect)
		for i, v := range f.Data[:size] {
			g.SetGray16(i%width, i/width, color.Gray16{Y: uint16(toUnit(v, min, scale, gammaInv) * 65535)})
		}
		img = g
	case channels == 1:
		g := image.NewGray(rect)
		for i, v := range f.Data[:size] {
			g.SetGray(i%width, i/width, color.Gray{Y: uint8(toUnit(v, min, scale, gammaInv) * 255)})
		}
		img = g
	case depth16:
		c := image.NewRGBA64(rect)
		for i := 0; i < size; i++ {
			r := uint16(toUnit(f.Data[i], min, scale, gammaInv) * 65535)
			g := uint16(toUnit(f.Data[i+size], min, scale, gammaInv) * 65535)
			b := uint16(toUnit(f.Data[i+2*size], min, scale, gammaInv) * 65535)
			c.SetRGBA64(i%width, i/width, color.RGBA64{R: r, G: g, B: b, A: 65535})
		}
		img = c
	default:
		c := image.NewRGBA(rect)
		for i := 0; i < size; i++ {
			r := uint8(toUnit(f.Data[i], min, scale, gammaInv) * 255)
			g := uint8(toUnit(f.Data[i+size], min, scale, gammaInv) * 255)
			b := uint8(toUnit(f.Data[i+2*size], min, scale, gammaInv) * 255)
			c.SetRGBA(i%width, i/width, color.RGBA{R: r, G: g, B: b, A: 255})
		}
		img = c
	}
	return img, nil
}

// Write a FITS image to 16-bit TIFF, using the given min, max and gamma.
func (f *Image) WriteTIFF16ToFile(fileName string, min, max, gamma float32) error {
	return writeToFile(fileName, func(w io.Writer) error { return f.WriteTIFF16(w, min, max, gamma) })
}

// Write a FITS image to 16-bit TIFF, using the given min, max and gamma.
func (f *Image) WriteTIFF16(writer io.Writer, min, max, gamma float32) error {
	img, err := f.toGoImage(min, max, gamma, true)
	if err != nil {
		return err
	}
	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Read a color or grayscale TIFF image into a FITS image. Values are in [0,65535]
func (f *Image) ReadTIFF(r io.Reader) error {
	t, err := tiff.Decode(r)
	if err != nil {
		return fmt.Errorf("%d: %w", f.ID, err)
	}

	width, height := t.Bounds().Dx(), t.Bounds().Dy()
	bitpix, channels := colorModelToBitpixAndChannels(t.ColorModel())
	if channels == 0 {
		return fmt.Errorf("%d: unsupported TIFF color model", f.ID)
	}

	f.Bitpix = bitpix
	f.Naxisn = []int32{int32(width), int32(height)}
	if channels > 1 {
		f.Naxisn = append(f.Naxisn, channels)
	}
	f.Pixels = int32(width) * int32(height) * channels
	f.Bzero, f.Bscale = 0, 1
	f.Data = make([]float32, f.Pixels)

	size := width * height
	min := t.Bounds().Min
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := t.At(min.X+x, min.Y+y)
			i := y*width + x
			if channels == 1 {
				f.Data[i] = float32(color.Gray16Model.Convert(c).(color.Gray16).Y)
				continue
			}
			r, g, b, _ := c.RGBA()
			f.Data[i], f.Data[i+size], f.Data[i+2*size] = float32(r), float32(g), float32(b)
		}
	}
	f.UpdateStats()
	return nil
}

func colorModelToBitpixAndChannels(m color.Model) (bitpix, channels int32) {
	switch m {
	case color.RGBAModel, color.NRGBAModel:
		return 8, 3
	case color.RGBA64Model, color.NRGBA64Model:
		return 16, 3
	case color.AlphaModel, color.GrayModel:
		return 8, 1
	case color.Alpha16Model, color.Gray16Model:
		return 16, 1
	default:
		return 0, 0
	}
}
