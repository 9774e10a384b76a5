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
	"bufio"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Write a FITS image to JPG, using the given min, max and gamma.
func (f *Image) WriteJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	return writeToFile(fileName, func(w io.Writer) error { return f.WriteJPG(w, min, max, gamma, quality) })
}

// Write a FITS image to JPG, using the given min, max and gamma.
func (f *Image) WriteJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	img, err := f.toGoImage(min, max, gamma, false)
	if err != nil {
		return err
	}
	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

// Colors of the diverging noise map, for negative, zero and positive values
var (
	noiseNegative = colorful.Color{R: 0.13, G: 0.40, B: 0.67}
	noiseZero     = colorful.Color{R: 0.97, G: 0.97, B: 0.97}
	noisePositive = colorful.Color{R: 0.70, G: 0.09, B: 0.17}
)

// Write the first channel of a FITS image holding removed noise to a color JPG.
// Values in [-limit,limit] are blended in CIE L*a*b* from blue over white to red
func (f *Image) WriteNoiseJPGToFile(fileName string, limit float32, quality int) error {
	return writeToFile(fileName, func(w io.Writer) error { return f.WriteNoiseJPG(w, limit, quality) })
}

// Write the first channel of a FITS image holding removed noise to a color JPG.
// Values in [-limit,limit] are blended in CIE L*a*b* from blue over white to red
func (f *Image) WriteNoiseJPG(writer io.Writer, limit float32, quality int) error {
	width, height := f.Width(), f.Height()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, v := range f.Data[:width*height] {
		img.Set(i%width, i/width, noiseColor(v, limit))
	}
	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

func noiseColor(v, limit float32) colorful.Color {
	t := float64(v / limit)
	if t == 0 || math.IsNaN(t) {
		return noiseZero
	}
	t = math.Max(-1, math.Min(1, t))
	if t < 0 {
		return noiseZero.BlendLab(noiseNegative, -t).Clamped()
	}
	return noiseZero.BlendLab(noisePositive, t).Clamped()
}

func writeToFile(fileName string, write func(w io.Writer) error) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := write(writer); err != nil {
		return err
	}
	return writer.Flush()
}
