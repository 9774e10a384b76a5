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
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Writes an in-memory FITS image to a file with given filename.
// Creates/overwrites the file if necessary
func (fits *Image) WriteFile(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := fits.Write(w); err != nil {
		return err
	}
	return w.Flush()
}

// Writes an in-memory FITS image as 32-bit floating point to an io.Writer
func (fits *Image) Write(w io.Writer) error {
	sb := strings.Builder{}
	writeCard(&sb, "SIMPLE", "T", "FITS standard 4.0")
	writeCard(&sb, "BITPIX", "-32", "32-bit floating point")
	writeCard(&sb, "NAXIS", fmt.Sprint(len(fits.Naxisn)), "Number of axes")
	for i, n := range fits.Naxisn {
		writeCard(&sb, fmt.Sprintf("NAXIS%d", i+1), fmt.Sprint(n), "Axis size")
	}
	writeCard(&sb, "BZERO", "0", "Zero offset")
	writeCard(&sb, "BSCALE", "1", "Value scaler")
	if fits.Exposure != 0 {
		writeCard(&sb, "EXPTIME", formatFloat(fits.Exposure), "Exposure time in seconds")
	}
	for _, k := range sortedKeys(fits.Header.Bools) {
		v := "F"
		if fits.Header.Bools[k] {
			v = "T"
		}
		writeCard(&sb, k, v, "")
	}
	for _, k := range sortedKeys(fits.Header.Ints) {
		writeCard(&sb, k, fmt.Sprint(fits.Header.Ints[k]), "")
	}
	for _, k := range sortedKeys(fits.Header.Floats) {
		writeCard(&sb, k, formatFloat(fits.Header.Floats[k]), "")
	}
	for _, k := range sortedKeys(fits.Header.Strings) {
		writeCard(&sb, k, quote(fits.Header.Strings[k]), "")
	}
	for _, h := range fits.Header.History {
		fmt.Fprintf(&sb, "HISTORY %-72.72s", h)
	}
	fmt.Fprintf(&sb, "%-80s", "END")
	pad(&sb, ' ')

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}
	return writeFloat32Array(w, fits.Data)
}

// Writes a FITS header card with a right-aligned value
func writeCard(w io.Writer, key, value, comment string) {
	if len(key) > 8 {
		key = key[:8]
	}
	card := fmt.Sprintf("%-8s= %20s", key, value)
	if comment != "" {
		card += " / " + comment
	}
	fmt.Fprintf(w, "%-80.80s", card)
}

// Quotes a FITS string value, escaping single quotes
func quote(s string) string {
	s = strings.ReplaceAll(s, "'", "''")
	if len(s) > 68 {
		s = s[:68]
	}
	return "'" + s + "'"
}

// Formats a float so it always parses as a FITS float
func formatFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'G', -1, 32)
	if !strings.Contains(s, ".") {
		if i := strings.IndexByte(s, 'E'); i >= 0 {
			s = s[:i] + "." + s[i:]
		} else {
			s += "."
		}
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pads the builder to a multiple of the FITS block size
func pad(sb *strings.Builder, c byte) {
	if rem := sb.Len() % fitsBlockSize; rem > 0 {
		sb.WriteString(strings.Repeat(string(c), fitsBlockSize-rem))
	}
}

// Writes FITS binary body data in network byte order, padded with zeros to the block size.
// Replaces NaNs with zeros for compatibility with other software
func writeFloat32Array(w io.Writer, data []float32) error {
	buf := make([]byte, bufLen)
	for block := 0; block < len(data); block += bufLen >> 2 {
		size := len(data) - block
		if size > bufLen>>2 {
			size = bufLen >> 2
		}
		for offset, d := range data[block : block+size] {
			if math.IsNaN(float64(d)) {
				d = 0
			}
			binary.BigEndian.PutUint32(buf[offset<<2:], math.Float32bits(d))
		}
		if _, err := w.Write(buf[:size<<2]); err != nil {
			return err
		}
	}
	if rem := (len(data) * 4) % fitsBlockSize; rem > 0 {
		_, err := w.Write(make([]byte, fitsBlockSize-rem))
		return err
	}
	return nil
}
