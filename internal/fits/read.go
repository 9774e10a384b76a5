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
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

// Reads an image from a FITS, gzipped FITS or TIFF file
func NewImageFromFile(fileName string, id int, logWriter io.Writer) (i *Image, err error) {
	i = NewImage()
	i.ID = id
	return i, i.ReadFile(fileName, true, logWriter)
}

// Read image data from the file with the given name. Decompresses gzip if .gz or gzip suffix is present,
// and decodes TIFF if a .tif or .tiff suffix is present. Reads metadata only (fast) if readData is false.
func (fits *Image) ReadFile(fileName string, readData bool, logWriter io.Writer) error {
	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	fits.FileName = fileName

	switch strings.ToLower(path.Ext(fileName)) {
	case ".tif", ".tiff":
		return fits.ReadTIFF(r)
	case ".gz", ".gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("%d: %w", fits.ID, err)
		}
		defer gz.Close()
		r = gz
	}
	return fits.Read(r, readData, logWriter)
}

func (fits *Image) PopHeaderInt32(key string) (res int32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

func (fits *Image) PopHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := fits.Header.Floats[key]; ok {
		delete(fits.Header.Floats, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

// Reads a FITS primary header and optionally its data
func (fits *Image) Read(f io.Reader, readData bool, logWriter io.Writer) (err error) {
	if err = fits.Header.read(f, fits.ID, logWriter); err != nil {
		return err
	}

	// check mandatory fields as per standard
	if !fits.Header.Bools["SIMPLE"] {
		return fmt.Errorf("%d: Not a valid FITS file; SIMPLE=T missing in header", fits.ID)
	}
	delete(fits.Header.Bools, "SIMPLE")

	if fits.Bitpix, err = fits.PopHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = fits.PopHeaderInt32("NAXIS"); err != nil {
		return err
	}
	if naxis < 1 {
		return fmt.Errorf("%d: FITS primary header has no data axes", fits.ID)
	}
	fits.Naxisn = make([]int32, naxis)
	fits.Pixels = 1
	for i := range fits.Naxisn {
		if fits.Naxisn[i], err = fits.PopHeaderInt32("NAXIS" + strconv.Itoa(i+1)); err != nil {
			return err
		}
		fits.Pixels *= fits.Naxisn[i]
	}

	if fits.Bzero, err = fits.PopHeaderInt32OrFloat("BZERO"); err != nil {
		fits.Bzero = 0
	}
	if fits.Bscale, err = fits.PopHeaderInt32OrFloat("BSCALE"); err != nil {
		fits.Bscale = 1
	}
	if fits.Exposure, err = fits.PopHeaderInt32OrFloat("EXPOSURE"); err != nil {
		if fits.Exposure, err = fits.PopHeaderInt32OrFloat("EXPTIME"); err != nil {
			fits.Exposure = 0
		}
	}

	if !readData {
		return nil
	}
	return fits.readData(f, logWriter)
}

// Decodes one big-endian value into a float
type decoder func(b []byte) float32

func decoderFor(bitpix int32) decoder {
	switch bitpix {
	case 8:
		return func(b []byte) float32 { return float32(b[0]) }
	case 16:
		return func(b []byte) float32 { return float32(int16(binary.BigEndian.Uint16(b))) }
	case 32:
		return func(b []byte) float32 { return float32(int32(binary.BigEndian.Uint32(b))) }
	case 64:
		return func(b []byte) float32 { return float32(int64(binary.BigEndian.Uint64(b))) }
	case -32:
		return func(b []byte) float32 { return math.Float32frombits(binary.BigEndian.Uint32(b)) }
	case -64:
		return func(b []byte) float32 { return float32(math.Float64frombits(binary.BigEndian.Uint64(b))) }
	}
	return nil
}

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Read image data, convert to float32 data type, apply Bzero and Bscale and reset them afterwards
func (fits *Image) readData(r io.Reader, logWriter io.Writer) error {
	decode := decoderFor(fits.Bitpix)
	if decode == nil {
		return fmt.Errorf("%d: Unknown BITPIX value %d", fits.ID, fits.Bitpix)
	}
	if fits.Bitpix == 32 || fits.Bitpix == 64 || fits.Bitpix == -64 {
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting BITPIX %d to float32 values\n", fits.ID, fits.Bitpix)
	}
	bytesPerValue := int(fits.Bitpix) / 8
	if bytesPerValue < 0 {
		bytesPerValue = -bytesPerValue
	}

	fits.Data = make([]float32, int(fits.Pixels))
	buf := make([]byte, bufLen-bufLen%bytesPerValue)
	for dataIndex := 0; dataIndex < len(fits.Data); {
		n := (len(fits.Data) - dataIndex) * bytesPerValue
		if n > len(buf) {
			n = len(buf)
		}
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return fmt.Errorf("%d: reading pixel %d: %w", fits.ID, dataIndex, err)
		}
		for i := 0; i < n; i += bytesPerValue {
			fits.Data[dataIndex] = decode(buf[i:i+bytesPerValue])*fits.Bscale + fits.Bzero
			dataIndex++
		}
	}
	fits.Bzero, fits.Bscale = 0, 1 // reflect that data values incorporate these now
	fits.UpdateStats()
	return nil
}

func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)
	subNames := reParser.SubexpNames()

	for h.Length = 0; !h.End; {
		// read next header unit
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("%d: reading FITS header: %w", id, err)
		}
		h.Length += int32(fitsBlockSize)

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "%d: Warning: Cannot parse '%s', ignoring\n", id, string(line))
				continue
			}
			h.readLine(subNames, subValues)
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] == nil || len(subNames[i]) != 1 {
			continue
		}
		v := string(subValues[i])
		switch subNames[i][0] {
		case 'E':
			h.End = true
		case 'H':
			h.History = append(h.History, strings.TrimSpace(v))
		case 'C':
			h.Comments = append(h.Comments, strings.TrimSpace(v))
		case 'k':
			key = v
		case 'b':
			h.Bools[key] = v == "T"
		case 'i':
			if val, err := strconv.ParseInt(v, 10, 32); err == nil {
				h.Ints[key] = int32(val)
			}
		case 'f':
			if val, err := strconv.ParseFloat(strings.Replace(v, "D", "E", 1), 32); err == nil {
				h.Floats[key] = float32(val)
			}
		case 's':
			h.Strings[key] = strings.TrimRight(strings.ReplaceAll(v, "''", "'"), " ")
		case 'd':
			h.Dates[key] = v
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	rest := ".*"

	histLine := "HISTORY" + whiteOpt + "(?P<H>" + rest + ")"
	commLine := "COMMENT" + whiteOpt + "(?P<C>" + rest + ")"
	endLine := "(?P<E>END)" + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?)"
	stri := "'(?P<s>(?:[^']|'')*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)"
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"
	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + "=" + whiteOpt + val + whiteOpt + commOpt

	return regexp.MustCompile("^(?:" + white + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$")
}
