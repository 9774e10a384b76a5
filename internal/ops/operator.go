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


package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pbnjay/memory"
	"golang.org/x/sync/errgroup"

	"github.com/mlnoga/vsnr/internal/fits"
	"github.com/mlnoga/vsnr/internal/grid"
)

// An execution context for operators
type Context struct {
	Log        io.Writer
	MemoryMB   int          // memory.TotalMemory()/1024/1024
	MaxThreads int          `json:"maxThreads"` // Images materialized concurrently
	Backend    grid.Backend // Execution backend for denoising
	Sandboxed  bool         // Restricts file access to relative paths below the working directory
}

// Creates a context on the CPU backend. Images are materialized one at a time,
// as each denoising run already uses all cores
func NewContext(log io.Writer) *Context {
	return &Context{
		Log:        log,
		MemoryMB:   int(memory.TotalMemory() / 1024 / 1024),
		MaxThreads: 1,
		Backend:    grid.CPU(),
	}
}

// A promise for a FITS image. Returns a materialized image, or an error
type Promise func() (f *fits.Image, err error)

// Materializes all promises with given concurrency limit. Keeps going after errors
// and returns all successfully materialized images together with the joined errors
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*fits.Image, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	outs = make([]*fits.Image, len(ins))
	errs := make([]error, len(ins))
	var g errgroup.Group
	g.SetLimit(maxThreads)
	for i, in := range ins {
		i, in := i, in
		g.Go(func() error {
			f, err := in() // materialize the promise
			if err != nil {
				errs[i] = err
				return nil
			}
			if !forget {
				outs[i] = f
			}
			return nil
		})
	}
	g.Wait()
	return RemoveNils(outs), errors.Join(errs...)
}

// Remove nils from an array of fits.Images, editing the underlying array in place
func RemoveNils(images []*fits.Image) []*fits.Image {
	o := 0
	for _, img := range images {
		if img != nil {
			images[o] = img
			o++
		}
	}
	for i := o; i < len(images); i++ {
		images[i] = nil
	}
	return images[:o]
}

// An general image processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	t := f().GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// Unmarshals a single polymorphic operator from JSON, using the registered factories
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	factory := GetOperatorFactory(base.Type)
	if factory == nil {
		return nil, fmt.Errorf("Unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw))
	}
	op := factory()
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, err
	}
	return op, nil
}

// A unary image processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *fits.Image, c *Context) (fOut *fits.Image, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *fits.Image, c *Context) (fOut *fits.Image, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator with %d inputs", op.Type, len(ins))
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *fits.Image, err error) {
		if f, err = in(); err != nil {
			return nil, err
		}
		if !op.Active {
			return f, nil
		}
		return op.Apply(f, c)
	}
}

// Load a single image from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load image from a file. Takes no inputs
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if c.Sandboxed && !IsPathAllowed(op.FileName) {
		return nil, errors.New("Filename outside current directory tree, aborting")
	}
	out := func() (f *fits.Image, err error) {
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false
	}
	return !strings.Contains(p, "..")
}

func (op *OpLoad) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	f, err = fits.NewImageFromFile(op.FileName, op.ID, c.Log)
	if err != nil {
		return nil, err
	}

	warning := ""
	if f.Stats != nil && f.Stats.Max-f.Stats.Min < 1e-8 {
		warning = "; WARNING low dynamic range"
	}
	fmt.Fprintf(c.Log, "%d: Loaded %s image with %v from %s%s\n",
		f.ID, f.DimensionsToString(), f.Stats, f.FileName, warning)
	return f, nil
}

// Load many images from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if c.Sandboxed && !IsPathAllowed(match) {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			promises, err := NewOpLoad(len(outs), match).MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			outs = append(outs, promises...)
		}
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}

// Saves given promise under a given filename, with pattern expansion for %d based on the image id.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string `json:"filePattern"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Output format for a file name suffix: fits, tiff, jpeg or empty if unknown
func FormatOf(fileName string) string {
	fnLower := strings.ToLower(fileName)
	for _, s := range []string{".gz", ".gzip"} {
		fnLower = strings.TrimSuffix(fnLower, s)
	}
	switch filepath.Ext(fnLower) {
	case ".fits", ".fit", ".fts":
		return "fits"
	case ".tif", ".tiff":
		return "tiff"
	case ".jpg", ".jpeg":
		return "jpeg"
	}
	return ""
}

// Expands a %d in the pattern with the image ID
func ExpandPattern(pattern string, id int) string {
	if strings.Contains(pattern, "%d") {
		return fmt.Sprintf(pattern, id)
	}
	return pattern
}

func (op *OpSave) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if op.FilePattern == "" {
		return f, nil
	}
	fileName := ExpandPattern(op.FilePattern, f.ID)
	if c.Sandboxed && !IsPathAllowed(fileName) {
		return nil, fmt.Errorf("%d: Filename %s outside current directory tree, aborting", f.ID, fileName)
	}
	if f.Stats == nil {
		f.UpdateStats()
	}

	switch FormatOf(fileName) {
	case "fits":
		fmt.Fprintf(c.Log, "%d: Writing %s pixel FITS to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteFile(fileName)
	case "tiff":
		fmt.Fprintf(c.Log, "%d: Writing %s pixel 16-bit TIFF to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteTIFF16ToFile(fileName, float32(f.Stats.Min), float32(f.Stats.Max), 1)
	case "jpeg":
		fmt.Fprintf(c.Log, "%d: Writing %s pixel JPEG to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteJPGToFile(fileName, float32(f.Stats.Min), float32(f.Stats.Max), 1, 95)
	default:
		err = errors.New("Unknown suffix")
	}
	if err != nil {
		return nil, fmt.Errorf("%d: Error writing to file %s: %w", f.ID, fileName, err)
	}
	return f, nil
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}
	op.Steps = op.Steps[:0]
	for _, raw := range op.StepsRaw {
		step, err := UnmarshalOperator(raw)
		if err != nil {
			return err
		}
		op.Steps = append(op.Steps, step)
	}
	op.StepsRaw = nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ",\"active\":%v,\"steps\":", op.Active)
	if op.Steps == nil {
		buf.WriteString("[]")
	} else if inner, err = json.Marshal(op.Steps); err != nil {
		return nil, err
	} else {
		buf.Write(inner)
	}
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	outs = ins
	for _, step := range op.Steps {
		if outs, err = step.MakePromises(outs, c); err != nil {
			return nil, err
		}
	}
	return outs, nil
}

// Applies a single operator to each input. Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation    Operator        `json:"-"`
	OperationRaw json.RawMessage `json:"operation"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault() }) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase:    OpBase{Type: "forEach", Active: operation != nil},
		Operation: operation,
	}
}

func (op *OpForEach) UnmarshalJSON(b []byte) error {
	type alias OpForEach
	if err := json.Unmarshal(b, (*alias)(op)); err != nil {
		return err
	}
	if len(op.OperationRaw) == 0 {
		return nil
	}
	operation, err := UnmarshalOperator(op.OperationRaw)
	if err != nil {
		return err
	}
	op.Operation, op.OperationRaw = operation, nil
	return nil
}

func (op *OpForEach) MarshalJSON() ([]byte, error) {
	inner, err := json.Marshal(op.Operation)
	if err != nil {
		return nil, err
	}
	type alias OpForEach
	a := alias(*op)
	a.OperationRaw = inner
	return json.Marshal(a)
}

// Applies the operation to every input individually
func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return ins, nil
	}
	if op.Operation == nil {
		return nil, fmt.Errorf("%s operator has no operation to apply", op.Type)
	}
	for _, in := range ins {
		out, err := op.Operation.MakePromises([]Promise{in}, c)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%s operator needs exactly one promise from embedded operation", op.Type)
		}
		outs = append(outs, out[0])
	}
	return outs, nil
}
