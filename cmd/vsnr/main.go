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

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/pbnjay/memory"
	"github.com/valyala/fastrand"

	vl "github.com/mlnoga/vsnr/internal"
	"github.com/mlnoga/vsnr/internal/fits"
	"github.com/mlnoga/vsnr/internal/grid"
	"github.com/mlnoga/vsnr/internal/ops"
	"github.com/mlnoga/vsnr/internal/ops/pre"
	"github.com/mlnoga/vsnr/internal/rest"
	"github.com/mlnoga/vsnr/internal/synth"
	"github.com/mlnoga/vsnr/internal/vsnr"
)

const version = "0.1.0"

var totalMiBs = memory.TotalMemory() / 1024 / 1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "out%d.fits", "save output to `file`, with %d replaced by the image ID. Suffix .fits, .tif or .jpg selects the format")
var jpg = flag.String("jpg", "", "also save 8bit preview of output as JPEG to `file`, with %d replaced by the image ID")
var log = flag.String("log", "", "save log output to `file`")
var noise = flag.String("noise", "", "save removed noise to `file`, with %d replaced by the image ID. Suffix .jpg colorizes")
var clean = flag.String("clean", "", "synth: save the image without stripes to `file`")
var job = flag.String("job", "", "run: read the operator graph from JSON `file`")

var filters = flag.String("filters", `[{"name":"Gabor","noise_level":1,"sigma":[1,40],"theta":0}]`, "filter bank as JSON list")
var psis = flag.String("psis", "", "filter bank in flat encoding, comma separated. Overrides -filters")
var nfilters = flag.Int("nfilters", 0, "number of filters in the flat encoding given with -psis")
var iter = flag.Int("iter", vsnr.DefaultIterations, "number of solver iterations")
var beta = flag.Float64("beta", vsnr.DefaultBeta, "solver penalty parameter beta")
var width = flag.String("width", "auto", "number of parallel blocks, or auto for the backend maximum")
var threads = flag.Int("threads", 1, "number of images processed concurrently")

var seed = flag.Uint("seed", 1, "synth: random seed")
var rows = flag.Int("rows", synth.DefaultOptions().Rows, "synth: image height")
var cols = flag.Int("cols", synth.DefaultOptions().Cols, "synth: image width")
var stars = flag.Int("stars", synth.DefaultOptions().Stars, "synth: number of stars")
var vertical = flag.Float64("vertical", synth.DefaultOptions().Vertical, "synth: amplitude of vertical stripes")
var horizontal = flag.Float64("horizontal", synth.DefaultOptions().Horizontal, "synth: amplitude of horizontal stripes")
var white = flag.Float64("white", synth.DefaultOptions().Noise, "synth: amplitude of white noise")

var addr = flag.String("addr", ":8080", "serve: listen on `host:port`")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `dir` before serving (requires root)")
var setuid = flag.Int("setuid", -1, "serve: change user ID before serving, -1 keeps the current user")

func main() {
	logWriter := vl.Log
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `vsnr Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (destripe|run|synth|backend|serve|legal|version) (img0.fits ... imgn.fits)

Commands:
  destripe Remove stripe noise from input images
  run      Run the operator graph given with -job on input images
  synth    Generate a synthetic striped test image
  backend  Show execution backend capabilities
  serve    Serve the REST API and web UI
  legal    Show license and attribution information
  version  Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *log != "" {
		if err := vl.LogAlsoToFile(*log); err != nil {
			vl.LogFatalf("Unable to open logfile '%s': %s\n", *log, err.Error())
		}
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			vl.LogFatalf("Could not create CPU profile: %s\n", err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			vl.LogFatalf("Could not start CPU profile: %s\n", err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	c := ops.NewContext(logWriter)
	c.MaxThreads = *threads

	var err error
	switch args[0] {
	case "destripe":
		err = cmdDestripe(args[1:], c)

	case "run":
		err = cmdRun(args[1:], c)

	case "synth":
		err = cmdSynth(c)

	case "backend":
		fmt.Fprintf(logWriter, "Backend %v, physical memory %d MiB\n", grid.CPUInfo(), totalMiBs)

	case "serve":
		if err = rest.MakeSandbox(*chroot, *setuid, logWriter); err == nil {
			fmt.Fprintf(logWriter, "Serving on %s\n", *addr)
			err = rest.Serve(*addr, c)
		}

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			vl.LogFatalf("Could not create memory profile: %s\n", err.Error())
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			vl.LogFatalf("Could not write allocation profile: %s\n", err.Error())
		}
	}

	if err != nil {
		pprof.StopCPUProfile()
		vl.LogFatalf("Error: %s\n", err.Error())
	}
	vl.LogSync()
}

// Filter bank from the -psis flat encoding if given, else from the -filters JSON
func parseBank(filtersJSON, psisList string, count int) (vsnr.Bank, error) {
	if psisList != "" {
		fields := strings.Split(psisList, ",")
		values := make([]float32, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
			if err != nil {
				return nil, fmt.Errorf("%w: psis value %d '%s'", vsnr.ErrInvalidFilterParameter, i, f)
			}
			values[i] = float32(v)
		}
		return vsnr.DecodeBank(values, count)
	}
	var b vsnr.Bank
	if err := json.Unmarshal([]byte(filtersJSON), &b); err != nil {
		return nil, fmt.Errorf("parsing filters: %w", err)
	}
	return b, b.Validate()
}

// Solver settings from the command line
func parseConfig() (vsnr.Config, error) {
	p, err := vsnr.ParseParallelism(*width)
	if err != nil {
		return vsnr.Config{}, err
	}
	cfg := vsnr.Config{Iterations: *iter, Beta: *beta, Parallelism: p}
	return cfg, cfg.Validate()
}

func cmdDestripe(files []string, c *ops.Context) error {
	bank, err := parseBank(*filters, *psis, *nfilters)
	if err != nil {
		return err
	}
	cfg, err := parseConfig()
	if err != nil {
		return err
	}
	op := ops.NewOpSequence(
		ops.NewOpLoadMany(files),
		pre.NewOpDestripe(bank, cfg, *noise),
		ops.NewOpSave(*out),
		ops.NewOpSave(*jpg),
	)
	if err := printJSON(c.Log, "Destriping with these settings:\n", "\n", op); err != nil {
		return err
	}
	return runOperator(op, c)
}

// Runs an operator graph from a JSON file. Input files, if given, are loaded first
func cmdRun(files []string, c *ops.Context) error {
	if *job == "" {
		return fmt.Errorf("run needs a job file given with -job")
	}
	raw, err := os.ReadFile(*job)
	if err != nil {
		return err
	}
	op, err := ops.UnmarshalOperator(raw)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		op = ops.NewOpSequence(ops.NewOpLoadMany(files), op)
	}
	if err := printJSON(c.Log, "Running job:\n", "\n", op); err != nil {
		return err
	}
	return runOperator(op, c)
}

func runOperator(op ops.Operator, c *ops.Context) error {
	promises, err := op.MakePromises(nil, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(promises, c.MaxThreads, true)
	return err
}

func cmdSynth(c *ops.Context) error {
	o := synth.DefaultOptions()
	o.Rows, o.Cols, o.Stars = *rows, *cols, *stars
	o.Vertical, o.Horizontal, o.Noise = *vertical, *horizontal, *white
	rng := fastrand.RNG{}
	rng.Seed(uint32(*seed))
	cleanPlane, noisyPlane, err := synth.Stripes(o, &rng)
	if err != nil {
		return err
	}
	if err := printJSON(c.Log, "Synthesizing image with these settings:\n", "\n", o); err != nil {
		return err
	}
	noisy := fits.NewImageFromPlane(noisyPlane)
	if _, err := ops.NewOpSave(*out).Apply(noisy, c); err != nil {
		return err
	}
	if _, err := ops.NewOpSave(*jpg).Apply(noisy, c); err != nil {
		return err
	}
	if *clean != "" {
		if _, err := ops.NewOpSave(*clean).Apply(fits.NewImageFromPlane(cleanPlane), c); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, prefix, suffix string, v interface{}) error {
	m, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s%s%s", prefix, string(m), suffix)
	return nil
}
