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

package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/vsnr/internal/grid"
	"github.com/mlnoga/vsnr/internal/ops"
	"github.com/mlnoga/vsnr/internal/ops/pre"
	"github.com/mlnoga/vsnr/internal/vsnr"
	"github.com/mlnoga/vsnr/web"
)

// Serves the REST API and the web UI on the given address until an error occurs
func Serve(addr string, c *ops.Context) error {
	return NewRouter(c).Run(addr)
}

// Sets up the routes. Requests share the backend and memory settings of the given context
func NewRouter(c *ops.Context) *gin.Engine {
	s := &server{ctx: c}
	r := gin.Default()
	r.GET("/", getIndex)
	r.StaticFS("/js", web.JavascriptFS())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/backend", s.getBackend)
			v1.POST("/denoise", s.postDenoise)
			v1.POST("/destripe", s.postDestripe)
		}
	}
	return r
}

type server struct {
	ctx *ops.Context
}

func (s *server) backend() grid.Backend {
	if s.ctx.Backend == nil {
		return grid.CPU()
	}
	return s.ctx.Backend
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func (s *server) getBackend(c *gin.Context) {
	b := s.backend()
	if b == grid.CPU() {
		c.JSON(http.StatusOK, grid.CPUInfo())
		return
	}
	c.JSON(http.StatusOK, grid.Info{
		Name:     "custom",
		MaxWidth: b.MaxWidth(),
		MemoryMB: int(b.MemoryBytes() >> 20),
	})
}

// Filters are given either as a list of filter objects, or in the flat encoding with a count
type postDenoiseArgs struct {
	Image    *vsnr.Image `json:"image"`
	Filters  vsnr.Bank   `json:"filters"`
	Psis     []float32   `json:"psis"`
	NFilters int         `json:"nfilters"`
	Config   vsnr.Config `json:"config"`
}

// Bank from either representation. Both at once are rejected
func (a *postDenoiseArgs) bank() (vsnr.Bank, error) {
	switch {
	case len(a.Filters) > 0 && len(a.Psis) > 0:
		return nil, fmt.Errorf("%w: give either filters or psis, not both", vsnr.ErrConfiguration)
	case len(a.Psis) > 0 || a.NFilters > 0:
		return vsnr.DecodeBank(a.Psis, a.NFilters)
	case len(a.Filters) > 0:
		return a.Filters, nil
	}
	return nil, fmt.Errorf("%w: no filters given", vsnr.ErrConfiguration)
}

// HTTP status for a denoising error
func statusOf(err error) int {
	switch {
	case errors.Is(err, vsnr.ErrInvalidFilterKind),
		errors.Is(err, vsnr.ErrInvalidFilterParameter),
		errors.Is(err, vsnr.ErrInvalidImageData),
		errors.Is(err, vsnr.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, vsnr.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *server) postDenoise(c *gin.Context) {
	args := postDenoiseArgs{Config: vsnr.DefaultConfig()}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bank, err := args.bank()
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	d := &vsnr.Denoiser{Backend: s.backend()}
	out, err := d.Denoise(args.Image, bank, args.Config)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"image":   out,
		"elapsed": time.Since(start).Seconds(),
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postDestripeArgs struct {
	FilePatterns []string        `json:"filePatterns"`
	Destripe     *pre.OpDestripe `json:"destripe"`
	Save         string          `json:"save"`
}

// Destripes files below the working directory, streaming the log as plain text
func (s *server) postDestripe(c *gin.Context) {
	logWriter := c.Writer
	var args postDestripeArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Destripe == nil {
		args.Destripe = pre.NewOpDestripeDefaults()
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	ctx := *s.ctx
	ctx.Log = logWriter
	ctx.Sandboxed = true
	ctx.MaxThreads = 1 // the response writer is not safe for concurrent use
	if ctx.Backend == nil {
		ctx.Backend = grid.CPU()
	}

	seq := ops.NewOpSequence(ops.NewOpLoadMany(args.FilePatterns), args.Destripe, ops.NewOpSave(args.Save))
	promises, err := seq.MakePromises(nil, &ctx)
	if err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		logWriter.Flush()
		return
	}
	outs, err := ops.MaterializeAll(promises, ctx.MaxThreads, false)
	if err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
	fmt.Fprintf(logWriter, "Destriped %d of %d images.\n", len(outs), len(promises))
	logWriter.Flush()
}
