// Package execctx carries the explicit execution settings handed to every
// stage constructor in place of process-wide device or batch globals.
package execctx

import (
	"fmt"

	"github.com/himanishpuri/NeuroMotion/pkg/config"
)

type Precision string

const (
	Float64 Precision = "float64"
	Float32 Precision = "float32"
)

type Context struct {
	Device      string
	BatchSize   int
	MaxParallel int
	Precision   Precision
}

// Default is a CPU context with modest batching and four workers.
func Default() Context {
	return Context{Device: "cpu", BatchSize: 64, MaxParallel: 4, Precision: Float64}
}

// FromConfig builds a Context from the exec section, filling zero values
// from Default.
func FromConfig(c config.Exec) (Context, error) {
	ec := Default()
	if c.Device != "" {
		ec.Device = c.Device
	}
	if c.BatchSize > 0 {
		ec.BatchSize = c.BatchSize
	}
	if c.MaxParallel > 0 {
		ec.MaxParallel = c.MaxParallel
	}
	switch Precision(c.Precision) {
	case "":
	case Float64, Float32:
		ec.Precision = Precision(c.Precision)
	default:
		return ec, fmt.Errorf("unsupported precision %q", c.Precision)
	}
	return ec, nil
}

// Round applies the configured numeric precision to v in place.
// Float64 is a no-op; Float32 truncates every value through float32.
func (c Context) Round(v []float64) {
	if c.Precision != Float32 {
		return
	}
	for i, x := range v {
		v[i] = float64(float32(x))
	}
}

// BatchOr returns requested when positive, else the context batch size.
func (c Context) BatchOr(requested int) int {
	if requested > 0 {
		return requested
	}
	return c.BatchSize
}

func (c Context) String() string {
	return fmt.Sprintf("device=%s batch=%d parallel=%d precision=%s",
		c.Device, c.BatchSize, c.MaxParallel, c.Precision)
}
