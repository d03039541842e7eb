// Package regress maps embedding sequences to motion sequences with a
// self-attention encoder stack and a linear head.
package regress

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/himanishpuri/NeuroMotion/internal/execctx"
	"github.com/himanishpuri/NeuroMotion/internal/nn"
	"github.com/himanishpuri/NeuroMotion/pkg/config"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

const (
	encoderPrefix = "encoder."
	headPrefix    = "fc."
)

// Arch fixes a decoder's shape. The encoder width equals InDim; there is no
// input projection.
type Arch struct {
	InDim   int `msgpack:"in_dim"`
	OutDim  int `msgpack:"out_dim"`
	NHeads  int `msgpack:"n_heads"`
	NLayers int `msgpack:"n_layers"`
	FFDim   int `msgpack:"ff_dim"`
}

func ArchFromConfig(m config.DecoderModel, outDim int) Arch {
	return Arch{InDim: m.DModel, OutDim: outDim, NHeads: m.NHeads, NLayers: m.NLayers, FFDim: m.FFDim}
}

func (a Arch) String() string {
	return fmt.Sprintf("%d→%d (%d layers, %d heads, ff %d)", a.InDim, a.OutDim, a.NLayers, a.NHeads, a.FFDim)
}

type Decoder struct {
	Arch    Arch
	Encoder *nn.Encoder
	Head    *nn.Linear

	seed uint64
	exec execctx.Context
}

func NewDecoder(arch Arch, seed uint64, ec execctx.Context) (*Decoder, error) {
	if arch.InDim < 1 || arch.OutDim < 1 {
		return nil, fmt.Errorf("invalid decoder dims %s", arch)
	}
	rng := nn.NewRand(seed)
	enc, err := nn.NewEncoder(arch.InDim, arch.NHeads, arch.FFDim, arch.NLayers, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to build encoder: %w", err)
	}
	return &Decoder{
		Arch:    arch,
		Encoder: enc,
		Head:    nn.NewLinear(arch.InDim, arch.OutDim, rng),
		seed:    seed,
		exec:    ec,
	}, nil
}

// InDim is the feature dimension Predict accepts.
func (d *Decoder) InDim() int { return d.Arch.InDim }

func (d *Decoder) Params() nn.Params {
	return append(d.Encoder.Params(encoderPrefix), d.Head.Params(headPrefix)...)
}

// Features runs the encoder stack only.
func (d *Decoder) Features(x *models.Sequence) *mat.Dense {
	return d.Encoder.Forward(x.Dense())
}

// Predict maps a T×InDim sequence to T×OutDim. Inputs of any other width
// are rejected; callers negotiate dimensions before calling.
func (d *Decoder) Predict(ctx context.Context, x *models.Sequence) (*models.Sequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if x.Dim() != d.Arch.InDim {
		return nil, &models.ShapeError{Op: "decoder input", Want: d.Arch.InDim, Got: x.Dim()}
	}
	if x.Len() == 0 {
		return models.NewSequence(0, d.Arch.OutDim), nil
	}
	out := models.FromDense(d.Head.Forward(d.Features(x)))
	d.exec.Round(out.Data)
	return out, nil
}

// LoadFull restores every parameter. Anything short of a complete match is
// an error and leaves the decoder unchanged.
func (d *Decoder) LoadFull(sd nn.StateDict) (nn.LoadReport, error) {
	backup := d.Params().State()
	rep := d.Params().Load(sd)
	if !rep.Complete() || len(rep.Unexpected) > 0 {
		d.Params().Load(backup)
		return rep, fmt.Errorf("full restore incomplete: %s", rep)
	}
	return rep, nil
}

// LoadEncoderOnly copies the encoder stack from sd and reinitializes the
// head. Source entries outside the encoder (its old head) appear in
// Unexpected. Missing or mismatched encoder entries fail the load and leave
// the decoder unchanged.
func (d *Decoder) LoadEncoderOnly(sd nn.StateDict) (nn.LoadReport, error) {
	encParams := d.Encoder.Params(encoderPrefix)
	backup := encParams.State()
	rep := encParams.Load(sd)
	if !rep.Complete() {
		encParams.Load(backup)
		return rep, fmt.Errorf("encoder transfer incomplete: %s", rep)
	}
	d.Head = nn.NewLinear(d.Arch.InDim, d.Arch.OutDim, nn.NewRand(d.seed+1))
	return rep, nil
}
