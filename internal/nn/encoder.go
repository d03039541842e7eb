package nn

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// EncoderLayer is a post-norm transformer block:
// x = norm1(x + attn(x)); x = norm2(x + ff(x)) with a ReLU feed-forward.
type EncoderLayer struct {
	Attn    *MultiHeadAttention
	Linear1 *Linear
	Linear2 *Linear
	Norm1   *LayerNorm
	Norm2   *LayerNorm
}

func NewEncoderLayer(dim, nHeads, ffDim int, rng *rand.Rand) (*EncoderLayer, error) {
	attn, err := NewMultiHeadAttention(dim, nHeads, rng)
	if err != nil {
		return nil, err
	}
	return &EncoderLayer{
		Attn:    attn,
		Linear1: NewLinear(dim, ffDim, rng),
		Linear2: NewLinear(ffDim, dim, rng),
		Norm1:   NewLayerNorm(dim),
		Norm2:   NewLayerNorm(dim),
	}, nil
}

func (l *EncoderLayer) Forward(x *mat.Dense) *mat.Dense {
	a, _ := l.Attn.Forward(x, x, x)
	a.Add(a, x)
	x = l.Norm1.Forward(a)

	h := l.Linear1.Forward(x)
	ReLU(h)
	f := l.Linear2.Forward(h)
	f.Add(f, x)
	return l.Norm2.Forward(f)
}

func (l *EncoderLayer) Params(prefix string) Params {
	var ps Params
	ps = append(ps, l.Attn.Params(prefix+"self_attn.")...)
	ps = append(ps, l.Linear1.Params(prefix+"linear1.")...)
	ps = append(ps, l.Linear2.Params(prefix+"linear2.")...)
	ps = append(ps, l.Norm1.Params(prefix+"norm1.")...)
	return append(ps, l.Norm2.Params(prefix+"norm2.")...)
}

// Encoder stacks identical layers.
type Encoder struct {
	Layers []*EncoderLayer
}

func NewEncoder(dim, nHeads, ffDim, nLayers int, rng *rand.Rand) (*Encoder, error) {
	if nLayers < 1 {
		return nil, fmt.Errorf("encoder needs at least one layer, got %d", nLayers)
	}
	e := &Encoder{}
	for i := 0; i < nLayers; i++ {
		l, err := NewEncoderLayer(dim, nHeads, ffDim, rng)
		if err != nil {
			return nil, err
		}
		e.Layers = append(e.Layers, l)
	}
	return e, nil
}

func (e *Encoder) Forward(x *mat.Dense) *mat.Dense {
	for _, l := range e.Layers {
		x = l.Forward(x)
	}
	return x
}

func (e *Encoder) Params(prefix string) Params {
	var ps Params
	for i, l := range e.Layers {
		ps = append(ps, l.Params(fmt.Sprintf("%slayers.%d.", prefix, i))...)
	}
	return ps
}
