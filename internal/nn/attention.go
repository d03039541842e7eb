package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// MultiHeadAttention is scaled dot-product attention over NHeads heads with
// packed input projections: in_proj_weight is 3D×D stacked as [Wq; Wk; Wv].
type MultiHeadAttention struct {
	Dim, NHeads int
	InWeight    *mat.Dense // 3D×D
	InBias      []float64  // 3D
	Out         *Linear
}

func NewMultiHeadAttention(dim, nHeads int, rng *rand.Rand) (*MultiHeadAttention, error) {
	if nHeads < 1 || dim%nHeads != 0 {
		return nil, fmt.Errorf("embed dim %d not divisible by %d heads", dim, nHeads)
	}
	m := &MultiHeadAttention{
		Dim:      dim,
		NHeads:   nHeads,
		InWeight: mat.NewDense(3*dim, dim, nil),
		InBias:   make([]float64, 3*dim),
		Out:      NewLinear(dim, dim, rng),
	}
	uniform(rng, m.InWeight.RawMatrix().Data, xavierBound(dim, 3*dim))
	for i := range m.Out.Bias {
		m.Out.Bias[i] = 0
	}
	return m, nil
}

func (m *MultiHeadAttention) project(x mat.Matrix, part int) *mat.Dense {
	d := m.Dim
	w := m.InWeight.Slice(part*d, (part+1)*d, 0, d)
	var out mat.Dense
	out.Mul(x, w.T())
	addRowVec(&out, m.InBias[part*d:(part+1)*d])
	return &out
}

// Forward attends queries q (T×D) over keys k and values v (S×D). It returns
// the T×D output and the T×S attention weights averaged over heads.
func (m *MultiHeadAttention) Forward(q, k, v *mat.Dense) (*mat.Dense, *mat.Dense) {
	tq, _ := q.Dims()
	sk, _ := k.Dims()
	dh := m.Dim / m.NHeads
	scale := 1 / math.Sqrt(float64(dh))

	Q := m.project(q, 0)
	K := m.project(k, 1)
	V := m.project(v, 2)

	concat := mat.NewDense(tq, m.Dim, nil)
	avg := mat.NewDense(tq, sk, nil)
	for h := 0; h < m.NHeads; h++ {
		qh := Q.Slice(0, tq, h*dh, (h+1)*dh)
		kh := K.Slice(0, sk, h*dh, (h+1)*dh)
		vh := V.Slice(0, sk, h*dh, (h+1)*dh)

		var scores mat.Dense
		scores.Mul(qh, kh.T())
		scores.Scale(scale, &scores)
		SoftmaxRows(&scores)

		var oh mat.Dense
		oh.Mul(&scores, vh)
		concat.Slice(0, tq, h*dh, (h+1)*dh).(*mat.Dense).Copy(&oh)
		avg.Add(avg, &scores)
	}
	avg.Scale(1/float64(m.NHeads), avg)

	return m.Out.Forward(concat), avg
}

func (m *MultiHeadAttention) Params(prefix string) Params {
	var ps Params
	ps = ps.add(prefix+"in_proj_weight", m.InWeight.RawMatrix().Data, 3*m.Dim, m.Dim)
	ps = ps.add(prefix+"in_proj_bias", m.InBias, 3*m.Dim)
	return append(ps, m.Out.Params(prefix+"out_proj.")...)
}
