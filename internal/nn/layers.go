package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Linear computes x·Wᵀ + b with W stored Out×In.
type Linear struct {
	In, Out int
	Weight  *mat.Dense
	Bias    []float64
}

// NewLinear initializes W and b from U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	l := &Linear{In: in, Out: out, Weight: mat.NewDense(out, in, nil), Bias: make([]float64, out)}
	bound := 1 / math.Sqrt(float64(in))
	uniform(rng, l.Weight.RawMatrix().Data, bound)
	uniform(rng, l.Bias, bound)
	return l
}

// Forward maps T×In to T×Out.
func (l *Linear) Forward(x mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(x, l.Weight.T())
	addRowVec(&out, l.Bias)
	return &out
}

func (l *Linear) Params(prefix string) Params {
	var ps Params
	ps = ps.add(prefix+"weight", l.Weight.RawMatrix().Data, l.Out, l.In)
	return ps.add(prefix+"bias", l.Bias, l.Out)
}

// LayerNorm normalizes each row over its features.
type LayerNorm struct {
	Dim    int
	Eps    float64
	Weight []float64
	Bias   []float64
}

func NewLayerNorm(dim int) *LayerNorm {
	ln := &LayerNorm{Dim: dim, Eps: 1e-5, Weight: make([]float64, dim), Bias: make([]float64, dim)}
	for i := range ln.Weight {
		ln.Weight[i] = 1
	}
	return ln
}

func (ln *LayerNorm) Forward(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		var mean float64
		for _, v := range row {
			mean += v
		}
		mean /= float64(c)
		var variance float64
		for _, v := range row {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(c)
		inv := 1 / math.Sqrt(variance+ln.Eps)
		dst := out.RawRowView(i)
		for j, v := range row {
			dst[j] = (v-mean)*inv*ln.Weight[j] + ln.Bias[j]
		}
	}
	return out
}

func (ln *LayerNorm) Params(prefix string) Params {
	var ps Params
	ps = ps.add(prefix+"weight", ln.Weight, ln.Dim)
	return ps.add(prefix+"bias", ln.Bias, ln.Dim)
}

func addRowVec(m *mat.Dense, v []float64) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := range row {
			row[j] += v[j]
		}
	}
}

// ReLU applies max(0, x) in place.
func ReLU(m *mat.Dense) {
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j, v := range row {
			if v < 0 {
				row[j] = 0
			}
		}
	}
}

// SoftmaxRows applies a numerically stable softmax to each row in place.
func SoftmaxRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		hi := math.Inf(-1)
		for _, v := range row {
			hi = math.Max(hi, v)
		}
		var sum float64
		for j, v := range row {
			row[j] = math.Exp(v - hi)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
	}
}
