// Package nn holds the small set of inference-time layers the fusion and
// decoder models are built from. Parameter names and layouts follow the
// usual PyTorch conventions so state dicts line up across tools.
package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
)

// Tensor is a named parameter's serialized form.
type Tensor struct {
	Shape []int     `msgpack:"shape" json:"shape"`
	Data  []float64 `msgpack:"data" json:"data"`
}

// StateDict maps parameter names to values.
type StateDict map[string]Tensor

// Keys returns the sorted parameter names.
func (sd StateDict) Keys() []string {
	keys := make([]string, 0, len(sd))
	for k := range sd {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithPrefix returns the subset of entries whose name starts with prefix.
func (sd StateDict) WithPrefix(prefix string) StateDict {
	out := StateDict{}
	for k, v := range sd {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

// Param aliases the live storage of one parameter.
type Param struct {
	Name  string
	Shape []int
	Data  []float64
}

// Params is an ordered parameter list.
type Params []Param

func (ps Params) add(name string, data []float64, shape ...int) Params {
	return append(ps, Param{Name: name, Shape: shape, Data: data})
}

// State copies every parameter into a fresh StateDict.
func (ps Params) State() StateDict {
	sd := make(StateDict, len(ps))
	for _, p := range ps {
		sd[p.Name] = Tensor{Shape: append([]int(nil), p.Shape...), Data: append([]float64(nil), p.Data...)}
	}
	return sd
}

// LoadReport lists how a StateDict lined up with a model.
type LoadReport struct {
	Matched    []string
	Missing    []string // model parameters absent from the source
	Unexpected []string // source entries the model has no slot for
	Mismatched []string // present on both sides with different shapes
}

// Complete reports whether every model parameter was restored.
func (r LoadReport) Complete() bool {
	return len(r.Missing) == 0 && len(r.Mismatched) == 0
}

func (r LoadReport) String() string {
	return fmt.Sprintf("matched=%d missing=%v unexpected=%v mismatched=%v",
		len(r.Matched), r.Missing, r.Unexpected, r.Mismatched)
}

// Load copies matching entries of sd into the live parameters and reports
// every name that did not line up. Nothing is copied for mismatched shapes.
func (ps Params) Load(sd StateDict) LoadReport {
	var rep LoadReport
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		seen[p.Name] = true
		t, ok := sd[p.Name]
		switch {
		case !ok:
			rep.Missing = append(rep.Missing, p.Name)
		case !sameShape(t.Shape, p.Shape) || len(t.Data) != len(p.Data):
			rep.Mismatched = append(rep.Mismatched, p.Name)
		default:
			copy(p.Data, t.Data)
			rep.Matched = append(rep.Matched, p.Name)
		}
	}
	for _, k := range sd.Keys() {
		if !seen[k] {
			rep.Unexpected = append(rep.Unexpected, k)
		}
	}
	sort.Strings(rep.Missing)
	sort.Strings(rep.Mismatched)
	return rep
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// uniform fills dst from U(-bound, bound).
func uniform(rng *rand.Rand, dst []float64, bound float64) {
	for i := range dst {
		dst[i] = (2*rng.Float64() - 1) * bound
	}
}

// NewRand returns a deterministic generator for parameter initialization.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func xavierBound(fanIn, fanOut int) float64 {
	return math.Sqrt(6 / float64(fanIn+fanOut))
}
