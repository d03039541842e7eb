package nn

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func randMatrix(r, c int, seed uint64) *mat.Dense {
	rng := NewRand(seed)
	m := mat.NewDense(r, c, nil)
	uniform(rng, m.RawMatrix().Data, 1)
	return m
}

func TestLinearForward(t *testing.T) {
	l := &Linear{In: 2, Out: 1, Weight: mat.NewDense(1, 2, []float64{2, -1}), Bias: []float64{0.5}}
	out := l.Forward(mat.NewDense(2, 2, []float64{1, 1, 3, 2}))
	if got := out.At(0, 0); got != 1.5 {
		t.Errorf("Expected 1.5, got %v", got)
	}
	if got := out.At(1, 0); got != 4.5 {
		t.Errorf("Expected 4.5, got %v", got)
	}
}

func TestLayerNormZeroMeanUnitVar(t *testing.T) {
	ln := NewLayerNorm(4)
	out := ln.Forward(mat.NewDense(1, 4, []float64{1, 2, 3, 4}))
	var mean, sq float64
	for _, v := range out.RawRowView(0) {
		mean += v
		sq += v * v
	}
	if math.Abs(mean) > 1e-9 {
		t.Errorf("Expected zero mean, got %v", mean/4)
	}
	if math.Abs(sq/4-1) > 1e-4 {
		t.Errorf("Expected unit variance, got %v", sq/4)
	}
}

func TestSoftmaxRows(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1000, 1000, 1000, 0, 0, math.Log(2)})
	SoftmaxRows(m)
	for j := 0; j < 3; j++ {
		if math.Abs(m.At(0, j)-1.0/3) > 1e-12 {
			t.Errorf("Expected uniform row, got %v", m.RawRowView(0))
		}
	}
	if math.Abs(m.At(1, 2)-0.5) > 1e-12 {
		t.Errorf("Expected 0.5, got %v", m.At(1, 2))
	}
}

func TestAttentionShapesAndWeights(t *testing.T) {
	attn, err := NewMultiHeadAttention(8, 2, NewRand(1))
	if err != nil {
		t.Fatalf("NewMultiHeadAttention failed: %v", err)
	}
	q := randMatrix(5, 8, 2)
	kv := randMatrix(3, 8, 3)
	out, w := attn.Forward(q, kv, kv)

	if r, c := out.Dims(); r != 5 || c != 8 {
		t.Errorf("Expected 5×8 output, got %d×%d", r, c)
	}
	if r, c := w.Dims(); r != 5 || c != 3 {
		t.Fatalf("Expected 5×3 weights, got %d×%d", r, c)
	}
	for i := 0; i < 5; i++ {
		var sum float64
		for _, v := range w.RawRowView(i) {
			if v < 0 {
				t.Errorf("Negative attention weight %v", v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("Row %d: expected weights summing to 1, got %v", i, sum)
		}
	}
}

func TestAttentionSingleKey(t *testing.T) {
	attn, err := NewMultiHeadAttention(4, 4, NewRand(9))
	if err != nil {
		t.Fatal(err)
	}
	_, w := attn.Forward(randMatrix(3, 4, 1), randMatrix(1, 4, 2), randMatrix(1, 4, 2))
	for i := 0; i < 3; i++ {
		if w.At(i, 0) != 1 {
			t.Errorf("Expected weight 1 with a single key, got %v", w.At(i, 0))
		}
	}
}

func TestAttentionRejectsBadHeads(t *testing.T) {
	if _, err := NewMultiHeadAttention(10, 3, NewRand(1)); err == nil {
		t.Error("Expected error for 10 dims over 3 heads")
	}
}

func TestEncoderParamNames(t *testing.T) {
	enc, err := NewEncoder(8, 2, 16, 2, NewRand(4))
	if err != nil {
		t.Fatal(err)
	}
	sd := enc.Params("encoder.").State()
	for _, name := range []string{
		"encoder.layers.0.self_attn.in_proj_weight",
		"encoder.layers.0.self_attn.out_proj.bias",
		"encoder.layers.1.linear1.weight",
		"encoder.layers.1.norm2.bias",
	} {
		if _, ok := sd[name]; !ok {
			t.Errorf("Missing parameter %s", name)
		}
	}
	if got := sd["encoder.layers.0.self_attn.in_proj_weight"].Shape; got[0] != 24 || got[1] != 8 {
		t.Errorf("Expected in_proj_weight 24×8, got %v", got)
	}

	out := enc.Forward(randMatrix(6, 8, 5))
	if r, c := out.Dims(); r != 6 || c != 8 {
		t.Errorf("Expected 6×8, got %d×%d", r, c)
	}
}

func TestParamsLoadReport(t *testing.T) {
	src, _ := NewEncoder(8, 2, 16, 1, NewRand(1))
	dst, _ := NewEncoder(8, 2, 16, 1, NewRand(2))

	sd := src.Params("encoder.").State()
	sd["fc.weight"] = Tensor{Shape: []int{2, 8}, Data: make([]float64, 16)}
	delete(sd, "encoder.layers.0.norm1.bias")
	sd["encoder.layers.0.linear1.bias"] = Tensor{Shape: []int{3}, Data: make([]float64, 3)}

	rep := dst.Params("encoder.").Load(sd)
	if len(rep.Missing) != 1 || rep.Missing[0] != "encoder.layers.0.norm1.bias" {
		t.Errorf("Unexpected missing %v", rep.Missing)
	}
	if len(rep.Unexpected) != 1 || rep.Unexpected[0] != "fc.weight" {
		t.Errorf("Unexpected unexpected %v", rep.Unexpected)
	}
	if len(rep.Mismatched) != 1 {
		t.Errorf("Expected one mismatched, got %v", rep.Mismatched)
	}
	if rep.Complete() {
		t.Error("Expected incomplete load")
	}

	x := randMatrix(4, 8, 7)
	full := src.Params("encoder.").State()
	dst.Params("encoder.").Load(full)
	if !mat.EqualApprox(src.Forward(x), dst.Forward(x), 1e-12) {
		t.Error("Expected identical outputs after full load")
	}
}

func TestStateDictWithPrefix(t *testing.T) {
	sd := StateDict{"encoder.a": {}, "encoder.b": {}, "fc.weight": {}}
	if got := sd.WithPrefix("encoder.").Keys(); len(got) != 2 || got[0] != "encoder.a" {
		t.Errorf("Unexpected keys %v", got)
	}
}
