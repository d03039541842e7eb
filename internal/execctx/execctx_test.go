package execctx

import (
	"testing"

	"github.com/himanishpuri/NeuroMotion/pkg/config"
)

func TestFromConfig(t *testing.T) {
	ec, err := FromConfig(config.Exec{Device: "cuda:0", MaxParallel: 2, Precision: "float32"})
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if ec.Device != "cuda:0" || ec.MaxParallel != 2 || ec.Precision != Float32 {
		t.Errorf("Unexpected context: %s", ec)
	}
	if ec.BatchSize != Default().BatchSize {
		t.Errorf("Expected default batch %d, got %d", Default().BatchSize, ec.BatchSize)
	}

	if _, err := FromConfig(config.Exec{Precision: "bfloat16"}); err == nil {
		t.Error("Expected error for unsupported precision")
	}
}

func TestRound(t *testing.T) {
	v := []float64{0.1, 1.0 / 3.0}
	Default().Round(v)
	if v[0] != 0.1 {
		t.Errorf("float64 precision should not change values, got %v", v[0])
	}

	ec := Default()
	ec.Precision = Float32
	ec.Round(v)
	if v[1] != float64(float32(1.0/3.0)) {
		t.Errorf("Expected float32 rounding, got %v", v[1])
	}
}

func TestBatchOr(t *testing.T) {
	ec := Default()
	if got := ec.BatchOr(10); got != 10 {
		t.Errorf("Expected 10, got %d", got)
	}
	if got := ec.BatchOr(0); got != ec.BatchSize {
		t.Errorf("Expected %d, got %d", ec.BatchSize, got)
	}
}
