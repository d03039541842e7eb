package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/ledger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

func newRunner(t *testing.T) (*Runner, ledger.Ledger, artifact.Store) {
	t.Helper()
	l := ledger.NewMemory()
	st := artifact.NewLocal(t.TempDir())
	return NewRunner(l, st, 3, nil), l, st
}

// writer returns a unit that publishes its outputs and counts calls.
func writer(st artifact.Store, key string, calls *int32, outputs ...string) Unit {
	return Unit{
		Stage:   "test",
		Key:     key,
		Segment: key,
		Outputs: outputs,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(calls, 1)
			for _, o := range outputs {
				if err := st.Put(ctx, o, []byte(key)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func TestRunIsIdempotent(t *testing.T) {
	r, _, st := newRunner(t)
	ctx := context.Background()
	var calls int32

	units := []Unit{
		writer(st, "seg1", &calls, "seg1.bin"),
		writer(st, "seg2", &calls, "seg2.bin", "seg2.json"),
	}
	rep, err := r.Run(ctx, units)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rep.Count(Completed) != 2 {
		t.Errorf("Expected 2 completed, got %s", rep)
	}

	rep, _ = r.Run(ctx, units)
	if rep.Count(Skipped) != 2 || calls != 2 {
		t.Errorf("Expected second run to skip everything, got %s after %d calls", rep, calls)
	}
}

func TestDoneBackfillsLedger(t *testing.T) {
	r, l, st := newRunner(t)
	ctx := context.Background()
	if err := st.Put(ctx, "seg1.bin", []byte("x")); err != nil {
		t.Fatal(err)
	}

	var calls int32
	u := writer(st, "seg1", &calls, "seg1.bin")
	done, err := r.Done(ctx, u)
	if err != nil || !done {
		t.Fatalf("Expected done from existing outputs, got %v (%v)", done, err)
	}
	if ok, _ := ledger.Done(ctx, l, "test", "seg1"); !ok {
		t.Error("Expected ledger to be back-filled")
	}

	partial := writer(st, "seg2", &calls, "seg2.bin", "seg1.bin")
	if done, _ := r.Done(ctx, partial); done {
		t.Error("Expected unit with a missing output to not be done")
	}
}

func TestFailuresAreIsolated(t *testing.T) {
	r, l, st := newRunner(t)
	ctx := context.Background()
	var calls int32

	units := []Unit{
		writer(st, "ok1", &calls, "ok1.bin"),
		{Stage: "test", Key: "boom", Subject: "sub-01", Segment: "seg9", Run: func(context.Context) error {
			return fmt.Errorf("boom: %w", &models.ShapeError{Op: "fuse", Want: 4, Got: 3})
		}},
		{Stage: "test", Key: "absent", Run: func(context.Context) error {
			return &models.MissingInputError{Path: "nowhere"}
		}},
		writer(st, "ok2", &calls, "ok2.bin"),
	}
	rep, err := r.Run(ctx, units)
	if err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if rep.Count(Completed) != 2 || rep.Count(Failed) != 1 || rep.Count(Missing) != 1 {
		t.Errorf("Unexpected report %s", rep)
	}
	if f := rep.Failures(); len(f) != 1 || f[0].Key != "boom" || !errors.Is(f[0].Err, models.ErrShape) {
		t.Errorf("Unexpected failures %+v", f)
	}
	if rep.Outcomes[1].Key != "boom" {
		t.Errorf("Expected outcomes in unit order, got %+v", rep.Outcomes)
	}
	if done, _ := ledger.Done(ctx, l, "test", "boom"); done {
		t.Error("Expected no ledger record for a failed unit")
	}
}

func TestRunBoundedParallelism(t *testing.T) {
	r, _, _ := newRunner(t)
	var cur, peak int32
	block := make(chan struct{})
	var units []Unit
	for i := 0; i < 9; i++ {
		units = append(units, Unit{Stage: "p", Key: fmt.Sprint(i), Run: func(context.Context) error {
			n := atomic.AddInt32(&cur, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-block
			atomic.AddInt32(&cur, -1)
			return nil
		}})
	}
	go func() {
		for i := 0; i < 9; i++ {
			block <- struct{}{}
		}
	}()
	rep, err := r.Run(context.Background(), units)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Count(Completed) != 9 {
		t.Errorf("Expected 9 completed, got %s", rep)
	}
	if peak > 3 {
		t.Errorf("Expected at most 3 concurrent units, saw %d", peak)
	}
}

func TestRunCancelled(t *testing.T) {
	r, _, _ := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	rep, err := r.Run(ctx, []Unit{{Stage: "c", Key: "x", Run: func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 0 || rep.Count(Cancelled) != 1 {
		t.Errorf("Expected the unit to be cancelled before running, got %s", rep)
	}
}
