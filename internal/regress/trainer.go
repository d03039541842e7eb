package regress

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/mat"

	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

var ErrNoSamples = errors.New("no training samples")

// Pair is one segment's embedding sequence and its TR-bucketed targets.
// Both are cut to the shorter of the two before fitting.
type Pair struct {
	Tag models.Tag
	X   *models.Sequence
	Y   *models.Sequence
}

// Trainer fits the decoder head by ridge regression on encoder features.
// The encoder stack stays fixed. Sufficient statistics accumulate across
// calls and across resumed checkpoints, so fitting in several sessions
// gives the same head as fitting everything at once.
type Trainer struct {
	Decoder *Decoder
	Ridge   float64

	samples int
	seen    map[string]bool
	gram    *mat.SymDense // (D+1)×(D+1)
	cross   *mat.Dense    // (D+1)×Out
	log     *logger.Logger
}

// pairKey is empty for untagged pairs, which are never deduplicated.
func pairKey(tag models.Tag) string {
	if tag.Subject == "" && tag.Segment == "" {
		return ""
	}
	return tag.Subject + "/" + tag.Segment
}

func NewTrainer(d *Decoder, ridge float64, log *logger.Logger) *Trainer {
	if log == nil {
		log = logger.GetLogger()
	}
	n := d.Arch.InDim + 1
	return &Trainer{
		Decoder: d,
		Ridge:   ridge,
		seen:    make(map[string]bool),
		gram:    mat.NewSymDense(n, nil),
		cross:   mat.NewDense(n, d.Arch.OutDim, nil),
		log:     log,
	}
}

// Resume restores decoder weights and accumulated statistics from ck. The
// checkpoint's architecture must match.
func (t *Trainer) Resume(ck *Checkpoint) error {
	if ck.Arch != t.Decoder.Arch {
		return &models.ShapeError{Op: "resume decoder", Want: t.Decoder.Arch.InDim, Got: ck.Arch.InDim,
			Detail: fmt.Sprintf("checkpoint %s, model %s", ck.Arch, t.Decoder.Arch)}
	}
	if _, err := t.Decoder.LoadFull(ck.State); err != nil {
		return err
	}
	n := t.Decoder.Arch.InDim + 1
	if len(ck.Gram) == n*n && len(ck.Cross) == n*t.Decoder.Arch.OutDim {
		t.gram = mat.NewSymDense(n, append([]float64(nil), ck.Gram...))
		t.cross = mat.NewDense(n, t.Decoder.Arch.OutDim, append([]float64(nil), ck.Cross...))
		t.samples = ck.Samples
		for _, k := range ck.Seen {
			t.seen[k] = true
		}
	}
	t.log.Infof("resumed decoder from %s samples", humanize.Comma(int64(t.samples)))
	return nil
}

// Samples returns the number of timepoints accumulated so far.
func (t *Trainer) Samples() int { return t.samples }

// Seen reports whether the pair's subject and segment were already added,
// in this session or in a resumed one.
func (t *Trainer) Seen(tag models.Tag) bool {
	k := pairKey(tag)
	return k != "" && t.seen[k]
}

// Add accumulates one pair. Pairs with no overlapping timepoints and pairs
// already accumulated are skipped.
func (t *Trainer) Add(ctx context.Context, p Pair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.Seen(p.Tag) {
		t.log.Debugf("skipping %s/%s: already accumulated", p.Tag.Subject, p.Tag.Segment)
		return nil
	}
	d := t.Decoder
	if p.X.Dim() != d.Arch.InDim {
		return &models.ShapeError{Op: "train input", Want: d.Arch.InDim, Got: p.X.Dim(), Detail: p.Tag.Segment}
	}
	if p.Y.Dim() != d.Arch.OutDim {
		return &models.ShapeError{Op: "train target", Want: d.Arch.OutDim, Got: p.Y.Dim(), Detail: p.Tag.Segment}
	}
	n := min(p.X.Len(), p.Y.Len())
	if n == 0 {
		t.log.Debugf("skipping %s/%s: no overlapping timepoints", p.Tag.Subject, p.Tag.Segment)
		return nil
	}

	h := d.Features(p.X.Head(n))
	aug := mat.NewDense(n, d.Arch.InDim+1, nil)
	aug.Slice(0, n, 0, d.Arch.InDim).(*mat.Dense).Copy(h)
	for i := 0; i < n; i++ {
		aug.Set(i, d.Arch.InDim, 1)
	}

	var g mat.SymDense
	g.SymOuterK(1, aug.T())
	t.gram.AddSym(t.gram, &g)

	var c mat.Dense
	c.Mul(aug.T(), p.Y.Head(n).Dense())
	t.cross.Add(t.cross, &c)

	t.samples += n
	if k := pairKey(p.Tag); k != "" {
		t.seen[k] = true
	}
	return nil
}

// Solve refits the head from the accumulated statistics. The bias row is
// not regularized.
func (t *Trainer) Solve() error {
	if t.samples == 0 {
		return ErrNoSamples
	}
	d := t.Decoder
	n := d.Arch.InDim + 1

	a := mat.NewSymDense(n, nil)
	a.CopySym(t.gram)
	for i := 0; i < n-1; i++ {
		a.SetSym(i, i, a.At(i, i)+t.Ridge)
	}

	var w mat.Dense
	var chol mat.Cholesky
	if chol.Factorize(a) {
		if err := chol.SolveTo(&w, t.cross); err != nil {
			return fmt.Errorf("ridge solve failed: %w", err)
		}
	} else if err := w.Solve(a, t.cross); err != nil {
		return fmt.Errorf("ridge solve failed: %w", err)
	}

	// w is (D+1)×Out; the head stores Out×D weights and an Out bias.
	for o := 0; o < d.Arch.OutDim; o++ {
		for j := 0; j < d.Arch.InDim; j++ {
			d.Head.Weight.Set(o, j, w.At(j, o))
		}
		d.Head.Bias[o] = w.At(n-1, o)
	}
	return nil
}

// Fit adds every pair and solves once. It returns the number of pairs used.
func (t *Trainer) Fit(ctx context.Context, pairs []Pair) (int, error) {
	used := 0
	for _, p := range pairs {
		before := t.samples
		if err := t.Add(ctx, p); err != nil {
			return used, err
		}
		if t.samples > before {
			used++
		}
	}
	if err := t.Solve(); err != nil {
		return used, err
	}
	t.log.Infof("fitted decoder head on %d segments (%s timepoints)", used, humanize.Comma(int64(t.samples)))
	return used, nil
}

// Checkpoint snapshots weights and statistics for resuming.
func (t *Trainer) Checkpoint(mode string) *Checkpoint {
	ck := t.Decoder.Checkpoint(mode)
	ck.Samples = t.samples
	ck.Gram = append([]float64(nil), t.gram.RawSymmetric().Data...)
	ck.Cross = append([]float64(nil), t.cross.RawMatrix().Data...)
	for k := range t.seen {
		ck.Seen = append(ck.Seen, k)
	}
	sort.Strings(ck.Seen)
	return ck
}
