// Package pipeline runs independent units of work with bounded parallelism,
// skipping units that are already done and isolating failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/internal/ledger"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// Unit is one resumable piece of work: a run, a segment, a subject or a
// file. Outputs lists every artifact Run publishes.
type Unit struct {
	Stage   string
	Key     string
	Subject string
	Segment string
	Outputs []string
	Run     func(ctx context.Context) error
}

// Status is the outcome of one unit.
type Status int

const (
	Completed Status = iota
	// Skipped units were already done.
	Skipped
	// Missing units lacked a required input.
	Missing
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Missing:
		return "missing"
	case Failed:
		return "failed"
	}
	return "cancelled"
}

// Outcome is what happened to one unit.
type Outcome struct {
	Stage    string        `json:"stage"`
	Key      string        `json:"key"`
	Status   Status        `json:"-"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Report collects outcomes in unit order.
type Report struct {
	Outcomes []Outcome
}

func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Failures returns failed units only.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == Failed {
			out = append(out, o)
		}
	}
	return out
}

func (r *Report) String() string {
	return fmt.Sprintf("%s completed, %s skipped, %s missing input, %s failed",
		humanize.Comma(int64(r.Count(Completed))), humanize.Comma(int64(r.Count(Skipped))),
		humanize.Comma(int64(r.Count(Missing))), humanize.Comma(int64(r.Count(Failed))))
}

// Runner executes units. A unit is done when the ledger has a record for it,
// or when every declared output already exists in the store (the ledger is
// then back-filled). Failures are logged with subject, segment and stage
// and never stop sibling units.
type Runner struct {
	Ledger      ledger.Ledger
	Store       artifact.Store
	MaxParallel int

	log *logger.Logger
}

func NewRunner(l ledger.Ledger, st artifact.Store, maxParallel int, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Runner{Ledger: l, Store: st, MaxParallel: maxParallel, log: log}
}

// Done is the single "already done" predicate for every stage.
func (r *Runner) Done(ctx context.Context, u Unit) (bool, error) {
	if r.Ledger != nil {
		done, err := ledger.Done(ctx, r.Ledger, u.Stage, u.Key)
		if err != nil || done {
			return done, err
		}
	}
	if r.Store == nil || len(u.Outputs) == 0 {
		return false, nil
	}
	ok, err := artifact.AllExist(ctx, r.Store, u.Outputs...)
	if err != nil || !ok {
		return false, err
	}
	if r.Ledger != nil {
		if _, err := r.Ledger.Complete(ctx, u.Stage, u.Key, u.Outputs); err != nil {
			return true, fmt.Errorf("back-filling ledger: %w", err)
		}
	}
	return true, nil
}

// Run executes units and returns once all have finished. Only context
// cancellation is returned as an error.
func (r *Runner) Run(ctx context.Context, units []Unit) (*Report, error) {
	outcomes := make([]Outcome, len(units))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.MaxParallel)
	for i, u := range units {
		g.Go(func() error {
			o := r.runOne(gctx, u)
			mu.Lock()
			outcomes[i] = o
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep := &Report{Outcomes: outcomes}
	r.log.Infof("%d units: %s", len(units), rep)
	return rep, ctx.Err()
}

func (r *Runner) runOne(ctx context.Context, u Unit) Outcome {
	o := Outcome{Stage: u.Stage, Key: u.Key}
	log := r.log.WithFields(map[string]any{"stage": u.Stage, "subject": u.Subject, "segment": u.Segment})

	if err := ctx.Err(); err != nil {
		o.Status, o.Err = Cancelled, err
		return o
	}

	done, err := r.Done(ctx, u)
	if err != nil {
		log.Warnf("done check for %s failed: %v", u.Key, err)
	}
	if done {
		log.Debugf("%s already done", u.Key)
		o.Status = Skipped
		return o
	}

	start := time.Now()
	err = u.Run(ctx)
	o.Duration = time.Since(start)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrMissingInput):
		log.Warnf("%s skipped: %v", u.Key, err)
		o.Status, o.Err = Missing, err
		return o
	case ctx.Err() != nil:
		o.Status, o.Err = Cancelled, err
		return o
	default:
		log.Errorf("%s failed: %v", u.Key, err)
		o.Status, o.Err = Failed, err
		return o
	}

	if r.Ledger != nil {
		if _, err := r.Ledger.Complete(ctx, u.Stage, u.Key, u.Outputs); err != nil {
			log.Errorf("%s finished but ledger write failed: %v", u.Key, err)
			o.Status, o.Err = Failed, err
			return o
		}
	}
	log.Infof("%s done in %s", u.Key, o.Duration.Round(time.Millisecond))
	o.Status = Completed
	return o
}
