package neuromotion

import (
	"time"

	"github.com/himanishpuri/NeuroMotion/internal/evaluate"
	"github.com/himanishpuri/NeuroMotion/internal/pipeline"
	"github.com/himanishpuri/NeuroMotion/internal/service"
)

// Mode selects a decoder input family.
type Mode = evaluate.Mode

const (
	ModeFMRI   = evaluate.ModeFMRI
	ModeFusion = evaluate.ModeFusion
)

type (
	TrainSummary     = service.TrainSummary
	EvaluationResult = service.EvaluationResult
	VideoResult      = service.VideoResult
)

// Report summarizes one stage run.
type Report struct {
	Completed int       // Units run to completion
	Skipped   int       // Units already done
	Missing   int       // Units lacking an input
	Failed    int       // Units that errored
	Failures  []Failure // One entry per failed unit
}

// Failure is one unit that errored.
type Failure struct {
	Stage string `json:"stage"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Job is a completed unit recorded in the ledger.
type Job struct {
	Stage       string    // Pipeline stage
	Key         string    // Unit key, e.g. subject/segment
	Outputs     []string  // Published artifact paths
	CompletedAt time.Time // When the unit finished
}

func newReport(r *pipeline.Report) *Report {
	if r == nil {
		return nil
	}
	out := &Report{
		Completed: r.Count(pipeline.Completed),
		Skipped:   r.Count(pipeline.Skipped),
		Missing:   r.Count(pipeline.Missing),
		Failed:    r.Count(pipeline.Failed),
	}
	for _, f := range r.Failures() {
		out.Failures = append(out.Failures, Failure{Stage: f.Stage, Key: f.Key, Error: f.Err.Error()})
	}
	return out
}
