package main

import (
	"fmt"
	"math"
	"time"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
	"github.com/himanishpuri/NeuroMotion/pkg/neuromotion"
)

// MaxUploadBytes bounds multipart bodies for motion CSVs and seed images.
const MaxUploadBytes = 32 << 20

// JobDTO is one completed unit in API responses.
type JobDTO struct {
	Stage       string    `json:"stage"`
	Key         string    `json:"key"`
	Outputs     []string  `json:"outputs"`
	CompletedAt time.Time `json:"completed_at"`
}

// ListJobsResponse is the response for GET /api/jobs
type ListJobsResponse struct {
	Jobs  []JobDTO `json:"jobs"`
	Count int      `json:"count"`
}

// ResultDTO is one evaluated segment. Undefined correlations are null.
type ResultDTO struct {
	Segment    string   `json:"segment"`
	MSEFMRI    *float64 `json:"mse_fmri"`
	MSEFusion  *float64 `json:"mse_fusion"`
	CorrFMRI   *float64 `json:"corr_fmri"`
	CorrFusion *float64 `json:"corr_fusion"`
}

// ResultsResponse is the response for GET /api/results and POST /api/evaluate
type ResultsResponse struct {
	RunID   string      `json:"run_id,omitempty"`
	Path    string      `json:"path,omitempty"`
	Cached  bool        `json:"cached"`
	Results []ResultDTO `json:"results"`
	Count   int         `json:"count"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newResultDTOs(records []models.MetricsRecord) []ResultDTO {
	out := make([]ResultDTO, len(records))
	for i, r := range records {
		out[i] = ResultDTO{
			Segment:    r.Segment,
			MSEFMRI:    finite(r.MSEFMRI),
			MSEFusion:  finite(r.MSEFusion),
			CorrFMRI:   finite(r.CorrFMRI),
			CorrFusion: finite(r.CorrFusion),
		}
	}
	return out
}

// StageResponse is the response for POST /api/stages/{stage}
type StageResponse struct {
	Stage     string                `json:"stage"`
	Completed int                   `json:"completed"`
	Skipped   int                   `json:"skipped"`
	Missing   int                   `json:"missing"`
	Failed    int                   `json:"failed"`
	Failures  []neuromotion.Failure `json:"failures,omitempty"`
}

// TrainRequest is the optional body for POST /api/train
type TrainRequest struct {
	// Mode is fmri, fusion or empty for both
	Mode string `json:"mode,omitempty"`
}

// Modes returns the decoders the request selects.
func (r *TrainRequest) Modes() ([]neuromotion.Mode, error) {
	switch m := neuromotion.Mode(r.Mode); m {
	case "", "all":
		return []neuromotion.Mode{neuromotion.ModeFMRI, neuromotion.ModeFusion}, nil
	case neuromotion.ModeFMRI, neuromotion.ModeFusion:
		return []neuromotion.Mode{m}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", r.Mode)
}

// TrainResponse is the response for POST /api/train
type TrainResponse struct {
	Summaries []*neuromotion.TrainSummary `json:"summaries"`
}

// ImportMotionResponse is the response for POST /api/motion
type ImportMotionResponse struct {
	Message string `json:"message"`
	Segment string `json:"segment,omitempty"`
	Path    string `json:"path"`
}

// VideoResponse is the response for POST /api/video
type VideoResponse struct {
	Seed   int64    `json:"seed"`
	Frames []string `json:"frames"`
	Count  int      `json:"count"`
}

// MetricsResponse provides server health and ledger metrics
type MetricsResponse struct {
	Status       string           `json:"status"`
	DatabasePath string           `json:"database_path"`
	Jobs         int64            `json:"jobs"`
	JobsByStage  map[string]int64 `json:"jobs_by_stage"`
	Runs         int64            `json:"evaluation_runs"`
	ResultRows   int64            `json:"result_rows"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
