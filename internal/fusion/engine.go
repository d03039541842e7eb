// Package fusion combines aligned brain and audio sequences with
// brain-queried cross attention.
package fusion

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/himanishpuri/NeuroMotion/internal/execctx"
	"github.com/himanishpuri/NeuroMotion/internal/nn"
	"github.com/himanishpuri/NeuroMotion/pkg/config"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// ModelName is recorded in fused sidecars.
const ModelName = "CrossAttentionFusion"

var ErrEmptySequence = errors.New("fusion input has no timepoints")

// Model projects both sides to DModel and lets brain timepoints attend over
// audio timepoints.
type Model struct {
	DF, DA, DModel, NHeads int

	FMRIProj  *nn.Linear
	AudioProj *nn.Linear
	Attn      *nn.MultiHeadAttention
}

func NewModel(dF, dA, dModel, nHeads int, seed uint64) (*Model, error) {
	rng := nn.NewRand(seed)
	m := &Model{
		DF:        dF,
		DA:        dA,
		DModel:    dModel,
		NHeads:    nHeads,
		FMRIProj:  nn.NewLinear(dF, dModel, rng),
		AudioProj: nn.NewLinear(dA, dModel, rng),
	}
	attn, err := nn.NewMultiHeadAttention(dModel, nHeads, rng)
	if err != nil {
		return nil, err
	}
	m.Attn = attn
	return m, nil
}

func (m *Model) Params() nn.Params {
	var ps nn.Params
	ps = append(ps, m.FMRIProj.Params("fmri_proj.")...)
	ps = append(ps, m.AudioProj.Params("audio_proj.")...)
	return append(ps, m.Attn.Params("attn.")...)
}

// Forward returns the T×DModel fused sequence and T×S attention weights.
func (m *Model) Forward(brain, audio *mat.Dense) (*mat.Dense, *mat.Dense) {
	q := m.FMRIProj.Forward(brain)
	kv := m.AudioProj.Forward(audio)
	return m.Attn.Forward(q, kv, kv)
}

// Engine runs a Model under an execution context.
type Engine struct {
	Model *Model
	exec  execctx.Context
	log   *logger.Logger
}

// NewEngine builds a freshly initialized model from cfg. Weights are
// deterministic for a given seed.
func NewEngine(cfg config.Fusion, ec execctx.Context, log *logger.Logger) (*Engine, error) {
	m, err := NewModel(cfg.DFMRI, cfg.DAudio, cfg.DModel, cfg.NHeads, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{Model: m, exec: ec, log: log}, nil
}

// Load restores model weights. Every parameter must be present with the
// right shape.
func (e *Engine) Load(sd nn.StateDict) (nn.LoadReport, error) {
	rep := e.Model.Params().Load(sd)
	if !rep.Complete() {
		return rep, &models.ShapeError{Op: "load fusion weights", Want: len(e.Model.Params()),
			Got: len(rep.Matched), Detail: rep.String()}
	}
	return rep, nil
}

// Prepare applies the dataset policy ahead of Fuse: brain columns are fit to
// DF, and both sides are cut to min(seqLen, brain T, audio T). seqLen <= 0
// means no cap.
func (e *Engine) Prepare(brain, audio *models.Sequence, seqLen int) (*models.Sequence, *models.Sequence) {
	t := min(brain.Len(), audio.Len())
	if seqLen > 0 {
		t = min(t, seqLen)
	}
	if brain.Dim() != e.Model.DF {
		e.log.Debugf("fitting brain embedding from %d to %d columns", brain.Dim(), e.Model.DF)
	}
	return brain.Head(t).FitColumns(e.Model.DF), audio.Head(t)
}

// Fuse cross-attends brain queries over audio keys and values. Both inputs
// must already be aligned to the same number of timepoints.
func (e *Engine) Fuse(tag models.Tag, brain, audio *models.Sequence) (*models.FusedEmbeddingSequence, error) {
	if brain.Dim() != e.Model.DF {
		return nil, &models.ShapeError{Op: "fuse brain", Want: e.Model.DF, Got: brain.Dim(), Detail: tag.Segment}
	}
	if audio.Dim() != e.Model.DA {
		return nil, &models.ShapeError{Op: "fuse audio", Want: e.Model.DA, Got: audio.Dim(), Detail: tag.Segment}
	}
	if brain.Len() != audio.Len() {
		return nil, &models.ShapeError{Op: "fuse length", Want: brain.Len(), Got: audio.Len(),
			Detail: "brain and audio timepoints differ"}
	}
	if brain.Len() == 0 {
		return nil, ErrEmptySequence
	}

	out, weights := e.Model.Forward(brain.Dense(), audio.Dense())
	fused := models.FromDense(out)
	e.exec.Round(fused.Data)
	return &models.FusedEmbeddingSequence{
		Tag:       tag,
		Sequence:  fused,
		Attention: models.FromDense(weights),
	}, nil
}
