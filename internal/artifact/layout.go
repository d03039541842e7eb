package artifact

import (
	"fmt"
	"path"
	"strconv"

	"github.com/himanishpuri/NeuroMotion/pkg/config"
)

const ext = ".msgpack"

// Layout names every persisted artifact.
type Layout struct {
	FMRIOut   string
	AudioOut  string
	FusionOut string
	MotionDir string
	ModelDir  string
}

func LayoutFromConfig(cfg *config.Root) Layout {
	return Layout{
		FMRIOut:   cfg.FMRI.OutputRoot,
		AudioOut:  cfg.Audio.OutputDir,
		FusionOut: cfg.Fusion.OutputRoot,
		MotionDir: cfg.Evaluation.MotionDir,
		ModelDir:  cfg.Decoder.ModelDir,
	}
}

// RunEmbedding is one scan run's embedding; runFile keeps its extension.
func (l Layout) RunEmbedding(subject, segment, runFile string) string {
	return path.Join(l.FMRIOut, subject, segment, runFile+"_embeddings"+ext)
}

func (l Layout) SegmentEmbedding(subject, segment string) string {
	return path.Join(l.FMRIOut, subject, segment, segment+"_avg_embeddings"+ext)
}

func (l Layout) SegmentMeta(subject, segment string) string {
	return path.Join(l.FMRIOut, subject, segment, segment+"_meta.json")
}

// AudioBase is the stem shared by an audio embedding and its sidecar.
func AudioBase(basename string, winSec float64) string {
	return basename + "_w2v2_" + strconv.FormatFloat(winSec, 'f', -1, 64) + "s"
}

func (l Layout) AudioEmbedding(basename string, winSec float64) string {
	return path.Join(l.AudioOut, AudioBase(basename, winSec)+ext)
}

func (l Layout) AudioMeta(basename string, winSec float64) string {
	return path.Join(l.AudioOut, AudioBase(basename, winSec)+"_meta.json")
}

func (l Layout) Fused(subject, segment string) string {
	return path.Join(l.FusionOut, subject, segment+"_fused_embeddings"+ext)
}

func (l Layout) FusedMeta(subject, segment string) string {
	return path.Join(l.FusionOut, subject, segment+"_fused_meta.json")
}

func (l Layout) Motion(segment string) string {
	return path.Join(l.MotionDir, segment+"_motion"+ext)
}

func (l Layout) Checkpoint(mode string) string {
	return path.Join(l.ModelDir, "motion_decoder_"+mode+ext)
}

// FusionWeights optionally overrides the seeded fusion initialization.
func (l Layout) FusionWeights() string {
	return path.Join(l.ModelDir, "cross_attention_fusion"+ext)
}

// Projection holds the declared linear map for one mode's width mismatch.
func (l Layout) Projection(mode string) string {
	return path.Join(l.ModelDir, "projection_"+mode+ext)
}

func (l Layout) Frame(outDir, subject, segment string, i int) string {
	return path.Join(outDir, subject, segment, fmt.Sprintf("frame_%04d.png", i))
}
