package models

import "math"

// Tag identifies who and what an embedding belongs to.
type Tag struct {
	Subject string
	Segment string
	Run     string // empty for merged or segment-level sequences
}

// EmbeddingSequence is a T×D embedding of one scan run or one averaged segment.
type EmbeddingSequence struct {
	Tag
	*Sequence
}

// AudioWindowSequence is a pooled audio sequence; row i is centered at
// i*HopSec + WinSec/2 seconds.
type AudioWindowSequence struct {
	*Sequence
	WinSec float64
	HopSec float64
}

// Center returns the center time of window i in seconds.
func (w *AudioWindowSequence) Center(i int) float64 {
	return float64(i)*w.HopSec + w.WinSec/2
}

// FusedEmbeddingSequence is the cross-attended output. Attention is T×S
// (queries × keys), averaged over heads; it is diagnostic only.
type FusedEmbeddingSequence struct {
	Tag
	*Sequence
	Attention *Sequence
}

// MotionTargetSequence holds per-video-frame (magnitude, angle) descriptors.
type MotionTargetSequence struct {
	*Sequence
	FPS float64
}

// FramesPerTR is the block size used to bucket motion to scan resolution.
func FramesPerTR(tr, fps float64) int {
	return int(math.Round(tr * fps))
}

// MetricsRecord is one row of the evaluation table.
type MetricsRecord struct {
	Segment    string  `json:"segment"`
	MSEFMRI    float64 `json:"mse_fmri"`
	MSEFusion  float64 `json:"mse_fusion"`
	CorrFMRI   float64 `json:"corr_fmri"`
	CorrFusion float64 `json:"corr_fusion"`
}
