package artifact

// SegmentMeta is the sidecar next to a merged brain embedding. NTR is the
// scan length used for alignment.
type SegmentMeta struct {
	Subject           string   `json:"subject"`
	Segment           string   `json:"segment"`
	NTR               int      `json:"n_tr"`
	Runs              []string `json:"runs"`
	NComponents       int      `json:"n_components"`
	ExplainedVariance float64  `json:"explained_variance"`
}

// AudioMeta describes one pooled audio embedding.
type AudioMeta struct {
	AudioSourcePath string  `json:"audio_source_path"`
	BackboneName    string  `json:"backbone_name"`
	WindowCount     int     `json:"window_count"`
	FeatureDim      int     `json:"feature_dim"`
	WinSec          float64 `json:"win_sec"`
	HopSec          float64 `json:"hop_sec"`
}

// FusedMeta describes one fused embedding.
type FusedMeta struct {
	Subject         string `json:"subject"`
	Segment         string `json:"segment"`
	NTimepoints     int    `json:"n_timepoints"`
	EmbeddingDim    int    `json:"embedding_dim"`
	FusionModelName string `json:"fusion_model_name"`
	Status          string `json:"status"`
}
