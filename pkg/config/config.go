package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override,
// e.g. NEUROMOTION_FMRI_N_COMPONENTS.
const EnvPrefix = "NEUROMOTION"

// DefaultPath is searched when no explicit config file is given.
const DefaultPath = "configs/neuromotion.yaml"

type Exec struct {
	Device      string `yaml:"device" mapstructure:"device"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxParallel int    `yaml:"max_parallel" mapstructure:"max_parallel"`
	Precision   string `yaml:"precision" mapstructure:"precision"`
}

type FMRI struct {
	Root            string `yaml:"root" mapstructure:"root"`
	OutputRoot      string `yaml:"output_root" mapstructure:"output_root"`
	UseMNI          bool   `yaml:"use_mni" mapstructure:"use_mni"`
	NormalizePerRun bool   `yaml:"normalize_per_run" mapstructure:"normalize_per_run"`
	MergeRuns       bool   `yaml:"merge_runs" mapstructure:"merge_runs"`
	NComponents     int    `yaml:"n_components" mapstructure:"n_components"`
	BatchSize       int    `yaml:"batch_size" mapstructure:"batch_size"`
}

type Backbone struct {
	Name       string  `yaml:"name" mapstructure:"name"`
	URL        string  `yaml:"url" mapstructure:"url"`
	FrameHz    float64 `yaml:"frame_hz" mapstructure:"frame_hz"`
	FeatureDim int     `yaml:"feature_dim" mapstructure:"feature_dim"`
	SampleRate int     `yaml:"sample_rate" mapstructure:"sample_rate"`
}

type Audio struct {
	InputDir   string   `yaml:"input_dir" mapstructure:"input_dir"`
	OutputDir  string   `yaml:"output_dir" mapstructure:"output_dir"`
	Extensions []string `yaml:"extensions" mapstructure:"extensions"`
	Backbone   Backbone `yaml:"backbone" mapstructure:"backbone"`
	ChunkSec   float64  `yaml:"chunk_sec" mapstructure:"chunk_sec"`
	OverlapSec float64  `yaml:"overlap_sec" mapstructure:"overlap_sec"`
	WinSec     float64  `yaml:"win_sec" mapstructure:"win_sec"`
	HopSec     float64  `yaml:"hop_sec" mapstructure:"hop_sec"`
	ZScore     bool     `yaml:"zscore" mapstructure:"zscore"`
}

type Fusion struct {
	FMRIRoot    string  `yaml:"fmri_root" mapstructure:"fmri_root"`
	AudioRoot   string  `yaml:"audio_root" mapstructure:"audio_root"`
	AudioSuffix string  `yaml:"audio_suffix" mapstructure:"audio_suffix"`
	OutputRoot  string  `yaml:"output_root" mapstructure:"output_root"`
	SegmentsCSV string  `yaml:"segments_csv" mapstructure:"segments_csv"`
	TR          float64 `yaml:"tr" mapstructure:"tr"`
	SeqLen      int     `yaml:"sequence_length" mapstructure:"sequence_length"`
	DFMRI       int     `yaml:"d_fmri" mapstructure:"d_fmri"`
	DAudio      int     `yaml:"d_audio" mapstructure:"d_audio"`
	DModel      int     `yaml:"d_model" mapstructure:"d_model"`
	NHeads      int     `yaml:"n_heads" mapstructure:"n_heads"`
	Seed        uint64  `yaml:"seed" mapstructure:"seed"`
}

type DecoderModel struct {
	DModel  int `yaml:"d_model" mapstructure:"d_model"`
	NHeads  int `yaml:"n_heads" mapstructure:"n_heads"`
	NLayers int `yaml:"n_layers" mapstructure:"n_layers"`
	FFDim   int `yaml:"ff_dim" mapstructure:"ff_dim"`
}

type Decoder struct {
	FMRI      DecoderModel `yaml:"fmri" mapstructure:"fmri"`
	Fusion    DecoderModel `yaml:"fusion" mapstructure:"fusion"`
	OutDim    int          `yaml:"out_dim" mapstructure:"out_dim"`
	SeqLen    int          `yaml:"sequence_length" mapstructure:"sequence_length"`
	Ridge     float64      `yaml:"ridge" mapstructure:"ridge"`
	Seed      uint64       `yaml:"seed" mapstructure:"seed"`
	ModelDir  string       `yaml:"model_dir" mapstructure:"model_dir"`
	Transfer  bool         `yaml:"transfer_encoder" mapstructure:"transfer_encoder"`
	TrainSegs []string     `yaml:"train_segments" mapstructure:"train_segments"`
}

type Evaluation struct {
	Subjects   []string `yaml:"subjects" mapstructure:"subjects"`
	Segments   []string `yaml:"segments" mapstructure:"segments"`
	MotionDir  string   `yaml:"motion_dir" mapstructure:"motion_dir"`
	FPS        float64  `yaml:"fps" mapstructure:"fps"`
	ResultsCSV string   `yaml:"results_csv" mapstructure:"results_csv"`
	Mismatch   string   `yaml:"mismatch" mapstructure:"mismatch"`
}

type Ledger struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// Store selects where artifacts live. Local paths are used as given; the
// s3 backend maps them to keys under Prefix.
type Store struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
	Region   string `yaml:"region" mapstructure:"region"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

type Video struct {
	URL       string  `yaml:"url" mapstructure:"url"`
	OutputDir string  `yaml:"output_dir" mapstructure:"output_dir"`
	FPS       float64 `yaml:"fps" mapstructure:"fps"`
	NumFrames int     `yaml:"num_frames" mapstructure:"num_frames"`
}

type Server struct {
	Port       string `yaml:"port" mapstructure:"port"`
	EnableCORS bool   `yaml:"enable_cors" mapstructure:"enable_cors"`
}

type Root struct {
	Pipeline struct {
		Name   string `yaml:"name" mapstructure:"name"`
		LogLvl string `yaml:"log_level" mapstructure:"log_level"`
	} `yaml:"pipeline" mapstructure:"pipeline"`
	Exec       Exec       `yaml:"exec" mapstructure:"exec"`
	FMRI       FMRI       `yaml:"fmri" mapstructure:"fmri"`
	Audio      Audio      `yaml:"audio" mapstructure:"audio"`
	Fusion     Fusion     `yaml:"fusion" mapstructure:"fusion"`
	Decoder    Decoder    `yaml:"decoder" mapstructure:"decoder"`
	Evaluation Evaluation `yaml:"evaluation" mapstructure:"evaluation"`
	Ledger     Ledger     `yaml:"ledger" mapstructure:"ledger"`
	Store      Store      `yaml:"store" mapstructure:"store"`
	Video      Video      `yaml:"video" mapstructure:"video"`
	Server     Server     `yaml:"server" mapstructure:"server"`
	DBPath     string     `yaml:"db_path" mapstructure:"db_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "neuromotion")
	v.SetDefault("pipeline.log_level", "info")

	v.SetDefault("exec.device", "cpu")
	v.SetDefault("exec.batch_size", 64)
	v.SetDefault("exec.max_parallel", 4)
	v.SetDefault("exec.precision", "float64")

	v.SetDefault("fmri.root", "data/fmri")
	v.SetDefault("fmri.output_root", "outputs/fmri_embeddings")
	v.SetDefault("fmri.use_mni", true)
	v.SetDefault("fmri.normalize_per_run", true)
	v.SetDefault("fmri.merge_runs", true)
	v.SetDefault("fmri.n_components", 512)
	v.SetDefault("fmri.batch_size", 256)

	v.SetDefault("audio.input_dir", "data/audio")
	v.SetDefault("audio.output_dir", "outputs/audio_embeddings")
	v.SetDefault("audio.extensions", []string{".wav", ".mp3", ".flac", ".m4a", ".ogg"})
	v.SetDefault("audio.backbone.name", "spectral")
	v.SetDefault("audio.backbone.frame_hz", 50.0)
	v.SetDefault("audio.backbone.feature_dim", 768)
	v.SetDefault("audio.backbone.sample_rate", 16000)
	v.SetDefault("audio.chunk_sec", 30.0)
	v.SetDefault("audio.overlap_sec", 1.0)
	v.SetDefault("audio.win_sec", 2.0)
	v.SetDefault("audio.hop_sec", 0.5)
	v.SetDefault("audio.zscore", true)

	v.SetDefault("fusion.fmri_root", "outputs/fmri_embeddings")
	v.SetDefault("fusion.audio_root", "outputs/audio_embeddings")
	v.SetDefault("fusion.audio_suffix", "_full")
	v.SetDefault("fusion.output_root", "outputs/fusion_embeddings")
	v.SetDefault("fusion.tr", 2.0)
	v.SetDefault("fusion.sequence_length", 0)
	v.SetDefault("fusion.d_fmri", 245)
	v.SetDefault("fusion.d_audio", 768)
	v.SetDefault("fusion.d_model", 256)
	v.SetDefault("fusion.n_heads", 4)
	v.SetDefault("fusion.seed", 42)

	v.SetDefault("decoder.fmri.d_model", 245)
	v.SetDefault("decoder.fmri.n_heads", 5)
	v.SetDefault("decoder.fmri.n_layers", 2)
	v.SetDefault("decoder.fmri.ff_dim", 2048)
	v.SetDefault("decoder.fusion.d_model", 256)
	v.SetDefault("decoder.fusion.n_heads", 4)
	v.SetDefault("decoder.fusion.n_layers", 2)
	v.SetDefault("decoder.fusion.ff_dim", 2048)
	v.SetDefault("decoder.out_dim", 2)
	v.SetDefault("decoder.sequence_length", 0)
	v.SetDefault("decoder.ridge", 1.0)
	v.SetDefault("decoder.seed", 7)
	v.SetDefault("decoder.transfer_encoder", false)
	v.SetDefault("decoder.model_dir", "models")

	v.SetDefault("evaluation.motion_dir", "data/motion")
	v.SetDefault("evaluation.fps", 4.0)
	v.SetDefault("evaluation.results_csv", "outputs/motion_eval_fmri_vs_fusion.csv")
	v.SetDefault("evaluation.mismatch", "reject")

	v.SetDefault("fusion.segments_csv", "")
	v.SetDefault("decoder.train_segments", []string{})
	v.SetDefault("evaluation.subjects", []string{})
	v.SetDefault("evaluation.segments", []string{})
	v.SetDefault("audio.backbone.url", "")
	v.SetDefault("store.bucket", "")
	v.SetDefault("store.prefix", "")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("store.endpoint", "")
	v.SetDefault("video.url", "")
	v.SetDefault("video.output_dir", "outputs/videos")
	v.SetDefault("video.fps", 8.0)
	v.SetDefault("video.num_frames", 16)

	v.SetDefault("ledger.backend", "sqlite")
	v.SetDefault("ledger.path", "outputs/ledger")
	v.SetDefault("store.backend", "local")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.enable_cors", true)
	v.SetDefault("db_path", "outputs/neuromotion.sqlite3")
}

// Load reads configuration from path (or NEUROMOTION_CONFIG, or DefaultPath
// when present) and applies environment overrides on top of defaults.
// A missing default file is skipped; a missing explicit file is an error.
func Load(path string) (*Root, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Root {
	v := viper.New()
	setDefaults(v)
	var cfg Root
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks the values the numeric stages cannot recover from.
func (c *Root) Validate() error {
	switch {
	case c.FMRI.NComponents < 1:
		return fmt.Errorf("fmri.n_components must be positive, got %d", c.FMRI.NComponents)
	case c.FMRI.BatchSize < 1:
		return fmt.Errorf("fmri.batch_size must be positive, got %d", c.FMRI.BatchSize)
	case c.Audio.ChunkSec <= c.Audio.OverlapSec:
		return fmt.Errorf("audio.chunk_sec (%g) must exceed audio.overlap_sec (%g)", c.Audio.ChunkSec, c.Audio.OverlapSec)
	case c.Audio.WinSec <= 0 || c.Audio.HopSec <= 0:
		return fmt.Errorf("audio.win_sec and audio.hop_sec must be positive")
	case c.Fusion.TR <= 0:
		return fmt.Errorf("fusion.tr must be positive, got %g", c.Fusion.TR)
	case c.Fusion.NHeads < 1 || c.Fusion.DModel%c.Fusion.NHeads != 0:
		return fmt.Errorf("fusion.d_model (%d) must be divisible by fusion.n_heads (%d)", c.Fusion.DModel, c.Fusion.NHeads)
	case c.Decoder.FMRI.NHeads < 1 || c.Decoder.FMRI.DModel%c.Decoder.FMRI.NHeads != 0:
		return fmt.Errorf("decoder.fmri.d_model (%d) must be divisible by n_heads (%d)", c.Decoder.FMRI.DModel, c.Decoder.FMRI.NHeads)
	case c.Decoder.Fusion.NHeads < 1 || c.Decoder.Fusion.DModel%c.Decoder.Fusion.NHeads != 0:
		return fmt.Errorf("decoder.fusion.d_model (%d) must be divisible by n_heads (%d)", c.Decoder.Fusion.DModel, c.Decoder.Fusion.NHeads)
	case c.Evaluation.FPS <= 0:
		return fmt.Errorf("evaluation.fps must be positive, got %g", c.Evaluation.FPS)
	}
	return nil
}

// Write serializes cfg as YAML to path, creating parent directories.
func Write(path string, cfg *Root) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
