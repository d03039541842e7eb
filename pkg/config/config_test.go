package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.FMRI.NComponents != 512 {
		t.Errorf("Expected n_components 512, got %d", cfg.FMRI.NComponents)
	}
	if cfg.Fusion.DFMRI != 245 || cfg.Fusion.DAudio != 768 || cfg.Fusion.DModel != 256 {
		t.Errorf("Unexpected fusion dims: %+v", cfg.Fusion)
	}
	if cfg.Audio.HopSec != 0.5 || cfg.Audio.WinSec != 2.0 {
		t.Errorf("Unexpected windowing: win=%g hop=%g", cfg.Audio.WinSec, cfg.Audio.HopSec)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "nm.yaml")
	cfg := Default()
	cfg.FMRI.NComponents = 64
	cfg.Evaluation.Subjects = []string{"sub-01", "sub-02"}

	if err := Write(path, cfg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.FMRI.NComponents != 64 {
		t.Errorf("Expected n_components 64, got %d", loaded.FMRI.NComponents)
	}
	if len(loaded.Evaluation.Subjects) != 2 {
		t.Errorf("Expected 2 subjects, got %v", loaded.Evaluation.Subjects)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NEUROMOTION_FMRI_BATCH_SIZE", "17")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("Expected error for missing explicit config, got %+v", cfg)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	if err := os.WriteFile(path, []byte("fmri:\n  n_components: 8\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.FMRI.BatchSize != 17 {
		t.Errorf("Expected env batch size 17, got %d", cfg.FMRI.BatchSize)
	}
	if cfg.FMRI.NComponents != 8 {
		t.Errorf("Expected file n_components 8, got %d", cfg.FMRI.NComponents)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Root)
	}{
		{"zero components", func(c *Root) { c.FMRI.NComponents = 0 }},
		{"overlap exceeds chunk", func(c *Root) { c.Audio.OverlapSec = c.Audio.ChunkSec }},
		{"heads do not divide", func(c *Root) { c.Fusion.NHeads = 3 }},
		{"non-positive tr", func(c *Root) { c.Fusion.TR = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
