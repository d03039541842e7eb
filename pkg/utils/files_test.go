package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.bin")

	if err := WriteFileAtomic(path, []byte("hello")); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Expected hello, got %q", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the published file, found %d entries", len(entries))
	}
}

func TestTrimExt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/data/run-01.nii.gz", "run-01"},
		{"/data/run-01.nii", "run-01"},
		{"clip.wav", "clip"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := TrimExt(tt.in); got != tt.want {
			t.Errorf("TrimExt(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(file) || FileExists(dir) {
		t.Error("FileExists misreported")
	}
	if !DirExists(dir) || DirExists(file) {
		t.Error("DirExists misreported")
	}
}
