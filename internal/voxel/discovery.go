package voxel

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// Segment is one stimulus segment directory of one subject.
type Segment struct {
	Subject string
	Name    string
	Dir     string
	Runs    []string // scan files, sorted
}

// Subjects lists subject directories directly under root, sorted.
func Subjects(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: root, Stage: "discovery"}
		}
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// SubjectScanRoot returns where a subject's segment tree lives. Datasets
// laid out as <root>/<subj>/video_fmri_dataset/<subj>/fmri use that nested
// directory; otherwise <root>/<subj> itself.
func SubjectScanRoot(root, subject string) string {
	nested := filepath.Join(root, subject, "video_fmri_dataset", subject, "fmri")
	if info, err := os.Stat(nested); err == nil && info.IsDir() {
		return nested
	}
	return filepath.Join(root, subject)
}

// FindSegments walks a subject tree for directories named seg* or test*
// and collects the scan files under each one's mni/ (or raw/) directory.
// Segments without a data directory are returned with no runs.
func FindSegments(subjectRoot, subject string, useMNI bool) ([]Segment, error) {
	dataDir := "raw"
	if useMNI {
		dataDir = "mni"
	}

	var segs []Segment
	err := filepath.WalkDir(subjectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == subjectRoot {
			return nil
		}
		name := d.Name()
		if !strings.HasPrefix(name, "seg") && !strings.HasPrefix(name, "test") {
			return nil
		}
		seg := Segment{Subject: subject, Name: name, Dir: path}
		runs, err := scanFiles(filepath.Join(path, dataDir))
		if err != nil {
			return err
		}
		seg.Runs = runs
		segs = append(segs, seg)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: subjectRoot, Subject: subject, Stage: "discovery"}
		}
		return nil, fmt.Errorf("failed to walk %s: %w", subjectRoot, err)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].Dir < segs[j].Dir })
	return segs, nil
}

func scanFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n := e.Name(); strings.HasSuffix(n, ".nii.gz") || strings.HasSuffix(n, ".nii") {
			out = append(out, filepath.Join(dir, n))
		}
	}
	sort.Strings(out)
	return out, nil
}
