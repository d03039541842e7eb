package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/himanishpuri/NeuroMotion/internal/artifact"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
	"github.com/himanishpuri/NeuroMotion/pkg/utils"
)

// ParseMotionCSV reads per-frame (magnitude, angle) rows. A header row is
// optional; when present, columns named magnitude and angle are used,
// otherwise the first two columns.
func ParseMotionCSV(path string) (*models.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: path, Stage: StageMotion}
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cols := [2]int{0, 1}
	if len(rows) > 0 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(rows[0][0]), 64); err != nil {
			header := rows[0]
			for i, name := range []string{"magnitude", "angle"} {
				if j := slices.Index(header, name); j >= 0 {
					cols[i] = j
				}
			}
			rows = rows[1:]
		}
	}

	out := models.NewSequence(len(rows), 2)
	for i, row := range rows {
		for k, c := range cols {
			if c >= len(row) {
				return nil, fmt.Errorf("%s row %d: expected at least %d fields, got %d", path, i+1, c+1, len(row))
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
			}
			out.Data[i*2+k] = v
		}
	}
	return out, nil
}

// ImportMotion publishes a motion CSV as the segment's target sequence.
// An empty segment is derived from the file name, dropping a trailing
// "_motion".
func (s *PipelineService) ImportMotion(ctx context.Context, path, segment string) (string, error) {
	if segment == "" {
		segment = strings.TrimSuffix(utils.TrimExt(path), "_motion")
	}
	seq, err := ParseMotionCSV(path)
	if err != nil {
		return "", err
	}
	out := s.layout.Motion(segment)
	if err := artifact.PutSequence(ctx, s.store, out, seq); err != nil {
		return "", err
	}
	if _, err := s.ledger.Complete(ctx, StageMotion, segment, []string{out}); err != nil {
		return "", err
	}
	s.log.WithFields(map[string]any{"segment": segment, "stage": StageMotion}).Infof("imported %d frames", seq.Len())
	return out, nil
}
