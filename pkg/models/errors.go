package models

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrMissingInput = errors.New("missing input")
	ErrShape        = errors.New("shape mismatch")
)

// MissingInputError reports an absent file or directory. Callers skip the
// affected unit and continue.
type MissingInputError struct {
	Path    string
	Subject string
	Segment string
	Stage   string
}

func (e *MissingInputError) Error() string {
	msg := "missing input " + e.Path
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Subject != "" || e.Segment != "" {
		msg += fmt.Sprintf(" (subject=%s segment=%s)", e.Subject, e.Segment)
	}
	return msg
}

func (e *MissingInputError) Is(target error) bool { return target == ErrMissingInput }

// ShapeError reports a feature-dimension mismatch between sequences that
// were expected to align. It is fatal for the unit of work only.
type ShapeError struct {
	Op     string
	Want   int
	Got    int
	Detail string
}

func (e *ShapeError) Error() string {
	msg := fmt.Sprintf("%s: want dim %d, got %d", e.Op, e.Want, e.Got)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ShapeError) Is(target error) bool { return target == ErrShape }

// DimensionCapWarning records that requested components exceeded the
// feasible rank and were capped. It is logged, never returned.
type DimensionCapWarning struct {
	Requested  int
	Capped     int
	Timepoints int
}

func (w DimensionCapWarning) String() string {
	return fmt.Sprintf("reducing components %d -> %d (limited by %d timepoints)",
		w.Requested, w.Capped, w.Timepoints)
}

// PartialCoverageWarning records that only some subjects produced output
// for a segment/mode pair.
type PartialCoverageWarning struct {
	Segment  string
	Mode     string
	Have     int
	Expected int
}

func (w PartialCoverageWarning) String() string {
	return fmt.Sprintf("segment %s mode %s: %d of %d subjects available",
		w.Segment, w.Mode, w.Have, w.Expected)
}
