package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/himanishpuri/NeuroMotion/internal/nn"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// array is the on-disk form of a Sequence.
type array struct {
	Shape [2]int    `msgpack:"shape"`
	Data  []float64 `msgpack:"data"`
}

func EncodeSequence(s *models.Sequence) ([]byte, error) {
	return msgpack.Marshal(array{Shape: [2]int{s.Len(), s.Dim()}, Data: s.Data})
}

func DecodeSequence(data []byte) (*models.Sequence, error) {
	var a array
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode array: %w", err)
	}
	rows, cols := a.Shape[0], a.Shape[1]
	if rows < 0 || cols < 0 || len(a.Data) != rows*cols {
		return nil, &models.ShapeError{Op: "decode array", Want: rows * cols, Got: len(a.Data),
			Detail: fmt.Sprintf("shape %v", a.Shape)}
	}
	if a.Data == nil {
		a.Data = []float64{}
	}
	return &models.Sequence{Rows: rows, Cols: cols, Data: a.Data}, nil
}

// PutSequence encodes and publishes s at path.
func PutSequence(ctx context.Context, st Store, path string, s *models.Sequence) error {
	data, err := EncodeSequence(s)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return st.Put(ctx, path, data)
}

// GetSequence loads the array at path. A missing object becomes a
// *models.MissingInputError for stage.
func GetSequence(ctx context.Context, st Store, path, stage string) (*models.Sequence, error) {
	data, err := st.Get(ctx, path)
	if err != nil {
		return nil, missing(err, path, stage)
	}
	return DecodeSequence(data)
}

// PutState publishes a parameter set.
func PutState(ctx context.Context, st Store, path string, sd nn.StateDict) error {
	data, err := msgpack.Marshal(sd)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return st.Put(ctx, path, data)
}

func GetState(ctx context.Context, st Store, path, stage string) (nn.StateDict, error) {
	data, err := st.Get(ctx, path)
	if err != nil {
		return nil, missing(err, path, stage)
	}
	var sd nn.StateDict
	if err := msgpack.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return sd, nil
}

// PutJSON publishes v as an indented JSON sidecar.
func PutJSON(ctx context.Context, st Store, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return st.Put(ctx, path, data)
}

func GetJSON(ctx context.Context, st Store, path, stage string, v any) error {
	data, err := st.Get(ctx, path)
	if err != nil {
		return missing(err, path, stage)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func missing(err error, path, stage string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &models.MissingInputError{Path: path, Stage: stage}
	}
	return err
}

// AllExist reports whether every path is present.
func AllExist(ctx context.Context, st Store, paths ...string) (bool, error) {
	for _, p := range paths {
		ok, err := st.Exists(ctx, p)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
