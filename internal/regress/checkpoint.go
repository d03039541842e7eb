package regress

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/himanishpuri/NeuroMotion/internal/execctx"
	"github.com/himanishpuri/NeuroMotion/internal/nn"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
	"github.com/himanishpuri/NeuroMotion/pkg/utils"
)

// Checkpoint is a full decoder state plus the ridge statistics needed to
// resume fitting with more data.
type Checkpoint struct {
	Mode    string       `msgpack:"mode"`
	Arch    Arch         `msgpack:"arch"`
	Seed    uint64       `msgpack:"seed"`
	Samples int          `msgpack:"samples"`
	Gram    []float64    `msgpack:"gram,omitempty"`  // (D+1)×(D+1), bias last
	Cross   []float64    `msgpack:"cross,omitempty"` // (D+1)×Out
	Seen    []string     `msgpack:"seen,omitempty"`  // subject/segment pairs already accumulated
	State   nn.StateDict `msgpack:"state"`
}

// CheckpointName returns the file name for a decoder mode.
func CheckpointName(mode string) string {
	return "motion_decoder_" + mode + ".msgpack"
}

// CheckpointPath joins dir and the mode's file name.
func CheckpointPath(dir, mode string) string {
	return filepath.Join(dir, CheckpointName(mode))
}

func EncodeCheckpoint(ck *Checkpoint) ([]byte, error) {
	return msgpack.Marshal(ck)
}

func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	var ck Checkpoint
	if err := msgpack.Unmarshal(data, &ck); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &ck, nil
}

func SaveCheckpoint(path string, ck *Checkpoint) error {
	data, err := EncodeCheckpoint(ck)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return utils.WriteFileAtomic(path, data)
}

func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: path, Stage: "decoder"}
		}
		return nil, err
	}
	return DecodeCheckpoint(data)
}

// Checkpoint snapshots the decoder without ridge statistics.
func (d *Decoder) Checkpoint(mode string) *Checkpoint {
	return &Checkpoint{Mode: mode, Arch: d.Arch, Seed: d.seed, State: d.Params().State()}
}

// FromCheckpoint rebuilds a decoder with the checkpoint's architecture and
// restores all of its parameters.
func FromCheckpoint(ck *Checkpoint, ec execctx.Context) (*Decoder, error) {
	d, err := NewDecoder(ck.Arch, ck.Seed, ec)
	if err != nil {
		return nil, err
	}
	if _, err := d.LoadFull(ck.State); err != nil {
		return nil, err
	}
	return d, nil
}
