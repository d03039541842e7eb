package voxel

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// NIfTI-1 datatype codes this reader understands.
const (
	niftiUint8   = 2
	niftiInt16   = 4
	niftiInt32   = 8
	niftiFloat32 = 16
	niftiFloat64 = 64
	niftiUint16  = 512
)

const niftiHeaderSize = 348

var ErrNotNIfTI = errors.New("not a NIfTI-1 file")

// ScanHeader holds the fields needed to unpack a 4D volume.
type ScanHeader struct {
	Dims      [8]int16
	Datatype  int16
	Bitpix    int16
	VoxOffset float32
	SclSlope  float32
	SclInter  float32
	ByteOrder binary.ByteOrder
}

// Timepoints is the last populated dimension (dim[4] for 4D data).
func (h *ScanHeader) Timepoints() int {
	if h.Dims[0] < 4 {
		return 1
	}
	return int(h.Dims[4])
}

// Voxels is the product of the spatial dimensions.
func (h *ScanHeader) Voxels() int {
	n := 1
	for i := 1; i <= 3 && i <= int(h.Dims[0]); i++ {
		n *= int(h.Dims[i])
	}
	return n
}

// ScanLoader supplies (voxel matrix, timepoint count) for a scan file.
type ScanLoader interface {
	Load(path string) (*models.Sequence, int, error)
}

// NIfTILoader reads .nii and .nii.gz volumes and reshapes them to T×V.
type NIfTILoader struct {
	NormalizePerRun bool
}

func (l NIfTILoader) Load(path string) (*models.Sequence, int, error) {
	ts, err := ReadNIfTI(path)
	if err != nil {
		return nil, 0, err
	}
	if l.NormalizePerRun {
		NormalizeColumns(ts)
	}
	return ts, ts.Len(), nil
}

// ReadNIfTI decodes a NIfTI-1 volume into a T×V sequence. Row t holds the
// voxels of volume t in file order; scl_slope and scl_inter are applied.
func ReadNIfTI(path string) (*models.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: path, Stage: "nifti"}
		}
		return nil, fmt.Errorf("failed to open scan: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	hdr, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	skip := int64(hdr.VoxOffset) - niftiHeaderSize
	if skip < 0 {
		return nil, fmt.Errorf("%s: vox_offset %v inside header", path, hdr.VoxOffset)
	}
	if _, err := io.CopyN(io.Discard, r, skip); err != nil {
		return nil, fmt.Errorf("%s: failed to seek to voxel data: %w", path, err)
	}

	t, v := hdr.Timepoints(), hdr.Voxels()
	if t <= 0 || v <= 0 {
		return nil, fmt.Errorf("%s: invalid dimensions %v", path, hdr.Dims)
	}

	slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
	if slope == 0 || math.IsNaN(slope) {
		slope, inter = 1, 0
	}

	out := models.NewSequence(t, v)
	read, err := sampleReader(hdr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	br := bufio.NewReaderSize(r, 1<<16)
	for ti := 0; ti < t; ti++ {
		row := out.Row(ti)
		for vi := range row {
			x, err := read(br)
			if err != nil {
				return nil, fmt.Errorf("%s: truncated voxel data at t=%d: %w", path, ti, err)
			}
			row[vi] = x*slope + inter
		}
	}
	return out, nil
}

func readHeader(r io.Reader) (*ScanHeader, error) {
	buf := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if int32(order.Uint32(buf[0:4])) != niftiHeaderSize {
		order = binary.BigEndian
		if int32(order.Uint32(buf[0:4])) != niftiHeaderSize {
			return nil, ErrNotNIfTI
		}
	}
	if magic := string(buf[344:347]); magic != "n+1" && magic != "ni1" {
		return nil, fmt.Errorf("%w: magic %q", ErrNotNIfTI, magic)
	}

	h := &ScanHeader{ByteOrder: order}
	for i := range h.Dims {
		h.Dims[i] = int16(order.Uint16(buf[40+2*i:]))
	}
	h.Datatype = int16(order.Uint16(buf[70:]))
	h.Bitpix = int16(order.Uint16(buf[72:]))
	h.VoxOffset = math.Float32frombits(order.Uint32(buf[108:]))
	h.SclSlope = math.Float32frombits(order.Uint32(buf[112:]))
	h.SclInter = math.Float32frombits(order.Uint32(buf[116:]))
	return h, nil
}

func sampleReader(h *ScanHeader) (func(*bufio.Reader) (float64, error), error) {
	order := h.ByteOrder
	var scratch [8]byte
	fill := func(r *bufio.Reader, n int) ([]byte, error) {
		_, err := io.ReadFull(r, scratch[:n])
		return scratch[:n], err
	}
	switch h.Datatype {
	case niftiUint8:
		return func(r *bufio.Reader) (float64, error) {
			b, err := r.ReadByte()
			return float64(b), err
		}, nil
	case niftiInt16:
		return func(r *bufio.Reader) (float64, error) {
			b, err := fill(r, 2)
			return float64(int16(order.Uint16(b))), err
		}, nil
	case niftiUint16:
		return func(r *bufio.Reader) (float64, error) {
			b, err := fill(r, 2)
			return float64(order.Uint16(b)), err
		}, nil
	case niftiInt32:
		return func(r *bufio.Reader) (float64, error) {
			b, err := fill(r, 4)
			return float64(int32(order.Uint32(b))), err
		}, nil
	case niftiFloat32:
		return func(r *bufio.Reader) (float64, error) {
			b, err := fill(r, 4)
			return float64(math.Float32frombits(order.Uint32(b))), err
		}, nil
	case niftiFloat64:
		return func(r *bufio.Reader) (float64, error) {
			b, err := fill(r, 8)
			return math.Float64frombits(order.Uint64(b)), err
		}, nil
	}
	return nil, fmt.Errorf("unsupported datatype %d", h.Datatype)
}

// WriteNIfTI writes ts as a float32 NIfTI-1 volume shaped (V,1,1,T).
// Used to produce fixtures and to export intermediate volumes.
func WriteNIfTI(path string, ts *models.Sequence) error {
	var w io.Writer
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}
	defer f.Close()
	w = f
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}

	le := binary.LittleEndian
	hdr := make([]byte, niftiHeaderSize+4)
	le.PutUint32(hdr[0:], niftiHeaderSize)
	dims := [8]int16{4, int16(ts.Dim()), 1, 1, int16(ts.Len()), 1, 1, 1}
	for i, d := range dims {
		le.PutUint16(hdr[40+2*i:], uint16(d))
	}
	le.PutUint16(hdr[70:], niftiFloat32)
	le.PutUint16(hdr[72:], 32)
	le.PutUint32(hdr[108:], math.Float32bits(niftiHeaderSize+4))
	le.PutUint32(hdr[112:], math.Float32bits(1))
	copy(hdr[344:], "n+1\x00")
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	buf := make([]byte, 4*len(ts.Data))
	for i, x := range ts.Data {
		le.PutUint32(buf[4*i:], math.Float32bits(float32(x)))
	}
	_, err = w.Write(buf)
	return err
}
