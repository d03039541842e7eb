package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/himanishpuri/NeuroMotion/internal/nn"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

// exerciseStore runs the shared Store contract.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if ok, err := st.Exists(ctx, "a/b.bin"); err != nil || ok {
		t.Fatalf("Expected absent object, got ok=%v err=%v", ok, err)
	}
	if _, err := st.Get(ctx, "a/b.bin"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Expected fs.ErrNotExist, got %v", err)
	}
	if err := st.Put(ctx, "a/b.bin", []byte("one")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := st.Put(ctx, "a/b.bin", []byte("two")); err != nil {
		t.Fatalf("Put overwrite failed: %v", err)
	}
	got, err := st.Get(ctx, "a/b.bin")
	if err != nil || string(got) != "two" {
		t.Fatalf("Expected \"two\", got %q (%v)", got, err)
	}
	if ok, _ := st.Exists(ctx, "a/b.bin"); !ok {
		t.Error("Expected object to exist")
	}
	if err := st.Delete(ctx, "a/b.bin"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := st.Delete(ctx, "a/b.bin"); err != nil {
		t.Errorf("Expected idempotent delete, got %v", err)
	}
}

func TestLocalStore(t *testing.T) {
	exerciseStore(t, NewLocal(t.TempDir()))
}

func TestLocalStoreAbsolutePath(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "x", "y.bin")
	st := NewLocal("relative-root")
	if err := st.Put(context.Background(), abs, []byte("z")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ok, _ := st.Exists(context.Background(), abs); !ok {
		t.Error("Expected absolute path to be used as given")
	}
}

func TestS3Store(t *testing.T) {
	mock := newMockS3()
	exerciseStore(t, NewS3(mock, "bucket", "/runs/"))

	st := NewS3(mock, "bucket", "runs")
	if err := st.Put(context.Background(), "/out/x.msgpack", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if _, ok := mock.objects["runs/out/x.msgpack"]; !ok {
		t.Errorf("Expected key under prefix, got %v", mock.objects)
	}
}

func TestSequenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewLocal(t.TempDir())
	seq, _ := models.SequenceFromRows([][]float64{{1, 2, 3}, {4, 5, 6}})

	if err := PutSequence(ctx, st, "s.msgpack", seq); err != nil {
		t.Fatalf("PutSequence failed: %v", err)
	}
	got, err := GetSequence(ctx, st, "s.msgpack", "test")
	if err != nil {
		t.Fatalf("GetSequence failed: %v", err)
	}
	if got.Len() != 2 || got.Dim() != 3 || got.At(1, 2) != 6 {
		t.Errorf("Unexpected sequence %s %v", got, got.Data)
	}

	empty := models.NewSequence(0, 768)
	if err := PutSequence(ctx, st, "e.msgpack", empty); err != nil {
		t.Fatal(err)
	}
	got, err = GetSequence(ctx, st, "e.msgpack", "test")
	if err != nil || got.Len() != 0 || got.Dim() != 768 {
		t.Errorf("Expected 0×768, got %v (%v)", got, err)
	}

	if _, err := GetSequence(ctx, st, "none.msgpack", "test"); !errors.Is(err, models.ErrMissingInput) {
		t.Errorf("Expected ErrMissingInput, got %v", err)
	}
}

func TestDecodeSequenceShapeMismatch(t *testing.T) {
	data, err := msgpack.Marshal(array{Shape: [2]int{2, 2}, Data: []float64{1, 2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeSequence(data); !errors.Is(err, models.ErrShape) {
		t.Errorf("Expected ErrShape, got %v", err)
	}
}

func TestJSONSidecar(t *testing.T) {
	ctx := context.Background()
	st := NewLocal(t.TempDir())
	in := SegmentMeta{Subject: "sub-01", Segment: "seg1", NTR: 120, Runs: []string{"run1.nii.gz"}}
	if err := PutJSON(ctx, st, "m.json", in); err != nil {
		t.Fatal(err)
	}
	var out SegmentMeta
	if err := GetJSON(ctx, st, "m.json", "test", &out); err != nil {
		t.Fatal(err)
	}
	if out.NTR != 120 || out.Runs[0] != "run1.nii.gz" {
		t.Errorf("Unexpected meta %+v", out)
	}
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewLocal(t.TempDir())
	sd := nn.StateDict{"fc.weight": {Shape: []int{2, 3}, Data: []float64{1, 2, 3, 4, 5, 6}}}
	if err := PutState(ctx, st, "models/w.msgpack", sd); err != nil {
		t.Fatalf("PutState failed: %v", err)
	}
	got, err := GetState(ctx, st, "models/w.msgpack", "test")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if w := got["fc.weight"]; len(w.Data) != 6 || w.Data[5] != 6 || w.Shape[1] != 3 {
		t.Errorf("Unexpected tensor %+v", w)
	}
	if _, err := GetState(ctx, st, "models/none.msgpack", "test"); !errors.Is(err, models.ErrMissingInput) {
		t.Errorf("Expected ErrMissingInput, got %v", err)
	}
}

func TestLayout(t *testing.T) {
	l := Layout{FMRIOut: "out/fmri", AudioOut: "out/audio", FusionOut: "out/fusion", MotionDir: "motion", ModelDir: "models"}
	tests := []struct {
		got, want string
	}{
		{l.RunEmbedding("sub-01", "seg1", "run1.nii.gz"), "out/fmri/sub-01/seg1/run1.nii.gz_embeddings.msgpack"},
		{l.SegmentEmbedding("sub-01", "seg1"), "out/fmri/sub-01/seg1/seg1_avg_embeddings.msgpack"},
		{l.SegmentMeta("sub-01", "seg1"), "out/fmri/sub-01/seg1/seg1_meta.json"},
		{l.AudioEmbedding("seg1_full", 2), "out/audio/seg1_full_w2v2_2s.msgpack"},
		{l.AudioMeta("seg1", 1.5), "out/audio/seg1_w2v2_1.5s_meta.json"},
		{l.Fused("sub-01", "seg1"), "out/fusion/sub-01/seg1_fused_embeddings.msgpack"},
		{l.FusedMeta("sub-01", "seg1"), "out/fusion/sub-01/seg1_fused_meta.json"},
		{l.Motion("seg1"), "motion/seg1_motion.msgpack"},
		{l.Checkpoint("fusion"), "models/motion_decoder_fusion.msgpack"},
		{l.FusionWeights(), "models/cross_attention_fusion.msgpack"},
		{l.Projection("fmri"), "models/projection_fmri.msgpack"},
		{l.Frame("videos", "sub-01", "seg1", 3), "videos/sub-01/seg1/frame_0003.png"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, tt.got)
		}
	}
}
