package evaluate

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/NeuroMotion/internal/nn"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

type fakeSource struct {
	motion map[string]*models.Sequence
	emb    map[string]*models.Sequence // key mode/subject/segment
}

func newFakeSource() *fakeSource {
	return &fakeSource{motion: map[string]*models.Sequence{}, emb: map[string]*models.Sequence{}}
}

func (f *fakeSource) Motion(_ context.Context, seg string) (*models.MotionTargetSequence, error) {
	m, ok := f.motion[seg]
	if !ok {
		return nil, &models.MissingInputError{Path: seg + "_motion", Segment: seg}
	}
	return &models.MotionTargetSequence{Sequence: m, FPS: 4}, nil
}

func (f *fakeSource) Embedding(_ context.Context, mode Mode, subj, seg string) (*models.Sequence, error) {
	e, ok := f.emb[string(mode)+"/"+subj+"/"+seg]
	if !ok {
		return nil, &models.MissingInputError{Path: seg, Subject: subj, Segment: seg}
	}
	return e, nil
}

func (f *fakeSource) put(mode Mode, subj, seg string, s *models.Sequence) {
	f.emb[string(mode)+"/"+subj+"/"+seg] = s
}

// echo predicts the first input column in both output channels.
type echo struct{ dim int }

func (e echo) InDim() int { return e.dim }

func (e echo) Predict(_ context.Context, x *models.Sequence) (*models.Sequence, error) {
	out := models.NewSequence(x.Len(), 2)
	for i := 0; i < x.Len(); i++ {
		out.Row(i)[0] = x.At(i, 0)
		out.Row(i)[1] = x.At(i, 0)
	}
	return out, nil
}

type zero struct{ dim int }

func (z zero) InDim() int { return z.dim }

func (z zero) Predict(_ context.Context, x *models.Sequence) (*models.Sequence, error) {
	return models.NewSequence(x.Len(), 2), nil
}

func constRows(rows, cols int, v float64) *models.Sequence {
	s := models.NewSequence(rows, cols)
	for i := range s.Data {
		s.Data[i] = v
	}
	return s
}

// blockMotion is frames at fps 4 where channel 0 equals the 1-based TR
// block index and channel 1 is 0.5.
func blockMotion(frames int) *models.Sequence {
	s := models.NewSequence(frames, 2)
	for i := 0; i < frames; i++ {
		s.Row(i)[0] = float64(i/8 + 1)
		s.Row(i)[1] = 0.5
	}
	return s
}

func TestEndToEndZeroPredictions(t *testing.T) {
	src := newFakeSource()
	src.motion["seg1"] = blockMotion(40)
	for _, subj := range []string{"sub-01", "sub-02"} {
		src.put(ModeFMRI, subj, "seg1", constRows(5, 4, 1))
		src.put(ModeFusion, subj, "seg1", constRows(5, 6, 1))
	}

	agg := NewAggregator(src, zero{4}, zero{6}, []string{"sub-01", "sub-02"}, 2.0, 4, nil, nil)
	recs, err := agg.Evaluate(context.Background(), []string{"seg1"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recs))
	}
	want := (1.0 + 4 + 9 + 16 + 25 + 5*0.25) / 10
	r := recs[0]
	if math.Abs(r.MSEFMRI-want) > 1e-12 || math.Abs(r.MSEFusion-want) > 1e-12 {
		t.Errorf("Expected mse %v for both modes, got %v and %v", want, r.MSEFMRI, r.MSEFusion)
	}
	if !math.IsNaN(r.CorrFMRI) || !math.IsNaN(r.CorrFusion) {
		t.Errorf("Expected NaN correlations for constant predictions, got %v and %v", r.CorrFMRI, r.CorrFusion)
	}
}

func TestExclusions(t *testing.T) {
	src := newFakeSource()
	subjects := []string{"sub-01", "sub-02"}

	src.motion["full"] = blockMotion(16)
	src.motion["nofusion"] = blockMotion(16)
	src.motion["short"] = blockMotion(7)
	src.motion["partial"] = blockMotion(16)
	for _, seg := range []string{"full", "nofusion", "short", "partial", "nomotion"} {
		for _, subj := range subjects {
			src.put(ModeFMRI, subj, seg, constRows(2, 4, 1))
			if seg == "nofusion" || (seg == "partial" && subj == "sub-02") {
				continue
			}
			src.put(ModeFusion, subj, seg, constRows(2, 6, 1))
		}
	}

	agg := NewAggregator(src, echo{4}, echo{6}, subjects, 2.0, 4, nil, nil)
	recs, err := agg.Evaluate(context.Background(), []string{"full", "nofusion", "short", "partial", "nomotion"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	got := map[string]bool{}
	for _, r := range recs {
		got[r.Segment] = true
	}
	if len(recs) != 2 || !got["full"] || !got["partial"] {
		t.Errorf("Expected records for full and partial only, got %v", got)
	}
}

func TestCrossSubjectAveraging(t *testing.T) {
	src := newFakeSource()
	gt := models.NewSequence(16, 2)
	for i := range gt.Data {
		gt.Data[i] = 2
	}
	src.motion["seg1"] = gt
	src.put(ModeFMRI, "a", "seg1", constRows(10, 4, 1))
	src.put(ModeFMRI, "b", "seg1", constRows(10, 4, 3))
	src.put(ModeFusion, "a", "seg1", constRows(10, 6, 2))

	agg := NewAggregator(src, echo{4}, echo{6}, []string{"a", "b"}, 2.0, 4, nil, nil)
	rec, ok, err := agg.EvaluateSegment(context.Background(), "seg1")
	if err != nil || !ok {
		t.Fatalf("Expected a record, got ok=%v err=%v", ok, err)
	}
	if rec.MSEFMRI != 0 {
		t.Errorf("Expected averaged predictions to match exactly, got mse %v", rec.MSEFMRI)
	}
	if rec.MSEFusion != 0 {
		t.Errorf("Expected mse 0 for fusion, got %v", rec.MSEFusion)
	}
}

func TestDimensionNegotiation(t *testing.T) {
	src := newFakeSource()
	src.motion["seg1"] = blockMotion(16)
	src.put(ModeFMRI, "a", "seg1", constRows(2, 3, 1))
	src.put(ModeFusion, "a", "seg1", constRows(2, 6, 1))

	proj := nn.NewLinear(3, 4, nn.NewRand(1))

	tests := []struct {
		name    string
		policy  Policy
		declare bool
		want    bool
	}{
		{"reject", PolicyReject, false, false},
		{"truncate pads", PolicyTruncate, false, true},
		{"project undeclared", PolicyProject, false, false},
		{"project declared", PolicyProject, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			neg := NewNegotiator(tt.policy)
			if tt.declare {
				if err := neg.Declare(3, 4, proj); err != nil {
					t.Fatal(err)
				}
			}
			agg := NewAggregator(src, echo{4}, echo{6}, []string{"a"}, 2.0, 4, neg, nil)
			_, ok, err := agg.EvaluateSegment(context.Background(), "seg1")
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.want {
				t.Errorf("Expected included=%v, got %v", tt.want, ok)
			}
		})
	}
}

func TestNegotiatorDeclareMismatch(t *testing.T) {
	neg := NewNegotiator(PolicyProject)
	if err := neg.Declare(5, 4, nn.NewLinear(3, 4, nn.NewRand(1))); err == nil {
		t.Error("Expected error declaring a 3→4 projection as 5→4")
	}
	if neg.Declared(5, 4) {
		t.Error("Expected nothing declared")
	}
	if _, err := ParsePolicy("guess"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestMetrics(t *testing.T) {
	a, _ := models.SequenceFromRows([][]float64{{1, 0}, {2, 0}, {3, 0}})
	b, _ := models.SequenceFromRows([][]float64{{2, 1}, {4, 1}, {6, 1}})

	if got := MSE(a, b); math.Abs(got-(1+1+4+1+9+1)/6.0) > 1e-12 {
		t.Errorf("Unexpected MSE %v", got)
	}
	if got := Pearson(a, b, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected correlation 1, got %v", got)
	}
	if got := Pearson(a, b, 1); !math.IsNaN(got) {
		t.Errorf("Expected NaN for constant channel, got %v", got)
	}
	if got := MSE(models.NewSequence(0, 2), b); !math.IsNaN(got) {
		t.Errorf("Expected NaN for empty input, got %v", got)
	}
}

func TestCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	recs := []models.MetricsRecord{
		{Segment: "seg1", MSEFMRI: 0.25, MSEFusion: 0.5, CorrFMRI: 0.1, CorrFusion: math.NaN()},
	}
	if err := WriteCSV(path, recs); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	got, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(got) != 1 || got[0].Segment != "seg1" || got[0].MSEFusion != 0.5 {
		t.Errorf("Unexpected records %+v", got)
	}
	if !math.IsNaN(got[0].CorrFusion) {
		t.Errorf("Expected NaN to survive, got %v", got[0].CorrFusion)
	}
}
