package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// RemoteBackbone calls a feature server over HTTP (POST <url>/embed).
// The server owns the pretrained model; this side only ships samples.
type RemoteBackbone struct {
	URL        string
	ModelName  string
	Rate       int
	Hz         float64
	Dim        int
	HTTPClient *http.Client
}

type embedReq struct {
	Samples    []float64 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

type embedResp struct {
	Frames [][]float64 `json:"frames"`
	Dim    int         `json:"dim"`
}

func NewRemoteBackbone(url, name string, rate int, frameHz float64, dim int) *RemoteBackbone {
	return &RemoteBackbone{
		URL:        url,
		ModelName:  name,
		Rate:       rate,
		Hz:         frameHz,
		Dim:        dim,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (r *RemoteBackbone) Name() string { return r.ModelName }
func (r *RemoteBackbone) SampleRate() int { return r.Rate }
func (r *RemoteBackbone) FrameHz() float64 { return r.Hz }
func (r *RemoteBackbone) FeatureDim() int { return r.Dim }

func (r *RemoteBackbone) Embed(ctx context.Context, samples []float64) (*models.Sequence, error) {
	b, err := json.Marshal(embedReq{Samples: samples, SampleRate: r.Rate})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL+"/embed", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("backbone %s: %s", resp.Status, string(body))
	}

	var out embedResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("backbone decode: %w", err)
	}
	if len(out.Frames) == 0 {
		return models.NewSequence(0, r.Dim), nil
	}
	seq, err := models.SequenceFromRows(out.Frames)
	if err != nil {
		return nil, err
	}
	if seq.Dim() != r.Dim {
		return nil, &models.ShapeError{Op: "backbone embed", Want: r.Dim, Got: seq.Dim()}
	}
	return seq, nil
}
