// Package video talks to the image-to-video generator and fixes how its
// random seed is derived from a motion embedding.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

const seedModulus = 1 << 31

// DeriveSeed maps a motion embedding to a generator seed:
// int(|mean*1e5 + std*1e4|) mod 2^31, with the sample standard deviation
// over all elements. Fewer than two elements count as zero spread.
func DeriveSeed(motion *models.Sequence) int64 {
	if motion.Len() == 0 || motion.Dim() == 0 {
		return 0
	}
	var mean, std float64
	if len(motion.Data) < 2 {
		mean = motion.Data[0]
	} else {
		mean, std = stat.MeanStdDev(motion.Data, nil)
	}
	v := math.Abs(mean*1e5 + std*1e4)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Mod(math.Floor(v), seedModulus))
}

var ErrNoFrames = errors.New("generator returned no frames")

// Request is the generator's input. SeedImage is an encoded image; Motion
// is the T×2 motion embedding.
type Request struct {
	SeedImage []byte      `json:"seed_image"`
	Motion    [][]float64 `json:"motion"`
	NumFrames int         `json:"num_frames"`
	FPS       float64     `json:"fps"`
	Seed      int64       `json:"seed"`
}

// Response holds encoded frames in order.
type Response struct {
	Frames [][]byte `json:"frames"`
	Seed   int64    `json:"seed"`
}

type Client struct {
	URL  string
	http *http.Client
}

func NewClient(url string) *Client {
	return &Client{URL: url, http: &http.Client{Timeout: 10 * time.Minute}}
}

// NewRequest builds a request whose seed is derived from motion.
func NewRequest(image []byte, motion *models.Sequence, numFrames int, fps float64) Request {
	rows := make([][]float64, motion.Len())
	for i := range rows {
		rows[i] = append([]float64(nil), motion.Row(i)...)
	}
	return Request{SeedImage: image, Motion: rows, NumFrames: numFrames, FPS: fps, Seed: DeriveSeed(motion)}
}

// Generate posts req to /generate.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/generate", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("video %s: %s", resp.Status, string(body))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("video decode: %w", err)
	}
	if len(out.Frames) == 0 {
		return nil, ErrNoFrames
	}
	return &out, nil
}
