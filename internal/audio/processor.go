package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/NeuroMotion/pkg/utils"
)

// Transcoder decodes compressed stimulus formats (mp3, flac, m4a, ogg)
// into 16-bit mono PCM WAV by running ffmpeg.
type Transcoder struct {
	Binary     string        // defaults to "ffmpeg"
	SampleRate int           // output rate; 0 keeps 16000
	Timeout    time.Duration // applied when ctx has no deadline; 0 means 2m
}

func (t Transcoder) binary() string {
	if t.Binary == "" {
		return "ffmpeg"
	}
	return t.Binary
}

func (t Transcoder) rate() int {
	if t.SampleRate <= 0 {
		return 16000
	}
	return t.SampleRate
}

// Available reports whether the ffmpeg binary can be found.
func (t Transcoder) Available() bool {
	_, err := exec.LookPath(t.binary())
	return err == nil
}

func (t Transcoder) args(in, out string) []string {
	return []string{
		"-y", "-nostdin",
		"-v", "error",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(t.rate()),
		"-c:a", "pcm_s16le",
		out,
	}
}

// ToWAV writes <outputDir>/<stem>.wav and returns its path. The file only
// appears once ffmpeg has exited cleanly.
func (t Transcoder) ToWAV(ctx context.Context, inputPath, outputDir string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		timeout := t.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	outputPath := filepath.Join(outputDir, utils.TrimExt(inputPath)+".wav")
	partial := outputPath + ".part.wav"
	defer os.Remove(partial)

	out, err := exec.CommandContext(ctx, t.binary(), t.args(inputPath, partial)...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("transcode %s: %w", inputPath, ctx.Err())
		}
		return "", fmt.Errorf("transcode %s: %v: %s", inputPath, err, strings.TrimSpace(string(out)))
	}
	if err := utils.MoveFile(partial, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
