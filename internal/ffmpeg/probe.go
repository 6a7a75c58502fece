// Package ffmpeg wraps the out-of-band ffprobe query the Job Pipeline
// uses to determine a source file's resolution and duration (spec §4.8
// step 9, §9 "Subprocess output parsing").
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult is the subset of ffprobe's output the Command Synthesizer
// and the general-tool progress parser need.
type ProbeResult struct {
	Width    int
	Height   int
	Duration time.Duration
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Prober wraps ffprobe invocations.
type Prober struct {
	ffprobePath string
}

// NewProber creates a Prober that invokes the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath}
}

// Probe queries path for its first video stream's resolution and its
// container duration. On any failure the caller treats the result as
// "unknown resolution" and proceeds without scaling (spec §4.8 step 9).
func (p *Prober) Probe(ctx context.Context, path string) (ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe: parse output: %w", err)
	}

	var result ProbeResult
	if parsed.Format.Duration != "" {
		secs, _ := strconv.ParseFloat(parsed.Format.Duration, 64)
		result.Duration = time.Duration(secs * float64(time.Second))
	}
	for _, s := range parsed.Streams {
		if s.CodecType == "video" {
			result.Width = s.Width
			result.Height = s.Height
			break
		}
	}
	return result, nil
}

// IsVideoFile reports whether path's extension suggests a recognized
// video container (spec §4.6, §4.8 step 4: ".mkv").
func IsVideoFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".mkv")
}

// audioExtensions is the recognized audio set (spec §4.6).
var audioExtensions = []string{".flac", ".mp3", ".ogg", ".wav", ".m4a"}

// IsAudioFile reports whether path's extension is in the recognized audio
// set (spec §4.6).
func IsAudioFile(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
