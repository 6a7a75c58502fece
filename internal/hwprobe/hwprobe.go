// Package hwprobe inspects installed encoder binaries once at startup and
// returns an immutable capability map (spec §4.3, §3.3).
package hwprobe

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/armtc/transcoder/internal/logger"
)

// DefaultDeviceNode is the shared VAAPI/QSV render node checked when no
// override is configured.
const DefaultDeviceNode = "/dev/dri/renderD128"

// queryTimeout bounds each metadata-query subprocess (spec §4.3: "a short
// timeout").
const queryTimeout = 10 * time.Second

// Capabilities is the immutable, one-per-process-lifetime capability map
// (spec §3.3): boolean flags per (backend, codec) pair, plus whether the
// shared hardware device node is present.
type Capabilities struct {
	HandbrakeNVENC   bool
	FFmpegHEVCNVENC  bool
	FFmpegHEVCVAAPI  bool
	FFmpegHEVCQSV    bool
	FFmpegHEVCAMF    bool
	FFmpegSoftware   bool
	HWDevicePresent  bool
}

// Binaries names the external binaries the probe invokes. Zero-value
// fields default to the binary name on PATH.
type Binaries struct {
	HandbrakeCLI string
	FFmpeg       string
	DeviceNode   string
}

func (b Binaries) handbrake() string {
	if b.HandbrakeCLI == "" {
		return "HandBrakeCLI"
	}
	return b.HandbrakeCLI
}

func (b Binaries) ffmpeg() string {
	if b.FFmpeg == "" {
		return "ffmpeg"
	}
	return b.FFmpeg
}

func (b Binaries) deviceNode() string {
	if b.DeviceNode == "" {
		return DefaultDeviceNode
	}
	return b.DeviceNode
}

// Probe runs the one-shot startup inspection described in spec §4.3: for
// each known encoder binary, invoke a metadata query with a short
// timeout, treating any error as "absent," and parse the output for known
// encoder tokens.
func Probe(bin Binaries) Capabilities {
	var caps Capabilities

	if out, ok := run(bin.handbrake(), "--help"); ok {
		caps.HandbrakeNVENC = strings.Contains(out, "nvenc")
	} else {
		logger.Warn("hwprobe: HandBrakeCLI metadata query failed, treating as absent")
	}

	if out, ok := run(bin.ffmpeg(), "-hide_banner", "-encoders"); ok {
		caps.FFmpegHEVCNVENC = strings.Contains(out, "hevc_nvenc")
		caps.FFmpegHEVCVAAPI = strings.Contains(out, "hevc_vaapi")
		caps.FFmpegHEVCQSV = strings.Contains(out, "hevc_qsv")
		caps.FFmpegHEVCAMF = strings.Contains(out, "hevc_amf")
		caps.FFmpegSoftware = strings.Contains(out, "libx265") || strings.Contains(out, "libx264")
	} else {
		logger.Warn("hwprobe: ffmpeg metadata query failed, treating all ffmpeg families as absent")
	}

	caps.HWDevicePresent = deviceExists(bin.deviceNode())

	return caps
}

// run invokes name with args under a short timeout, returning the
// combined output and whether the output is usable. An error (missing
// binary, timeout, non-zero exit) that produced no output is reported as
// "absent"; an error that still produced output is reported as present.
func run(name string, args ...string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// Some tools (e.g. HandBrakeCLI --help) exit non-zero despite
		// printing usable output; still trust the text if we got any.
		if len(out) == 0 {
			return "", false
		}
	}
	return string(out), true
}

func deviceExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
