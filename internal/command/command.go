// Package command synthesizes the argv list for an external encoder
// invocation (spec §4.5): the integrated-tool preset-driven path and the
// general-tool rate-control/scaling path, for both of which every
// externally influenced string is validated before it reaches argv.
package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/armtc/transcoder/internal/backend"
)

// AudioMode is the configured audio handling (spec §6 audio_encoder).
type AudioMode string

const (
	AudioCopy AudioMode = "copy"
	AudioAAC  AudioMode = "aac"
	AudioAC3  AudioMode = "ac3"
	AudioEAC3 AudioMode = "eac3"
	AudioFLAC AudioMode = "flac"
	AudioMP3  AudioMode = "mp3"
)

// SubtitleMode is the configured subtitle handling (spec §6 subtitle_mode).
type SubtitleMode string

const (
	SubtitleAll   SubtitleMode = "all"
	SubtitleNone  SubtitleMode = "none"
	SubtitleFirst SubtitleMode = "first"
)

// Resolution is an optional (width, height) pair, as returned by the
// Command Synthesizer's caller having probed the source (spec §4.8 step
// 9). A zero Resolution means "unknown," which never triggers scaling.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) known() bool { return r.Height > 0 }

// Presets names the resolution-banded preset names the integrated tool
// selects among (spec §4.5, §6).
type Presets struct {
	Standard string
	FourK    string
	DVD      string // may be empty -> falls back to Standard
}

// Params is every input the Command Synthesizer needs to build one
// encoder invocation's argv (spec §4.5).
type Params struct {
	Tool             string // path to the integrated or general encoder binary
	Source           string
	Output           string
	Backend          backend.Name
	Family           backend.Family
	RequestedEncoder string // passed through to --encoder for the integrated tool
	SourceResolution Resolution
	Quality          int // 0-51, lower is higher quality
	Audio            AudioMode
	Subtitle         SubtitleMode
	Presets          Presets
	DeviceNode       string // shared VAAPI/QSV render node
}

// presetNamePattern is the allow-list for preset names (spec §4.5):
// alphanumerics, space, hyphen, underscore, dot; length <= 100.
var presetNamePattern = regexp.MustCompile(`^[A-Za-z0-9 \-_.]+$`)

// ValidatePresetName enforces the preset-name allow-list.
func ValidatePresetName(name string) error {
	if name == "" {
		return nil // empty is permitted (DVD preset falls back to standard)
	}
	if len(name) > 100 {
		return fmt.Errorf("%w: preset name exceeds 100 characters", ErrUnsafeArgument)
	}
	if !presetNamePattern.MatchString(name) {
		return fmt.Errorf("%w: preset name %q contains disallowed characters", ErrUnsafeArgument, name)
	}
	return nil
}

var encoderNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateEncoderName enforces the allow-list for the requested-encoder
// string before it reaches argv (spec §4.5, §7).
func ValidateEncoderName(name string) error {
	if name == "" || !encoderNamePattern.MatchString(name) {
		return fmt.Errorf("%w: encoder name %q is not allowed", ErrUnsafeArgument, name)
	}
	return nil
}

var validAudioModes = map[AudioMode]bool{
	AudioCopy: true, AudioAAC: true, AudioAC3: true, AudioEAC3: true, AudioFLAC: true, AudioMP3: true,
}

// ValidateAudioMode enforces the audio_encoder enum (spec §6).
func ValidateAudioMode(mode AudioMode) error {
	if !validAudioModes[mode] {
		return fmt.Errorf("%w: audio mode %q is not allowed", ErrUnsafeArgument, mode)
	}
	return nil
}

var validSubtitleModes = map[SubtitleMode]bool{
	SubtitleAll: true, SubtitleNone: true, SubtitleFirst: true,
}

// ValidateSubtitleMode enforces the subtitle_mode enum (spec §6).
func ValidateSubtitleMode(mode SubtitleMode) error {
	if !validSubtitleModes[mode] {
		return fmt.Errorf("%w: subtitle mode %q is not allowed", ErrUnsafeArgument, mode)
	}
	return nil
}

// audioCodecNames maps an AudioMode (other than copy) to its ffmpeg codec
// name for -c:a.
var audioCodecNames = map[AudioMode]string{
	AudioAAC:  "aac",
	AudioAC3:  "ac3",
	AudioEAC3: "eac3",
	AudioFLAC: "flac",
	AudioMP3:  "libmp3lame",
}

// Build synthesizes the full argv for p, routing to the integrated-tool
// or general-tool path per p.Backend. Every externally influenced string
// is validated first (spec §7); Build returns an error rather than ever
// emitting an unsafe argument.
func Build(p Params) ([]string, error) {
	if err := ValidateEncoderName(p.RequestedEncoder); err != nil {
		return nil, err
	}
	if err := ValidateAudioMode(p.Audio); err != nil {
		return nil, err
	}
	if err := ValidateSubtitleMode(p.Subtitle); err != nil {
		return nil, err
	}
	for _, name := range []string{p.Presets.Standard, p.Presets.FourK, p.Presets.DVD} {
		if err := ValidatePresetName(name); err != nil {
			return nil, err
		}
	}

	if p.Backend == backend.Handbrake {
		return buildHandbrake(p), nil
	}
	return buildFFmpeg(p), nil
}

// buildHandbrake assembles the integrated-tool argv (spec §4.5).
func buildHandbrake(p Params) []string {
	args := []string{p.Tool, "-i", p.Source, "-o", p.Output, "--encoder", p.RequestedEncoder,
		"-q", fmt.Sprintf("%d", p.Quality)}

	presetName, upscale := selectPreset(p.Presets, p.SourceResolution)
	args = append(args, "--preset", presetName)
	if upscale {
		args = append(args, "--width", "1280")
	}

	switch p.Audio {
	case AudioCopy:
		args = append(args, "--aencoder", "copy")
	default:
		args = append(args, "--aencoder", audioCodecNames[p.Audio])
	}

	switch p.Subtitle {
	case SubtitleAll:
		args = append(args, "--all-subtitles")
	case SubtitleNone:
		args = append(args, "--subtitle", "none")
	case SubtitleFirst:
		args = append(args, "--subtitle", "1")
	}

	return args
}

// selectPreset implements the resolution-banded preset selection of spec
// §4.5: a 4K preset when h > 1080, a 720p (DVD) preset when 0 < h < 720,
// otherwise standard. upscale is true exactly when the DVD preset fires
// on a sub-720p source, which the caller must follow with --width 1280.
func selectPreset(presets Presets, res Resolution) (name string, upscale bool) {
	if !res.known() {
		return presets.Standard, false
	}
	if res.Height > 1080 {
		return presets.FourK, false
	}
	if res.Height > 0 && res.Height < 720 {
		if presets.DVD != "" {
			return presets.DVD, true
		}
		return presets.Standard, false
	}
	return presets.Standard, false
}

// ffmpegCodecName maps (family, base codec) to the ffmpeg -c:v encoder
// name (spec §4.5). Codec is inferred from the requested-encoder name:
// any substring "264" selects H.264, otherwise HEVC.
func ffmpegCodecName(family backend.Family, h264 bool) string {
	switch family {
	case backend.FamilyNVENC:
		if h264 {
			return "h264_nvenc"
		}
		return "hevc_nvenc"
	case backend.FamilyVAAPI:
		if h264 {
			return "h264_vaapi"
		}
		return "hevc_vaapi"
	case backend.FamilyQSV:
		if h264 {
			return "h264_qsv"
		}
		return "hevc_qsv"
	case backend.FamilyAMF:
		if h264 {
			return "h264_amf"
		}
		return "hevc_amf"
	default:
		if h264 {
			return "libx264"
		}
		return "libx265"
	}
}

// buildFFmpeg assembles the general-tool argv (spec §4.5).
func buildFFmpeg(p Params) []string {
	args := []string{p.Tool}

	// Input hardware-acceleration flags per family.
	switch p.Family {
	case backend.FamilyNVENC:
		args = append(args, "-hwaccel", "cuda")
	case backend.FamilyVAAPI:
		device := p.DeviceNode
		if device == "" {
			device = "/dev/dri/renderD128"
		}
		args = append(args, "-hwaccel", "vaapi", "-hwaccel_device", device)
	case backend.FamilyQSV:
		args = append(args, "-hwaccel", "qsv")
	}

	args = append(args, "-i", p.Source)

	h264 := false // codec selection defaults to HEVC; H.264 variants exist
	// in the lookup table for a caller that requests one explicitly via
	// RequestedEncoder (spec §4.5's per-family codec-name table lists
	// both hevc_* and h264_* names).
	if containsH264(p.RequestedEncoder) {
		h264 = true
	}
	args = append(args, "-c:v", ffmpegCodecName(p.Family, h264))

	args = append(args, rateControlArgs(p.Family, p.Quality)...)

	if scale := scalingFilter(p.Family, p.SourceResolution); scale != "" {
		args = append(args, "-vf", scale)
	}

	switch p.Audio {
	case AudioCopy:
		args = append(args, "-c:a", "copy")
	default:
		args = append(args, "-c:a", audioCodecNames[p.Audio])
	}

	switch p.Subtitle {
	case SubtitleAll:
		args = append(args, "-c:s", "copy")
	case SubtitleNone:
		args = append(args, "-sn")
	case SubtitleFirst:
		args = append(args, "-map", "0:s:0?", "-c:s", "copy")
	}

	args = append(args, p.Output)
	return args
}

func containsH264(encoderName string) bool {
	return strings.Contains(encoderName, "h264") || strings.Contains(encoderName, "264")
}

// rateControlArgs implements the per-family rate-control table of spec
// §4.5.
func rateControlArgs(family backend.Family, quality int) []string {
	q := fmt.Sprintf("%d", quality)
	switch family {
	case backend.FamilyNVENC:
		return []string{"-preset", "p4", "-cq", q, "-b:v", "0"}
	case backend.FamilyVAAPI:
		return []string{"-rc_mode", "CQP", "-qp", q}
	case backend.FamilyAMF:
		return []string{"-rc", "cqp", "-qp_i", q, "-qp_p", q}
	case backend.FamilyQSV:
		return []string{"-global_quality", q}
	default: // software
		return []string{"-crf", q, "-preset", "medium"}
	}
}

// scalingFilter returns the upscale filter matching the family's memory
// space, applied when the source resolution is sub-720p (spec §4.5).
// Empty string means no scaling.
func scalingFilter(family backend.Family, res Resolution) string {
	if !res.known() || res.Height >= 720 {
		return ""
	}
	switch family {
	case backend.FamilyNVENC:
		return "scale_cuda=1280:-2"
	case backend.FamilyVAAPI:
		return "scale_vaapi=w=1280:h=-2"
	case backend.FamilyQSV:
		return "vpp_qsv=w=1280:h=-2"
	default: // amf, software
		return "scale=1280:-2"
	}
}
