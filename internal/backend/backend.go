// Package backend implements the decision tree that maps a requested
// encoder name and the probed hardware capability map to a concrete
// backend and family (spec §4.4), plus the GPU-aware configuration
// defaulting that follows selection.
package backend

import (
	"strings"

	"github.com/armtc/transcoder/internal/hwprobe"
	"github.com/armtc/transcoder/internal/logger"
)

// Name is the external-process tool a job's encode step invokes.
type Name string

const (
	Handbrake Name = "handbrake"
	FFmpeg    Name = "ffmpeg"
)

// Family is the hardware path used by the backend.
type Family string

const (
	FamilyNVENC    Family = "nvenc"
	FamilyQSV      Family = "qsv"
	FamilyVAAPI    Family = "vaapi"
	FamilyAMF      Family = "amf"
	FamilySoftware Family = "software"
	FamilyUnknown  Family = "unknown"
)

// Selection is the resolved (backend, family) pair spec §4.4 produces.
type Selection struct {
	Backend Name
	Family  Family
}

// deriveFamily implements rule 1 of spec §4.4: a substring search in the
// requested encoder name.
func deriveFamily(requestedEncoder string) Family {
	lower := strings.ToLower(requestedEncoder)
	switch {
	case strings.Contains(lower, "nvenc"):
		return FamilyNVENC
	case strings.Contains(lower, "qsv"):
		return FamilyQSV
	case strings.Contains(lower, "vaapi"):
		return FamilyVAAPI
	case strings.Contains(lower, "amf"):
		return FamilyAMF
	case strings.Contains(lower, "x264"), strings.Contains(lower, "x265"):
		return FamilySoftware
	default:
		return FamilyUnknown
	}
}

// Select implements the ordered decision rules of spec §4.4.
func Select(requestedEncoder string, caps hwprobe.Capabilities) Selection {
	family := deriveFamily(requestedEncoder)

	switch family {
	case FamilyNVENC:
		if caps.HandbrakeNVENC {
			return Selection{Backend: Handbrake, Family: FamilyNVENC}
		}
		if !caps.FFmpegHEVCNVENC {
			logger.Warn("backend: nvenc requested but neither handbrake nor ffmpeg report the capability; attempting ffmpeg anyway")
		}
		return Selection{Backend: FFmpeg, Family: FamilyNVENC}

	case FamilyQSV:
		if !caps.HWDevicePresent {
			logger.Warn("backend: qsv requested but no shared hardware device node detected")
		}
		return Selection{Backend: FFmpeg, Family: FamilyQSV}

	case FamilyVAAPI:
		if !caps.HWDevicePresent {
			logger.Warn("backend: vaapi requested but no shared hardware device node detected")
		}
		return Selection{Backend: FFmpeg, Family: FamilyVAAPI}

	case FamilyAMF:
		return Selection{Backend: FFmpeg, Family: FamilyAMF}

	case FamilySoftware:
		return Selection{Backend: FFmpeg, Family: FamilySoftware}

	default: // unknown
		return Selection{Backend: Handbrake, Family: FamilyUnknown}
	}
}

// gpuDefault is one row of the family-keyed default table consulted by
// ApplyGPUDefaults.
type gpuDefault struct {
	videoEncoder       string
	handbrakePreset    string
	handbrakePreset4K  string
	handbrakePresetDVD string
}

// gpuDefaults is the small table keyed by selected family (spec §4.4,
// "GPU-aware configuration defaults").
var gpuDefaults = map[Family]gpuDefault{
	FamilyNVENC: {
		videoEncoder:       "nvenc_h265",
		handbrakePreset:    "Fast 1080p30",
		handbrakePreset4K:  "Fast 2160p60",
		handbrakePresetDVD: "Fast 480p30",
	},
	FamilyQSV: {
		videoEncoder:       "qsv_h265",
		handbrakePreset:    "Fast 1080p30",
		handbrakePreset4K:  "Fast 2160p60",
		handbrakePresetDVD: "Fast 480p30",
	},
	FamilyVAAPI: {
		videoEncoder:       "vaapi_h265",
		handbrakePreset:    "Fast 1080p30",
		handbrakePreset4K:  "Fast 2160p60",
		handbrakePresetDVD: "Fast 480p30",
	},
	FamilyAMF: {
		videoEncoder:       "amf_h265",
		handbrakePreset:    "Fast 1080p30",
		handbrakePreset4K:  "Fast 2160p60",
		handbrakePresetDVD: "Fast 480p30",
	},
	FamilySoftware: {
		videoEncoder:       "x265",
		handbrakePreset:    "HQ 1080p30 Surround",
		handbrakePreset4K:  "HQ 2160p60 Surround",
		handbrakePresetDVD: "",
	},
}

// BestAvailableFamily picks the first available family, in the priority
// order spec §4.4 specifies (nvenc > qsv > vaapi > amf > software).
func BestAvailableFamily(caps hwprobe.Capabilities) Family {
	switch {
	case caps.HandbrakeNVENC || caps.FFmpegHEVCNVENC:
		return FamilyNVENC
	case caps.FFmpegHEVCQSV:
		return FamilyQSV
	case caps.FFmpegHEVCVAAPI:
		return FamilyVAAPI
	case caps.FFmpegHEVCAMF:
		return FamilyAMF
	default:
		return FamilySoftware
	}
}

// ConfigSetter is the minimal surface ApplyGPUDefaults needs from the live
// configuration: check whether a key carries a persisted override, and
// set an un-overridden key's value.
type ConfigSetter interface {
	IsOverridden(key string) bool
	SetDefault(key, value string)
}

// ApplyGPUDefaults sets, for every configuration key with no user
// override, a family-appropriate default chosen from the small table
// above (spec §4.4). Hardware auto-resolution never touches an
// overridden key (spec §3.2).
func ApplyGPUDefaults(cfg ConfigSetter, family Family) {
	d, ok := gpuDefaults[family]
	if !ok {
		d = gpuDefaults[FamilySoftware]
	}

	setIfNotOverridden(cfg, "video_encoder", d.videoEncoder)
	setIfNotOverridden(cfg, "handbrake_preset", d.handbrakePreset)
	setIfNotOverridden(cfg, "handbrake_preset_4k", d.handbrakePreset4K)
	setIfNotOverridden(cfg, "handbrake_preset_dvd", d.handbrakePresetDVD)
}

func setIfNotOverridden(cfg ConfigSetter, key, value string) {
	if cfg.IsOverridden(key) {
		return
	}
	if value == "" {
		return
	}
	cfg.SetDefault(key, value)
}
