package backend

import (
	"testing"

	"github.com/armtc/transcoder/internal/hwprobe"
)

func TestSelectNVENCPrefersHandbrake(t *testing.T) {
	caps := hwprobe.Capabilities{HandbrakeNVENC: true, FFmpegHEVCNVENC: true}
	sel := Select("nvenc_h265", caps)
	if sel.Backend != Handbrake || sel.Family != FamilyNVENC {
		t.Errorf("got %+v, want handbrake/nvenc", sel)
	}
}

func TestSelectNVENCFallsBackToFFmpeg(t *testing.T) {
	caps := hwprobe.Capabilities{FFmpegHEVCNVENC: true}
	sel := Select("nvenc_h265", caps)
	if sel.Backend != FFmpeg || sel.Family != FamilyNVENC {
		t.Errorf("got %+v, want ffmpeg/nvenc", sel)
	}
}

func TestSelectNVENCWarnsButStillAttemptsWhenNeitherAvailable(t *testing.T) {
	sel := Select("nvenc_h265", hwprobe.Capabilities{})
	if sel.Backend != FFmpeg || sel.Family != FamilyNVENC {
		t.Errorf("got %+v, want ffmpeg/nvenc even with no capability flags", sel)
	}
}

func TestSelectQSVVAAPIAMFSoftwareAlwaysFFmpeg(t *testing.T) {
	cases := []struct {
		requested string
		family    Family
	}{
		{"qsv_h265", FamilyQSV},
		{"vaapi_h265", FamilyVAAPI},
		{"amf_h265", FamilyAMF},
		{"x265", FamilySoftware},
		{"x264", FamilySoftware},
	}
	for _, c := range cases {
		sel := Select(c.requested, hwprobe.Capabilities{})
		if sel.Backend != FFmpeg || sel.Family != c.family {
			t.Errorf("Select(%q) = %+v, want ffmpeg/%s", c.requested, sel, c.family)
		}
	}
}

func TestSelectUnknownDefaultsToHandbrake(t *testing.T) {
	sel := Select("some_custom_encoder", hwprobe.Capabilities{})
	if sel.Backend != Handbrake || sel.Family != FamilyUnknown {
		t.Errorf("got %+v, want handbrake/unknown", sel)
	}
}

type fakeConfig struct {
	overridden map[string]bool
	values     map[string]string
}

func (f *fakeConfig) IsOverridden(key string) bool { return f.overridden[key] }
func (f *fakeConfig) SetDefault(key, value string) {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
}

func TestApplyGPUDefaultsSkipsOverriddenKeys(t *testing.T) {
	cfg := &fakeConfig{overridden: map[string]bool{"video_encoder": true}}
	ApplyGPUDefaults(cfg, FamilyNVENC)

	if _, set := cfg.values["video_encoder"]; set {
		t.Error("video_encoder is overridden, should not be touched")
	}
	if cfg.values["handbrake_preset"] == "" {
		t.Error("handbrake_preset should have received a default")
	}
}

func TestBestAvailableFamilyPriority(t *testing.T) {
	caps := hwprobe.Capabilities{FFmpegHEVCVAAPI: true, FFmpegHEVCQSV: true}
	if got := BestAvailableFamily(caps); got != FamilyQSV {
		t.Errorf("BestAvailableFamily = %s, want qsv (qsv beats vaapi)", got)
	}
}

func TestBestAvailableFamilySoftwareFallback(t *testing.T) {
	if got := BestAvailableFamily(hwprobe.Capabilities{}); got != FamilySoftware {
		t.Errorf("BestAvailableFamily = %s, want software", got)
	}
}
