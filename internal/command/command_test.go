package command

import (
	"strings"
	"testing"

	"github.com/armtc/transcoder/internal/backend"
)

func basePresets() Presets {
	return Presets{Standard: "Fast 1080p30", FourK: "Fast 2160p60", DVD: "Fast 480p30"}
}

func TestBuildHandbrakeArgv(t *testing.T) {
	args, err := Build(Params{
		Tool: "HandBrakeCLI", Source: "/in.mkv", Output: "/out.mkv",
		Backend: backend.Handbrake, Family: backend.FamilyNVENC,
		RequestedEncoder: "nvenc_h265", Quality: 20, Audio: AudioCopy, Subtitle: SubtitleAll,
		SourceResolution: Resolution{Width: 1920, Height: 1080},
		Presets:          basePresets(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"-i /in.mkv", "-o /out.mkv", "--encoder nvenc_h265", "-q 20", "--preset Fast 1080p30"} {
		if !strings.Contains(joined, want) {
			t.Errorf("argv %q missing %q", joined, want)
		}
	}
	if strings.Contains(joined, "--width") {
		t.Errorf("argv %q should not upscale a 1080p source", joined)
	}
}

func TestBuildHandbrake4KPreset(t *testing.T) {
	args, err := Build(Params{
		Tool: "HandBrakeCLI", Backend: backend.Handbrake, Family: backend.FamilyNVENC,
		RequestedEncoder: "nvenc_h265", Audio: AudioCopy, Subtitle: SubtitleAll,
		SourceResolution: Resolution{Width: 3840, Height: 2160},
		Presets:          basePresets(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(strings.Join(args, " "), "--preset Fast 2160p60") {
		t.Errorf("expected 4K preset, got %v", args)
	}
}

func TestBuildHandbrakeDVDUpscale(t *testing.T) {
	args, err := Build(Params{
		Tool: "HandBrakeCLI", Backend: backend.Handbrake, Family: backend.FamilyNVENC,
		RequestedEncoder: "nvenc_h265", Audio: AudioCopy, Subtitle: SubtitleAll,
		SourceResolution: Resolution{Width: 720, Height: 480},
		Presets:          basePresets(),
	})
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--preset Fast 480p30") {
		t.Errorf("expected DVD preset, got %v", args)
	}
	if !strings.Contains(joined, "--width 1280") {
		t.Errorf("expected upscale --width 1280, got %v", args)
	}
}

func TestBuildHandbrakeDVDFallsBackToStandardWhenEmpty(t *testing.T) {
	presets := basePresets()
	presets.DVD = ""
	args, err := Build(Params{
		Tool: "HandBrakeCLI", Backend: backend.Handbrake, Family: backend.FamilyNVENC,
		RequestedEncoder: "nvenc_h265", Audio: AudioCopy, Subtitle: SubtitleAll,
		SourceResolution: Resolution{Width: 720, Height: 480},
		Presets:          presets,
	})
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--preset Fast 1080p30") {
		t.Errorf("expected standard preset fallback, got %v", args)
	}
	if strings.Contains(joined, "--width") {
		t.Errorf("should not upscale when falling back to standard, got %v", args)
	}
}

// TestDVDUpscaleScenario is spec §8 scenario 6.
func TestDVDUpscaleScenario(t *testing.T) {
	for _, tc := range []struct {
		family backend.Family
		want   string
	}{
		{backend.FamilySoftware, "scale=1280:-2"},
		{backend.FamilyNVENC, "scale_cuda=1280:-2"},
		{backend.FamilyVAAPI, "scale_vaapi=w=1280:h=-2"},
		{backend.FamilyQSV, "vpp_qsv=w=1280:h=-2"},
		{backend.FamilyAMF, "scale=1280:-2"},
	} {
		args, err := Build(Params{
			Tool: "ffmpeg", Source: "/in.mkv", Output: "/out.mkv",
			Backend: backend.FFmpeg, Family: tc.family,
			RequestedEncoder: string(tc.family) + "_h265", Quality: 20,
			Audio: AudioCopy, Subtitle: SubtitleAll,
			SourceResolution: Resolution{Width: 720, Height: 480},
		})
		if err != nil {
			t.Fatalf("family %s: %v", tc.family, err)
		}
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "-vf "+tc.want) {
			t.Errorf("family %s: argv %q missing -vf %q", tc.family, joined, tc.want)
		}
	}
}

func TestNoUpscaleFor1080p(t *testing.T) {
	args, err := Build(Params{
		Tool: "ffmpeg", Backend: backend.FFmpeg, Family: backend.FamilySoftware,
		RequestedEncoder: "x265", Audio: AudioCopy, Subtitle: SubtitleAll,
		SourceResolution: Resolution{Width: 1920, Height: 1080},
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(strings.Join(args, " "), "-vf") {
		t.Errorf("expected no -vf for a 1080p source, got %v", args)
	}
}

func TestBuildFFmpegRateControlPerFamily(t *testing.T) {
	for _, tc := range []struct {
		family backend.Family
		want   []string
	}{
		{backend.FamilyNVENC, []string{"-preset", "p4", "-cq", "20", "-b:v", "0"}},
		{backend.FamilyVAAPI, []string{"-rc_mode", "CQP", "-qp", "20"}},
		{backend.FamilyAMF, []string{"-rc", "cqp", "-qp_i", "20", "-qp_p", "20"}},
		{backend.FamilyQSV, []string{"-global_quality", "20"}},
		{backend.FamilySoftware, []string{"-crf", "20", "-preset", "medium"}},
	} {
		got := rateControlArgs(tc.family, 20)
		if strings.Join(got, " ") != strings.Join(tc.want, " ") {
			t.Errorf("family %s: got %v, want %v", tc.family, got, tc.want)
		}
	}
}

func TestBuildFFmpegAudioSubtitleModes(t *testing.T) {
	args, err := Build(Params{
		Tool: "ffmpeg", Backend: backend.FFmpeg, Family: backend.FamilySoftware,
		RequestedEncoder: "x265", Audio: AudioAAC, Subtitle: SubtitleFirst,
	})
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-c:a aac") {
		t.Errorf("expected -c:a aac, got %v", args)
	}
	if !strings.Contains(joined, "-map 0:s:0? -c:s copy") {
		t.Errorf("expected first-subtitle mapping, got %v", args)
	}
}

func TestBuildFFmpegSubtitleNone(t *testing.T) {
	args, err := Build(Params{
		Tool: "ffmpeg", Backend: backend.FFmpeg, Family: backend.FamilySoftware,
		RequestedEncoder: "x265", Audio: AudioCopy, Subtitle: SubtitleNone,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(strings.Join(args, " "), "-sn") {
		t.Errorf("expected -sn, got %v", args)
	}
}

func TestBuildFFmpegVAAPIDeviceNode(t *testing.T) {
	args, err := Build(Params{
		Tool: "ffmpeg", Backend: backend.FFmpeg, Family: backend.FamilyVAAPI,
		RequestedEncoder: "vaapi_h265", Audio: AudioCopy, Subtitle: SubtitleAll,
		DeviceNode: "/dev/dri/renderD129",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(strings.Join(args, " "), "-hwaccel_device /dev/dri/renderD129") {
		t.Errorf("expected device node flag, got %v", args)
	}
}

func TestBuildRejectsUnsafeEncoderName(t *testing.T) {
	_, err := Build(Params{
		Tool: "ffmpeg", Backend: backend.FFmpeg, Family: backend.FamilySoftware,
		RequestedEncoder: "x265; rm -rf /", Audio: AudioCopy, Subtitle: SubtitleAll,
	})
	if err == nil {
		t.Fatal("expected rejection of unsafe encoder name")
	}
}

func TestBuildRejectsUnsafePresetName(t *testing.T) {
	_, err := Build(Params{
		Tool: "HandBrakeCLI", Backend: backend.Handbrake, Family: backend.FamilyNVENC,
		RequestedEncoder: "nvenc_h265", Audio: AudioCopy, Subtitle: SubtitleAll,
		Presets: Presets{Standard: "$(rm -rf /)"},
	})
	if err == nil {
		t.Fatal("expected rejection of unsafe preset name")
	}
}

func TestBuildRejectsInvalidAudioSubtitleModes(t *testing.T) {
	_, err := Build(Params{
		Tool: "ffmpeg", Backend: backend.FFmpeg, Family: backend.FamilySoftware,
		RequestedEncoder: "x265", Audio: "bogus", Subtitle: SubtitleAll,
	})
	if err == nil {
		t.Fatal("expected rejection of invalid audio mode")
	}

	_, err = Build(Params{
		Tool: "ffmpeg", Backend: backend.FFmpeg, Family: backend.FamilySoftware,
		RequestedEncoder: "x265", Audio: AudioCopy, Subtitle: "bogus",
	})
	if err == nil {
		t.Fatal("expected rejection of invalid subtitle mode")
	}
}
