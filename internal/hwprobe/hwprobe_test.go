package hwprobe

import (
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProbeParsesEncoderTokens(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg", `echo "V..... hevc_nvenc  NVIDIA NVENC hevc encoder"
echo "V..... hevc_vaapi  H.265/HEVC (VAAPI)"
echo "V..... libx265  libx265 H.265 / HEVC"
`)
	handbrake := writeScript(t, dir, "HandBrakeCLI", `echo "nvenc_h265 nvenc_h265_10bit"
exit 1
`)

	caps := Probe(Binaries{HandbrakeCLI: handbrake, FFmpeg: ffmpeg, DeviceNode: filepath.Join(dir, "missing")})

	if !caps.FFmpegHEVCNVENC {
		t.Error("expected FFmpegHEVCNVENC true")
	}
	if !caps.FFmpegHEVCVAAPI {
		t.Error("expected FFmpegHEVCVAAPI true")
	}
	if caps.FFmpegHEVCQSV {
		t.Error("expected FFmpegHEVCQSV false")
	}
	if !caps.FFmpegSoftware {
		t.Error("expected FFmpegSoftware true")
	}
	if !caps.HandbrakeNVENC {
		t.Error("expected HandbrakeNVENC true despite non-zero exit")
	}
	if caps.HWDevicePresent {
		t.Error("expected HWDevicePresent false for missing device node")
	}
}

func TestProbeMissingBinaryTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	caps := Probe(Binaries{
		HandbrakeCLI: filepath.Join(dir, "does-not-exist"),
		FFmpeg:       filepath.Join(dir, "also-missing"),
		DeviceNode:   filepath.Join(dir, "missing-device"),
	})
	if caps.HandbrakeNVENC || caps.FFmpegHEVCNVENC || caps.FFmpegSoftware {
		t.Errorf("expected all-absent capabilities, got %+v", caps)
	}
}

func TestProbeDeviceNodePresent(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "renderD128")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	caps := Probe(Binaries{
		HandbrakeCLI: filepath.Join(dir, "missing-hb"),
		FFmpeg:       filepath.Join(dir, "missing-ff"),
		DeviceNode:   node,
	})
	if !caps.HWDevicePresent {
		t.Error("expected HWDevicePresent true")
	}
}
