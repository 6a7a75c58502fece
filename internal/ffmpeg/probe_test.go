package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func getTestdataPath() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "testdata")
}

func TestProbe(t *testing.T) {
	testFile := filepath.Join(getTestdataPath(), "test_x264.mkv")
	if _, err := os.Stat(testFile); os.IsNotExist(err) {
		t.Skipf("test file not found: %s", testFile)
	}

	prober := NewProber("ffprobe")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := prober.Probe(ctx, testFile)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if result.Duration < 9*time.Second || result.Duration > 11*time.Second {
		t.Errorf("expected duration ~10s, got %v", result.Duration)
	}
	if result.Width != 1280 {
		t.Errorf("expected width 1280, got %d", result.Width)
	}
	if result.Height != 720 {
		t.Errorf("expected height 720, got %d", result.Height)
	}
}

func TestProbeNonExistent(t *testing.T) {
	prober := NewProber("ffprobe")
	_, err := prober.Probe(context.Background(), "/nonexistent/file.mkv")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/media/movie.mkv", true},
		{"/media/movie.MKV", true},
		{"/media/movie.mp4", false},
		{"/media/document.pdf", false},
		{"/media/audio.mp3", false},
	}
	for _, tt := range tests {
		if got := IsVideoFile(tt.path); got != tt.expected {
			t.Errorf("IsVideoFile(%s) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}

func TestIsAudioFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/media/track.flac", true},
		{"/media/track.mp3", true},
		{"/media/track.ogg", true},
		{"/media/track.wav", true},
		{"/media/track.m4a", true},
		{"/media/movie.mkv", false},
		{"/media/doc.txt", false},
	}
	for _, tt := range tests {
		if got := IsAudioFile(tt.path); got != tt.expected {
			t.Errorf("IsAudioFile(%s) = %v, expected %v", tt.path, got, tt.expected)
		}
	}
}
