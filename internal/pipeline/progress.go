package pipeline

import (
	"regexp"
	"strconv"
	"time"

	"github.com/armtc/transcoder/internal/backend"
)

// handbrakePercent matches the integrated tool's progress token, e.g.
// "Encoding: task 1 of 1, 45.67 %" (spec §9 "Subprocess output parsing").
var handbrakePercent = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)

// ffmpegTime matches the general tool's progress token, e.g.
// "time=01:23:45.67" (spec §9).
var ffmpegTime = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2})(?:\.(\d+))?`)

// parseProgress extracts a 0-100 percentage from one line of an encoder
// subprocess's merged output stream, per the backend's progress dialect
// (spec §4.8 step 9). duration is the probed source duration, needed to
// turn the general tool's elapsed-time token into a percentage; a zero
// duration means "unknown," in which case an ffmpeg time token cannot
// yield a percentage and ok is false (spec §9: progress stays at its
// pre-encode floor).
func parseProgress(be backend.Name, line string, duration time.Duration) (percent float64, ok bool) {
	switch be {
	case backend.Handbrake:
		m := handbrakePercent.FindStringSubmatch(line)
		if m == nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return clampPercent(v), true

	default: // ffmpeg
		if duration <= 0 {
			return 0, false
		}
		m := ffmpegTime.FindStringSubmatch(line)
		if m == nil {
			return 0, false
		}
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.Atoi(m[3])
		elapsed := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
		if m[4] != "" {
			fracSecs, _ := strconv.ParseFloat("0."+m[4], 64)
			elapsed += time.Duration(fracSecs * float64(time.Second))
		}
		return clampPercent(float64(elapsed) / float64(duration) * 100), true
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
