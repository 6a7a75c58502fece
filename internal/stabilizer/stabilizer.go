// Package stabilizer blocks until a source directory's total byte size
// stops changing, used as a proxy for "upstream ripper has finished
// writing" (spec §4.7).
package stabilizer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// PollInterval is the fixed interval between size polls (spec §4.7).
const PollInterval = 5 * time.Second

// Options configures one Wait call.
type Options struct {
	// StabilizeWindow is how long the total size must remain unchanged
	// before the source is declared stable (spec §6 stabilize_seconds,
	// default 60s, lower-bound 10s).
	StabilizeWindow time.Duration
	// HardTimeout is the absolute ceiling on how long Wait may run before
	// returning ErrTimeout (spec §5, default 3600s / 1h).
	HardTimeout time.Duration
	// pollInterval overrides PollInterval; zero means use PollInterval.
	// Unexported — only tests need a faster cadence than the spec's fixed
	// 5s poll.
	pollInterval time.Duration
}

func (o Options) interval() time.Duration {
	if o.pollInterval > 0 {
		return o.pollInterval
	}
	return PollInterval
}

// Wait polls the total byte size of all regular files under dir at
// PollInterval until the size holds steady for opts.StabilizeWindow, or
// returns ErrTimeout once opts.HardTimeout has elapsed. It returns early
// with ctx.Err() if ctx is cancelled (spec §5 "Suspension points... the
// Stabilizer sleeps; the operation is cancellable on a shutdown signal").
func Wait(ctx context.Context, dir string, opts Options) error {
	interval := opts.interval()
	deadline := time.Now().Add(opts.HardTimeout)
	requiredStablePolls := int(opts.StabilizeWindow/interval) + 1
	if requiredStablePolls < 1 {
		requiredStablePolls = 1
	}

	var lastSize int64 = -1
	stablePolls := 0

	for {
		if time.Now().After(deadline) {
			return ErrTimeout
		}

		size, err := totalSize(dir)
		if err != nil {
			return err
		}

		if size == lastSize {
			stablePolls++
		} else {
			stablePolls = 1
			lastSize = size
		}

		if stablePolls >= requiredStablePolls {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// totalSize sums the size of every regular file under dir.
func totalSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
