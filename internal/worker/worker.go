// Package worker implements the single-consumer loop that dequeues jobs
// and drives each through the Job Pipeline (spec §4.9).
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/armtc/transcoder/internal/catalog"
	"github.com/armtc/transcoder/internal/logger"
	"github.com/armtc/transcoder/internal/pipeline"
)

// queueAwaitTimeout bounds how long the loop waits for a queued job
// before re-checking the shutdown signal (spec §4.9 step 2).
const queueAwaitTimeout = 5 * time.Second

// panicRecoveryDelay is the sleep applied after an exception escapes the
// pipeline, before the loop resumes (spec §4.9 step 2).
const panicRecoveryDelay = 5 * time.Second

// DefaultGracefulShutdown is the default grace period an in-flight
// pipeline is given to finish once shutdown begins (spec §5, §6
// default 300s).
const DefaultGracefulShutdown = 300 * time.Second

// Runner is the minimal surface Loop needs from the Job Pipeline, kept as
// an interface so tests can substitute a fake without a real Catalog.
type Runner interface {
	Run(ctx context.Context, jobID int64) error
}

// Loop is the single-consumer worker loop of spec §4.9. The zero value is
// not usable; construct with New.
type Loop struct {
	cat             *catalog.Catalog
	pipeline        Runner
	queue           chan int64
	gracefulTimeout time.Duration

	mu         sync.RWMutex
	currentJob int64 // 0 means none

	running atomic.Bool
}

// New constructs a Loop. queueSize bounds the in-process FIFO (spec §4.9
// "in-process bounded queue"; this is not the durability mechanism, the
// Catalog is).
func New(cat *catalog.Catalog, p Runner, queueSize int, gracefulTimeout time.Duration) *Loop {
	if queueSize <= 0 {
		queueSize = 256
	}
	if gracefulTimeout <= 0 {
		gracefulTimeout = DefaultGracefulShutdown
	}
	return &Loop{
		cat:             cat,
		pipeline:        p,
		queue:           make(chan int64, queueSize),
		gracefulTimeout: gracefulTimeout,
	}
}

// Recover implements spec §4.9 step 1: demote every PROCESSING job back
// to PENDING and enqueue every non-terminal job, oldest first. Must run
// before the HTTP surface starts serving (spec §5 "Ordering guarantees").
func (l *Loop) Recover() error {
	if _, err := l.cat.ResetInFlight(); err != nil {
		return err
	}

	jobs, err := l.cat.SelectNonTerminalJobsOrderedByCreatedAt()
	if err != nil {
		return err
	}
	for _, j := range jobs {
		l.Enqueue(j.ID)
	}
	logger.Info("worker: recovery complete", "requeued", len(jobs))
	return nil
}

// Enqueue places a job id onto the in-process queue, blocking if it is
// momentarily full. The Catalog row already exists at PENDING; losing
// this handle would only delay processing, not lose the job, since a
// future restart's Recover would pick it up again.
func (l *Loop) Enqueue(jobID int64) {
	l.queue <- jobID
}

// QueueSize reports how many jobs are currently waiting in the in-process
// queue (spec §6 GET /health, GET /stats).
func (l *Loop) QueueSize() int {
	return len(l.queue)
}

// CurrentJob reports the id of the job presently being processed, or 0
// if the loop is idle (spec §5 "published fields").
func (l *Loop) CurrentJob() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.currentJob
}

// Running reports whether Run is presently executing its loop.
func (l *Loop) Running() bool {
	return l.running.Load()
}

func (l *Loop) setCurrent(jobID int64) {
	l.mu.Lock()
	l.currentJob = jobID
	l.mu.Unlock()
}

// Run is the main loop (spec §4.9 step 2). It returns once ctx is
// cancelled and any in-flight job has finished or been force-cancelled
// after the graceful shutdown timeout.
func (l *Loop) Run(ctx context.Context) {
	l.running.Store(true)
	defer l.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-l.queue:
			l.setCurrent(jobID)
			panicked := l.runJob(ctx, jobID)
			l.setCurrent(0)
			if panicked {
				time.Sleep(panicRecoveryDelay)
			}
		case <-time.After(queueAwaitTimeout):
			// No job within the timeout; loop back and re-check ctx.Done.
		}
	}
}

// runJob drives one job through the Pipeline, recovering from a panic so
// a single bad job can never take down the loop (spec §4.9, §7
// "the worker loop never crashes on a single job's failure"). It honors
// the graceful shutdown timeout: if ctx is already cancelled (or becomes
// cancelled mid-run), the pipeline is given gracefulTimeout to finish
// before its context is force-cancelled.
func (l *Loop) runJob(ctx context.Context, jobID int64) (panicked bool) {
	jobCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				logger.Error("worker: pipeline panicked", "job_id", jobID, "panic", r)
			}
		}()
		if err := l.pipeline.Run(jobCtx, jobID); err != nil {
			logger.Error("worker: job failed", "job_id", jobID, "error", err)
		}
	}()

	select {
	case <-done:
		return panicked
	case <-ctx.Done():
	}

	select {
	case <-done:
	case <-time.After(l.gracefulTimeout):
		logger.Warn("worker: graceful shutdown timeout exceeded, cancelling in-flight job", "job_id", jobID)
		cancel()
		<-done
	}
	return panicked
}
