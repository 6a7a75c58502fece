package worker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/armtc/transcoder/internal/catalog"
)

type fakeRunner struct {
	mu      sync.Mutex
	ran     []int64
	block   chan struct{}
	fail    bool
	panics  bool
}

func (f *fakeRunner) Run(ctx context.Context, jobID int64) error {
	f.mu.Lock()
	f.ran = append(f.ran, jobID)
	f.mu.Unlock()

	if f.panics {
		panic("boom")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ran)
}

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestLoopProcessesQueuedJob(t *testing.T) {
	cat := newTestCatalog(t)
	runner := &fakeRunner{}
	loop := New(cat, runner, 4, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { loop.Run(ctx); close(done) }()

	loop.Enqueue(1)
	deadline := time.After(time.Second)
	for runner.runCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("job was not processed in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestLoopRecoverRequeuesNonTerminalJobs(t *testing.T) {
	cat := newTestCatalog(t)
	id, err := cat.InsertJob("Title", "/raw/Title", "")
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	processing := catalog.StatusProcessing
	if err := cat.UpdateJob(id, catalog.JobPatch{Status: &processing}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	runner := &fakeRunner{}
	loop := New(cat, runner, 4, 50*time.Millisecond)

	if err := loop.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	job, err := cat.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != catalog.StatusPending {
		t.Errorf("status after recover = %s, want pending", job.Status)
	}
	if loop.QueueSize() != 1 {
		t.Errorf("QueueSize = %d, want 1", loop.QueueSize())
	}
}

func TestLoopSurvivesPanic(t *testing.T) {
	cat := newTestCatalog(t)
	runner := &fakeRunner{panics: true}
	loop := New(cat, runner, 4, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { loop.Run(ctx); close(done) }()

	loop.Enqueue(1)
	loop.Enqueue(2)

	// The loop sleeps panicRecoveryDelay after the first panic before it
	// dequeues the second job.
	deadline := time.After(panicRecoveryDelay + 2*time.Second)
	for runner.runCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("loop did not process both jobs after a panic")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestLoopForceCancelsAfterGracefulTimeout(t *testing.T) {
	cat := newTestCatalog(t)
	runner := &fakeRunner{block: make(chan struct{})}
	loop := New(cat, runner, 4, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { loop.Run(ctx); close(done) }()

	loop.Enqueue(1)
	for runner.runCount() == 0 {
		time.Sleep(2 * time.Millisecond)
	}

	cancel() // job is still blocked; Run must return within the graceful timeout
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after graceful shutdown timeout")
	}
}

func TestCurrentJobPublishedDuringRun(t *testing.T) {
	cat := newTestCatalog(t)
	block := make(chan struct{})
	runner := &fakeRunner{block: block}
	loop := New(cat, runner, 4, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { loop.Run(ctx); close(done) }()

	loop.Enqueue(42)
	deadline := time.After(time.Second)
	for loop.CurrentJob() != 42 {
		select {
		case <-deadline:
			t.Fatal("current job was never published")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(block)
	cancel()
	<-done
}
