package catalog

import (
	"path/filepath"
	"testing"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	c, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInsertAndGetJob(t *testing.T) {
	c := openTestCatalog(t)

	id, err := c.InsertJob("Movie Title (2024)", "/raw/Movie Title (2024)", "")
	if err != nil {
		t.Fatalf("insert job: %v", err)
	}

	job, err := c.GetJob(id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != StatusPending {
		t.Errorf("expected status pending, got %s", job.Status)
	}
	if job.StartedAt != nil {
		t.Errorf("expected nil started_at for pending job")
	}
	if job.Title != "Movie Title (2024)" {
		t.Errorf("unexpected title: %s", job.Title)
	}
}

func TestGetJobNotFound(t *testing.T) {
	c := openTestCatalog(t)

	_, err := c.GetJob(999)
	if err == nil {
		t.Fatal("expected error for missing job")
	}
}

func TestUpdateJobPatch(t *testing.T) {
	c := openTestCatalog(t)
	id, _ := c.InsertJob("Title", "/raw/Title", "")

	status := StatusProcessing
	progress := 42.5
	if err := c.UpdateJob(id, JobPatch{Status: &status, Progress: &progress}); err != nil {
		t.Fatalf("update job: %v", err)
	}

	job, err := c.GetJob(id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", job.Status)
	}
	if job.Progress != 42.5 {
		t.Errorf("expected progress 42.5, got %f", job.Progress)
	}
}

func TestUpdateJobClearsErrorOnRetry(t *testing.T) {
	c := openTestCatalog(t)
	id, _ := c.InsertJob("Title", "/raw/Title", "")

	errMsg := "boom"
	if err := c.UpdateJob(id, JobPatch{Error: &errMsg}); err != nil {
		t.Fatalf("set error: %v", err)
	}

	if err := c.UpdateJob(id, JobPatch{ClearError: true}); err != nil {
		t.Fatalf("clear error: %v", err)
	}

	job, err := c.GetJob(id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Error != "" {
		t.Errorf("expected cleared error, got %q", job.Error)
	}
}

func TestDeleteJobRejectsProcessing(t *testing.T) {
	c := openTestCatalog(t)
	id, _ := c.InsertJob("Title", "/raw/Title", "")
	status := StatusProcessing
	c.UpdateJob(id, JobPatch{Status: &status})

	if err := c.DeleteJob(id); err == nil {
		t.Fatal("expected delete to be rejected while processing")
	}
}

func TestDeleteJobAllowedWhenTerminal(t *testing.T) {
	c := openTestCatalog(t)
	id, _ := c.InsertJob("Title", "/raw/Title", "")
	status := StatusFailed
	c.UpdateJob(id, JobPatch{Status: &status})

	if err := c.DeleteJob(id); err != nil {
		t.Fatalf("expected delete to succeed: %v", err)
	}
	if _, err := c.GetJob(id); err == nil {
		t.Fatal("expected job to be gone")
	}
}

func TestListJobsOrderedByCreatedAt(t *testing.T) {
	c := openTestCatalog(t)
	first, _ := c.InsertJob("First", "/raw/First", "")
	second, _ := c.InsertJob("Second", "/raw/Second", "")

	jobs, err := c.ListJobs(nil, 10, 0)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first || jobs[1].ID != second {
		t.Errorf("expected FIFO order by created_at, got %d, %d", jobs[0].ID, jobs[1].ID)
	}
}

func TestListJobsFilteredByStatus(t *testing.T) {
	c := openTestCatalog(t)
	id1, _ := c.InsertJob("A", "/raw/A", "")
	_, _ = c.InsertJob("B", "/raw/B", "")

	completed := StatusCompleted
	c.UpdateJob(id1, JobPatch{Status: &completed})

	jobs, err := c.ListJobs(&completed, 10, 0)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != id1 {
		t.Errorf("expected only job %d, got %+v", id1, jobs)
	}
}

func TestCountJobsByStatus(t *testing.T) {
	c := openTestCatalog(t)
	c.InsertJob("A", "/raw/A", "")
	c.InsertJob("B", "/raw/B", "")

	counts, err := c.CountJobsByStatus()
	if err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if counts[StatusPending] != 2 {
		t.Errorf("expected 2 pending, got %d", counts[StatusPending])
	}
}

func TestResetInFlightDemotesProcessingToPending(t *testing.T) {
	c := openTestCatalog(t)
	id, _ := c.InsertJob("A", "/raw/A", "")
	processing := StatusProcessing
	c.UpdateJob(id, JobPatch{Status: &processing})

	n, err := c.ResetInFlight()
	if err != nil {
		t.Fatalf("reset in flight: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 job reset, got %d", n)
	}

	job, err := c.GetJob(id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != StatusPending {
		t.Errorf("expected pending after recovery, got %s", job.Status)
	}
	if job.StartedAt != nil {
		t.Errorf("expected nil started_at after recovery")
	}
}

func TestSelectNonTerminalJobsOrderedByCreatedAt(t *testing.T) {
	c := openTestCatalog(t)
	pending, _ := c.InsertJob("Pending", "/raw/Pending", "")
	_, _ = c.InsertJob("Completed", "/raw/Completed", "")
	completedID := int64(2)
	completed := StatusCompleted
	c.UpdateJob(completedID, JobPatch{Status: &completed})

	jobs, err := c.SelectNonTerminalJobsOrderedByCreatedAt()
	if err != nil {
		t.Fatalf("select non terminal: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != pending {
		t.Errorf("expected only pending job, got %+v", jobs)
	}
}

func TestOverridesUpsertAndGetAll(t *testing.T) {
	c := openTestCatalog(t)

	if err := c.UpsertOverride("video_quality", "20"); err != nil {
		t.Fatalf("upsert override: %v", err)
	}
	if err := c.UpsertOverride("video_quality", "22"); err != nil {
		t.Fatalf("upsert override again: %v", err)
	}

	overrides, err := c.GetAllOverrides()
	if err != nil {
		t.Fatalf("get all overrides: %v", err)
	}
	if len(overrides) != 1 {
		t.Fatalf("expected 1 override, got %d", len(overrides))
	}
	if overrides[0].Value != "22" {
		t.Errorf("expected updated value 22, got %s", overrides[0].Value)
	}
}

func TestMigrateColumnsIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	c, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	c.Close()

	// Reopening an existing database must not fail or duplicate columns.
	c2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen catalog: %v", err)
	}
	defer c2.Close()

	if _, err := c2.InsertJob("Title", "/raw/Title", ""); err != nil {
		t.Fatalf("insert after reopen: %v", err)
	}
}
