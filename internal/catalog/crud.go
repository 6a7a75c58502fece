package catalog

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const jobColumnList = `id, title, source_path, output_path, status, progress, arm_job_id,
	error, error_kind, retry_count, created_at, started_at, completed_at,
	video_type, total_tracks, main_feature_file`

// InsertJob inserts a new job at status PENDING and returns its assigned id.
func (c *Catalog) InsertJob(title, sourcePath, armJobID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := formatTime(time.Now().UTC())
	res, err := c.db.Exec(`
		INSERT INTO jobs (title, source_path, status, progress, arm_job_id, retry_count, created_at, video_type, total_tracks, main_feature_file)
		VALUES (?, ?, ?, 0, ?, 0, ?, ?, 0, '')
	`, title, sourcePath, string(StatusPending), nullString(armJobID), now, string(VideoTypeUnknown))
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return res.LastInsertId()
}

// GetJob retrieves a job by id.
func (c *Catalog) GetJob(id int64) (*Job, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row := c.db.QueryRow(`SELECT `+jobColumnList+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, jobNotFoundError(id)
	}
	return job, err
}

// UpdateJob applies a partial patch to a job's row.
func (c *Catalog) UpdateJob(id int64, patch JobPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sets []string
	var args []any

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *patch.Progress)
	}
	if patch.OutputPath != nil {
		sets = append(sets, "output_path = ?")
		args = append(args, nullString(*patch.OutputPath))
	}
	if patch.ClearError {
		sets = append(sets, "error = NULL", "error_kind = NULL")
	} else if patch.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, nullString(*patch.Error))
		if patch.ErrorKind != nil {
			sets = append(sets, "error_kind = ?")
			args = append(args, nullString(*patch.ErrorKind))
		}
	}
	if patch.RetryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *patch.RetryCount)
	}
	if patch.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, formatTime(*patch.StartedAt))
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, formatTime(*patch.CompletedAt))
	}
	if patch.VideoType != nil {
		sets = append(sets, "video_type = ?")
		args = append(args, string(*patch.VideoType))
	}
	if patch.TotalTracks != nil {
		sets = append(sets, "total_tracks = ?")
		args = append(args, *patch.TotalTracks)
	}
	if patch.MainFeatureFile != nil {
		sets = append(sets, "main_feature_file = ?")
		args = append(args, *patch.MainFeatureFile)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	stmt := fmt.Sprintf("UPDATE jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := c.db.Exec(stmt, args...)
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return jobNotFoundError(id)
	}
	return nil
}

// ListJobs returns jobs in created_at order, optionally filtered by
// status, with limit/offset applied. Callers are expected to have already
// clamped limit to [1, 500] and offset to >= 0 (spec §8 boundary rules).
func (c *Catalog) ListJobs(status *Status, limit, offset int) ([]*Job, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = c.db.Query(`SELECT `+jobColumnList+` FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`,
			string(*status), limit, offset)
	} else {
		rows, err = c.db.Query(`SELECT `+jobColumnList+` FROM jobs ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`,
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// CountJobsByStatus returns the number of jobs in each status.
func (c *Catalog) CountJobsByStatus() (map[Status]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int{
		StatusPending:    0,
		StatusProcessing: 0,
		StatusCompleted:  0,
		StatusFailed:     0,
		StatusCancelled:  0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// DeleteJob removes a job by id. Fails when the job's current status is
// PROCESSING (spec §4.1, §7 Precondition).
func (c *Catalog) DeleteJob(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var status string
	err := c.db.QueryRow(`SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return jobNotFoundError(id)
	}
	if err != nil {
		return err
	}
	if Status(status) == StatusProcessing {
		return ErrJobNotDeletable
	}

	_, err = c.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	return err
}

// SelectNonTerminalJobsOrderedByCreatedAt returns every job not in a
// terminal status, oldest first — used by the Worker Loop at startup to
// decide what to re-enqueue (spec §4.9 step 1).
func (c *Catalog) SelectNonTerminalJobsOrderedByCreatedAt() ([]*Job, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`SELECT `+jobColumnList+` FROM jobs
		WHERE status IN (?, ?) ORDER BY created_at ASC, id ASC`,
		string(StatusPending), string(StatusProcessing))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var outputPath, armJobID, errStr, errKind sql.NullString
	var startedAt, completedAt sql.NullString
	var status, videoType, createdAt string

	err := row.Scan(
		&j.ID, &j.Title, &j.SourcePath, &outputPath, &status, &j.Progress, &armJobID,
		&errStr, &errKind, &j.RetryCount, &createdAt, &startedAt, &completedAt,
		&videoType, &j.TotalTracks, &j.MainFeatureFile,
	)
	if err != nil {
		return nil, err
	}

	j.OutputPath = outputPath.String
	j.ArmJobID = armJobID.String
	j.Error = errStr.String
	j.ErrorKind = errKind.String
	j.Status = Status(status)
	j.VideoType = VideoType(videoType)
	j.CreatedAt = parseTime(createdAt)
	if startedAt.Valid && startedAt.String != "" {
		t := parseTime(startedAt.String)
		j.StartedAt = &t
	}
	if completedAt.Valid && completedAt.String != "" {
		t := parseTime(completedAt.String)
		j.CompletedAt = &t
	}

	return &j, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	// Fixed-width fractional seconds keep the text ordering of stored
	// timestamps (ORDER BY created_at) chronological.
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
