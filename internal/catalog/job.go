package catalog

import "time"

// Status is one of the five lifecycle states a Job may occupy.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// VideoType classifies the output subdirectory a completed job lands in.
type VideoType string

const (
	VideoTypeMovie   VideoType = "movie"
	VideoTypeTV      VideoType = "tv"
	VideoTypeUnknown VideoType = "unknown"
)

// Job is one webhook-triggered unit of work.
type Job struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	SourcePath      string     `json:"source_path"`
	OutputPath      string     `json:"output_path,omitempty"` // empty means unresolved
	Status          Status     `json:"status"`
	Progress        float64    `json:"progress"`
	ArmJobID        string     `json:"arm_job_id,omitempty"`
	Error           string     `json:"error,omitempty"`
	ErrorKind       string     `json:"-"` // additive machine-readable tag, not part of the canonical Job JSON
	RetryCount      int        `json:"retry_count"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	VideoType       VideoType  `json:"video_type"`
	TotalTracks     int        `json:"total_tracks"`
	MainFeatureFile string     `json:"main_feature_file,omitempty"`
}

// IsTerminal reports whether the job has reached a status from which the
// Worker Loop will never advance it further on its own.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RetriesRemaining is a derived, read-only view of how many retry attempts
// are left before the configured max_retry_count refuses another retry.
func (j *Job) RetriesRemaining(maxRetryCount int) int {
	remaining := maxRetryCount - j.RetryCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// JobPatch carries only the fields an update_job call intends to change.
// Nil pointers are left untouched by UpdateJob; ClearError, when set,
// clears error and error_kind and takes precedence over Error.
type JobPatch struct {
	Status          *Status
	Progress        *float64
	OutputPath      *string
	Error           *string
	ErrorKind       *string
	RetryCount      *int
	StartedAt       *time.Time
	CompletedAt     *time.Time
	VideoType       *VideoType
	TotalTracks     *int
	MainFeatureFile *string
	ClearError      bool // explicit clear, since Error==nil alone can't distinguish "no change" from "clear"
}
