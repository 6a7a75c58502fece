// Package ingest parses inbound ripper notifications, classifies them as
// completion events, extracts a sanitized media title, and enqueues a new
// Catalog job (spec §4.10).
package ingest

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/armtc/transcoder/internal/catalog"
	"github.com/armtc/transcoder/internal/pathguard"
)

// Limits on payload field lengths (spec §4.10 step 3, §8 boundary rules).
const (
	MaxTitleLen = 500
	MaxBodyLen  = 2000
	MaxPathLen  = 1000
	MaxJobIDLen = 50
)

// Payload is the decoded webhook body. It tolerates two shapes for the
// notification text (spec §9 "Dynamic typing at the edges").
type Payload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Message string `json:"message"`
	Status  string `json:"status"`
	Path    string `json:"path"`
	JobID   string `json:"job_id"`
}

// effectiveBody returns the first non-empty of Body and Message.
func (p Payload) effectiveBody() string {
	if p.Body != "" {
		return p.Body
	}
	return p.Message
}

// titlePatterns is the ordered regex list for title extraction (spec
// §4.10 step 2). First match wins.
var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(.+?)\s+rip complete`),
	regexp.MustCompile(`(?i)^(.+?)\s+processing complete`),
	regexp.MustCompile(`(?i)Rip of (.+?) complete`),
}

// completionMarker is the substring used by IsCompletion (spec §4.10
// step 1).
const completionMarker = "complete"

// IsCompletion reports whether payload represents a completion event:
// title contains "complete", the effective body contains "complete", or
// status == "success" (spec §4.10 step 1).
func IsCompletion(p Payload) bool {
	if strings.Contains(strings.ToLower(p.Title), completionMarker) {
		return true
	}
	if strings.Contains(strings.ToLower(p.effectiveBody()), completionMarker) {
		return true
	}
	return p.Status == "success"
}

// ExtractTitle implements spec §4.10 step 2: the ordered regex list
// against the effective body, falling back to the explicit path field.
// Returns ("", false) when neither source yields a value.
func ExtractTitle(p Payload) (string, bool) {
	body := p.effectiveBody()
	for _, re := range titlePatterns {
		if m := re.FindStringSubmatch(body); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	if p.Path != "" {
		return p.Path, true
	}
	return "", false
}

// Validate enforces the length bounds of spec §4.10 step 3 / §8.
func Validate(p Payload) error {
	if len(p.Title) > MaxTitleLen {
		return newError(KindValidation, "title exceeds %d characters", MaxTitleLen)
	}
	if len(p.effectiveBody()) > MaxBodyLen {
		return newError(KindValidation, "body exceeds %d characters", MaxBodyLen)
	}
	if len(p.Path) > MaxPathLen {
		return newError(KindValidation, "path exceeds %d characters", MaxPathLen)
	}
	if len(p.JobID) > MaxJobIDLen {
		return newError(KindValidation, "job_id exceeds %d characters", MaxJobIDLen)
	}
	if p.JobID != "" && !armJobIDPattern.MatchString(p.JobID) {
		return newError(KindValidation, "job_id contains disallowed characters")
	}
	return nil
}

var armJobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Result is what a successful Ingest call reports back to the HTTP layer
// (spec §6 POST /webhook/arm response shape).
type Result struct {
	Title      string
	SourcePath string
	JobID      int64
}

// Ingestor ties payload parsing to the Catalog, using rawRoot to build
// each job's absolute source_path (spec §4.10 step 4).
type Ingestor struct {
	cat     *catalog.Catalog
	rawRoot string
}

// New constructs an Ingestor rooted at rawRoot.
func New(cat *catalog.Catalog, rawRoot string) *Ingestor {
	return &Ingestor{cat: cat, rawRoot: rawRoot}
}

// Ingest runs the full pipeline of spec §4.10 for one decoded payload:
// completion detection, title extraction, sanitization, and enqueue.
// ok is false for a non-completion payload, which callers acknowledge
// without enqueueing (spec §8 "ignored").
func (ig *Ingestor) Ingest(p Payload) (result Result, ok bool, err error) {
	if err := Validate(p); err != nil {
		return Result{}, false, err
	}

	if !IsCompletion(p) {
		return Result{}, false, nil
	}

	title, found := ExtractTitle(p)
	if !found {
		return Result{}, false, newError(KindValidation, "cannot determine source path")
	}

	if err := pathguard.ValidateWebhookTitle(title); err != nil {
		return Result{}, false, newError(KindValidation, "%w", err)
	}

	sourcePath := filepath.Join(ig.rawRoot, title)

	id, err := ig.cat.InsertJob(title, sourcePath, p.JobID)
	if err != nil {
		return Result{}, false, newError(KindInternal, "enqueue job: %w", err)
	}

	return Result{Title: title, SourcePath: sourcePath, JobID: id}, true, nil
}
