package history

import "time"

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning     Status = "running"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Mode names the entry point that started a run.
type Mode string

const (
	ModeBatch      Mode = "batch"
	ModeIntegrated Mode = "integrated"
)

// ErrorRecord is one per-item failure.
type ErrorRecord struct {
	Type      string    `json:"type"`
	File      string    `json:"file,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is one ledger row.
type Run struct {
	ID               int64
	SessionID        string
	Mode             Mode
	Status           Status
	DryRun           bool
	StartedAt        time.Time
	FinishedAt       *time.Time
	FilesProcessed   int
	FilesSuccessful  int
	FilesFailed      int
	ContentGenerated int
	GitCommits       int
	Errors           []ErrorRecord
	ErrorMessage     string
}

// Duration is zero while the run is open.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Article is one file written by a run.
type Article struct {
	SessionID  string
	SourcePath string
	OutputPath string
	Category   string
	Title      string
	CreatedAt  time.Time
}
