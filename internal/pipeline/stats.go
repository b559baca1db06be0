package pipeline

import (
	"sync"
	"time"

	"gardenpipe/internal/gitops"
	"gardenpipe/internal/history"
)

// Error types recorded in Stats.Errors.
const (
	ErrorTranscription     = "transcription_error"
	ErrorTextProcessing    = "text_processing_error"
	ErrorClassification    = "classification_error"
	ErrorResearch          = "research_error"
	ErrorContentGeneration = "content_generation_error"
	ErrorDeployment        = "deployment_error"
	ErrorPipeline          = "pipeline_error"
)

// Stats accumulates the counters of one batch run. It is safe for use by
// the stage workers.
type Stats struct {
	SessionID        string
	DryRun           bool
	StartTime        time.Time
	EndTime          time.Time
	FilesProcessed   int
	FilesSuccessful  int
	FilesFailed      int
	ContentGenerated int
	GitCommits       int
	Errors           []history.ErrorRecord
	// Deployment is nil when the deploy stage did not run.
	Deployment *gitops.DeploymentResult

	mu  sync.Mutex
	now func() time.Time
}

// Summary is the digest printed after a run.
type Summary struct {
	DurationSeconds  float64
	SuccessRate      float64
	TotalErrors      int
	ContentGenerated int
	GitCommits       int
}

func newStats(sessionID string, dryRun bool, now func() time.Time) *Stats {
	return &Stats{SessionID: sessionID, DryRun: dryRun, StartTime: now(), now: now}
}

func (s *Stats) recordError(kind, file string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, history.ErrorRecord{
		Type:      kind,
		File:      file,
		Message:   err.Error(),
		Timestamp: s.now(),
	})
}

func (s *Stats) succeeded() {
	s.mu.Lock()
	s.FilesSuccessful++
	s.mu.Unlock()
}

func (s *Stats) failed(kind, file string, err error) {
	s.mu.Lock()
	s.FilesFailed++
	s.mu.Unlock()
	if err != nil {
		s.recordError(kind, file, err)
	}
}

func (s *Stats) processed(n int) {
	s.mu.Lock()
	s.FilesProcessed += n
	s.mu.Unlock()
}

func (s *Stats) generated() {
	s.mu.Lock()
	s.ContentGenerated++
	s.mu.Unlock()
}

func (s *Stats) finish() {
	s.mu.Lock()
	s.EndTime = s.now()
	s.mu.Unlock()
}

// Duration is zero until the run finished.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary computes the run digest. SuccessRate is a percentage of the
// processed files.
func (s *Stats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Summary{
		DurationSeconds:  s.Duration().Seconds(),
		TotalErrors:      len(s.Errors),
		ContentGenerated: s.ContentGenerated,
		GitCommits:       s.GitCommits,
	}
	if s.FilesProcessed > 0 {
		out.SuccessRate = float64(s.FilesSuccessful) * 100 / float64(s.FilesProcessed)
	}
	return out
}

// ErrorCounts groups the recorded errors by type.
func (s *Stats) ErrorCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(s.Errors))
	for _, e := range s.Errors {
		counts[e.Type]++
	}
	return counts
}

// HistoryRun copies the counters onto a ledger row.
func (s *Stats) HistoryRun(run *history.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.FilesProcessed = s.FilesProcessed
	run.FilesSuccessful = s.FilesSuccessful
	run.FilesFailed = s.FilesFailed
	run.ContentGenerated = s.ContentGenerated
	run.GitCommits = s.GitCommits
	run.Errors = append([]history.ErrorRecord(nil), s.Errors...)
	if !s.EndTime.IsZero() {
		end := s.EndTime
		run.FinishedAt = &end
	}
}
