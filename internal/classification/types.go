package classification

import (
	"errors"
	"time"
)

// Category is one of the four content categories.
type Category string

const (
	CategoryInsight Category = "insight"
	CategoryDiary   Category = "diary"
	CategoryResume  Category = "resume"
	CategoryProfile Category = "profile"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryInsight, CategoryDiary, CategoryResume, CategoryProfile}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryInsight, CategoryDiary, CategoryResume, CategoryProfile:
		return true
	}
	return false
}

// Priority ranks how soon an item deserves attention.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ErrInvalidCategory is returned when the model picks a category outside the
// fixed vocabulary.
var ErrInvalidCategory = errors.New("invalid category")

// Result is a validated classification.
type Result struct {
	Category   Category
	Title      string
	Summary    string
	Priority   Priority
	Tags       []string
	Confidence float64
	Reasoning  string
	Timestamp  time.Time
}

// Context describes where the classified text came from.
type Context struct {
	SourceFile string
	SourceType string
	// Confidence is the transcription confidence, when the text was transcribed.
	Confidence *float64
}

// Item is a classified note awaiting content generation.
type Item struct {
	Classification *Result
	Text           string
	SourceFile     string
	SourceType     string
	SessionID      string
	// Research is a pre-rendered research digest, empty when none was run.
	Research string
}

// ContentMetadata summarizes generated content.
type ContentMetadata struct {
	GeneratedAt time.Time
	WordCount   int
	ReadingTime string
	KeyPoints   []string
	Sections    []string
	Components  []string
}

// StructuredContent is a rendered garden document ready to be written.
type StructuredContent struct {
	Category Category
	Title    string
	Content  string
	FileName string
	// FilePath is relative to the garden root.
	FilePath string
	Metadata ContentMetadata
	// Fallback is set when model generation failed and the four-section
	// fallback layout was rendered from the source text.
	Fallback bool
}
