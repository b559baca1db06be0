package transcription

import "time"

// Segment is one timed span of transcript text.
type Segment struct {
	Start      float64
	End        float64
	Text       string
	Confidence float64
}

// AudioMetadata describes the probed input.
type AudioMetadata struct {
	DurationSeconds float64
	SampleRate      int
	Channels        int
	Format          string
	Bitrate         int64
	FileSizeBytes   int64
	Codec           string
}

// Result is a completed transcription.
type Result struct {
	Text           string
	Confidence     float64
	Segments       []Segment
	AudioMetadata  AudioMetadata
	Language       string
	Quality        map[string]float64
	ProcessingTime time.Duration
	SourceFile     string
	Model          string
	Device         string
}
