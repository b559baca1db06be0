package transcription

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Confidence scores a transcript heuristically: short output and heavy
// repetition each lower the score from 1.0.
func Confidence(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var joined strings.Builder
	totalChars := 0
	for _, seg := range segments {
		totalChars += utf8.RuneCountInString(seg.Text)
		joined.WriteString(seg.Text)
	}
	if totalChars == 0 {
		return 0
	}
	score := 1.0
	if totalChars < 10 {
		score *= 0.5
	}
	unique := make(map[string]struct{})
	for _, token := range strings.Fields(joined.String()) {
		unique[token] = struct{}{}
	}
	if float64(len(unique)) < float64(totalChars)/20 {
		score *= 0.7
	}
	return clamp01(score)
}

// Quality keys reported in Result.Quality.
const (
	QualityTextLength  = "text_length_score"
	QualitySegment     = "segment_consistency"
	QualityLanguage    = "language_consistency"
	QualityTemporal    = "temporal_consistency"
	maxMeanGapSeconds  = 2.0
	minUniqueWordRatio = 0.3
)

// AssessQuality derives per-dimension quality scores for a transcript.
func AssessQuality(text string, segments []Segment) map[string]float64 {
	assessment := map[string]float64{
		QualityTextLength: math.Min(1, float64(utf8.RuneCountInString(text))/100),
		QualitySegment:    1,
		QualityLanguage:   1,
		QualityTemporal:   1,
	}
	if len(segments) > 1 {
		var sum float64
		for i := 1; i < len(segments); i++ {
			sum += math.Abs(segments[i].Start - segments[i-1].End)
		}
		if sum/float64(len(segments)-1) > maxMeanGapSeconds {
			assessment[QualityTemporal] *= 0.8
		}
	}
	if words := strings.Fields(text); len(words) > 0 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) < minUniqueWordRatio {
			assessment[QualitySegment] *= 0.6
		}
	}
	return assessment
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
