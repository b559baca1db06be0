// Package transcription turns audio and video inputs into text with WhisperX.
//
// Each input is validated (existence, extension, size, readability) before
// any tool runs. Video is reduced to a 16 kHz mono WAV first. Because WhisperX
// reports no usable per-file confidence, Result.Confidence and Result.Quality
// are computed from the transcript text and segment timing.
//
// TranscribeBatch fans out across inputs bounded by
// performance.max_concurrent_transcriptions; a failed file yields a nil entry.
package transcription
