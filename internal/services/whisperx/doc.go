// Package whisperx runs WhisperX through uvx and reads its JSON transcripts.
//
// Video sources are first reduced to a mono 16 kHz WAV with ffmpeg. The
// command runner is swappable so tests can script both tools without
// installing them.
package whisperx
