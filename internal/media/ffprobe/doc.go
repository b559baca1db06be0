// Package ffprobe reads container and stream metadata for audio and video
// inputs by decoding ffprobe's JSON output.
package ffprobe
