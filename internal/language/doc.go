// Package language normalizes language codes reported by WhisperX, ffprobe
// stream tags, and configuration into ISO 639-1 form.
package language
