// Package pipeline drives gardenpipe's two entry points.
//
// Processor runs the batch flow over the input directories: discover,
// transcribe, read text, classify, research, generate, deploy and archive.
// Each stage fans out with a bounded worker count and completes before the
// next one starts. Per-item failures are collected in Stats; only a deploy
// failure or cancellation aborts the run.
//
// Integrated processes single text notes end to end: garden classification,
// article file, visual enhancement, fact check, optional site build, then
// commit and push.
package pipeline
