// Package main hosts the gardenpipe CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration and the optional .env file,
// builds the hosted-API clients, and hands control to the batch processor
// ("run") or the integrated single-file pipeline ("process"). Supporting
// commands report component health, show and prune run logs and history,
// and scaffold configuration.
//
// Keep this package lean: behaviour lives in the internal packages and is
// surfaced here through flags and summary tables.
package main
