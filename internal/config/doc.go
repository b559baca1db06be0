// Package config loads, normalizes, and validates gardenpipe configuration.
//
// It supplies repository defaults, reads YAML (or TOML, chosen by file
// extension) over those defaults, expands user paths, and applies environment
// overrides such as ANTHROPIC_API_KEY and INPUT_PATH. A .env file is only read
// when the caller asks for it through LoadDotEnv; nothing happens on import.
//
// Obtain settings through this package so downstream code receives absolute
// paths and clear validation errors.
package config
