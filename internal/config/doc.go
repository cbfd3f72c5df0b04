// Package config loads the skbridge configuration from a TOML file with
// SKBRIDGE_* environment variable overrides. Defaults are always usable: a
// missing file is not an error.
package config
