// Package config loads and validates the TOML configuration that every
// component receives at construction time.
//
// Defaults live in defaults.go, path expansion and derived values in
// normalize.go, and usability checks in validate.go. The embedded
// sample_config.toml is written by "pictor config init" and documents every
// knob. Components never read configuration from globals; the resolved
// Config struct is passed down explicitly.
package config
