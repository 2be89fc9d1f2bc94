// Package logging wraps log/slog with the application's construction options
// and standardized field names, so every stage logs bag id, identifier, and
// stage the same way.
package logging
