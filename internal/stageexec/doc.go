// Package stageexec runs a single pipeline stage against a single bag,
// applying the registry transition semantics every trigger path shares:
// precondition gating, per-bag locking, failure recording, and
// cancellation-safe persistence.
package stageexec
