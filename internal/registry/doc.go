// Package registry persists bag lifecycle records in SQLite and is the
// single source of truth for pipeline state.
//
// Filesystem layout under a bag's working and derivative paths is always a
// derived artifact of the recorded state, never the other way around: a
// crashed process resumes from the registry alone. Stage completion goes
// through Transition, a compare-and-set update keyed on the expected current
// status, which gives the pipeline its single-writer-per-bag guarantee
// without any global lock.
//
// Bag records are retained after cleanup (with path fields cleared) so that
// manifest recreation and audit queries remain possible for any bag that
// ever reached the manifest stage.
package registry
