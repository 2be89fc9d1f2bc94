// Package toolexec runs external binaries with streamed output capture. The
// encoder and PDF clients share its Executor seam so tests can substitute
// fake processes.
package toolexec
