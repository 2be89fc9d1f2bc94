// Package archivesspace looks up descriptive metadata (title, date) for a
// bag's components in an ArchivesSpace staff API.
package archivesspace
