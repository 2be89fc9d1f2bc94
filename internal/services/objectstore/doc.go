// Package objectstore persists finished derivatives to an S3-compatible
// bucket. The Store interface keeps the upload stage testable without a live
// backend.
package objectstore
