// Package services holds cross-cutting helpers for the external-facing
// clients in its subpackages: the error marker taxonomy stages use to
// classify failures, and context carriers for bag/stage identification in
// structured logs.
//
// Subpackages wrap the external collaborators the pipeline orchestrates:
// jp2enc (JPEG2000 encoder CLI), pdfcat (PDF assembly and OCR CLIs),
// archivesspace (archival description lookups), and objectstore (S3 uploads).
package services
