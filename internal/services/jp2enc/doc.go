// Package jp2enc drives the external lossless JPEG2000 encoder as a black
// box. Encodes write to a temporary path and rename into place on success.
package jp2enc
