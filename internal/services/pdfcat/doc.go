// Package pdfcat drives the external image-to-PDF concatenator, with an
// optional OCR pass that layers recognized text over the page images.
package pdfcat
