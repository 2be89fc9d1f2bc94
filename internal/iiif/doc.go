// Package iiif builds IIIF Presentation 2 manifests for processed bags.
// Building is pure and deterministic so a manifest can be regenerated long
// after the source files are gone.
package iiif
