package testsupport

import (
	"path/filepath"
	"testing"

	"pictor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InboundDir = filepath.Join(base, "inbound")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.DerivativeDir = filepath.Join(base, "derivatives")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Storage.Bucket = "derivatives-test"
	cfg.IIIF.ImageBaseURL = "https://images.test/iiif/2"
	cfg.IIIF.ManifestBaseURL = "https://manifests.test"
	cfg.JP2.Workers = 2

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize test config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate test config: %v", err)
	}
	return &cfg
}

// WithOCR enables PDF OCR on the test config.
func WithOCR() ConfigOption {
	return func(cfg *config.Config) {
		cfg.PDF.OCREnabled = true
	}
}

// WithMaxStageRetries overrides the failed-stage retry budget.
func WithMaxStageRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.MaxStageRetries = n
	}
}
