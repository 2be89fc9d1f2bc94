package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Normalize expands and absolutizes path fields and fills derived defaults.
func (c *Config) Normalize() error {
	pathFields := []*string{
		&c.Paths.InboundDir,
		&c.Paths.WorkDir,
		&c.Paths.DerivativeDir,
		&c.Paths.LogDir,
	}
	for _, field := range pathFields {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Ingest.MetadataFile = strings.TrimSpace(c.Ingest.MetadataFile)
	c.Ingest.PayloadDir = strings.TrimSpace(c.Ingest.PayloadDir)
	c.Ingest.OriginTag = strings.TrimSpace(c.Ingest.OriginTag)
	c.IIIF.ImageBaseURL = strings.TrimRight(strings.TrimSpace(c.IIIF.ImageBaseURL), "/")
	c.IIIF.ManifestBaseURL = strings.TrimRight(strings.TrimSpace(c.IIIF.ManifestBaseURL), "/")

	if c.JP2.Workers < 1 {
		c.JP2.Workers = defaultJP2Workers()
	}
	if c.Workflow.MaxStageRetries < 1 {
		c.Workflow.MaxStageRetries = defaultMaxStageRetries
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			trimmed = home
		} else {
			trimmed = filepath.Join(home, trimmed[2:])
		}
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}
