package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateArchivesSpace(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.InboundDir == "" {
		return errors.New("paths.inbound_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.DerivativeDir == "" {
		return errors.New("paths.derivative_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.WorkDir == c.Paths.InboundDir || c.Paths.DerivativeDir == c.Paths.InboundDir {
		return errors.New("work and derivative roots must not overlap the inbound root")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MetadataFile == "" {
		return errors.New("ingest.metadata_file must be set")
	}
	if c.Ingest.PayloadDir == "" {
		return errors.New("ingest.payload_dir must be set")
	}
	if c.Ingest.OriginTag == "" {
		return errors.New("ingest.origin_tag must be set")
	}
	return nil
}

func (c *Config) validateArchivesSpace() error {
	if !c.ArchivesSpace.Enabled {
		return nil
	}
	if strings.TrimSpace(c.ArchivesSpace.BaseURL) == "" {
		return errors.New("archivesspace.base_url must be set when archivesspace.enabled is true")
	}
	if strings.TrimSpace(c.ArchivesSpace.Username) == "" || strings.TrimSpace(c.ArchivesSpace.Password) == "" {
		return errors.New("archivesspace.username and archivesspace.password must be set when archivesspace.enabled is true")
	}
	return nil
}

func (c *Config) validateTools() error {
	if strings.TrimSpace(c.JP2.Binary) == "" {
		return errors.New("jp2.binary must be set")
	}
	if c.JP2.TimeoutSeconds <= 0 {
		return errors.New("jp2.timeout_seconds must be positive")
	}
	if strings.TrimSpace(c.PDF.Binary) == "" {
		return errors.New("pdf.binary must be set")
	}
	if c.PDF.TimeoutSeconds <= 0 {
		return errors.New("pdf.timeout_seconds must be positive")
	}
	if c.PDF.OCREnabled {
		if strings.TrimSpace(c.PDF.OCRBinary) == "" {
			return errors.New("pdf.ocr_binary must be set when pdf.ocr_enabled is true")
		}
		if c.PDF.OCRTimeoutSeconds <= 0 {
			return errors.New("pdf.ocr_timeout_seconds must be positive")
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return errors.New("storage.bucket must be set")
	}
	if c.Storage.MaxAttempts < 1 {
		return errors.New("storage.max_attempts must be at least 1")
	}
	if c.Storage.TimeoutSeconds <= 0 {
		return errors.New("storage.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
