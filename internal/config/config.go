package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory roots the pipeline works in.
type Paths struct {
	InboundDir    string `toml:"inbound_dir"`
	WorkDir       string `toml:"work_dir"`
	DerivativeDir string `toml:"derivative_dir"`
	LogDir        string `toml:"log_dir"`
}

// Ingest contains bag layout conventions used during preparation.
type Ingest struct {
	MetadataFile string `toml:"metadata_file"`
	PayloadDir   string `toml:"payload_dir"`
	OriginTag    string `toml:"origin_tag"`
}

// ArchivesSpace contains configuration for the archival description service.
type ArchivesSpace struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Repository     int    `toml:"repository"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// JP2 contains configuration for the JPEG2000 encoder.
type JP2 struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Workers        int    `toml:"workers"`
}

// PDF contains configuration for PDF assembly and optional OCR.
type PDF struct {
	Binary            string `toml:"binary"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	OCREnabled        bool   `toml:"ocr_enabled"`
	OCRBinary         string `toml:"ocr_binary"`
	OCRTimeoutSeconds int    `toml:"ocr_timeout_seconds"`
}

// IIIF contains the published base URLs manifests reference.
type IIIF struct {
	ImageBaseURL    string `toml:"image_base_url"`
	ManifestBaseURL string `toml:"manifest_base_url"`
}

// Storage contains object storage connection parameters.
type Storage struct {
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	PathStyle       bool   `toml:"path_style"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MaxAttempts     int    `toml:"max_attempts"`
}

// Workflow contains pipeline retry policy.
type Workflow struct {
	MaxStageRetries int `toml:"max_stage_retries"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the full application configuration threaded into each component
// at construction. There is no process-wide mutable configuration state.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Ingest        Ingest        `toml:"ingest"`
	ArchivesSpace ArchivesSpace `toml:"archivesspace"`
	JP2           JP2           `toml:"jp2"`
	PDF           PDF           `toml:"pdf"`
	IIIF          IIIF          `toml:"iiif"`
	Storage       Storage       `toml:"storage"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/pictor/config.toml")
}

// Load locates, parses, normalizes, and validates a configuration file. When
// no file exists at the resolved path the defaults are returned with
// exists=false so callers can decide whether that is acceptable.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config path: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// RegistryPath returns the location of the bag registry database.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.Paths.LogDir, "registry.db")
}

// LockDir returns the directory holding per-bag stage lock files.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.LogDir, "locks")
}

// EnsureDirectories creates the configured directory roots when missing.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.InboundDir,
		c.Paths.WorkDir,
		c.Paths.DerivativeDir,
		c.Paths.LogDir,
		c.LockDir(),
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = defaultPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return expanded, true, nil
}
