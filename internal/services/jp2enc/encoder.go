package jp2enc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pictor/internal/services/toolexec"
)

// Encoder is the behaviour the derivative stage requires.
type Encoder interface {
	Encode(ctx context.Context, sourcePath, destPath string) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec toolexec.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps a lossless JPEG2000 encoder CLI such as opj_compress.
type Client struct {
	binary  string
	timeout time.Duration
	exec    toolexec.Executor
}

// New constructs an encoder client.
func New(binary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("jp2 encoder binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    toolexec.Command{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Encode produces destPath from sourcePath. Output goes to a temporary
// sibling first and is renamed into place only after the tool succeeds and
// produced a non-empty file, so an interrupted encode never leaves a corrupt
// derivative at the final path.
func (c *Client) Encode(ctx context.Context, sourcePath, destPath string) error {
	if sourcePath == "" || destPath == "" {
		return errors.New("source and destination paths required")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	// The encoder infers the output format from the extension, so the
	// temporary path must keep it.
	ext := filepath.Ext(destPath)
	tmpPath := strings.TrimSuffix(destPath, ext) + ".partial" + ext
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	encodeCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		encodeCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tail := toolexec.NewTailBuffer(4)
	args := []string{"-i", sourcePath, "-o", tmpPath}
	if err := c.exec.Run(encodeCtx, c.binary, args, tail.Append); err != nil {
		if detail := tail.String(); detail != "" {
			return fmt.Errorf("encode %s: %w (%s)", filepath.Base(sourcePath), err, detail)
		}
		return fmt.Errorf("encode %s: %w", filepath.Base(sourcePath), err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("encoder produced no output for %s", filepath.Base(sourcePath))
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("finalize derivative: %w", err)
	}
	return nil
}
