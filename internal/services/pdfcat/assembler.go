package pdfcat

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

// Assembler is the behaviour the PDF stage requires.
type Assembler interface {
	Assemble(ctx context.Context, imagePaths []string, destPath string) error
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

// Client concatenates page images into a single PDF via an external tool
// (img2pdf style: "-o out.pdf img1 img2 ..."), optionally followed by an OCR
// pass that inserts a text layer (ocrmypdf style: "in.pdf out.pdf").
type Client struct {
	binary     string
	timeout    time.Duration
	ocrBinary  string
	ocrTimeout time.Duration
	exec       toolexec.Executor
}

// Config holds construction parameters for the client.
type Config struct {
	Binary            string
	TimeoutSeconds    int
	OCRBinary         string
	OCRTimeoutSeconds int
}

// New constructs a PDF assembly client. An empty OCRBinary disables the OCR pass.
func New(cfg Config, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, errors.New("pdf assembler binary required")
	}
	client := &Client{
		binary:     binary,
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		ocrBinary:  strings.TrimSpace(cfg.OCRBinary),
		ocrTimeout: time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
		exec:       toolexec.Command{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Assemble writes one PDF containing imagePaths in order. All intermediate
// output goes to temporary siblings; destPath only ever appears by rename, so
// a re-run can overwrite it without a partial-file hazard.
func (c *Client) Assemble(ctx context.Context, imagePaths []string, destPath string) error {
	if len(imagePaths) == 0 {
		return errors.New("no images to assemble")
	}
	if destPath == "" {
		return errors.New("destination path required")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	rawPath := destPath + ".raw.tmp"
	finalTmp := rawPath
	defer func() {
		_ = os.Remove(rawPath)
	}()

	if err := c.runTool(ctx, c.binary, c.timeout, append([]string{"-o", rawPath}, imagePaths...)); err != nil {
		return fmt.Errorf("assemble pdf: %w", err)
	}
	if err := requireNonEmpty(rawPath); err != nil {
		return fmt.Errorf("assemble pdf: %w", err)
	}

	if c.ocrBinary != "" {
		ocrPath := destPath + ".ocr.tmp"
		defer func() {
			_ = os.Remove(ocrPath)
		}()
		if err := c.runTool(ctx, c.ocrBinary, c.ocrTimeout, []string{"--skip-text", rawPath, ocrPath}); err != nil {
			return fmt.Errorf("ocr pdf: %w", err)
		}
		if err := requireNonEmpty(ocrPath); err != nil {
			return fmt.Errorf("ocr pdf: %w", err)
		}
		finalTmp = ocrPath
	}

	if err := os.Rename(finalTmp, destPath); err != nil {
		return fmt.Errorf("finalize pdf: %w", err)
	}
	return nil
}

func (c *Client) runTool(ctx context.Context, binary string, timeout time.Duration, args []string) error {
	toolCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tail := toolexec.NewTailBuffer(4)
	if err := c.exec.Run(toolCtx, binary, args, tail.Append); err != nil {
		if detail := tail.String(); detail != "" {
			return fmt.Errorf("%w (%s)", err, detail)
		}
		return err
	}
	return nil
}

func requireNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("tool produced no output at %s", filepath.Base(path))
	}
	return nil
}
