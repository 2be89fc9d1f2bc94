package jp2

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/remeh/sizedwaitgroup"

	"pictor/internal/config"
	"pictor/internal/fileutil"
	"pictor/internal/logging"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/services/jp2enc"
	"pictor/internal/stage"
)

// Handler encodes every staged master into a lossless JP2 derivative. Pages
// encode concurrently through a bounded pool; the first failure cancels the
// remaining work and fails the stage.
type Handler struct {
	cfg     *config.Config
	encoder jp2enc.Encoder
	logger  *slog.Logger
}

// New constructs the derivative stage.
func New(cfg *config.Config, encoder jp2enc.Encoder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{cfg: cfg, encoder: encoder, logger: logger}
}

// DerivativeName returns the derivative filename for a page sequence number.
func DerivativeName(sequence int) string {
	return fmt.Sprintf("%04d.jp2", sequence)
}

func (h *Handler) Prepare(ctx context.Context, bag *registry.Bag) error {
	if h.encoder == nil {
		return services.Wrap(services.ErrConfiguration, string(stage.MakeDerivatives), "setup",
			"jp2 encoder unavailable", nil)
	}
	info, err := os.Stat(bag.WorkingPath)
	if err != nil || !info.IsDir() {
		return services.Wrap(services.ErrPrecondition, string(stage.MakeDerivatives), "working path",
			fmt.Sprintf("%s is not a directory", bag.WorkingPath), err)
	}
	objects, err := bag.Objects()
	if err != nil {
		return services.Wrap(services.ErrValidation, string(stage.MakeDerivatives), "decode objects", "", err)
	}
	if len(objects) == 0 {
		return services.Wrap(services.ErrPrecondition, string(stage.MakeDerivatives), "objects",
			"bag records no objects", nil)
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, bag *registry.Bag) error {
	objects, err := bag.Objects()
	if err != nil {
		return services.Wrap(services.ErrValidation, string(stage.MakeDerivatives), "decode objects", "", err)
	}

	type job struct {
		src, dst string
		page     string
	}
	var jobs []job
	skipped := 0
	for i := range objects {
		object := &objects[i]
		for j := range object.Pages {
			page := &object.Pages[j]
			page.DerivativeFile = DerivativeName(page.SequenceNumber)
			dst := filepath.Join(bag.DerivativePath, object.LocalIdentifier, page.DerivativeFile)
			if fileutil.NonEmptyFile(dst) {
				skipped++
				continue
			}
			jobs = append(jobs, job{
				src:  filepath.Join(bag.WorkingPath, page.SourceFile),
				dst:  dst,
				page: page.SourceFile,
			})
		}
	}

	encodeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	swg := sizedwaitgroup.New(h.workers())
	for _, item := range jobs {
		if err := swg.AddWithContext(encodeCtx); err != nil {
			break
		}
		go func(item job) {
			defer swg.Done()
			if err := h.encoder.Encode(encodeCtx, item.src, item.dst); err != nil {
				fail(services.Wrap(services.ErrExternalTool, string(stage.MakeDerivatives), "encode",
					item.page, err))
			}
		}(item)
	}
	swg.Wait()

	if firstErr != nil {
		if cause := ctx.Err(); cause != nil {
			return cause
		}
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := bag.SetObjects(objects); err != nil {
		return services.Wrap(services.ErrValidation, string(stage.MakeDerivatives), "record derivatives", "", err)
	}

	h.logger.Info("derivatives encoded",
		logging.String(logging.FieldIdentifier, bag.Identifier),
		logging.Int("encoded", len(jobs)),
		logging.Int("skipped", skipped),
	)
	return nil
}

func (h *Handler) workers() int {
	if h.cfg.JP2.Workers > 0 {
		return h.cfg.JP2.Workers
	}
	return 1
}
