package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"pictor/internal/config"
	"pictor/internal/fileutil"
	"pictor/internal/logging"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/services/pdfcat"
	"pictor/internal/stage"
)

// Handler concatenates each object's derivatives into one PDF, in sequence
// order. Assembly writes to a temporary path and renames into place, so a
// re-run replaces each object's PDF wholesale with no partial-file hazard.
type Handler struct {
	cfg       *config.Config
	assembler pdfcat.Assembler
	logger    *slog.Logger
}

// New constructs the PDF stage.
func New(cfg *config.Config, assembler pdfcat.Assembler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{cfg: cfg, assembler: assembler, logger: logger}
}

// OutputName returns the PDF filename for an object's local identifier.
func OutputName(localIdentifier string) string {
	return localIdentifier + ".pdf"
}

func (h *Handler) Prepare(ctx context.Context, bag *registry.Bag) error {
	if h.assembler == nil {
		return services.Wrap(services.ErrConfiguration, string(stage.MakePDF), "setup",
			"pdf assembler unavailable", nil)
	}
	objects, err := bag.Objects()
	if err != nil {
		return services.Wrap(services.ErrValidation, string(stage.MakePDF), "decode objects", "", err)
	}
	for _, object := range objects {
		for _, page := range object.Pages {
			derivative := filepath.Join(bag.DerivativePath, object.LocalIdentifier, page.DerivativeFile)
			if page.DerivativeFile == "" || !fileutil.NonEmptyFile(derivative) {
				return services.Wrap(services.ErrPrecondition, string(stage.MakePDF), "derivative check",
					fmt.Sprintf("object %s page %d has no derivative", object.LocalIdentifier, page.SequenceNumber), nil)
			}
		}
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, bag *registry.Bag) error {
	objects, err := bag.Objects()
	if err != nil {
		return services.Wrap(services.ErrValidation, string(stage.MakePDF), "decode objects", "", err)
	}

	for _, object := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := filepath.Join(bag.DerivativePath, OutputName(object.LocalIdentifier))

		images := make([]string, 0, len(object.Pages))
		for _, page := range object.Pages {
			images = append(images, filepath.Join(bag.DerivativePath, object.LocalIdentifier, page.DerivativeFile))
		}
		if err := h.assembler.Assemble(ctx, images, dst); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return services.Wrap(services.ErrExternalTool, string(stage.MakePDF), "assemble",
				object.LocalIdentifier, err)
		}
	}

	h.logger.Info("pdfs assembled",
		logging.String(logging.FieldIdentifier, bag.Identifier),
		logging.Int("objects", len(objects)),
	)
	return nil
}
