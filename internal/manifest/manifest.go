package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pictor/internal/config"
	"pictor/internal/fileutil"
	"pictor/internal/iiif"
	"pictor/internal/logging"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/stage"
)

// FileName is the manifest's filename under a bag's derivative directory and
// the final segment of its object key.
const FileName = "manifest.json"

// Handler builds the bag's IIIF presentation manifest and writes it next to
// the derivatives. The build timestamp is recorded on the bag so the manifest
// can be regenerated from the registry record alone later.
type Handler struct {
	cfg     *config.Config
	builder *iiif.Builder
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs the manifest stage.
func New(cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:     cfg,
		builder: iiif.NewBuilder(cfg.IIIF.ImageBaseURL, cfg.IIIF.ManifestBaseURL),
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Handler) Prepare(ctx context.Context, bag *registry.Bag) error {
	if bag.OriginIdentifier == "" {
		return services.Wrap(services.ErrPrecondition, string(stage.MakeManifest), "origin check",
			"bag has no origin identifier", nil)
	}
	objects, err := bag.Objects()
	if err != nil {
		return services.Wrap(services.ErrValidation, string(stage.MakeManifest), "decode objects", "", err)
	}
	if len(objects) == 0 {
		return services.Wrap(services.ErrPrecondition, string(stage.MakeManifest), "objects",
			"bag records no objects", nil)
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, bag *registry.Bag) error {
	objects, err := bag.Objects()
	if err != nil {
		return services.Wrap(services.ErrValidation, string(stage.MakeManifest), "decode objects", "", err)
	}

	data, err := Render(h.builder, bag, objects)
	if err != nil {
		return services.Wrap(services.ErrValidation, string(stage.MakeManifest), "build", "", err)
	}

	path := LocalPath(bag)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, string(stage.MakeManifest), "write", path, err)
	}

	builtAt := h.now().UTC()
	bag.ManifestBuiltAt = &builtAt

	h.logger.Info("manifest built",
		logging.String(logging.FieldIdentifier, bag.Identifier),
		logging.String("manifest_id", h.builder.ManifestID(bag.OriginIdentifier)),
		logging.Int("pages", bag.PageCount()),
	)
	return nil
}

// Render produces the manifest bytes for a bag's durable record. It is shared
// with the recreator, which runs long after the working files are gone.
func Render(builder *iiif.Builder, bag *registry.Bag, objects []registry.Object) ([]byte, error) {
	for _, object := range objects {
		if len(object.Pages) == 0 {
			return nil, fmt.Errorf("object %s has no pages", object.LocalIdentifier)
		}
	}
	return iiif.Encode(builder.Build(iiif.BuildInput{
		OriginIdentifier: bag.OriginIdentifier,
		Title:            bag.Title,
		Date:             bag.Date,
		Objects:          objects,
	}))
}
