package preparer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"pictor/internal/bagfile"
	"pictor/internal/config"
	"pictor/internal/fileutil"
	"pictor/internal/logging"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/services/archivesspace"
	"pictor/internal/stage"
)

// Handler validates an inbound bag and stages its masters into the working
// directory. On success the bag record carries the origin identifier, the
// descriptive metadata, and the durable object/page structure every later
// stage works from.
type Handler struct {
	cfg    *config.Config
	lookup archivesspace.Lookup
	logger *slog.Logger
}

// New constructs the prepare stage. lookup may be nil when no archival
// description service is configured.
func New(cfg *config.Config, lookup archivesspace.Lookup, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{cfg: cfg, lookup: lookup, logger: logger}
}

func (h *Handler) Prepare(ctx context.Context, bag *registry.Bag) error {
	info, err := os.Stat(bag.SourcePath)
	if err != nil || !info.IsDir() {
		return services.Wrap(services.ErrValidation, string(stage.Prepare), "source check",
			fmt.Sprintf("source path %s is not a directory", bag.SourcePath), err)
	}
	return h.cfg.EnsureDirectories()
}

func (h *Handler) Execute(ctx context.Context, bag *registry.Bag) error {
	parsed, err := bagfile.Parse(bag.SourcePath, bagfile.Options{
		MetadataFile: h.cfg.Ingest.MetadataFile,
		PayloadDir:   h.cfg.Ingest.PayloadDir,
		OriginTag:    h.cfg.Ingest.OriginTag,
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, string(stage.Prepare), "parse bag", "", err)
	}

	title, date, err := h.describe(ctx, parsed.OriginIdentifier)
	if err != nil {
		return err
	}

	workingPath := filepath.Join(h.cfg.Paths.WorkDir, bag.Identifier)
	objects, err := stageMasters(ctx, parsed.Objects, workingPath)
	if err != nil {
		return err
	}

	bag.OriginIdentifier = parsed.OriginIdentifier
	bag.Title = title
	bag.Date = date
	bag.WorkingPath = workingPath
	bag.DerivativePath = filepath.Join(h.cfg.Paths.DerivativeDir, bag.Identifier)
	if err := bag.SetObjects(objects); err != nil {
		return services.Wrap(services.ErrValidation, string(stage.Prepare), "record objects", "", err)
	}

	h.logger.Info("bag prepared",
		logging.String(logging.FieldIdentifier, bag.Identifier),
		logging.String("origin_identifier", bag.OriginIdentifier),
		logging.Int("objects", len(objects)),
		logging.Int("pages", bag.PageCount()),
	)
	return nil
}

// describe resolves title and date from the archival description service.
// An unknown origin identifier is tolerated: the manifest falls back to its
// untitled label. Transport failures abort the stage so a retry can fill the
// metadata in.
func (h *Handler) describe(ctx context.Context, origin string) (string, string, error) {
	if h.lookup == nil || !h.cfg.ArchivesSpace.Enabled {
		return "", "", nil
	}
	record, err := h.lookup.FindByRefID(ctx, origin)
	if err != nil {
		if errors.Is(err, archivesspace.ErrNotFound) {
			h.logger.Warn("no archival description for bag",
				logging.String("origin_identifier", origin))
			return "", "", nil
		}
		return "", "", services.Wrap(services.ErrTransient, string(stage.Prepare), "describe", origin, err)
	}
	return record.Title, record.Date, nil
}

// stageMasters copies every page into the working directory and re-roots the
// recorded source paths to be relative to it, so the record stays meaningful
// after the inbound bag is gone.
func stageMasters(ctx context.Context, objects []registry.Object, workingPath string) ([]registry.Object, error) {
	staged := make([]registry.Object, len(objects))
	for i, object := range objects {
		staged[i] = registry.Object{
			LocalIdentifier: object.LocalIdentifier,
			Pages:           make([]registry.Page, len(object.Pages)),
		}
		for j, page := range object.Pages {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			relative := filepath.Join(object.LocalIdentifier, filepath.Base(page.SourceFile))
			if err := fileutil.CopyFile(page.SourceFile, filepath.Join(workingPath, relative)); err != nil {
				return nil, services.Wrap(services.ErrTransient, string(stage.Prepare), "stage master",
					relative, err)
			}
			staged[i].Pages[j] = registry.Page{
				SourceFile:     relative,
				SequenceNumber: page.SequenceNumber,
			}
		}
	}
	return staged, nil
}
