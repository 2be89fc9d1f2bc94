package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pictor/internal/config"
	"pictor/internal/iiif"
	"pictor/internal/logging"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/services/objectstore"
)

// Recreator rebuilds manifests from the registry's durable columns and pushes
// them straight to object storage. It needs no local files, so it works for
// bags cleaned long ago, e.g. after the published base URLs change.
type Recreator struct {
	cfg     *config.Config
	store   *registry.Store
	objects objectstore.Store
	builder *iiif.Builder
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecreator constructs a manifest recreator.
func NewRecreator(cfg *config.Config, store *registry.Store, objects objectstore.Store, logger *slog.Logger) *Recreator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recreator{
		cfg:     cfg,
		store:   store,
		objects: objects,
		builder: iiif.NewBuilder(cfg.IIIF.ImageBaseURL, cfg.IIIF.ManifestBaseURL),
		logger:  logger,
		now:     time.Now,
	}
}

// Run rebuilds and re-publishes the manifest for one origin identifier. The
// latest bag for that origin must have built a manifest before.
func (r *Recreator) Run(ctx context.Context, origin string) error {
	bag, err := r.store.GetByOriginIdentifier(ctx, origin)
	if err != nil {
		return err
	}
	if bag == nil || bag.ManifestBuiltAt == nil {
		return services.Wrap(services.ErrNotFound, "recreate-manifest", "lookup",
			fmt.Sprintf("no manifest on record for %s", origin), nil)
	}
	return r.recreate(ctx, bag)
}

// RunAll rebuilds every recorded manifest. Failures are collected per bag so
// one bad record does not block the rest; the first error is returned after
// the sweep completes.
func (r *Recreator) RunAll(ctx context.Context) (int, error) {
	bags, err := r.store.ListWithManifest(ctx)
	if err != nil {
		return 0, err
	}

	recreated := 0
	var firstErr error
	for _, bag := range bags {
		if err := ctx.Err(); err != nil {
			return recreated, err
		}
		if err := r.recreate(ctx, bag); err != nil {
			r.logger.Error("manifest recreation failed",
				logging.String(logging.FieldIdentifier, bag.Identifier),
				logging.String("origin_identifier", bag.OriginIdentifier),
				logging.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		recreated++
	}
	return recreated, firstErr
}

func (r *Recreator) recreate(ctx context.Context, bag *registry.Bag) error {
	objects, err := bag.Objects()
	if err != nil {
		return services.Wrap(services.ErrValidation, "recreate-manifest", "decode objects",
			bag.OriginIdentifier, err)
	}
	if len(objects) == 0 {
		return services.Wrap(services.ErrValidation, "recreate-manifest", "objects",
			fmt.Sprintf("bag %s records no objects", bag.OriginIdentifier), nil)
	}

	data, err := Render(r.builder, bag, objects)
	if err != nil {
		return services.Wrap(services.ErrValidation, "recreate-manifest", "build",
			bag.OriginIdentifier, err)
	}

	tmp, err := os.CreateTemp("", "manifest-*.json")
	if err != nil {
		return fmt.Errorf("stage manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("stage manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stage manifest: %w", err)
	}

	key := objectstore.KeyJoin(bag.OriginIdentifier, FileName)
	if err := objectstore.PutWithRetry(ctx, r.objects, key, tmpPath, "application/json",
		r.cfg.Storage.MaxAttempts); err != nil {
		if objectstore.IsPermanent(err) {
			return services.Wrap(services.ErrConfiguration, "recreate-manifest", "put", key, err)
		}
		return services.Wrap(services.ErrTransient, "recreate-manifest", "put", key, err)
	}

	builtAt := r.now().UTC()
	bag.ManifestBuiltAt = &builtAt
	if err := r.store.Update(ctx, bag); err != nil {
		return fmt.Errorf("record manifest rebuild: %w", err)
	}

	r.logger.Info("manifest recreated",
		logging.String(logging.FieldIdentifier, bag.Identifier),
		logging.String("origin_identifier", bag.OriginIdentifier),
		logging.String("key", key),
	)
	return nil
}

// LocalPath returns where the manifest stage writes a bag's manifest.
func LocalPath(bag *registry.Bag) string {
	return filepath.Join(bag.DerivativePath, FileName)
}
