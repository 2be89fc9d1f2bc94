package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"pictor/internal/config"
	"pictor/internal/logging"
	"pictor/internal/manifest"
	"pictor/internal/pdf"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/services/objectstore"
	"pictor/internal/stage"
)

// Artifact is one local file and the object key it is published under.
type Artifact struct {
	Key         string
	Path        string
	ContentType string
}

// Handler publishes a bag's derivatives, PDFs, and manifest to object
// storage. Uploads are idempotent: artifacts whose remote size already
// matches the local file are skipped, and every put is verified by a
// follow-up stat.
type Handler struct {
	cfg    *config.Config
	store  objectstore.Store
	logger *slog.Logger
}

// New constructs the upload stage.
func New(cfg *config.Config, store objectstore.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{cfg: cfg, store: store, logger: logger}
}

func (h *Handler) Prepare(ctx context.Context, bag *registry.Bag) error {
	if h.store == nil {
		return services.Wrap(services.ErrConfiguration, string(stage.Upload), "setup",
			"object store unavailable", nil)
	}
	artifacts, err := Artifacts(bag)
	if err != nil {
		return err
	}
	for _, artifact := range artifacts {
		if _, err := os.Stat(artifact.Path); err != nil {
			return services.Wrap(services.ErrPrecondition, string(stage.Upload), "artifact check",
				artifact.Key, err)
		}
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, bag *registry.Bag) error {
	artifacts, err := Artifacts(bag)
	if err != nil {
		return err
	}

	uploaded, skipped := 0, 0
	for _, artifact := range artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := h.putArtifact(ctx, artifact)
		if err != nil {
			return err
		}
		if done {
			uploaded++
		} else {
			skipped++
		}
	}

	uploadedAt := time.Now().UTC()
	bag.UploadedAt = &uploadedAt

	h.logger.Info("bag uploaded",
		logging.String(logging.FieldIdentifier, bag.Identifier),
		logging.String("bucket", h.cfg.Storage.Bucket),
		logging.Int("uploaded", uploaded),
		logging.Int("skipped", skipped),
	)
	return nil
}

// putArtifact uploads one artifact unless the remote copy already matches.
// Returns true when bytes were actually transferred.
func (h *Handler) putArtifact(ctx context.Context, artifact Artifact) (bool, error) {
	info, err := os.Stat(artifact.Path)
	if err != nil {
		return false, services.Wrap(services.ErrPrecondition, string(stage.Upload), "artifact check",
			artifact.Key, err)
	}
	localSize := info.Size()

	remoteSize, exists, err := h.store.Stat(ctx, artifact.Key)
	if err != nil {
		return false, classify(string(stage.Upload), "stat", artifact.Key, err)
	}
	if exists && remoteSize == localSize {
		return false, nil
	}

	if err := objectstore.PutWithRetry(ctx, h.store, artifact.Key, artifact.Path, artifact.ContentType, h.cfg.Storage.MaxAttempts); err != nil {
		return false, classify(string(stage.Upload), "put", artifact.Key, err)
	}

	remoteSize, exists, err = h.store.Stat(ctx, artifact.Key)
	if err != nil {
		return false, classify(string(stage.Upload), "verify", artifact.Key, err)
	}
	if !exists || remoteSize != localSize {
		return false, services.Wrap(services.ErrTransient, string(stage.Upload), "verify",
			fmt.Sprintf("%s: remote size %d, local size %d", artifact.Key, remoteSize, localSize), nil)
	}
	return true, nil
}

// Artifacts lists everything a bag publishes, in a stable order: each
// object's page derivatives, then its PDF, then the bag manifest.
func Artifacts(bag *registry.Bag) ([]Artifact, error) {
	objects, err := bag.Objects()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, string(stage.Upload), "decode objects", "", err)
	}
	if bag.OriginIdentifier == "" {
		return nil, services.Wrap(services.ErrPrecondition, string(stage.Upload), "origin check",
			"bag has no origin identifier", nil)
	}

	var artifacts []Artifact
	for _, object := range objects {
		for _, page := range object.Pages {
			artifacts = append(artifacts, Artifact{
				Key:         objectstore.KeyJoin(bag.OriginIdentifier, object.LocalIdentifier, page.DerivativeFile),
				Path:        filepath.Join(bag.DerivativePath, object.LocalIdentifier, page.DerivativeFile),
				ContentType: "image/jp2",
			})
		}
		artifacts = append(artifacts, Artifact{
			Key:         objectstore.KeyJoin(bag.OriginIdentifier, pdf.OutputName(object.LocalIdentifier)),
			Path:        filepath.Join(bag.DerivativePath, pdf.OutputName(object.LocalIdentifier)),
			ContentType: "application/pdf",
		})
	}
	artifacts = append(artifacts, Artifact{
		Key:         objectstore.KeyJoin(bag.OriginIdentifier, manifest.FileName),
		Path:        filepath.Join(bag.DerivativePath, manifest.FileName),
		ContentType: "application/json",
	})
	return artifacts, nil
}

func classify(stageName, operation, key string, err error) error {
	if objectstore.IsPermanent(err) {
		return services.Wrap(services.ErrConfiguration, stageName, operation, key, err)
	}
	return services.Wrap(services.ErrTransient, stageName, operation, key, err)
}
