package main

import (
	"context"
	"fmt"
	"log/slog"

	"pictor/internal/cleanup"
	"pictor/internal/config"
	"pictor/internal/jp2"
	"pictor/internal/manifest"
	"pictor/internal/pdf"
	"pictor/internal/preparer"
	"pictor/internal/services/archivesspace"
	"pictor/internal/services/jp2enc"
	"pictor/internal/services/objectstore"
	"pictor/internal/services/pdfcat"
	"pictor/internal/stage"
	"pictor/internal/upload"
)

// newHandler builds the concrete stage handler and its service clients from
// configuration.
func newHandler(ctx context.Context, cfg *config.Config, st stage.Stage, logger *slog.Logger) (stage.Handler, error) {
	switch st {
	case stage.Prepare:
		var lookup archivesspace.Lookup
		if cfg.ArchivesSpace.Enabled {
			client, err := archivesspace.New(archivesspace.Config{
				BaseURL:        cfg.ArchivesSpace.BaseURL,
				Username:       cfg.ArchivesSpace.Username,
				Password:       cfg.ArchivesSpace.Password,
				Repository:     cfg.ArchivesSpace.Repository,
				TimeoutSeconds: cfg.ArchivesSpace.TimeoutSeconds,
			})
			if err != nil {
				return nil, fmt.Errorf("archivesspace client: %w", err)
			}
			lookup = client
		}
		return preparer.New(cfg, lookup, logger), nil

	case stage.MakeDerivatives:
		encoder, err := jp2enc.New(cfg.JP2.Binary, cfg.JP2.TimeoutSeconds)
		if err != nil {
			return nil, fmt.Errorf("jp2 encoder: %w", err)
		}
		return jp2.New(cfg, encoder, logger), nil

	case stage.MakePDF:
		assemblerCfg := pdfcat.Config{
			Binary:         cfg.PDF.Binary,
			TimeoutSeconds: cfg.PDF.TimeoutSeconds,
		}
		if cfg.PDF.OCREnabled {
			assemblerCfg.OCRBinary = cfg.PDF.OCRBinary
			assemblerCfg.OCRTimeoutSeconds = cfg.PDF.OCRTimeoutSeconds
		}
		assembler, err := pdfcat.New(assemblerCfg)
		if err != nil {
			return nil, fmt.Errorf("pdf assembler: %w", err)
		}
		return pdf.New(cfg, assembler, logger), nil

	case stage.MakeManifest:
		return manifest.New(cfg, logger), nil

	case stage.Upload:
		store, err := newObjectStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return upload.New(cfg, store, logger), nil

	case stage.Cleanup:
		return cleanup.New(cfg, logger), nil

	default:
		return nil, fmt.Errorf("unknown stage: %s", st)
	}
}

func newObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	store, err := objectstore.New(ctx, objectstore.Config{
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		PathStyle:       cfg.Storage.PathStyle,
		TimeoutSeconds:  cfg.Storage.TimeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	return store, nil
}
