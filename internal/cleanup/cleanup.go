package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pictor/internal/config"
	"pictor/internal/logging"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/stage"
)

// Handler removes a bag's local files after a verified upload: the inbound
// bag, the staged masters, and the derivatives. Only paths inside the
// configured roots are ever removed; the registry record keeps its durable
// columns so manifests can still be recreated.
type Handler struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New constructs the cleanup stage.
func New(cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{cfg: cfg, logger: logger}
}

func (h *Handler) Prepare(ctx context.Context, bag *registry.Bag) error {
	if bag.UploadedAt == nil {
		return services.Wrap(services.ErrPrecondition, string(stage.Cleanup), "upload check",
			"bag has no verified upload", nil)
	}
	targets := []struct {
		path, root string
	}{
		{bag.SourcePath, h.cfg.Paths.InboundDir},
		{bag.WorkingPath, h.cfg.Paths.WorkDir},
		{bag.DerivativePath, h.cfg.Paths.DerivativeDir},
	}
	for _, target := range targets {
		if target.path == "" {
			continue
		}
		if !within(target.root, target.path) {
			return services.Wrap(services.ErrConfiguration, string(stage.Cleanup), "path check",
				fmt.Sprintf("%s is outside %s, refusing to remove", target.path, target.root), nil)
		}
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, bag *registry.Bag) error {
	for _, path := range []string{bag.SourcePath, bag.WorkingPath, bag.DerivativePath} {
		if path == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.RemoveAll(path); err != nil {
			return services.Wrap(services.ErrTransient, string(stage.Cleanup), "remove", path, err)
		}
	}

	bag.SourcePath = ""
	bag.WorkingPath = ""
	bag.DerivativePath = ""

	h.logger.Info("local files removed",
		logging.String(logging.FieldIdentifier, bag.Identifier),
		logging.String("origin_identifier", bag.OriginIdentifier),
	)
	return nil
}

// within reports whether path sits strictly inside root. A path equal to the
// root itself is rejected: cleanup removes bag directories, never the roots.
func within(root, path string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
