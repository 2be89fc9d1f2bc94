package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pictor/internal/config"
	"pictor/internal/registry"
)

type bagDetail struct {
	ID               int64             `json:"id"`
	Identifier       string            `json:"identifier"`
	OriginIdentifier string            `json:"origin_identifier,omitempty"`
	Title            string            `json:"title,omitempty"`
	Date             string            `json:"date,omitempty"`
	Status           string            `json:"status"`
	FailedStage      string            `json:"failed_stage,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	RetryCount       int               `json:"retry_count,omitempty"`
	SourcePath       string            `json:"source_path,omitempty"`
	WorkingPath      string            `json:"working_path,omitempty"`
	DerivativePath   string            `json:"derivative_path,omitempty"`
	Objects          []registry.Object `json:"objects,omitempty"`
	ManifestBuiltAt  *time.Time        `json:"manifest_built_at,omitempty"`
	UploadedAt       *time.Time        `json:"uploaded_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <bag>",
		Short: "Show a bag's full registry record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				bag, err := resolveBag(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				objects, err := bag.Objects()
				if err != nil {
					return fmt.Errorf("decode objects: %w", err)
				}
				return writeJSON(cmd, bagDetail{
					ID:               bag.ID,
					Identifier:       bag.Identifier,
					OriginIdentifier: bag.OriginIdentifier,
					Title:            bag.Title,
					Date:             bag.Date,
					Status:           string(bag.Status),
					FailedStage:      bag.FailedStage,
					ErrorMessage:     bag.ErrorMessage,
					RetryCount:       bag.RetryCount,
					SourcePath:       bag.SourcePath,
					WorkingPath:      bag.WorkingPath,
					DerivativePath:   bag.DerivativePath,
					Objects:          objects,
					ManifestBuiltAt:  bag.ManifestBuiltAt,
					UploadedAt:       bag.UploadedAt,
					CreatedAt:        bag.CreatedAt,
					UpdatedAt:        bag.UpdatedAt,
				})
			})
		},
	}
}
