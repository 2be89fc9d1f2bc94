package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pictor/internal/config"
	"pictor/internal/manifest"
	"pictor/internal/registry"
)

func newRecreateManifestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recreate-manifest <origin-identifier>",
		Short: "Rebuild and re-publish one bag's manifest from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				logger, err := ctx.ensureLogger()
				if err != nil {
					return err
				}
				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				objects, err := newObjectStore(runCtx, cfg)
				if err != nil {
					return err
				}
				recreator := manifest.NewRecreator(cfg, store, objects, logger)
				if err := recreator.Run(runCtx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recreated manifest for %s\n", args[0])
				return nil
			})
		},
	}
}

func newRecreateManifestsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recreate-manifests",
		Short: "Rebuild and re-publish every recorded manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				logger, err := ctx.ensureLogger()
				if err != nil {
					return err
				}
				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				objects, err := newObjectStore(runCtx, cfg)
				if err != nil {
					return err
				}
				recreator := manifest.NewRecreator(cfg, store, objects, logger)
				recreated, err := recreator.RunAll(runCtx)
				fmt.Fprintf(cmd.OutOrStdout(), "recreated %d manifests\n", recreated)
				return err
			})
		},
	}
}
