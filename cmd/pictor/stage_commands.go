package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pictor/internal/config"
	"pictor/internal/registry"
	"pictor/internal/services"
	"pictor/internal/stage"
	"pictor/internal/stageexec"
)

var stageShortHelp = map[stage.Stage]string{
	stage.Prepare:         "Validate a bag and stage its masters",
	stage.MakeDerivatives: "Encode JP2 derivatives for a prepared bag",
	stage.MakePDF:         "Assemble per-object PDFs from derivatives",
	stage.MakeManifest:    "Build the bag's IIIF presentation manifest",
	stage.Upload:          "Publish derivatives and manifest to object storage",
	stage.Cleanup:         "Remove local copies after a verified upload",
}

func newStageCommand(ctx *commandContext, st stage.Stage) *cobra.Command {
	return &cobra.Command{
		Use:   string(st) + " <bag>",
		Short: stageShortHelp[st],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				logger, err := ctx.ensureLogger()
				if err != nil {
					return err
				}
				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				bag, err := resolveBag(runCtx, store, args[0])
				if err != nil {
					return err
				}

				handler, err := newHandler(runCtx, cfg, st, logger)
				if err != nil {
					return err
				}
				updated, err := stageexec.Run(runCtx, stageexec.Options{
					Logger:  logger,
					Store:   store,
					Config:  cfg,
					Handler: handler,
					Stage:   st,
					BagID:   bag.ID,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "bag %d (%s) is now %s\n", updated.ID, updated.Identifier, updated.Status)
				return nil
			})
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <bag>",
		Short: "Run every remaining stage for a bag, in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				logger, err := ctx.ensureLogger()
				if err != nil {
					return err
				}
				runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				bag, err := resolveBag(runCtx, store, args[0])
				if err != nil {
					return err
				}

				for _, st := range stage.All() {
					def, _ := stage.TransitionFor(st)
					eligible := bag.Status == def.Precondition ||
						(bag.Status == registry.StatusFailed && bag.FailedStage == string(st))
					if !eligible {
						continue
					}

					handler, err := newHandler(runCtx, cfg, st, logger)
					if err != nil {
						return err
					}
					bag, err = stageexec.Run(runCtx, stageexec.Options{
						Logger:  logger,
						Store:   store,
						Config:  cfg,
						Handler: handler,
						Stage:   st,
						BagID:   bag.ID,
					})
					if err != nil {
						if errors.Is(err, services.ErrPrecondition) {
							return fmt.Errorf("bag %d stopped at %s: %w", bag.ID, st, err)
						}
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-16s -> %s\n", st, bag.Status)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "bag %d (%s) finished as %s\n", bag.ID, bag.Identifier, bag.Status)
				return nil
			})
		},
	}
}
