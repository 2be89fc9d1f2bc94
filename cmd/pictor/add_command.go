package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pictor/internal/config"
	"pictor/internal/registry"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <bag-dir>",
		Short: "Register an inbound bag directory for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				path, err := filepath.Abs(args[0])
				if err != nil {
					return fmt.Errorf("resolve bag path: %w", err)
				}
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("stat bag path: %w", err)
				}
				if !info.IsDir() {
					return fmt.Errorf("%s is not a directory", path)
				}

				bag, err := store.Add(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("register bag: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered bag %d (%s) from %s\n", bag.ID, bag.Identifier, path)
				return nil
			})
		},
	}
}
