package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"pictor/internal/config"
	"pictor/internal/registry"
)

type bagRow struct {
	ID               int64  `json:"id"`
	Identifier       string `json:"identifier"`
	OriginIdentifier string `json:"origin_identifier,omitempty"`
	Title            string `json:"title,omitempty"`
	Status           string `json:"status"`
	FailedStage      string `json:"failed_stage,omitempty"`
	Pages            int    `json:"pages"`
	UpdatedAt        string `json:"updated_at"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered bags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *registry.Store) error {
				var statuses []registry.Status
				if statusFlag != "" {
					status, ok := registry.ParseStatus(statusFlag)
					if !ok {
						return fmt.Errorf("unknown status %q", statusFlag)
					}
					statuses = append(statuses, status)
				}

				bags, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}

				rows := make([]bagRow, 0, len(bags))
				for _, bag := range bags {
					rows = append(rows, bagRow{
						ID:               bag.ID,
						Identifier:       bag.Identifier,
						OriginIdentifier: bag.OriginIdentifier,
						Title:            bag.Title,
						Status:           string(bag.Status),
						FailedStage:      bag.FailedStage,
						Pages:            bag.PageCount(),
						UpdatedAt:        bag.UpdatedAt.Format("2006-01-02 15:04:05"),
					})
				}

				// Piped output defaults to JSON for scripting.
				if jsonFlag || !isatty.IsTerminal(os.Stdout.Fd()) {
					return writeJSON(cmd, rows)
				}

				tableRows := make([][]string, 0, len(rows))
				for _, row := range rows {
					status := row.Status
					if row.FailedStage != "" {
						status = fmt.Sprintf("%s (%s)", row.Status, row.FailedStage)
					}
					tableRows = append(tableRows, []string{
						fmt.Sprintf("%d", row.ID),
						row.Identifier,
						row.OriginIdentifier,
						row.Title,
						status,
						fmt.Sprintf("%d", row.Pages),
						row.UpdatedAt,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Identifier", "Origin", "Title", "Status", "Pages", "Updated"},
					tableRows,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Only list bags with this status")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit JSON instead of a table")
	return cmd
}
