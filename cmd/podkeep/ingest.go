package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podkeep/internal/app"
	"podkeep/internal/report"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <list-file>",
		Short: "Fetch every listed feed and download new episodes",
		Long: "Reads feed references from list-file, one per line (blank lines and lines\n" +
			"starting with # are ignored), or from an .opml file, and ingests each feed.\n" +
			"Exits non-zero when any feed failed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunLock(cmd, func(application *app.App) error {
				results, err := application.RunBatch(cmd.Context(), args[0], cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				if failed := report.Summarize(results).Failed; failed > 0 {
					return fmt.Errorf("%d of %d feeds failed", failed, len(results))
				}
				return nil
			})
		},
	}
}
