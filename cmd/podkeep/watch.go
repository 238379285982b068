package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"podkeep/internal/app"
	"podkeep/internal/schedule"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var spec string

	cmd := &cobra.Command{
		Use:   "watch <list-file>",
		Short: "Ingest the listed feeds now and then on a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if strings.TrimSpace(spec) == "" {
				spec = cfg.Schedule
			}
			if err := schedule.Validate(spec); err != nil {
				return err
			}

			return ctx.withRunLock(cmd, func(application *app.App) error {
				log := application.Logger()
				return schedule.Run(cmd.Context(), spec, log, func(runCtx context.Context) {
					if _, err := application.RunBatch(runCtx, args[0], cmd.OutOrStdout()); err != nil {
						log.WithError(err).Error("ingestion run failed")
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&spec, "schedule", "", "Cron expression or descriptor such as \"@every 6h\" (defaults to the configured schedule)")
	return cmd
}
