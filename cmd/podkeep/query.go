package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"podkeep/internal/app"
	"podkeep/internal/domain"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Inspect tracked feeds",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every tracked feed as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(application *app.App) error {
				return application.Query().ListFeeds(cmd.Context(), cmd.OutOrStdout())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <feed_id>",
		Short: "Show a feed with its latest episodes and snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(application *app.App) error {
				return application.Query().GetFeed(cmd.Context(), cmd.OutOrStdout(), id)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export-opml <file>",
		Short: "Write tracked feeds to an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(application *app.App) error {
				return exportOPML(cmd, application, args[0])
			})
		},
	})

	return cmd
}

func exportOPML(cmd *cobra.Command, application *app.App, path string) error {
	temp := path + ".tmp"
	file, err := os.Create(temp)
	if err != nil {
		return err
	}
	if err := application.Query().ExportOPML(cmd.Context(), file); err != nil {
		file.Close()
		os.Remove(temp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(temp)
		return err
	}
	if err := os.Rename(temp, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported feeds to %s\n", path)
	return nil
}

func newItemCommand(ctx *commandContext) *cobra.Command {
	var feedID int64
	var title string
	var description string

	cmd := &cobra.Command{
		Use:   "item",
		Short: "Inspect stored episodes",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List episodes as JSON lines, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.EpisodeFilter{Title: title, Description: description}
			if cmd.Flags().Changed("feed-id") {
				filter.FeedID = &feedID
			}
			return ctx.withApp(cmd, func(application *app.App) error {
				return application.Query().ListItems(cmd.Context(), cmd.OutOrStdout(), filter)
			})
		},
	}
	list.Flags().Int64Var(&feedID, "feed-id", 0, "Only episodes of this feed")
	list.Flags().StringVar(&title, "title", "", "Case-insensitive substring of the title")
	list.Flags().StringVar(&description, "description", "", "Case-insensitive substring of the description")

	cmd.AddCommand(list)
	cmd.AddCommand(&cobra.Command{
		Use:   "get <feed_item_id>",
		Short: "Show a single episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(application *app.App) error {
				return application.Query().GetItem(cmd.Context(), cmd.OutOrStdout(), id)
			})
		},
	})
	return cmd
}

func newRawCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Inspect stored feed snapshots",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <feed_id>",
		Short: "Show the latest snapshot of a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(cmd, func(application *app.App) error {
				return application.Query().GetRawFeed(cmd.Context(), cmd.OutOrStdout(), id)
			})
		},
	})

	return cmd
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}
