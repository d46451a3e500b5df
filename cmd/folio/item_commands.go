package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/catalog"
	"folio/internal/catalogaccess"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var author string
	var priority int

	cmd := &cobra.Command{
		Use:   "add <externalID>...",
		Short: "Add catalog items to the acquisition pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 && strings.TrimSpace(title) != "" {
				return fmt.Errorf("--title applies to a single item; got %d ids", len(args))
			}
			return ctx.withAccess(func(access catalogaccess.Access) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					externalID := strings.TrimSpace(arg)
					if externalID == "" {
						return fmt.Errorf("external id must not be empty")
					}
					item, created, err := access.Add(cmd.Context(), externalID, title, author, priority)
					if err != nil {
						return fmt.Errorf("add %q: %w", externalID, err)
					}
					if created {
						fmt.Fprintf(out, "Added item %d (%s)\n", item.ID, item.ExternalID)
					} else {
						fmt.Fprintf(out, "Item %s already tracked as %d (%s)\n",
							item.ExternalID, item.ID, formatStatusLabel(item.Status))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title hint for matching (single item only)")
	cmd.Flags().StringVar(&author, "author", "", "Author hint for matching")
	cmd.Flags().IntVar(&priority, "priority", catalog.DefaultPriority, "Scheduling priority (lower dispatches first)")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog items",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range listStatuses {
				if _, ok := catalog.ParseStatus(raw); !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
			}
			return ctx.withAccess(func(access catalogaccess.Access) error {
				items, err := access.List(cmd.Context(), listStatuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{"items": items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "External ID", "Title", "Author", "Status", "Priority", "Created"},
					buildItemListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by item status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <itemID>",
		Short: "Show one catalog item in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withAccess(func(access catalogaccess.Access) error {
				item, err := access.Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item %d not found", id)
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{"item": item})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Item %d (%s)\n", item.ID, item.ExternalID)
				fmt.Fprintf(out, "  Title:      %s\n", orDash(item.Title))
				fmt.Fprintf(out, "  Author:     %s\n", orDash(item.Author))
				fmt.Fprintf(out, "  Status:     %s\n", formatStatusLabel(item.Status))
				fmt.Fprintf(out, "  Priority:   %d\n", item.Priority)
				if item.Language != "" || item.Year != 0 || item.Publisher != "" || item.Format != "" {
					fmt.Fprintf(out, "  Language:   %s\n", orDash(item.Language))
					if item.Year != 0 {
						fmt.Fprintf(out, "  Year:       %d\n", item.Year)
					}
					fmt.Fprintf(out, "  Publisher:  %s\n", orDash(item.Publisher))
					fmt.Fprintf(out, "  Format:     %s\n", orDash(item.Format))
				}
				if item.Progress.Stage != "" {
					fmt.Fprintf(out, "  Progress:   %s %.0f%% %s\n",
						item.Progress.Stage, item.Progress.Percent, item.Progress.Message)
				}
				if item.SourceURL != "" {
					fmt.Fprintf(out, "  Source URL: %s\n", item.SourceURL)
				}
				if item.StagingFile != "" {
					fmt.Fprintf(out, "  Staging:    %s (%s)\n", item.StagingFile, formatFileSize(item.FileSize))
				}
				if item.ShelfPath != "" {
					fmt.Fprintf(out, "  Shelf path: %s\n", item.ShelfPath)
				}
				if item.Checksum != "" {
					fmt.Fprintf(out, "  Checksum:   %s\n", item.Checksum)
				}
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "  Last error: %s\n", item.ErrorMessage)
				}
				if item.NeedsReview {
					fmt.Fprintf(out, "  Review:     needed (%s)\n", orDash(item.ReviewReason))
				}
				fmt.Fprintf(out, "  Created:    %s\n", formatDisplayTime(item.CreatedAt))
				fmt.Fprintf(out, "  Updated:    %s\n", formatDisplayTime(item.UpdatedAt))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of formatted text")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <itemID>",
		Short: "Show an item's status transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withAccess(func(access catalogaccess.Access) error {
				entries, err := access.History(cmd.Context(), id, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{"entries": entries})
				}
				if len(entries) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No history for item %d\n", id)
					return nil
				}
				table := renderTable(
					[]string{"Seq", "From", "To", "Elapsed", "Detail", "At"},
					buildHistoryRows(entries),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of most recent transitions to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show item counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access catalogaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{"counts": stats})
				}
				rows := buildStatsRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func parseItemID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", arg)
	}
	return id, nil
}

func parseItemIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseItemID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
