package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"folio/internal/api"
	"folio/internal/catalogaccess"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var retryAll bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "retry [itemID...]",
		Short: "Re-admit permanently failed items",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !retryAll {
				return errors.New("specify item ids or --all")
			}
			if len(args) > 0 && retryAll {
				return errors.New("specify either item ids or --all, not both")
			}
			return ctx.withAccess(func(access catalogaccess.Access) error {
				out := cmd.OutOrStdout()
				if retryAll {
					updated, err := access.RetryAll(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Retried %d failed items\n", updated)
					return nil
				}

				ids, err := parseItemIDs(args)
				if err != nil {
					return err
				}
				result, err := api.RetryFailedItemsByID(cmd.Context(), access, ids)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				printRetryResult(out, result)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&retryAll, "all", false, "Retry every permanently failed item")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of per-item lines")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "remove <itemID>...",
		Short: "Remove catalog items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			return ctx.withAccess(func(access catalogaccess.Access) error {
				result, err := api.RemoveItemsByID(cmd.Context(), access, ids)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				printRemoveResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of per-item lines")
	return cmd
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished catalog items",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, flag := range []bool{clearCompleted, clearFailed, clearAll} {
				if flag {
					selected++
				}
			}
			if selected != 1 {
				return errors.New("specify exactly one of --completed, --failed, or --all")
			}
			return ctx.withAccess(func(access catalogaccess.Access) error {
				out := cmd.OutOrStdout()
				switch {
				case clearCompleted:
					removed, err := access.ClearCompleted(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d completed items\n", removed)
				case clearFailed:
					removed, err := access.ClearFailed(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d failed items\n", removed)
				default:
					removed, err := access.ClearAll(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d catalog items\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove completed and skipped items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove permanently failed items")
	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every item")
	return cmd
}

func newResetStuckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return stale in-flight items to their queued statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access catalogaccess.Access) error {
				updated, err := access.ResetStuck(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d items\n", updated)
				return nil
			})
		},
	}
}

func printRetryResult(out io.Writer, result api.RetryItemsResult) {
	for _, item := range result.Items {
		switch item.Outcome {
		case api.RetryItemNotFound:
			fmt.Fprintf(out, "Item %d not found\n", item.ID)
		case api.RetryItemNotFailed:
			fmt.Fprintf(out, "Item %d is not permanently failed\n", item.ID)
		case api.RetryItemUpdated:
			fmt.Fprintf(out, "Item %d re-admitted\n", item.ID)
		}
	}
}

func printRemoveResult(out io.Writer, result api.RemoveItemsResult) {
	for _, item := range result.Items {
		switch item.Outcome {
		case api.RemoveItemNotFound:
			fmt.Fprintf(out, "Item %d not found\n", item.ID)
		case api.RemoveItemRemoved:
			fmt.Fprintf(out, "Item %d removed\n", item.ID)
		}
	}
}
