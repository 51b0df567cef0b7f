package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scribed/internal/tracking"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair tracked files",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *tracking.Store) error {
				var records []*tracking.Record
				var err error
				if statusFilter != "" {
					status := tracking.Status(statusFilter)
					if !status.Valid() {
						return fmt.Errorf("unknown status %q", statusFilter)
					}
					records, err = store.ListByStatus(cmd.Context(), status)
				} else {
					records, err = store.List(cmd.Context())
				}
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tracked files")
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, record := range records {
					detail := record.TranscriptPath
					if record.Status == tracking.StatusFailed {
						detail = record.ErrorMessage
					}
					rows = append(rows, []string{
						record.Path,
						string(record.Status),
						fmt.Sprintf("%d", record.FailureCount),
						record.UpdatedAt.Local().Format(time.DateTime),
						detail,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"Path", "Status", "Failures", "Updated", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Filter by record status")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [path...]",
		Short: "Reset failed files to pending",
		Long: "Reset failed files to pending so a running daemon picks them up " +
			"on its next scan. With no arguments every failed file is reset.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *tracking.Store) error {
				updated, err := store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed files\n", updated)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearDone bool
	var clearFailed bool
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove tracking records",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, flag := range []bool{clearDone, clearFailed, clearAll} {
				if flag {
					selected++
				}
			}
			if selected != 1 {
				return errors.New("specify exactly one of --done, --failed, or --all")
			}

			return ctx.withStore(func(store *tracking.Store) error {
				var removed int64
				var err error
				switch {
				case clearDone:
					removed, err = store.ClearByStatus(cmd.Context(), tracking.StatusDone)
				case clearFailed:
					removed, err = store.ClearByStatus(cmd.Context(), tracking.StatusFailed)
				default:
					removed, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearDone, "done", false, "Remove only done records")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed records")
	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every record")
	return cmd
}
