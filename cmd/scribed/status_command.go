package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scribed/internal/tracking"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracking store health and record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *tracking.Store) error {
				out := cmd.OutOrStdout()

				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Database: %s\n", health.DBPath)
				fmt.Fprintf(out, "Readable: %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "Integrity: %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "Records: %d\n", health.TotalRecords)
				if health.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", health.Error)
				}

				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(out, "No tracked files")
					return nil
				}
				fmt.Fprintln(out, renderTable(out, []string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func buildStatusRows(stats map[tracking.Status]int) [][]string {
	order := []tracking.Status{
		tracking.StatusPending,
		tracking.StatusInProgress,
		tracking.StatusDone,
		tracking.StatusFailed,
	}
	rows := make([][]string, 0, len(order))
	for _, status := range order {
		count, ok := stats[status]
		if !ok {
			continue
		}
		rows = append(rows, []string{string(status), strconv.Itoa(count)})
	}
	return rows
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
