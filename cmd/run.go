package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"uploadqueue/internal/agent"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Publish every due task once and exit",
		Long: "Run the automation agent once against the configured store. " +
			"Fails when a server already owns the data directory; use POST /api/agent/run instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), ctx.config)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, runErr := a.engine.Run(cmd.Context())
			if err := printSummary(cmd.OutOrStdout(), summary, jsonOutput); err != nil {
				return err
			}
			return runErr //nolint:wrapcheck
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")
	return cmd
}

func printSummary(out io.Writer, summary agent.Summary, asJSON bool) error {
	if asJSON {
		encoded, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		_, err = fmt.Fprintln(out, string(encoded))
		return err //nolint:wrapcheck
	}
	if summary.Processed == 0 && summary.Skipped == 0 {
		_, err := fmt.Fprintln(out, "No tasks due.")
		return err //nolint:wrapcheck
	}

	rows := make([][]string, 0, len(summary.Results))
	for _, r := range summary.Results {
		rows = append(rows, []string{shortID(r.TaskID), r.Title, string(r.Status), r.Error})
	}
	fmt.Fprintln(out, renderTable([]string{"ID", "Title", "Status", "Error"}, rows, nil))
	_, err := fmt.Fprintf(out, "Processed %d: %d uploaded, %d failed, %d skipped in %s\n",
		summary.Processed, summary.Succeeded, summary.Failed, summary.Skipped,
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	return err //nolint:wrapcheck
}
