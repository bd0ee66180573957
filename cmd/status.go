package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"uploadqueue/internal/agent"
	"uploadqueue/internal/task"
)

type statusView struct {
	Queue []*task.VideoTask `json:"queue"`
	State agent.State       `json:"state"`
}

// newStatusCommand reads the stores directly and does not take the data dir
// lock, so it works while a server is running.
func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queued tasks and agent state",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStores(ctx.config)
			if err != nil {
				return err
			}
			defer func() { _ = st.close() }()

			tasks, err := st.tasks.LoadTasks(cmd.Context())
			if err != nil {
				return fmt.Errorf("load tasks: %w", err)
			}
			task.SortByCreation(tasks)
			state, _, err := st.state.LoadState(cmd.Context())
			if err != nil {
				return fmt.Errorf("load agent state: %w", err)
			}
			view := statusView{Queue: tasks, State: state}
			if view.Queue == nil {
				view.Queue = []*task.VideoTask{}
			}
			return printStatus(cmd.OutOrStdout(), view, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	return cmd
}

func printStatus(out io.Writer, view statusView, asJSON bool) error {
	if asJSON {
		encoded, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return fmt.Errorf("encode status: %w", err)
		}
		_, err = fmt.Fprintln(out, string(encoded))
		return err //nolint:wrapcheck
	}

	state := view.State
	lastRun := "never"
	if state.LastRun != nil {
		lastRun = formatTimestamp(*state.LastRun)
	}
	stateRows := [][]string{
		{"Last run", lastRun},
		{"Last status", string(state.LastRunStatus)},
		{"Last error", state.LastError},
		{"Total runs", strconv.FormatInt(state.TotalRuns, 10)},
		{"Total uploads", strconv.FormatInt(state.TotalUploads, 10)},
		{"Total failures", strconv.FormatInt(state.TotalFailures, 10)},
	}
	fmt.Fprintln(out, renderTable([]string{"Agent", "Value"}, stateRows, []columnAlignment{alignLeft, alignRight}))

	if len(view.Queue) == 0 {
		_, err := fmt.Fprintln(out, "Queue is empty.")
		return err //nolint:wrapcheck
	}
	rows := make([][]string, 0, len(view.Queue))
	for _, t := range view.Queue {
		rows = append(rows, []string{
			shortID(t.ID),
			t.Title,
			string(t.Status),
			string(t.Visibility),
			formatTimestamp(t.ScheduledTime),
			t.Error,
		})
	}
	_, err := fmt.Fprintln(out, renderTable([]string{"ID", "Title", "Status", "Visibility", "Scheduled", "Error"}, rows, nil))
	return err //nolint:wrapcheck
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
