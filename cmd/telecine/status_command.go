package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"telecine/internal/config"
	"telecine/internal/store"
)

const (
	ansiBlue  = "\x1b[34m"
	ansiReset = "\x1b[0m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var historyLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show library and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				scenes, err := st.GetAll(cmd.Context())
				if err != nil {
					return err
				}
				byStatus := map[string]int{}
				for _, scene := range scenes {
					byStatus[scene.ProcessingStatus]++
				}

				printSection(out, colorize, "Library")
				fmt.Fprintln(out, renderTable(
					[]string{"Scenes", "Pending", "Processing", "Completed", "Failed"},
					[][]string{{
						strconv.Itoa(len(scenes)),
						strconv.Itoa(byStatus[store.SceneStatusPending]),
						strconv.Itoa(byStatus[store.SceneStatusProcessing]),
						strconv.Itoa(byStatus[store.SceneStatusCompleted]),
						strconv.Itoa(byStatus[store.SceneStatusFailed]),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
				))

				queued, err := st.ListQueue(cmd.Context())
				if err != nil {
					return err
				}

				printSection(out, colorize, "Queue")
				queueRows := make([][]string, 0, len(queued))
				for _, q := range queued {
					queueRows = append(queueRows, []string{
						q.ID,
						strconv.FormatInt(q.SceneID, 10),
						string(q.Phase),
						q.State,
						strconv.Itoa(q.Priority),
					})
				}
				if len(queueRows) == 0 {
					fmt.Fprintln(out, "queue is empty")
				} else {
					fmt.Fprintln(out, renderTable(
						[]string{"Job", "Scene", "Phase", "State", "Priority"},
						queueRows,
						[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight},
					))
				}

				history, err := st.RecentHistory(cmd.Context(), historyLimit)
				if err != nil {
					return err
				}

				printSection(out, colorize, "Recent jobs")
				historyRows := make([][]string, 0, len(history))
				for _, entry := range history {
					historyRows = append(historyRows, []string{
						strconv.FormatInt(entry.SceneID, 10),
						string(entry.Phase),
						entry.Status,
						formatWhen(entry.FinishedAt, entry.StartedAt),
						entry.Error,
					})
				}
				if len(historyRows) == 0 {
					fmt.Fprintln(out, "no jobs recorded")
				} else {
					fmt.Fprintln(out, renderTable(
						[]string{"Scene", "Phase", "Status", "When", "Error"},
						historyRows,
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
					))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&historyLimit, "history", 10, "Number of recent jobs to show")
	return cmd
}

func printSection(out io.Writer, colorize bool, title string) {
	if colorize {
		title = ansiBlue + title + ansiReset
	}
	fmt.Fprintln(out, title)
}

func formatWhen(finished, started time.Time) string {
	when := finished
	if when.IsZero() {
		when = started
	}
	if when.IsZero() {
		return ""
	}
	return when.Local().Format("2006-01-02 15:04:05")
}
