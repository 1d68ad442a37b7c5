package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"telecine/internal/config"
	"telecine/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the durable job queue",
	}
	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueClearCommand(ctx))
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued jobs in dispatch order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				queued, err := st.ListQueue(cmd.Context())
				if err != nil {
					return err
				}
				if len(queued) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(queued))
				for _, q := range queued {
					rows = append(rows, []string{
						q.ID,
						strconv.FormatInt(q.SceneID, 10),
						string(q.Phase),
						q.State,
						strconv.Itoa(q.Priority),
						fmt.Sprintf("%d/%d", q.Attempt, q.MaxRetries),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Scene", "Phase", "State", "Priority", "Attempt"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				dropped, err := st.ClearQueue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dropped %d queued job(s)\n", dropped)
				return nil
			})
		},
	}
}
