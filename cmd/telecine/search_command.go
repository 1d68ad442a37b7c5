package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"telecine/internal/config"
	"telecine/internal/store"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the library by title, path, codec, or container",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				scenes, err := st.SearchScenes(cmd.Context(), query, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(scenes) == 0 {
					fmt.Fprintln(out, "no matches")
					return nil
				}
				rows := make([][]string, 0, len(scenes))
				for _, scene := range scenes {
					rows = append(rows, []string{
						strconv.FormatInt(scene.ID, 10),
						scene.Title,
						scene.VideoCodec,
						scene.ProcessingStatus,
						scene.Path,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Scene", "Title", "Codec", "Status", "Path"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 25, "Maximum number of matches to show")
	return cmd
}
