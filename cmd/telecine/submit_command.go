package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"telecine/internal/config"
	"telecine/internal/job"
	"telecine/internal/store"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".mov":  {},
	".webm": {},
	".m4v":  {},
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var phaseFlag string
	var priority int

	cmd := &cobra.Command{
		Use:   "submit <scene-id>",
		Short: "Queue a processing phase for a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid scene id %q", args[0])
			}
			phase, ok := job.ParsePhase(phaseFlag)
			if !ok {
				return fmt.Errorf("unknown phase %q", phaseFlag)
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				scene, err := st.GetByID(cmd.Context(), sceneID)
				if err != nil {
					return err
				}
				if scene == nil {
					return fmt.Errorf("scene %d does not exist", sceneID)
				}
				if phase != job.PhaseMetadata && !scene.HasMetadata() {
					return fmt.Errorf("scene %d has no metadata yet, run the metadata phase first", sceneID)
				}

				exists, err := st.ExistsPendingOrRunning(cmd.Context(), sceneID, phase)
				if err != nil {
					return err
				}
				if exists {
					fmt.Fprintf(cmd.OutOrStdout(), "scene %d already has a %s job queued\n", sceneID, phase)
					return nil
				}

				jobID := uuid.NewString()
				if err := st.CreatePendingJobWithPriority(cmd.Context(), jobID, sceneID, phase, priority); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s job %s for scene %d\n", phase, jobID, sceneID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&phaseFlag, "phase", string(job.PhaseMetadata), "Phase to run (metadata, thumbnail, sprites, animated_thumbnails, fingerprint)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Dispatch priority, higher runs first")
	return cmd
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the library directory and queue metadata for new files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				var added, queued, seen int
				err := filepath.WalkDir(cfg.Paths.LibraryDir, func(path string, d fs.DirEntry, walkErr error) error {
					if walkErr != nil {
						return walkErr
					}
					if d.IsDir() {
						return nil
					}
					if _, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
						return nil
					}
					seen++

					scene, err := st.GetByPath(cmd.Context(), path)
					if err != nil {
						return err
					}
					if scene == nil {
						if scene, err = st.AddScene(cmd.Context(), path, ""); err != nil {
							return err
						}
						if err := st.UpdateIndex(cmd.Context(), scene.ID); err != nil {
							return err
						}
						added++
					}
					if scene.HasMetadata() {
						return nil
					}

					exists, err := st.ExistsPendingOrRunning(cmd.Context(), scene.ID, job.PhaseMetadata)
					if err != nil {
						return err
					}
					if exists {
						return nil
					}
					if err := st.CreatePendingJob(cmd.Context(), uuid.NewString(), scene.ID, job.PhaseMetadata); err != nil {
						return err
					}
					queued++
					return nil
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d file(s): %d new, %d metadata job(s) queued\n", seen, added, queued)
				return nil
			})
		},
	}
}
