package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/tinyland-inc/huskycat/pkg/console"
	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/model"
	"github.com/tinyland-inc/huskycat/pkg/procmanager"
)

var statusLog = logger.New("cmd:status")

func newStatusCommand() *cobra.Command {
	var (
		watchFlag         bool
		pruneScheduleFlag string
		jsonFlag          bool
	)

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show the most recent non-blocking git-hooks run",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolving state directory: %w", err)
			}
			stateDir := filepath.Join(home, ".huskycat")
			pm := procmanager.New(stateDir)

			var sched *cron.Cron
			if pruneScheduleFlag != "" {
				sched = cron.New()
				if _, err := sched.AddFunc(pruneScheduleFlag, func() {
					if err := pm.CleanupZombies(); err != nil {
						statusLog.Printf("scheduled prune failed: %v", err)
					}
				}); err != nil {
					return fmt.Errorf("--prune-schedule: %w", err)
				}
				sched.Start()
				defer sched.Stop()
			}

			if jsonFlag {
				return renderStatusJSON(pm)
			}

			if !watchFlag {
				return renderStatus(cmd, pm)
			}

			return watchStatus(cmd, pm, stateDir)
		},
	}

	cmd.Flags().BoolVar(&watchFlag, "watch", false, "re-render whenever a new run is recorded")
	cmd.Flags().StringVar(&pruneScheduleFlag, "prune-schedule", "", "cron expression for periodic stale-run cleanup while running (implies a long-lived process)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the last run record as JSON instead of a table")

	return cmd
}

// renderStatusJSON prints the raw Run Record, for scripts that want to
// consume status output instead of a human reading it.
func renderStatusJSON(pm *procmanager.Manager) error {
	record, err := pm.LatestRun()
	if err != nil {
		return fmt.Errorf("reading last run: %w", err)
	}
	if record == nil {
		record = &model.RunRecord{}
	}
	return console.OutputStructOrJSON(record, true)
}

// renderStatus renders the last Run Record via RenderStruct's console
// struct tags (see model.RunRecord), so the same tag-driven formatter
// used by every other console "print this struct" command also covers
// the run history shown at the terminal.
func renderStatus(cmd *cobra.Command, pm *procmanager.Manager) error {
	record, err := pm.LatestRun()
	if err != nil {
		return fmt.Errorf("reading last run: %w", err)
	}
	if record == nil {
		fmt.Fprintln(cmd.OutOrStdout(), console.FormatInfoMessage("no recorded runs yet"))
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), console.RenderStruct(record))
	return nil
}

// watchStatus re-renders the status table every time a new run record
// lands in the state directory's runs/ folder, with a spinner filling the
// gap between runs so a terminal watching a slow non-blocking hook isn't
// left looking frozen.
func watchStatus(cmd *cobra.Command, pm *procmanager.Manager, stateDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	runsDir := filepath.Join(stateDir, "runs")
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := watcher.Add(runsDir); err != nil {
		return fmt.Errorf("watching %s: %w", runsDir, err)
	}

	if err := renderStatus(cmd, pm); err != nil {
		return err
	}

	spin := console.NewSpinner("waiting for the next run")
	spin.Start()

	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			spin.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				spin.Stop()
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			spin.StopWithMessage("run updated")
			if err := renderStatus(cmd, pm); err != nil {
				return err
			}
			spin = console.NewSpinner("waiting for the next run")
			spin.Start()
		case err, ok := <-watcher.Errors:
			if !ok {
				spin.Stop()
				return nil
			}
			statusLog.Printf("watcher error: %v", err)
		}
	}
}
