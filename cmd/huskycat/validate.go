package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/tinyland-inc/huskycat/pkg/adapters"
	"github.com/tinyland-inc/huskycat/pkg/dispatcher"
	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/metrics"
	"github.com/tinyland-inc/huskycat/pkg/model"
	"github.com/tinyland-inc/huskycat/pkg/tty"
)

var validateLog = logger.New("cmd:validate")

func newValidateCommand() *cobra.Command {
	var (
		modeFlag        string
		fixFlag         bool
		unsafeFlag      bool
		stagedFlag      bool
		fastFlag        bool
		nonblockingFlag string
		watchFlag       bool
		metricsAddr     string
	)

	cmd := &cobra.Command{
		Use:   "validate [files...]",
		Short: "Validate files against the configured validators",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := model.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolving working directory: %w", err)
			}

			req := dispatcher.Request{
				Mode:    mode,
				Files:   args,
				Staged:  stagedFlag,
				Fix:     fixFlag,
				Unsafe:  unsafeFlag,
				Fast:    fastFlag,
				TTY:     tty.IsStdoutTerminal(),
				WorkDir: wd,
				Out:     os.Stdout,
				Stdin:   os.Stdin,
			}

			if nonblockingFlag != "" {
				b, err := parseBoolFlag(nonblockingFlag)
				if err != nil {
					return fmt.Errorf("--nonblocking: %w", err)
				}
				req.NonblockingOverride = &b
			}

			if metricsAddr != "" {
				rec := metrics.NewRecorder()
				req.Metrics = rec
				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				go func() {
					if err := rec.Serve(ctx, metricsAddr); err != nil {
						validateLog.Printf("metrics server stopped: %v", err)
					}
				}()
			}

			if watchFlag {
				return runWatch(cmd.Context(), req)
			}

			outcome, err := dispatcher.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			os.Exit(outcome.ExitCode)
			return nil
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", string(model.ModeCLI), "invocation mode: git-hooks, ci, cli, pipeline, mcp")
	cmd.Flags().BoolVar(&fixFlag, "fix", false, "apply fixes where the fix policy allows it")
	cmd.Flags().BoolVar(&unsafeFlag, "unsafe", false, "also apply Uncertain-confidence fixes in CLI mode")
	cmd.Flags().BoolVar(&stagedFlag, "staged", false, "validate the files currently staged for commit")
	cmd.Flags().BoolVar(&fastFlag, "fast", false, "skip tools marked slow")
	cmd.Flags().StringVar(&nonblockingFlag, "nonblocking", "", "override git-hooks non-blocking behavior (true/false)")
	cmd.Flags().BoolVar(&watchFlag, "watch", false, "re-validate on file changes instead of exiting")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running (Pipeline mode)")

	return cmd
}

func parseBoolFlag(s string) (bool, error) {
	switch s {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected true/false, got %q", s)
	}
}

// runWatch re-validates the requested file set whenever one of them
// changes, debouncing bursts of events the way an editor save often
// produces them.
func runWatch(ctx context.Context, req dispatcher.Request) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	watched := req.Files
	if len(watched) == 0 {
		watched = []string{req.WorkDir}
	}
	for _, f := range watched {
		if err := watcher.Add(f); err != nil {
			validateLog.Printf("failed to watch %s: %v", f, err)
		}
	}

	run := func() {
		if _, err := dispatcher.Run(ctx, req); err != nil {
			fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		}
	}
	run()

	const debounceDelay = 300 * time.Millisecond
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, run)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			validateLog.Printf("watcher error: %v", err)
		}
	}
}
