package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tinyland-inc/huskycat/internal/githooks"
	"github.com/tinyland-inc/huskycat/internal/gitutil"
	"github.com/tinyland-inc/huskycat/pkg/console"
)

func newSetupHooksCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "setup-hooks",
		Short:   "Install the pre-commit, pre-push, and commit-msg git hooks",
		GroupID: "setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolving working directory: %w", err)
			}

			root, err := gitutil.FindRoot(wd)
			if err != nil {
				return fmt.Errorf("input error: %w", err)
			}

			binaryPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolving binary path: %w", err)
			}

			if err := githooks.Install(root, binaryPath, force); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), console.FormatSuccessMessage("installed pre-commit, pre-push, and commit-msg hooks"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing hooks not managed by huskycat")
	return cmd
}

func newCheckCommitMessageCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "check-commit-message <file>",
		Short:   "Validate a commit message file against the conventional-commit format",
		GroupID: "setup",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading commit message file: %w", err)
			}
			if err := githooks.CheckCommitMessage(string(raw)); err != nil {
				return err
			}
			return nil
		},
	}
}
