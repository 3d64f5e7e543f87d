package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tinyland-inc/huskycat/pkg/console"
	"github.com/tinyland-inc/huskycat/pkg/constants"
	"github.com/tinyland-inc/huskycat/pkg/mcpserver"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     constants.CLIName,
	Short:   "Polyglot validator dispatcher for git hooks, CI, and editors",
	Version: version,
	Long: `huskycat dispatches a repository's files to the right linters and
formatters, picking behavior based on how it was invoked.

Common Tasks:
  huskycat validate --staged            # run hooked into pre-commit
  huskycat validate --mode ci .         # run in a CI pipeline
  huskycat setup-hooks                  # install the git hooks
  huskycat status                       # show the last non-blocking run
  huskycat mcp-server                   # serve over MCP for editor integrations

For detailed help on any command, use:
  huskycat [command] --help`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "integration", Title: "Integration Commands:"})

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.SetOut(os.Stderr)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s\n",
		console.FormatInfoMessage(fmt.Sprintf("%s version {{.Version}}", constants.CLIName))))

	originalHelpFunc := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		for _, subCmd := range cmd.Commands() {
			if subCmd.Name() == "completion" {
				subCmd.Hidden = true
			}
		}
		originalHelpFunc(cmd, args)
	})

	validateCmd := newValidateCommand()
	validateCmd.GroupID = "core"
	statusCmd := newStatusCommand()
	statusCmd.GroupID = "core"

	setupHooksCmd := newSetupHooksCommand()
	setupHooksCmd.GroupID = "setup"
	checkCommitMessageCmd := newCheckCommitMessageCommand()
	checkCommitMessageCmd.GroupID = "setup"

	mcpServerCmd := newMCPServerCommand()
	mcpServerCmd.GroupID = "integration"

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setupHooksCmd)
	rootCmd.AddCommand(checkCommitMessageCmd)
	rootCmd.AddCommand(mcpServerCmd)
}

func main() {
	mcpserver.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(1)
	}
}
