package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tinyland-inc/huskycat/pkg/config"
	"github.com/tinyland-inc/huskycat/pkg/dispatcher"
	"github.com/tinyland-inc/huskycat/pkg/mcpserver"
	"github.com/tinyland-inc/huskycat/pkg/registry"
	"github.com/tinyland-inc/huskycat/pkg/resolver"
	"github.com/tinyland-inc/huskycat/pkg/toolcache"
)

func newMCPServerCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "mcp-server",
		Short:   "Serve validators over MCP for editor integrations",
		GroupID: "integration",
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolving working directory: %w", err)
			}

			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolving state directory: %w", err)
			}
			stateDir := filepath.Join(home, ".huskycat")

			cfg, err := config.Load(wd, config.Overrides{})
			if err != nil {
				return err
			}

			extractor := toolcache.New(filepath.Join(stateDir, "tools"))
			bundledPaths := extractor.Ensure(dispatcher.Bundle)

			res := resolver.New(bundledPaths, dispatcher.ContainerImages, wd, filepath.Join(stateDir, "tools"))
			enabled := dispatcher.EnabledDescriptors(registry.DefaultCatalog(), cfg)

			reg, err := registry.New(enabled, res)
			if err != nil {
				return err
			}

			server := mcpserver.New(reg)
			return server.Run(cmd.Context())
		},
	}
}
