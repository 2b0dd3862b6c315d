package main

import (
	"github.com/spf13/cobra"

	"github.com/0x6d61/vulnbot/internal/repl"
	"github.com/0x6d61/vulnbot/internal/tools"
)

var (
	toolsRemote  bool
	toolsConnect string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the available tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			descs   []tools.Descriptor
			cleanup func()
		)
		if toolsRemote || toolsConnect != "" {
			rt, c, err := remoteToolbox(cmd.Context(), cfg, toolsConnect, logger)
			if err != nil {
				return err
			}
			descs, cleanup = rt.Descriptors(), c
		} else {
			reg, c, err := localRegistry(cfg, logger)
			if err != nil {
				return err
			}
			descs, cleanup = reg.Descriptors(), c
		}
		defer cleanup()

		repl.PrintTools(cmd.OutOrStdout(), descs)
		return nil
	},
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsRemote, "remote", false, "List tools from the MCP servers in the config file")
	toolsCmd.Flags().StringVar(&toolsConnect, "connect", "", "List tools from a server listening on host:port")
	rootCmd.AddCommand(toolsCmd)
}
