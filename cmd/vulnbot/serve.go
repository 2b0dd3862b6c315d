package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/vulnbot/internal/mcp"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the lookup tools over line-delimited JSON-RPC",
	Long: `Serve get_cve, search_mitre_techniques and get_mitre_technique to MCP
clients. One JSON-RPC 2.0 message per line.

By default the server talks over stdin/stdout so it can be launched as a
subprocess. With --listen it accepts TCP connections instead, one
independent session per connection.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen on host:port instead of stdio")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	reg, cleanup, err := localRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := mcp.NewServer(reg, Version, logger)
	if serveListen != "" {
		logger.Info("serving tools", zap.String("addr", serveListen), zap.Int("tools", len(reg.Descriptors())))
		return srv.ListenAndServe(ctx, serveListen)
	}
	// stdout はプロトコル専用。ログは stderr に出る
	logger.Info("serving tools on stdio", zap.Int("tools", len(reg.Descriptors())))
	return srv.ServeConn(ctx, os.Stdin, os.Stdout)
}
