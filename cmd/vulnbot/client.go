package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/vulnbot/internal/mcp"
	"github.com/0x6d61/vulnbot/internal/repl"
)

var clientConnect string

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Call tools on a JSON-RPC server by hand",
	Long: `Pick a tool from the server's list, fill in its arguments and print
the result. Without --connect a "vulnbot serve" subprocess is started.`,
	RunE: runClient,
}

func init() {
	clientCmd.Flags().StringVar(&clientConnect, "connect", "", "Connect to a server on host:port")
	rootCmd.AddCommand(clientCmd)
}

func runClient(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		client *mcp.Client
		err    error
	)
	if clientConnect != "" {
		client, err = mcp.Dial(ctx, clientConnect, logger)
	} else {
		var self mcp.ServerConfig
		if self, err = selfServer(); err == nil {
			client, err = mcp.NewStdioClient(ctx, self, logger)
		}
	}
	if err != nil {
		return err
	}
	defer client.Close()

	res, err := client.Initialize(ctx, "vulnbot-client", Version)
	if err != nil {
		return err
	}
	logger.Debug("connected",
		zap.String("server", res.ServerInfo.Name),
		zap.String("version", res.ServerInfo.Version),
		zap.String("protocol", res.ProtocolVersion))
	fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s %s\n", res.ServerInfo.Name, res.ServerInfo.Version)

	prompt, err := repl.NewPrompt("")
	if err != nil {
		return err
	}
	defer prompt.Close()

	return repl.NewPicker(client, prompt, cmd.OutOrStdout()).Run(ctx)
}
