package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/vulnbot/internal/config"
)

var (
	configPath string
	envFile    string
	provider   string
	modelName  string
	verbose    bool

	cfg    *config.AppConfig
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "vulnbot",
	Short: "Security intelligence assistant for CVEs and MITRE ATT&CK",
	Long: `VulnBot answers questions about vulnerabilities and attack techniques.
An LLM reasons step by step and calls lookup tools (NVD CVE records,
a local MITRE ATT&CK index) until it can give a final answer.

Usage:
  vulnbot init                 Download ATT&CK data and build the local index
  vulnbot start                Start an interactive session
  vulnbot ask "question"       Ask a single question
  vulnbot serve                Expose the tools over line-delimited JSON-RPC
  vulnbot client               Call tools on a server by hand
  vulnbot tools                List the available tools`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env は任意（無ければ無視）
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if provider != "" {
			cfg.LLM.Provider = provider
		}
		if modelName != "" {
			cfg.LLM.Model = modelName
		}

		logger, err = newLogger(verbose, cfg.Log.Level, "")
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to .env file")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider: openrouter, openai, anthropic, ollama")
	rootCmd.PersistentFlags().StringVarP(&modelName, "model", "m", "", "Model name (provider default if empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}
