package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/vulnbot/internal/mitre"
)

var (
	initForce  bool
	initSource string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Download MITRE ATT&CK data and build the local technique index",
	Long: `Download the Enterprise ATT&CK STIX bundle and build the SQLite index
used by search_mitre_techniques and get_mitre_technique.

The bundle is kept next to the database and reused unless --force is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Download the bundle again even if it exists")
	initCmd.Flags().StringVar(&initSource, "source", "", "Path or URL of a STIX bundle (default: config mitre.source_url)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#87FF5F")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

	source := initSource
	if source == "" {
		source = cfg.Mitre.SourceURL
	}

	bundlePath := source
	if isURL(source) {
		bundlePath = filepath.Join(filepath.Dir(cfg.Mitre.DBPath), "enterprise-attack.json")
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("Downloading"), source)
		fetched, err := mitre.Download(ctx, &http.Client{Timeout: 5 * time.Minute}, source, bundlePath, initForce)
		if err != nil {
			return err
		}
		if !fetched {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("Using existing bundle"), bundlePath)
		}
	}

	f, err := os.Open(bundlePath)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("Building index"), cfg.Mitre.DBPath)
	start := time.Now()
	stats, err := mitre.Build(ctx, cfg.Mitre.DBPath, f, logger)
	if err != nil {
		return err
	}
	logger.Info("index built",
		zap.Int("techniques", stats.Techniques),
		zap.Int("tactics", stats.Tactics),
		zap.Int("links", stats.Links),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("elapsed", time.Since(start)))

	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf(
		"✓ %d techniques, %d tactics, %d links (%d revoked/deprecated skipped)",
		stats.Techniques, stats.Tactics, stats.Links, stats.Skipped)))
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
