package main

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// ビルド時に -ldflags "-X main.Version=..." で上書きされる
var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
		labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Width(12)

		fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("⚡ VulnBot "+Version))
		fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render("commit")+GitCommit)
		fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render("built")+BuildDate)
		fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render("go")+runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
