package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/campusfeed/campusfeed/version"
)

var (
	cfgFile    string
	workDir    string
	logFormat  string
	rootLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "campusfeed",
	Short: "School site PDF extraction pipeline",
	Long: `Campusfeed scrapes a school website for published PDFs, extracts
their contents with a multimodal model, and publishes the structured
results to a static-content repository.

Targets:
  - classes: class timetables
  - meals:   dormitory menus
  - events:  dormitory event calendar
  - rules:   school rules and regulations`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.campusfeed/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&workDir, "workdir", "work", "working directory for downloads and intermediate output",
	)
	rootCmd.PersistentFlags().StringVar(
		&logFormat, "log-format", "text", "log format: text or json",
	)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, nil)
		} else {
			handler = slog.NewTextHandler(os.Stderr, nil)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
