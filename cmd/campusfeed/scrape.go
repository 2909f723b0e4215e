package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/campusfeed/campusfeed/internal/config"
	"github.com/campusfeed/campusfeed/internal/scrape"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <target>",
	Short: "Discover documents for a target without processing them",
	Long: `Scrape fetches a target's listing page and prints what a run would
process: PDF links in processing order, or the chapter structure for the
rules target. Nothing is downloaded or extracted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		name := args[0]
		tcfg, ok := cm.Get().Target(name)
		if !ok {
			return fmt.Errorf("target %q is not configured", name)
		}

		scraper := scrape.New(nil)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)

		if name == "rules" {
			chapters, err := scraper.FetchRuleChapters(cmd.Context(), tcfg.URL)
			if err != nil {
				return err
			}
			return enc.Encode(chapters)
		}

		links, err := scraper.FetchPDFLinks(cmd.Context(), tcfg.URL)
		if err != nil {
			return err
		}
		return enc.Encode(scrape.SortByUpcoming(links, time.Now()))
	},
}
