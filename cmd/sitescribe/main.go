package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sitescribe",
	Short: "SiteScribe - single-site crawler and content extractor",
	Long: `SiteScribe crawls every page of one website, extracts titles, metadata,
content, verses, images and links from each page, and saves one JSON record
per page. Saved crawls can be converted to plain text, analyzed and reported.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Crawl command flags
	crawlCmd.Flags().StringP("output", "o", "", "Output directory (default <storage.path>/<host>)")
	crawlCmd.Flags().IntP("workers", "w", 0, "Concurrent fetch workers (1 crawls sequentially)")
	crawlCmd.Flags().Bool("js", false, "Render pages with headless Chrome")
	crawlCmd.Flags().Duration("timeout", 0, "Per-page fetch timeout")
	crawlCmd.Flags().String("storage", "", "Record storage: file or sqlite")
	crawlCmd.Flags().Bool("save-html", false, "Keep raw HTML snapshots for the convert command")
	crawlCmd.Flags().StringSlice("exclude", nil, "Glob over URL paths that are never crawled (repeatable)")
	crawlCmd.Flags().Int("max-pages", 0, "Stop after this many pages (0 = unlimited)")
	crawlCmd.Flags().Bool("strict", false, "Abort the crawl when a record cannot be saved")

	// Convert command flags
	convertCmd.Flags().Bool("full-text", false, "Keep all page text instead of the main content")

	// Analyze command flags
	analyzeCmd.Flags().String("storage", "file", "Record storage of the crawl: file or sqlite")
	analyzeCmd.Flags().String("output", "", "Output file for analysis results (default DIR/analysis.json)")

	// Report command flags
	reportCmd.Flags().String("format", "markdown", "Report format (json, html, markdown)")
	reportCmd.Flags().String("output", "", "Output file for report")
	reportCmd.Flags().String("storage", "file", "Record storage of the crawl: file or sqlite")

	// Add commands to root
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
