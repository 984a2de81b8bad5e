package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/sitescribe/internal/config"
	"github.com/amosWeiskopf/sitescribe/internal/logging"
	"github.com/amosWeiskopf/sitescribe/internal/models"
	"github.com/amosWeiskopf/sitescribe/pkg/crawler"
	"github.com/amosWeiskopf/sitescribe/pkg/extractor"
	"github.com/amosWeiskopf/sitescribe/pkg/fetcher"
	"github.com/amosWeiskopf/sitescribe/pkg/storage"
	"github.com/amosWeiskopf/sitescribe/pkg/urlnorm"
	"github.com/amosWeiskopf/sitescribe/pkg/utils"
)

// errNoPages is returned when a crawl finished without saving a single page.
var errNoPages = errors.New("crawl finished without any successfully visited page")

var crawlCmd = &cobra.Command{
	Use:   "crawl [URL]",
	Short: "Crawl a website and extract the content of every page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyCrawlFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, closer, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		output, _ := cmd.Flags().GetString("output")
		report, outDir, err := runCrawl(ctx, cfg, args[0], output, logger)
		if report != nil {
			printCrawlSummary(cmd.OutOrStdout(), report, outDir)
		}
		if err != nil {
			return err
		}
		if !report.OK() {
			return errNoPages
		}
		return nil
	},
}

// applyCrawlFlags lets explicitly set flags override the loaded configuration
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Crawler.MaxWorkers, _ = flags.GetInt("workers")
	}
	if flags.Changed("js") {
		cfg.Crawler.EnableJavaScript, _ = flags.GetBool("js")
	}
	if flags.Changed("timeout") {
		cfg.Crawler.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("storage") {
		cfg.Storage.Type, _ = flags.GetString("storage")
	}
	if flags.Changed("save-html") {
		cfg.Storage.SaveHTML, _ = flags.GetBool("save-html")
	}
	if flags.Changed("exclude") {
		patterns, _ := flags.GetStringSlice("exclude")
		cfg.Crawler.ExcludePatterns = append(cfg.Crawler.ExcludePatterns, patterns...)
	}
	if flags.Changed("max-pages") {
		cfg.Crawler.MaxPages, _ = flags.GetInt("max-pages")
	}
	if flags.Changed("strict") {
		cfg.Crawler.StrictPersistence, _ = flags.GetBool("strict")
	}
}

// runCrawl wires the fetcher, extractor and sink described by cfg, crawls
// seed and writes the crawl report into the output directory. The report is
// returned whenever the crawl started, even when err is non-nil.
func runCrawl(ctx context.Context, cfg *config.Config, seed, output string, logger *slog.Logger) (*models.CrawlReport, string, error) {
	outDir, err := outputDir(cfg, seed, output)
	if err != nil {
		return nil, "", err
	}

	sessionID := uuid.NewString()
	sink, closeSink, err := openSink(ctx, cfg, outDir, sessionID, logger)
	if err != nil {
		return nil, outDir, err
	}
	defer closeSink()

	f, closeFetcher := newFetcher(cfg, logger)
	defer closeFetcher()

	c, err := crawler.New(f, extractor.New(), sink, crawler.Options{
		Workers:           cfg.Crawler.MaxWorkers,
		MaxPages:          cfg.Crawler.MaxPages,
		ExcludePatterns:   cfg.Crawler.ExcludePatterns,
		StrictPersistence: cfg.Crawler.StrictPersistence,
		ProgressInterval:  10 * time.Second,
		SessionID:         sessionID,
		Logger:            logger,
	})
	if err != nil {
		return nil, outDir, err
	}

	report, crawlErr := c.Run(ctx, seed)
	if report != nil {
		if err := storage.WriteReport(outDir, report); err != nil {
			logger.Error("failed to write crawl report", "dir", outDir, "error", err)
		}
	}
	return report, outDir, crawlErr
}

// outputDir returns the explicit output directory, or <storage.path>/<host>
func outputDir(cfg *config.Config, seed, output string) (string, error) {
	if output != "" {
		return output, nil
	}
	canonical, err := urlnorm.Normalize(seed, seed)
	if err != nil || !urlnorm.IsCrawlable(canonical) {
		return "", fmt.Errorf("%w: %q is not an absolute http(s) url", crawler.ErrSeedFailure, seed)
	}
	host, _ := urlnorm.Host(canonical)
	return filepath.Join(cfg.Storage.Path, utils.SanitizeFilename(host)), nil
}

type recordSink interface {
	crawler.Sink
	storage.RecordSource
}

// sqlitePath returns storage.sqlite_path, or the default database inside dir.
func sqlitePath(cfg *config.Config, dir string) string {
	if cfg.Storage.SQLitePath != "" {
		return cfg.Storage.SQLitePath
	}
	return filepath.Join(dir, storage.DatabaseFile)
}

func openSink(ctx context.Context, cfg *config.Config, outDir, sessionID string, logger *slog.Logger) (recordSink, func(), error) {
	switch cfg.Storage.Type {
	case "sqlite":
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create output directory: %w", err)
		}
		path := sqlitePath(cfg, outDir)
		db, err := storage.OpenSQLite(path, sessionID)
		if err != nil {
			return nil, nil, err
		}
		existing, err := db.Count(ctx)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("count stored records: %w", err)
		}
		logger.Info("storing records in sqlite", "path", path, "existing", existing)
		return db, func() { _ = db.Close() }, nil
	default:
		fs, err := storage.NewFileSink(outDir, cfg.Storage.SaveHTML, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("storing records in files", "dir", fs.Dir(), "save_html", cfg.Storage.SaveHTML)
		return fs, func() {}, nil
	}
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (crawler.Fetcher, func()) {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:         cfg.Crawler.UserAgent,
		Timeout:           cfg.Crawler.Timeout,
		MaxBodyBytes:      cfg.Crawler.MaxBodyBytes,
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
	})
	if !cfg.Crawler.EnableJavaScript {
		return httpFetcher, func() {}
	}

	renderer := fetcher.NewRenderFetcher(fetcher.RenderOptions{
		Timeout:      cfg.Render.Timeout,
		InitialWait:  cfg.Render.InitialWait,
		ScrollWait:   cfg.Render.ScrollWait,
		MaxScrolls:   cfg.Render.MaxScrolls,
		Headless:     cfg.Render.Headless,
		UserAgent:    cfg.Crawler.UserAgent,
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
	}, logger)
	return fetcher.NewComposite(httpFetcher, renderer, logger), func() { _ = renderer.Close() }
}

func printCrawlSummary(w io.Writer, report *models.CrawlReport, outDir string) {
	fmt.Fprintf(w, "Crawled %d pages from %s (%d saved, %d failed)\n",
		report.PagesVisited, report.BaseDomain, report.PagesSaved, report.FailureCount)
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  %s %s: %s\n", f.Kind, f.URL, f.Reason)
	}
	if report.Cancelled {
		fmt.Fprintln(w, "Crawl was cancelled before it finished")
	}
	if outDir != "" {
		fmt.Fprintf(w, "Output written to %s\n", outDir)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, io.Closer, error) {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger, closer, nil
}
