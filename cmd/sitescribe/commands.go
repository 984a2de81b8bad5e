package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/sitescribe/internal/config"
	"github.com/amosWeiskopf/sitescribe/internal/models"
	"github.com/amosWeiskopf/sitescribe/pkg/analyzer"
	"github.com/amosWeiskopf/sitescribe/pkg/converter"
	"github.com/amosWeiskopf/sitescribe/pkg/reporter"
	"github.com/amosWeiskopf/sitescribe/pkg/storage"
)

var convertCmd = &cobra.Command{
	Use:   "convert [DIR]",
	Short: "Convert saved HTML snapshots into plain-text JSON documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, closer, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		fullText, _ := cmd.Flags().GetBool("full-text")
		result, err := converter.New(args[0], converter.Options{FullText: fullText, Logger: logger}).Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Converted %d files into %s\n", result.Converted, filepath.Join(args[0], converter.OutputDir))
		for name, reason := range result.Failed {
			fmt.Fprintf(cmd.OutOrStdout(), "  failed %s: %s\n", name, reason)
		}
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [DIR]",
	Short: "Analyze the pages of a finished crawl",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, closer, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		dir := args[0]
		backend, _ := cmd.Flags().GetString("storage")
		analysis, err := analyzeDir(cmd.Context(), cfg, dir, backend, logger)
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			if err := storage.WriteAnalysis(dir, analysis); err != nil {
				return fmt.Errorf("failed to save analysis: %w", err)
			}
			output = filepath.Join(dir, storage.AnalysisFile)
		} else {
			data, err := reporter.New().GenerateReport(&reporter.Document{Analysis: analysis}, "json")
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, []byte(data), 0o644); err != nil {
				return fmt.Errorf("failed to write analysis: %w", err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Analyzed %d pages of %s: grade %s (%.1f/100)\n",
			analysis.TotalPages, analysis.Domain, analysis.Summary.Grade, analysis.Summary.Score)
		fmt.Fprintf(cmd.OutOrStdout(), "Analysis saved to %s\n", output)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [DIR]",
	Short: "Generate a report for a finished crawl",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, closer, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		dir := args[0]
		doc := &reporter.Document{}

		doc.Crawl, err = storage.ReadReport(dir)
		if err != nil && !storage.IsNotExist(err) {
			return fmt.Errorf("failed to read crawl report: %w", err)
		}

		doc.Analysis, err = storage.ReadAnalysis(dir)
		switch {
		case storage.IsNotExist(err):
			backend, _ := cmd.Flags().GetString("storage")
			doc.Analysis, err = analyzeDir(cmd.Context(), cfg, dir, backend, logger)
			if err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("failed to read analysis: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		report, err := reporter.New().GenerateReport(doc, format)
		if err != nil {
			return fmt.Errorf("failed to generate report: %w", err)
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			fmt.Fprint(cmd.OutOrStdout(), report)
			return nil
		}
		if err := os.WriteFile(output, []byte(report), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report saved to %s\n", output)
		return nil
	},
}

// analyzeDir loads the records and the crawl report saved in dir and
// analyzes them. A missing crawl report is not an error.
func analyzeDir(ctx context.Context, cfg *config.Config, dir, backend string, logger *slog.Logger) (*models.SiteAnalysis, error) {
	records, err := loadRecords(ctx, cfg, dir, backend)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no page records found in %s", dir)
	}

	report, err := storage.ReadReport(dir)
	if err != nil {
		if !storage.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read crawl report: %w", err)
		}
		logger.Warn("no crawl report found, analyzing records only", "dir", dir)
		report = nil
	}

	logger.Info("analyzing crawl", "dir", dir, "pages", len(records))
	return analyzer.New().Analyze(records, report)
}

// loadRecords reads the records of the crawl saved in dir. The sqlite backend
// opens the same database crawl wrote to.
func loadRecords(ctx context.Context, cfg *config.Config, dir, backend string) ([]*models.PageRecord, error) {
	if backend != "sqlite" {
		records, err := storage.LoadRecords(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load records: %w", err)
		}
		return records, nil
	}

	db, err := storage.OpenSQLite(sqlitePath(cfg, dir), "")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	records, err := db.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return records, nil
}
