// Package storage persists page records and crawl reports.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amosWeiskopf/sitescribe/internal/models"
)

const (
	// ReportFile is the name of the crawl report inside an output directory.
	ReportFile = "report.json"
	// AnalysisFile holds the site analysis written by the analyze command.
	AnalysisFile = "analysis.json"
	// DatabaseFile is the default SQLite database name inside an output directory.
	DatabaseFile = "pages.db"
)

// RecordSource lists the page records saved by a previous crawl.
type RecordSource interface {
	Records(ctx context.Context) ([]*models.PageRecord, error)
}

// WriteReport writes report as indented JSON to dir/report.json.
func WriteReport(dir string, report *models.CrawlReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := marshalIndent(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, ReportFile), data)
}

// ReadReport loads dir/report.json.
func ReadReport(dir string) (*models.CrawlReport, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		return nil, err
	}
	var report models.CrawlReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

// WriteAnalysis writes analysis to dir/analysis.json.
func WriteAnalysis(dir string, analysis *models.SiteAnalysis) error {
	data, err := marshalIndent(analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, AnalysisFile), data)
}

// ReadAnalysis loads dir/analysis.json.
func ReadAnalysis(dir string) (*models.SiteAnalysis, error) {
	data, err := os.ReadFile(filepath.Join(dir, AnalysisFile))
	if err != nil {
		return nil, err
	}
	var analysis models.SiteAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &analysis, nil
}

// marshalIndent encodes v with two-space indentation, leaving HTML
// characters and non-ASCII text unescaped.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// IsNotExist reports whether err means a crawl output is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
