package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/amosWeiskopf/sitescribe/internal/models"
	"github.com/amosWeiskopf/sitescribe/pkg/utils"
)

// HTMLDir is the snapshot subdirectory of a file sink.
const HTMLDir = "html"

// FileSink writes one JSON file per page record into a directory. Records of
// distinct URLs may be persisted concurrently.
type FileSink struct {
	dir      string
	saveHTML bool
	logger   *slog.Logger

	mu    sync.Mutex
	names map[string]string // file stem -> URL that owns it
}

// NewFileSink creates dir if needed and returns a sink writing into it.
// When saveHTML is set, raw fetched bodies are kept under dir/html.
func NewFileSink(dir string, saveHTML bool, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if saveHTML {
		if err := os.MkdirAll(filepath.Join(dir, HTMLDir), 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{
		dir:      dir,
		saveHTML: saveHTML,
		logger:   logger,
		// reserved for the report files that live next to the records
		names: map[string]string{
			strings.TrimSuffix(ReportFile, ".json"):   "",
			strings.TrimSuffix(AnalysisFile, ".json"): "",
		},
	}, nil
}

// Dir returns the output directory.
func (s *FileSink) Dir() string { return s.dir }

// Persist writes record to <dir>/<stem>.json.
func (s *FileSink) Persist(ctx context.Context, record *models.PageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := marshalIndent(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", record.URL, err)
	}
	path := filepath.Join(s.dir, s.stem(record.URL)+".json")
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.logger.Debug("record written", "url", record.URL, "path", path)
	return nil
}

// SaveSnapshot keeps the raw body of pageURL under <dir>/html when snapshots
// are enabled.
func (s *FileSink) SaveSnapshot(ctx context.Context, pageURL string, body []byte) error {
	if !s.saveHTML {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, HTMLDir, s.stem(pageURL)+".html")
	if err := writeFileAtomic(path, body); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// stem returns the file name (without extension) for pageURL. The same URL
// always maps to the same stem; a second URL that would produce an existing
// stem gets a hash suffix.
func (s *FileSink) stem(pageURL string) string {
	base := FileStem(pageURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, taken := s.names[base]
	if !taken {
		s.names[base] = pageURL
		return base
	}
	if owner == pageURL {
		return base
	}
	return fmt.Sprintf("%s-%08x", base, uint32(xxhash.Sum64String(pageURL)))
}

// FileStem derives a file name from the path of pageURL: slashes become
// underscores and the root path becomes "index".
func FileStem(pageURL string) string {
	path := pageURL
	if u, err := url.Parse(pageURL); err == nil {
		path = u.Path
	}
	stem := strings.ReplaceAll(strings.Trim(path, "/"), "/", "_")
	stem = utils.SanitizeFilename(stem)
	if stem == "" || stem == "." || stem == ".." {
		return "index"
	}
	return stem
}

// Records loads every page record in the sink directory, sorted by URL.
func (s *FileSink) Records(ctx context.Context) ([]*models.PageRecord, error) {
	return LoadRecords(ctx, s.dir)
}

// LoadRecords reads the page records a FileSink wrote into dir.
func LoadRecords(ctx context.Context, dir string) ([]*models.PageRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var records []*models.PageRecord
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || name == ReportFile || name == AnalysisFile || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var record models.PageRecord
		if err := json.Unmarshal(data, &record); err != nil || record.URL == "" {
			// not a page record
			continue
		}
		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].URL < records[j].URL })
	return records, nil
}
