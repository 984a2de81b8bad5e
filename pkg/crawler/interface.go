package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/amosWeiskopf/sitescribe/internal/models"
)

// Fetcher returns the raw document for a URL. Implementations enforce their
// own per-request timeout and must not follow links themselves.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*models.RawDocument, error)
}

// Extractor turns a fetched document into a page record and the raw hrefs
// found on it. It must not perform network I/O.
type Extractor interface {
	Extract(doc *models.RawDocument, pageURL string) (*models.PageRecord, []string, error)
}

// Sink persists page records. Persist is called once per extracted page and
// may be called concurrently for distinct URLs.
type Sink interface {
	Persist(ctx context.Context, record *models.PageRecord) error
}

// SnapshotSink is implemented by sinks that also keep the raw fetched body.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, pageURL string, body []byte) error
}

// Options contains configuration for the crawl controller
type Options struct {
	Workers           int           // Concurrent fetch workers; 1 runs the sequential model
	MaxPages          int           // Stop dispatching after this many pages; 0 means unlimited
	ExcludePatterns   []string      // Glob patterns over the URL path that are never enqueued
	StrictPersistence bool          // Abort the crawl when the sink fails
	ProgressInterval  time.Duration // Periodic progress log; 0 disables it
	SessionID         string        // Report session ID; generated when empty
	Logger            *slog.Logger
}
