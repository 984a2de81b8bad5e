package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amosWeiskopf/sitescribe/internal/models"
	"github.com/amosWeiskopf/sitescribe/pkg/urlnorm"
)

var (
	// ErrSeedFailure means the seed URL could not be normalized or fetched.
	ErrSeedFailure = errors.New("seed failure")

	// ErrPersistence is returned when StrictPersistence is set and the sink fails.
	ErrPersistence = errors.New("persistence failure")

	// ErrCancelled is returned when the crawl context ends before the frontier
	// is drained. The context error is wrapped alongside it.
	ErrCancelled = errors.New("crawl cancelled")
)

// Controller drives a crawl: it owns the frontier and the visited set for the
// duration of Run and delegates fetching, extraction and persistence to its
// collaborators.
type Controller struct {
	fetcher   Fetcher
	extractor Extractor
	sink      Sink

	workers          int
	maxPages         int
	exclude          []glob.Glob
	strict           bool
	progressInterval time.Duration
	sessionID        string
	logger           *slog.Logger
}

// New creates a Controller. Zero-valued options fall back to one worker and no
// page limit.
func New(fetcher Fetcher, extractor Extractor, sink Sink, opts Options) (*Controller, error) {
	if fetcher == nil || extractor == nil || sink == nil {
		return nil, errors.New("crawler: fetcher, extractor and sink are required")
	}
	if opts.MaxPages < 0 {
		return nil, fmt.Errorf("crawler: invalid max pages %d", opts.MaxPages)
	}

	exclude := make([]glob.Glob, 0, len(opts.ExcludePatterns))
	for _, pattern := range opts.ExcludePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("crawler: invalid exclude pattern %q: %w", pattern, err)
		}
		exclude = append(exclude, g)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		fetcher:          fetcher,
		extractor:        extractor,
		sink:             sink,
		workers:          workers,
		maxPages:         opts.MaxPages,
		exclude:          exclude,
		strict:           opts.StrictPersistence,
		progressInterval: opts.ProgressInterval,
		sessionID:        opts.SessionID,
		logger:           logger,
	}, nil
}

// session is the state of one Run.
type session struct {
	id         string
	seed       string
	baseDomain string
	visited    *VisitedSet
	frontier   *Frontier
	logger     *slog.Logger

	mu       sync.Mutex
	saved    int
	failures []models.Failure
	external map[string]int

	limitHit atomic.Bool
}

func (s *session) fail(u string, kind models.FailureKind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, models.Failure{URL: u, Kind: kind, Reason: err.Error()})
}

func (s *session) recordSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved++
}

func (s *session) countExternal(canonical string) {
	if !urlnorm.IsCrawlable(canonical) {
		return
	}
	host, err := urlnorm.Host(canonical)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.external[urlnorm.RegistrableDomain(host)]++
}

func (s *session) report(started time.Time) *models.CrawlReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	failures := append([]models.Failure(nil), s.failures...)
	sort.SliceStable(failures, func(i, j int) bool { return failures[i].URL < failures[j].URL })

	var external map[string]int
	if len(s.external) > 0 {
		external = make(map[string]int, len(s.external))
		for k, v := range s.external {
			external[k] = v
		}
	}

	return &models.CrawlReport{
		SessionID:       s.id,
		Seed:            s.seed,
		BaseDomain:      s.baseDomain,
		StartedAt:       started,
		FinishedAt:      time.Now().UTC(),
		PagesVisited:    s.visited.Len(),
		PagesSaved:      s.saved,
		FailureCount:    len(failures),
		Failures:        failures,
		ExternalDomains: external,
	}
}

// Run crawls every page reachable from seedURL on the seed's host and returns
// the crawl report. Per-page failures are recorded in the report and never
// abort the crawl. The returned error wraps ErrSeedFailure when the seed cannot
// be normalized or fetched, ErrPersistence on a sink failure in strict mode,
// or the context error when ctx is cancelled. A report is returned in every
// case.
func (c *Controller) Run(ctx context.Context, seedURL string) (*models.CrawlReport, error) {
	started := time.Now().UTC()
	id := c.sessionID
	if id == "" {
		id = uuid.NewString()
	}
	s := &session{
		id:       id,
		seed:     seedURL,
		visited:  NewVisitedSet(),
		frontier: NewFrontier(),
		external: make(map[string]int),
	}
	s.logger = c.logger.With("session", s.id)

	seed, err := urlnorm.Normalize(seedURL, seedURL)
	if err == nil && !urlnorm.IsCrawlable(seed) {
		err = fmt.Errorf("%w: %q is not an absolute http(s) url", urlnorm.ErrInvalidURL, seedURL)
	}
	if err != nil {
		s.fail(seedURL, models.FailureSeed, err)
		return s.report(started), fmt.Errorf("%w: %v", ErrSeedFailure, err)
	}
	s.seed = seed
	s.baseDomain, _ = urlnorm.Host(seed)

	s.logger.Info("crawl started", "seed", seed, "domain", s.baseDomain, "workers", c.workers)

	if c.progressInterval > 0 {
		progressCtx, stopProgress := context.WithCancel(ctx)
		defer stopProgress()
		go c.trackProgress(progressCtx, s)
	}

	// The seed is dispatched on its own so that its failure can end the crawl
	// before any worker starts.
	s.visited.TryMark(seed, 0)
	ok, err := c.processPage(ctx, s, seed, true)
	if err != nil {
		return c.finish(ctx, s, started, err)
	}
	if !ok {
		report := s.report(started)
		if seedFailures := report.FailuresOf(models.FailureSeed); len(seedFailures) > 0 {
			return report, fmt.Errorf("%w: %s", ErrSeedFailure, seedFailures[0].Reason)
		}
		// The seed was fetched but not extracted: there is nothing to follow.
		return c.finish(ctx, s, started, nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, s.frontier.Close)
	defer stop()

	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			return c.work(gctx, s)
		})
	}

	return c.finish(ctx, s, started, g.Wait())
}

func (c *Controller) finish(ctx context.Context, s *session, started time.Time, err error) (*models.CrawlReport, error) {
	report := s.report(started)
	if ctx.Err() != nil {
		report.Cancelled = true
		s.logger.Warn("crawl cancelled", "visited", report.PagesVisited, "saved", report.PagesSaved)
		return report, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	if err != nil {
		s.logger.Error("crawl aborted", "error", err)
		return report, err
	}

	s.logger.Info("crawl finished",
		"visited", report.PagesVisited,
		"saved", report.PagesSaved,
		"failures", report.FailureCount,
		"limit_reached", s.limitHit.Load(),
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)
	return report, nil
}

// work pops URLs until the frontier is drained or closed.
func (c *Controller) work(ctx context.Context, s *session) error {
	for {
		u, ok := s.frontier.Pop()
		if !ok {
			return nil
		}
		err := c.dispatch(ctx, s, u)
		s.frontier.Done()
		if err != nil {
			return err
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, s *session, u string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	switch s.visited.TryMark(u, c.maxPages) {
	case AlreadyVisited:
		return nil
	case LimitReached:
		if !s.limitHit.Swap(true) {
			s.logger.Info("page limit reached", "max_pages", c.maxPages)
		}
		s.frontier.Close()
		return nil
	}

	_, err := c.processPage(ctx, s, u, false)
	return err
}

// processPage fetches, extracts and persists one claimed URL and feeds its
// links back into the frontier. It reports whether the page was extracted.
// Only cancellation and strict persistence failures are returned as errors.
func (c *Controller) processPage(ctx context.Context, s *session, u string, isSeed bool) (bool, error) {
	doc, err := c.fetcher.Fetch(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		kind := models.FailureFetch
		if isSeed {
			kind = models.FailureSeed
		}
		s.logger.Warn("fetch failed", "url", u, "kind", kind, "error", err)
		s.fail(u, kind, err)
		return false, nil
	}

	if snap, ok := c.sink.(SnapshotSink); ok {
		if err := snap.SaveSnapshot(ctx, u, doc.Body); err != nil {
			s.logger.Warn("snapshot failed", "url", u, "error", err)
		}
	}

	record, hrefs, err := c.extractor.Extract(doc, u)
	if err != nil {
		s.logger.Warn("extraction failed", "url", u, "kind", models.FailureExtraction, "error", err)
		s.fail(u, models.FailureExtraction, err)
		return false, nil
	}

	// A page that finished after cancellation is dropped rather than saved.
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err := c.sink.Persist(ctx, record); err != nil {
		s.logger.Error("persist failed", "url", u, "kind", models.FailurePersistence, "error", err)
		s.fail(u, models.FailurePersistence, err)
		if c.strict {
			return true, fmt.Errorf("%w: %s: %v", ErrPersistence, u, err)
		}
	} else {
		s.recordSaved()
		s.logger.Info("page saved", "url", u, "title", record.Title, "links", len(hrefs))
	}

	queued := 0
	for _, href := range hrefs {
		if c.discover(s, u, href) {
			queued++
		}
	}
	s.logger.Debug("links processed", "url", u, "found", len(hrefs), "queued", queued)

	return true, nil
}

// discover normalizes href in the context of pageURL and enqueues it when it
// is a same-domain page that has not been visited or queued yet.
func (c *Controller) discover(s *session, pageURL, href string) bool {
	canonical, err := urlnorm.Normalize(href, pageURL)
	if err != nil {
		s.logger.Debug("skipped link", "url", pageURL, "href", href, "error", err)
		return false
	}
	if !urlnorm.IsSameDomain(canonical, s.baseDomain) {
		s.countExternal(canonical)
		return false
	}
	if c.isExcluded(canonical) {
		s.logger.Debug("skipped link", "href", canonical, "reason", "excluded")
		return false
	}
	if s.visited.Contains(canonical) {
		return false
	}
	return s.frontier.Push(canonical)
}

func (c *Controller) isExcluded(canonical string) bool {
	if len(c.exclude) == 0 {
		return false
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, g := range c.exclude {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (c *Controller) trackProgress(ctx context.Context, s *session) {
	ticker := time.NewTicker(c.progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Info("progress",
				"visited", s.visited.Len(),
				"queued", s.frontier.Len(),
				"active", s.frontier.InFlight(),
			)
		}
	}
}
