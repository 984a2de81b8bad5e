package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amosWeiskopf/sitescribe/internal/models"
)

// fakePage describes one URL of an in-memory site.
type fakePage struct {
	hrefs      []string
	fetchErr   error
	extractErr error
	delay      time.Duration
}

// fakeSite serves pages from a map keyed by canonical URL and records every
// fetch and persisted record.
type fakeSite struct {
	pages map[string]fakePage

	mu        sync.Mutex
	fetches   map[string]int
	order     []string
	persisted []*models.PageRecord

	persistErr error
	onFetch    func(u string)
}

func newFakeSite(pages map[string]fakePage) *fakeSite {
	return &fakeSite{pages: pages, fetches: make(map[string]int)}
}

func (f *fakeSite) Fetch(ctx context.Context, u string) (*models.RawDocument, error) {
	f.mu.Lock()
	f.fetches[u]++
	f.order = append(f.order, u)
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(u)
	}

	page, ok := f.pages[u]
	if !ok {
		return nil, fmt.Errorf("http status 404 for %s", u)
	}
	if page.delay > 0 {
		select {
		case <-time.After(page.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if page.fetchErr != nil {
		return nil, page.fetchErr
	}
	return &models.RawDocument{URL: u, StatusCode: 200, ContentType: "text/html", Body: []byte(u)}, nil
}

func (f *fakeSite) Extract(doc *models.RawDocument, u string) (*models.PageRecord, []string, error) {
	page := f.pages[u]
	if page.extractErr != nil {
		return nil, nil, page.extractErr
	}
	return &models.PageRecord{URL: u, Title: u, Timestamp: "2024-01-01T00:00:00Z"}, page.hrefs, nil
}

func (f *fakeSite) Persist(_ context.Context, record *models.PageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistErr != nil {
		return f.persistErr
	}
	f.persisted = append(f.persisted, record)
	return nil
}

func (f *fakeSite) fetchCount(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[u]
}

func (f *fakeSite) fetchOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeSite) persistedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.persisted))
	for _, r := range f.persisted {
		out = append(out, r.URL)
	}
	return out
}

// snapshotSite also implements SnapshotSink.
type snapshotSite struct {
	*fakeSite
	snapshots sync.Map
}

func (s *snapshotSite) SaveSnapshot(_ context.Context, u string, body []byte) error {
	s.snapshots.Store(u, string(body))
	return nil
}

var errTimeout = errors.New("context deadline exceeded (Client.Timeout exceeded while awaiting headers)")
