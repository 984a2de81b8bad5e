package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/sitescribe/internal/logging"
	"github.com/amosWeiskopf/sitescribe/internal/models"
)

func newController(t *testing.T, site interface {
	Fetcher
	Extractor
	Sink
}, opts Options) *Controller {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	c, err := New(site, site, site, opts)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	site := newFakeSite(nil)

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "defaults", opts: Options{}},
		{name: "workers and limit", opts: Options{Workers: 8, MaxPages: 10}},
		{name: "valid exclude pattern", opts: Options{ExcludePatterns: []string{"/admin/*", "*.pdf"}}},
		{name: "invalid exclude pattern", opts: Options{ExcludePatterns: []string{"[unclosed"}}, wantErr: true},
		{name: "negative max pages", opts: Options{MaxPages: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(site, site, site, tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, c)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, c)
			}
		})
	}

	_, err := New(nil, site, site, Options{})
	assert.Error(t, err)
}

func TestRunTrailingSlashAndOffDomain(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		"http://example.com": {hrefs: []string{"/a", "http://example.com/a/", "https://other.com/x"}},
		"http://example.com/a": {},
		"https://other.com/x":  {},
	})

	report, err := newController(t, site, Options{}).Run(context.Background(), "http://example.com/")
	require.NoError(t, err)

	assert.Equal(t, 2, report.PagesVisited)
	assert.Equal(t, 2, report.PagesSaved)
	assert.Equal(t, "example.com", report.BaseDomain)
	assert.Equal(t, "http://example.com", report.Seed)
	assert.Equal(t, 1, site.fetchCount("http://example.com/a"))
	assert.Equal(t, 0, site.fetchCount("https://other.com/x"))
	assert.Equal(t, map[string]int{"other.com": 1}, report.ExternalDomains)
	assert.Empty(t, report.Failures)
	assert.True(t, report.OK())
}

func TestRunUserinfoLinkFetchedOnce(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		"http://example.com":   {hrefs: []string{"/a", "http://u:p@example.com/a"}},
		"http://example.com/a": {},
	})

	report, err := newController(t, site, Options{Workers: 1}).Run(context.Background(), "http://example.com")
	require.NoError(t, err)

	assert.Equal(t, 2, report.PagesVisited)
	assert.Equal(t, 1, site.fetchCount("http://example.com/a"))
	assert.Equal(t, 0, site.fetchCount("http://u:p@example.com/a"))
	assert.ElementsMatch(t, []string{"http://example.com", "http://example.com/a"}, site.persistedURLs())
}

func TestRunLoopBackToSeed(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		"http://example.com":      {hrefs: []string{"/loop"}},
		"http://example.com/loop": {hrefs: []string{"http://example.com/", "/", "/loop/", "?again=1"}},
	})

	report, err := newController(t, site, Options{}).Run(context.Background(), "http://example.com/")
	require.NoError(t, err)

	assert.Equal(t, 2, report.PagesVisited)
	assert.Equal(t, 1, site.fetchCount("http://example.com"))
	assert.Equal(t, 1, site.fetchCount("http://example.com/loop"))
}

func TestRunFetchTimeoutIsPerPage(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		"http://example.com":        {hrefs: []string{"/broken", "/ok"}},
		"http://example.com/broken": {fetchErr: errTimeout, hrefs: []string{"/only-from-broken"}},
		"http://example.com/ok":     {hrefs: []string{"/deeper"}},
		"http://example.com/deeper": {},
		// reachable only through the failing page
		"http://example.com/only-from-broken": {},
	})

	report, err := newController(t, site, Options{}).Run(context.Background(), "http://example.com")
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "http://example.com/broken", report.Failures[0].URL)
	assert.Equal(t, models.FailureFetch, report.Failures[0].Kind)
	assert.Contains(t, report.Failures[0].Reason, "deadline exceeded")

	assert.Equal(t, 1, site.fetchCount("http://example.com/ok"))
	assert.Equal(t, 1, site.fetchCount("http://example.com/deeper"))
	assert.Equal(t, 0, site.fetchCount("http://example.com/only-from-broken"))
	assert.Equal(t, 4, report.PagesVisited)
	assert.Equal(t, 3, report.PagesSaved)
	assert.Equal(t, 3, report.Succeeded())
	assert.True(t, report.OK())
}

func TestRunOffDomainSamePathNeverEnqueued(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		"http://example.com":          {hrefs: []string{"http://mirror.example.com/a", "http://example.com:8080/a", "https://example.com/a"}},
		"http://example.com/a":        {},
		"https://example.com/a":       {},
		"http://mirror.example.com/a": {},
	})

	report, err := newController(t, site, Options{}).Run(context.Background(), "http://example.com")
	require.NoError(t, err)

	assert.Equal(t, 0, site.fetchCount("http://mirror.example.com/a"))
	assert.Equal(t, 0, site.fetchCount("http://example.com:8080/a"))
	assert.Equal(t, 0, site.fetchCount("http://example.com/a"))
	// Same host over the other scheme is still on the crawl domain.
	assert.Equal(t, 1, site.fetchCount("https://example.com/a"))
	assert.Equal(t, 2, report.PagesVisited)
}

func TestRunSequentialOrderIsBreadthFirst(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		"http://example.com":    {hrefs: []string{"/a", "/b"}},
		"http://example.com/a":  {hrefs: []string{"/a1", "/b", "/a2"}},
		"http://example.com/b":  {hrefs: []string{"/b1"}},
		"http://example.com/a1": {},
		"http://example.com/a2": {},
		"http://example.com/b1": {hrefs: []string{"/a"}},
	})

	want := []string{
		"http://example.com",
		"http://example.com/a",
		"http://example.com/b",
		"http://example.com/a1",
		"http://example.com/a2",
		"http://example.com/b1",
	}

	for i := 0; i < 3; i++ {
		run := newFakeSite(site.pages)
		_, err := newController(t, run, Options{Workers: 1}).Run(context.Background(), "http://example.com")
		require.NoError(t, err)
		assert.Equal(t, want, run.fetchOrder())
		assert.Equal(t, want, run.persistedURLs())
	}
}

// wideSite builds a graph where every page links to many others through
// several spellings of the same canonical URL.
func wideSite(n int) map[string]fakePage {
	pages := make(map[string]fakePage, n)
	for i := 0; i < n; i++ {
		var hrefs []string
		for j := 1; j <= 6; j++ {
			target := (i*7 + j*13) % n
			hrefs = append(hrefs,
				fmt.Sprintf("/p%d", target),
				fmt.Sprintf("/p%d/", target),
				fmt.Sprintf("http://example.com/p%d?ref=%d#x", target, i),
			)
		}
		hrefs = append(hrefs, "/", "https://elsewhere.org/p1")
		u := fmt.Sprintf("http://example.com/p%d", i)
		pages[u] = fakePage{hrefs: hrefs, delay: time.Millisecond}
	}
	pages["http://example.com"] = fakePage{hrefs: []string{"/p0", "/p1", "/p2"}}
	return pages
}

func TestRunConcurrentFetchesEachURLOnce(t *testing.T) {
	pages := wideSite(150)

	sequential := newFakeSite(pages)
	seqReport, err := newController(t, sequential, Options{Workers: 1}).Run(context.Background(), "http://example.com/")
	require.NoError(t, err)

	concurrent := newFakeSite(pages)
	conReport, err := newController(t, concurrent, Options{Workers: 16}).Run(context.Background(), "http://example.com/")
	require.NoError(t, err)

	for u, n := range concurrent.fetches {
		assert.Equal(t, 1, n, "fetched more than once: %s", u)
	}
	assert.Equal(t, seqReport.PagesVisited, conReport.PagesVisited)

	seqURLs := sequential.persistedURLs()
	conURLs := concurrent.persistedURLs()
	sort.Strings(seqURLs)
	sort.Strings(conURLs)
	assert.Equal(t, seqURLs, conURLs)
	assert.Len(t, conURLs, conReport.PagesSaved)
}

func TestRunSeedFailure(t *testing.T) {
	t.Run("fetch fails", func(t *testing.T) {
		site := newFakeSite(map[string]fakePage{
			"http://example.com": {fetchErr: errors.New("connection refused"), hrefs: []string{"/a"}},
			"http://example.com/a": {},
		})

		report, err := newController(t, site, Options{Workers: 4}).Run(context.Background(), "http://example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSeedFailure)
		require.NotNil(t, report)
		assert.Len(t, report.FailuresOf(models.FailureSeed), 1)
		assert.Equal(t, 0, site.fetchCount("http://example.com/a"))
		assert.False(t, report.OK())
	})

	for _, seed := range []string{"not-a-url", "", "ftp://example.com", "http://[::1"} {
		t.Run("invalid seed "+seed, func(t *testing.T) {
			site := newFakeSite(nil)
			report, err := newController(t, site, Options{}).Run(context.Background(), seed)
			assert.ErrorIs(t, err, ErrSeedFailure)
			require.NotNil(t, report)
			assert.Equal(t, 0, report.PagesVisited)
			assert.Empty(t, site.fetchOrder())
		})
	}
}

func TestRunSeedExtractionFailure(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		"http://example.com": {extractErr: errors.New("unsupported content type image/png")},
	})

	report, err := newController(t, site, Options{}).Run(context.Background(), "http://example.com")
	require.NoError(t, err)
	assert.Len(t, report.FailuresOf(models.FailureExtraction), 1)
	assert.Equal(t, 0, report.Succeeded())
	assert.False(t, report.OK())
}

func TestRunExtractionFailureContinues(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		"http://example.com":         {hrefs: []string{"/binary", "/text"}},
		"http://example.com/binary":  {extractErr: errors.New("not html")},
		"http://example.com/text":    {},
	})

	report, err := newController(t, site, Options{}).Run(context.Background(), "http://example.com")
	require.NoError(t, err)

	failures := report.FailuresOf(models.FailureExtraction)
	require.Len(t, failures, 1)
	assert.Equal(t, "http://example.com/binary", failures[0].URL)
	assert.ElementsMatch(t, []string{"http://example.com", "http://example.com/text"}, site.persistedURLs())
}

func TestRunPersistenceFailure(t *testing.T) {
	pages := map[string]fakePage{
		"http://example.com":   {hrefs: []string{"/a"}},
		"http://example.com/a": {},
	}

	t.Run("non fatal by default", func(t *testing.T) {
		site := newFakeSite(pages)
		site.persistErr = errors.New("disk full")

		report, err := newController(t, site, Options{}).Run(context.Background(), "http://example.com")
		require.NoError(t, err)
		assert.Equal(t, 2, report.PagesVisited)
		assert.Equal(t, 0, report.PagesSaved)
		assert.Len(t, report.FailuresOf(models.FailurePersistence), 2)
		// links of an unsaved page are still followed
		assert.Equal(t, 1, site.fetchCount("http://example.com/a"))
	})

	t.Run("strict aborts", func(t *testing.T) {
		site := newFakeSite(pages)
		site.persistErr = errors.New("disk full")

		_, err := newController(t, site, Options{StrictPersistence: true}).Run(context.Background(), "http://example.com")
		assert.ErrorIs(t, err, ErrPersistence)
		assert.Equal(t, 0, site.fetchCount("http://example.com/a"))
	})
}

func TestRunCancellation(t *testing.T) {
	pages := map[string]fakePage{
		"http://example.com":      {hrefs: []string{"/slow", "/fast"}},
		"http://example.com/slow": {delay: time.Minute, hrefs: []string{"/never"}},
		"http://example.com/fast": {},
		"http://example.com/never": {},
	}
	site := newFakeSite(pages)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	site.onFetch = func(u string) {
		if u == "http://example.com/slow" {
			cancel()
		}
	}

	done := make(chan struct{})
	var report *models.CrawlReport
	var err error
	go func() {
		defer close(done)
		report, err = newController(t, site, Options{Workers: 1}).Run(ctx, "http://example.com")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not stop after cancellation")
	}

	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.True(t, report.Cancelled)
	assert.False(t, report.OK())
	assert.Equal(t, 0, site.fetchCount("http://example.com/fast"))
	assert.Equal(t, 0, site.fetchCount("http://example.com/never"))
	assert.Equal(t, []string{"http://example.com"}, site.persistedURLs())
	assert.Empty(t, report.FailuresOf(models.FailureFetch), "cancellation is not a page failure")
}

func TestRunMaxPages(t *testing.T) {
	site := newFakeSite(wideSite(50))

	report, err := newController(t, site, Options{Workers: 4, MaxPages: 10}).Run(context.Background(), "http://example.com")
	require.NoError(t, err)

	assert.Equal(t, 10, report.PagesVisited)
	assert.Len(t, site.fetchOrder(), 10)
}

func TestRunExcludePatterns(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		"http://example.com":                {hrefs: []string{"/admin/users", "/docs/guide.pdf", "/docs/intro"}},
		"http://example.com/admin/users":    {},
		"http://example.com/docs/guide.pdf": {},
		"http://example.com/docs/intro":     {},
	})

	opts := Options{ExcludePatterns: []string{"/admin/*", "**.pdf"}}
	report, err := newController(t, site, opts).Run(context.Background(), "http://example.com")
	require.NoError(t, err)

	assert.Equal(t, 2, report.PagesVisited)
	assert.Equal(t, 1, site.fetchCount("http://example.com/docs/intro"))
	assert.Equal(t, 0, site.fetchCount("http://example.com/admin/users"))
	assert.Equal(t, 0, site.fetchCount("http://example.com/docs/guide.pdf"))
}

func TestRunSavesSnapshots(t *testing.T) {
	site := &snapshotSite{fakeSite: newFakeSite(map[string]fakePage{
		"http://example.com":   {hrefs: []string{"/a"}},
		"http://example.com/a": {},
	})}

	c, err := New(site, site, site, Options{Logger: logging.Discard()})
	require.NoError(t, err)
	_, err = c.Run(context.Background(), "http://example.com")
	require.NoError(t, err)

	body, ok := site.snapshots.Load("http://example.com/a")
	require.True(t, ok)
	assert.Equal(t, "http://example.com/a", body)
}

func TestRunSkipsInvalidHrefs(t *testing.T) {
	site := newFakeSite(map[string]fakePage{
		"http://example.com":   {hrefs: []string{"http://[::1", "/%zz", "javascript:void(0)", "mailto:a@b.c", "/a"}},
		"http://example.com/a": {},
	})

	report, err := newController(t, site, Options{}).Run(context.Background(), "http://example.com")
	require.NoError(t, err)

	assert.Equal(t, 2, report.PagesVisited)
	assert.Empty(t, report.Failures, "invalid links are not crawl failures")
}
