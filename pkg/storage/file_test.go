package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/sitescribe/internal/logging"
	"github.com/amosWeiskopf/sitescribe/internal/models"
)

func sampleRecord(u string) *models.PageRecord {
	id := "main"
	width := "100"
	return &models.PageRecord{
		URL:      u,
		Title:    "سورة الفاتحة <1>",
		Metadata: map[string]string{"description": "Opening"},
		Content: []models.ContentNode{{
			Type:       "div",
			Text:       "Hello",
			Attributes: models.Attributes{ID: &id, Classes: []string{"a"}},
			Children:   []models.ContentNode{{Type: "p", Text: "Hello", Attributes: models.Attributes{Classes: []string{}}}},
		}},
		Verses:    []models.Verse{{Text: "Hello", Attributes: models.Attributes{Classes: []string{}}}},
		Images:    []models.Image{{URL: u + "/a.png", Alt: "", Width: &width}},
		Links:     []string{"http://example.com/b"},
		Timestamp: "2024-05-01T09:30:00Z",
	}
}

func newSink(t *testing.T, saveHTML bool) *FileSink {
	t.Helper()
	sink, err := NewFileSink(t.TempDir(), saveHTML, logging.Discard())
	require.NoError(t, err)
	return sink
}

func TestFileStem(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://example.com", "index"},
		{"http://example.com/", "index"},
		{"http://example.com/a", "a"},
		{"http://example.com/a/b/c", "a_b_c"},
		{"http://example.com/a:b", "a_b"},
		{"http://example.com/سورة", "سورة"},
		{"http://example.com/..", "index"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileStem(tt.url), tt.url)
	}
}

func TestFileSinkPersist(t *testing.T) {
	sink := newSink(t, false)
	record := sampleRecord("http://example.com/surah/1")

	require.NoError(t, sink.Persist(context.Background(), record))

	data, err := os.ReadFile(filepath.Join(sink.Dir(), "surah_1.json"))
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "سورة الفاتحة <1>", "non-ASCII and HTML characters are written as-is")
	assert.Contains(t, text, "\n  \"url\": ")
	assert.Contains(t, text, `"height": null`)
	assert.Contains(t, text, `"id": null`)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &keys))
	for _, key := range []string{"url", "title", "metadata", "content", "verses", "images", "links", "timestamp"} {
		assert.Contains(t, keys, key)
	}

	var decoded models.PageRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *record, decoded)
}

func TestFileSinkCollisions(t *testing.T) {
	sink := newSink(t, false)
	ctx := context.Background()

	require.NoError(t, sink.Persist(ctx, sampleRecord("http://example.com/a/b")))
	require.NoError(t, sink.Persist(ctx, sampleRecord("http://example.com/a_b")))
	require.NoError(t, sink.Persist(ctx, sampleRecord("http://example.com/report")))
	// rewriting the first URL reuses its file
	require.NoError(t, sink.Persist(ctx, sampleRecord("http://example.com/a/b")))

	records, err := sink.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "http://example.com/a/b", records[0].URL)
	assert.Equal(t, "http://example.com/a_b", records[1].URL)
	assert.Equal(t, "http://example.com/report", records[2].URL)

	_, err = os.Stat(filepath.Join(sink.Dir(), "a_b.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(sink.Dir(), ReportFile))
	assert.True(t, IsNotExist(err), "a page called report must not take the report file")
}

func TestFileSinkConcurrentPersist(t *testing.T) {
	sink := newSink(t, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, sink.Persist(ctx, sampleRecord(fmt.Sprintf("http://example.com/p/%d", i))))
		}(i)
	}
	wg.Wait()

	records, err := sink.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 50)

	entries, err := os.ReadDir(sink.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "temporary file left behind: %s", e.Name())
	}
}

func TestFileSinkPersistCancelled(t *testing.T) {
	sink := newSink(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.Persist(ctx, sampleRecord("http://example.com/a"))
	assert.ErrorIs(t, err, context.Canceled)

	records, err := sink.Records(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileSinkSnapshots(t *testing.T) {
	ctx := context.Background()

	sink := newSink(t, true)
	require.NoError(t, sink.SaveSnapshot(ctx, "http://example.com/a/b", []byte("<html>b</html>")))
	data, err := os.ReadFile(filepath.Join(sink.Dir(), HTMLDir, "a_b.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>b</html>", string(data))

	disabled := newSink(t, false)
	require.NoError(t, disabled.SaveSnapshot(ctx, "http://example.com/a", []byte("x")))
	_, err = os.Stat(filepath.Join(disabled.Dir(), HTMLDir))
	assert.True(t, IsNotExist(err))
}

func TestLoadRecordsSkipsForeignFiles(t *testing.T) {
	sink := newSink(t, false)
	ctx := context.Background()
	require.NoError(t, sink.Persist(ctx, sampleRecord("http://example.com/a")))
	require.NoError(t, WriteReport(sink.Dir(), &models.CrawlReport{Seed: "http://example.com"}))
	require.NoError(t, os.WriteFile(filepath.Join(sink.Dir(), "notes.json"), []byte(`{"title":"x"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sink.Dir(), "broken.json"), []byte(`{`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sink.Dir(), "readme.txt"), []byte(`hi`), 0o644))

	records, err := LoadRecords(ctx, sink.Dir())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "http://example.com/a", records[0].URL)

	_, err = LoadRecords(ctx, filepath.Join(sink.Dir(), "missing"))
	assert.True(t, IsNotExist(err))
}

func TestReportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	report := &models.CrawlReport{
		SessionID:    "abc",
		Seed:         "http://example.com",
		BaseDomain:   "example.com",
		StartedAt:    started,
		FinishedAt:   started.Add(time.Minute),
		PagesVisited: 3,
		PagesSaved:   2,
		FailureCount: 1,
		Failures:     []models.Failure{{URL: "http://example.com/broken", Kind: models.FailureFetch, Reason: "timeout"}},
	}

	require.NoError(t, WriteReport(dir, report))
	got, err := ReadReport(dir)
	require.NoError(t, err)
	assert.Equal(t, report, got)

	_, err = ReadReport(t.TempDir())
	assert.True(t, IsNotExist(err))
}
