package converter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/sitescribe/internal/logging"
	"github.com/amosWeiskopf/sitescribe/pkg/storage"
)

var article = `<html><head><title>Daily Reflection</title><script>track()</script></head>
<body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<article>
<h1>Daily Reflection</h1>
<p>` + strings.Repeat("Patience is the key to relief and every hardship is followed by ease. ", 12) + `</p>
<p>` + strings.Repeat("Reflect on the verses slowly and let their meaning settle in the heart. ", 12) + `</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestConvertFullText(t *testing.T) {
	c := New(t.TempDir(), Options{FullText: true, Logger: logging.Discard()})
	doc, err := c.Convert([]byte(`<html><head><title> T </title><style>p{}</style></head><body><p>one</p>  <div>two <b>three</b></div><script>x()</script></body></html>`))
	require.NoError(t, err)

	assert.Equal(t, "T", doc.Title)
	assert.Equal(t, "T\none\ntwo\nthree", doc.Text)
}

func TestConvertMainContent(t *testing.T) {
	c := New(t.TempDir(), Options{Logger: logging.Discard()})
	doc, err := c.Convert([]byte(article))
	require.NoError(t, err)

	assert.Equal(t, "Daily Reflection", doc.Title)
	assert.Contains(t, doc.Text, "Patience is the key to relief")
	assert.NotContains(t, doc.Text, "track()")
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	snapshots := filepath.Join(dir, storage.HTMLDir)
	require.NoError(t, os.MkdirAll(snapshots, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(snapshots, "index.html"), []byte(article), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(snapshots, "surah_1.html"), []byte(`<title>S1</title><p>verse</p>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(snapshots, "notes.txt"), []byte(`ignored`), 0o644))

	res, err := New(dir, Options{FullText: true, Logger: logging.Discard()}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Converted)
	assert.Empty(t, res.Failed)

	data, err := os.ReadFile(filepath.Join(dir, OutputDir, "surah_1.json"))
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, Document{Title: "S1", Text: "S1\nverse"}, doc)

	_, err = os.Stat(filepath.Join(dir, OutputDir, "index.json"))
	assert.NoError(t, err)
}

func TestRunFallsBackToOutputDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte(`<title>P</title>`), 0o644))

	res, err := New(dir, Options{FullText: true, Logger: logging.Discard()}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Converted)
}

func TestRunMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{Logger: logging.Discard()}).Run(context.Background())
	assert.Error(t, err)
}
