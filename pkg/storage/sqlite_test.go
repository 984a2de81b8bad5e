package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "pages.db"), "session-1")
	require.NoError(t, err)
	defer sink.Close()

	first := sampleRecord("http://example.com/b")
	second := sampleRecord("http://example.com/a")
	require.NoError(t, sink.Persist(ctx, first))
	require.NoError(t, sink.Persist(ctx, second))

	updated := sampleRecord("http://example.com/b")
	updated.Title = "Updated"
	require.NoError(t, sink.Persist(ctx, updated))

	n, err := sink.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	records, err := sink.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "http://example.com/a", records[0].URL)
	assert.Equal(t, *second, *records[0])
	assert.Equal(t, "Updated", records[1].Title)
	assert.Equal(t, first.Content, records[1].Content)
}

func TestSQLiteSinkReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pages.db")

	sink, err := OpenSQLite(path, "one")
	require.NoError(t, err)
	require.NoError(t, sink.Persist(ctx, sampleRecord("http://example.com/a")))
	require.NoError(t, sink.Close())

	reopened, err := OpenSQLite(path, "two")
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "http://example.com/a", records[0].URL)
}
