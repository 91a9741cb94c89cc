package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipstack-ai/manual-engine/internal/config"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	}
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

func TestParentRepositoryRoundTrip(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	parent := &ParentSegment{
		ParentID:      "guide.pdf::Install > Linux",
		DocumentID:    "guide.pdf",
		Title:         "Linux",
		Level:         2,
		HierarchyPath: "Install > Linux",
		PageStart:     4,
		PageEnd:       7,
		Content:       "section body",
	}
	require.NoError(t, repos.Parents.Create(ctx, parent))

	got, err := repos.Parents.GetByID(ctx, parent.ParentID)
	require.NoError(t, err)
	assert.Equal(t, parent.DocumentID, got.DocumentID)
	assert.Equal(t, parent.HierarchyPath, got.HierarchyPath)
	assert.Equal(t, parent.Content, got.Content)
	assert.False(t, got.CreatedAt.IsZero())

	count, err := repos.Parents.CountByDocument(ctx, "guide.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestParentRepositoryNotFound(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	_, err := repos.Parents.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChildRepositoryListAndDelete(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repos.Children.Create(ctx, &ChildPassage{
			DocumentID: "a.pdf",
			ChunkID:    i,
			ParentID:   "a.pdf::Section",
			Text:       "[Source: a.pdf] > Section\n\nbody",
			RawText:    "body",
		}))
	}
	require.NoError(t, repos.Children.Create(ctx, &ChildPassage{
		DocumentID: "b.pdf",
		ChunkID:    0,
		ParentID:   "b.pdf::Other",
		Text:       "other text",
		RawText:    "other text",
	}))

	byDoc, err := repos.Children.ListByDocument(ctx, "a.pdf")
	require.NoError(t, err)
	require.Len(t, byDoc, 3)
	assert.Equal(t, 0, byDoc[0].ChunkID)
	assert.Equal(t, 2, byDoc[2].ChunkID)

	all, err := repos.Children.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, repos.Children.DeleteByDocument(ctx, "a.pdf"))
	all, err = repos.Children.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b.pdf", all[0].DocumentID)
}

func TestChildKey(t *testing.T) {
	c := &ChildPassage{DocumentID: "doc.pdf", ChunkID: 7}
	assert.Equal(t, "doc.pdf:7", c.Key())
}

func TestReplaceDocumentLifecycle(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repos.Parents.Create(ctx, &ParentSegment{
		ParentID: "d::Old", DocumentID: "d", Title: "Old", Level: 1,
		HierarchyPath: "Old", PageStart: 1, PageEnd: 1, Content: "old",
	}))
	require.NoError(t, repos.Parents.DeleteByDocument(ctx, "d"))

	require.NoError(t, repos.Parents.Create(ctx, &ParentSegment{
		ParentID: "d::Old", DocumentID: "d", Title: "Old", Level: 1,
		HierarchyPath: "Old", PageStart: 1, PageEnd: 1, Content: "new",
	}))

	got, err := repos.Parents.GetByID(ctx, "d::Old")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)
}
