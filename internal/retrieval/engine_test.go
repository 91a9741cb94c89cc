package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipstack-ai/manual-engine/internal/cache"
	"github.com/chipstack-ai/manual-engine/internal/config"
	"github.com/chipstack-ai/manual-engine/internal/index"
	"github.com/chipstack-ai/manual-engine/internal/llm"
	"github.com/chipstack-ai/manual-engine/internal/observability"
	"github.com/chipstack-ai/manual-engine/internal/storage"
)

// engineFixture wires a full engine over a small two-tool corpus with
// expansion and reranking disabled.
func engineFixture(t *testing.T, cacheClient cache.Client) *Engine {
	t.Helper()

	db, err := storage.Open(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:", MaxOpenConns: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.EnsureSchema(context.Background(), db))
	repos := storage.NewRepositories(db)

	lexical := index.NewLexical(index.NewTokenizer([]string{"signal integrity"}))
	vector := index.NewMemoryIndex()
	embedder := llm.NewMockEmbedder(16)

	corpus := []struct {
		doc, section, text string
	}{
		{"widget_studio_guide.pdf", "Routing", "widget studio net routing with push and shove"},
		{"widget_studio_guide.pdf", "Analysis", "signal integrity analysis in widget studio"},
		{"gadget_lab_manual.pdf", "Routing", "gadget lab interactive routing commands"},
	}
	for i, p := range corpus {
		parentID := p.doc + "::" + p.section
		require.NoError(t, repos.Parents.Create(context.Background(), &storage.ParentSegment{
			ParentID: parentID, DocumentID: p.doc, Title: p.section, Level: 1,
			HierarchyPath: p.section, PageStart: 1, PageEnd: 1,
			Content: "full section: " + p.text,
		}))
		require.NoError(t, repos.Children.Create(context.Background(), &storage.ChildPassage{
			DocumentID: p.doc, ChunkID: i, ParentID: parentID,
			Text: p.text, RawText: p.text,
		}))
		lexical.Add(p.doc, i, p.text)
		vec, err := embedder.Embed(context.Background(), p.text)
		require.NoError(t, err)
		require.NoError(t, vector.Upsert(context.Background(), []index.Point{
			{DocumentID: p.doc, ChunkID: i, Vector: vec},
		}))
	}

	disamb, err := NewDisambiguator(testTools(), observability.Nop())
	require.NoError(t, err)

	return NewEngine(
		NewExpander(nil, 0, observability.Nop()),
		NewHybridRetriever(lexical, vector, embedder, repos.Children, 60, 12, 24, observability.Nop()),
		disamb,
		NewRerankStage(llm.DisabledReranker(), 6, 2000, observability.Nop()),
		NewParentExpander(repos.Parents, 8, 8000, 2000, 200, observability.Nop()),
		NewAssembler(2500, 16000),
		cacheClient,
		time.Minute,
		observability.Nop(),
	)
}

func TestEngineRetrieveEndToEnd(t *testing.T) {
	e := engineFixture(t, nil)

	result, err := e.Retrieve(context.Background(), "net routing commands")
	require.NoError(t, err)

	assert.Equal(t, "net routing commands", result.Query)
	assert.NotEmpty(t, result.Items)
	assert.NotEmpty(t, result.Context)
	assert.Contains(t, result.Context, "[Ref 1 |")
	assert.Greater(t, result.Stats.Candidates, 0)
	assert.False(t, result.Stats.Reranked)
}

func TestEngineToolPartitionPrefersNamedTool(t *testing.T) {
	e := engineFixture(t, nil)

	result, err := e.Retrieve(context.Background(), "routing in widget studio")
	require.NoError(t, err)

	assert.Equal(t, "widget-studio", result.DetectedTool)
	require.NotEmpty(t, result.Items)
	assert.Equal(t, "widget_studio_guide.pdf", result.Items[0].DocumentID)
	assert.Equal(t, "Widget Studio", result.Items[0].Tool)
}

func TestEngineEmptyQuery(t *testing.T) {
	e := engineFixture(t, nil)
	_, err := e.Retrieve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestEngineNoMatchesYieldsEmptyResult(t *testing.T) {
	e := engineFixture(t, nil)

	result, err := e.Retrieve(context.Background(), "zzqy unrelated nonsense")
	require.NoError(t, err)
	// Vector search still returns nearest neighbors, so items may
	// exist; the call itself must not fail.
	assert.NotNil(t, result)
}

func TestEngineDocumentFilter(t *testing.T) {
	e := engineFixture(t, nil)

	result, err := e.Retrieve(context.Background(), "routing commands", "gadget_lab_manual.pdf")
	require.NoError(t, err)

	assert.Equal(t, []string{"gadget_lab_manual.pdf"}, result.DocumentFilter)
	require.NotEmpty(t, result.Items)
	for _, item := range result.Items {
		assert.Equal(t, "gadget_lab_manual.pdf", item.DocumentID)
	}
}

func TestEngineFilteredResultsCachedSeparately(t *testing.T) {
	mem := cache.NewMemoryClient(100)
	e := engineFixture(t, mem)
	ctx := context.Background()

	unfiltered, err := e.Retrieve(ctx, "routing commands")
	require.NoError(t, err)

	filtered, err := e.Retrieve(ctx, "routing commands", "gadget_lab_manual.pdf")
	require.NoError(t, err)

	// The filtered call must not be served from the unfiltered entry.
	for _, item := range filtered.Items {
		assert.Equal(t, "gadget_lab_manual.pdf", item.DocumentID)
	}
	assert.NotEqual(t, unfiltered.Context, filtered.Context)
}

func TestEngineCachesResults(t *testing.T) {
	mem := cache.NewMemoryClient(100)
	e := engineFixture(t, mem)
	ctx := context.Background()

	first, err := e.Retrieve(ctx, "net routing commands")
	require.NoError(t, err)

	second, err := e.Retrieve(ctx, "net routing commands")
	require.NoError(t, err)
	assert.Equal(t, first.Context, second.Context)
	assert.Equal(t, first.Items, second.Items)

	require.NoError(t, e.InvalidateCache(ctx))
	third, err := e.Retrieve(ctx, "net routing commands")
	require.NoError(t, err)
	assert.Equal(t, first.Context, third.Context)
}
