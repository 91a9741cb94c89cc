package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipstack-ai/manual-engine/internal/config"
	"github.com/chipstack-ai/manual-engine/internal/observability"
)

func testTools() []config.ToolConfig {
	return []config.ToolConfig{
		{
			ID:       "widget-studio",
			Name:     "Widget Studio",
			Patterns: []string{`(?i)widget[_ ]?studio`},
			Keywords: []string{"widget studio", "wstudio"},
		},
		{
			ID:       "gadget-lab",
			Name:     "Gadget Lab",
			Patterns: []string{`(?i)gadget[_ ]?lab`},
			Keywords: []string{"gadget lab", "glab"},
		},
	}
}

func candidatePool() []*Candidate {
	return []*Candidate{
		{DocumentID: "gadget_lab_manual.pdf", ChunkID: 0, FusedScore: 0.5},
		{DocumentID: "widget_studio_guide.pdf", ChunkID: 1, FusedScore: 0.4},
		{DocumentID: "generic_reference.pdf", ChunkID: 2, FusedScore: 0.3},
		{DocumentID: "widget_studio_guide.pdf", ChunkID: 3, FusedScore: 0.2},
	}
}

func TestDetectSingleTool(t *testing.T) {
	d, err := NewDisambiguator(testTools(), observability.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{"widget-studio"}, d.Detect("how do I route in Widget Studio"))
	assert.Empty(t, d.Detect("how do I route nets"))
	assert.Len(t, d.Detect("compare widget studio with gadget lab"), 2)
}

func TestApplyPartitionsOnSingleDetection(t *testing.T) {
	d, err := NewDisambiguator(testTools(), observability.Nop())
	require.NoError(t, err)

	pool := candidatePool()
	out, toolID := d.Apply("routing in wstudio", pool)

	assert.Equal(t, "widget-studio", toolID)
	require.Len(t, out, 4)
	// Matching documents first, relative order preserved on both sides.
	assert.Equal(t, 1, out[0].ChunkID)
	assert.Equal(t, 3, out[1].ChunkID)
	assert.Equal(t, 0, out[2].ChunkID)
	assert.Equal(t, 2, out[3].ChunkID)
}

func TestApplyNoDetectionLeavesPoolUnchanged(t *testing.T) {
	d, err := NewDisambiguator(testTools(), observability.Nop())
	require.NoError(t, err)

	pool := candidatePool()
	out, toolID := d.Apply("generic routing question", pool)

	assert.Empty(t, toolID)
	assert.Equal(t, pool, out)
}

func TestApplyMultipleDetectionsLeavesPoolUnchanged(t *testing.T) {
	d, err := NewDisambiguator(testTools(), observability.Nop())
	require.NoError(t, err)

	pool := candidatePool()
	out, toolID := d.Apply("wstudio versus glab", pool)

	assert.Empty(t, toolID)
	assert.Equal(t, pool, out)
	assert.Len(t, out, len(pool), "partitioning must never drop candidates")
}

func TestToolForDocument(t *testing.T) {
	d, err := NewDisambiguator(testTools(), observability.Nop())
	require.NoError(t, err)

	assert.Equal(t, "Widget Studio", d.ToolForDocument("widget_studio_guide.pdf"))
	assert.Equal(t, "Gadget Lab", d.ToolForDocument("gadget_lab_manual.pdf"))
	assert.Empty(t, d.ToolForDocument("generic_reference.pdf"))
}

func TestNewDisambiguatorBadPattern(t *testing.T) {
	_, err := NewDisambiguator([]config.ToolConfig{
		{ID: "bad", Patterns: []string{"("}},
	}, observability.Nop())
	assert.Error(t, err)
}
