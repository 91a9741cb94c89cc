package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipstack-ai/manual-engine/internal/config"
)

func newTestFilter(t *testing.T) *NoiseFilter {
	t.Helper()
	f, err := NewNoiseFilter(config.DefaultConfig().Segmentation)
	require.NoError(t, err)
	return f
}

func TestDetectNoiseRepeatedFooter(t *testing.T) {
	footer := "Acme Corp Confidential"
	pages := []string{
		"# Intro\ncontent one\n" + footer,
		"more content\n" + footer,
		"even more\n" + footer,
		"middle page without footer",
		"tail one\n" + footer,
		"tail two\n" + footer,
		"tail three\n" + footer,
	}

	noise := newTestFilter(t).DetectNoise(pages)
	assert.Contains(t, noise, footer)
	assert.NotContains(t, noise, "# Intro")
}

func TestDetectNoiseIgnoresShortAndLongLines(t *testing.T) {
	long := strings.Repeat("x", 150)
	pages := []string{
		"42\n" + long + "\nbody",
		"42\n" + long + "\nbody two",
		"42\n" + long + "\nbody three",
	}

	noise := newTestFilter(t).DetectNoise(pages)
	// "42" is below the minimum length, the long line above the maximum.
	assert.NotContains(t, noise, "42")
	assert.NotContains(t, noise, long)
	// "body" variants differ per page, so nothing qualifies.
	assert.Empty(t, noise)
}

func TestDetectNoiseCountsOncePerPage(t *testing.T) {
	// A line repeated many times on a single page must not qualify.
	repeated := "Chapter marker line"
	pages := []string{
		strings.Repeat(repeated+"\n", 10),
		"unrelated",
		"also unrelated",
	}

	noise := newTestFilter(t).DetectNoise(pages)
	assert.Empty(t, noise)
}

func TestDetectNoiseSinglePage(t *testing.T) {
	noise := newTestFilter(t).DetectNoise([]string{"every line here\nwould otherwise qualify"})
	assert.Empty(t, noise)
}

func TestCleanRemovesNoiseAndAppliesPatterns(t *testing.T) {
	footer := "Page footer text"
	pages := []string{
		"keep me\n" + footer + "\n[Feedback](mailto:docs@example.com)",
		"second page\n" + footer,
		"third page\n" + footer,
	}

	cleaned := newTestFilter(t).Clean(pages)
	require.Len(t, cleaned, len(pages))

	for _, page := range cleaned {
		assert.NotContains(t, page, footer)
		assert.NotContains(t, page, "mailto:")
	}
	assert.Contains(t, cleaned[0], "keep me")
	assert.Contains(t, cleaned[1], "second page")
}

func TestNewNoiseFilterBadPattern(t *testing.T) {
	cfg := config.DefaultConfig().Segmentation
	cfg.CleaningPatterns = []string{"("}
	_, err := NewNoiseFilter(cfg)
	assert.Error(t, err)
}
