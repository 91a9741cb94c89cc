// Package segment turns extracted documents into parent segments and
// child passages: noise removal, TOC-driven boundary resolution,
// hierarchy paths, and overlapping child splitting.
package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chipstack-ai/manual-engine/internal/config"
)

// NoiseFilter removes repeated page furniture (headers, footers, page
// numbers) detected by sampling pages from both ends of the document,
// then applies static cleaning rules.
type NoiseFilter struct {
	samplePages int
	minLineLen  int
	maxLineLen  int
	cleaning    []*regexp.Regexp
}

// NewNoiseFilter builds a filter from segmentation settings. The
// cleaning patterns are compiled up front so a bad rule fails loudly at
// startup instead of during ingestion.
func NewNoiseFilter(cfg config.SegmentationConfig) (*NoiseFilter, error) {
	f := &NoiseFilter{
		samplePages: cfg.NoiseSamplePages,
		minLineLen:  cfg.NoiseMinLineLen,
		maxLineLen:  cfg.NoiseMaxLineLen,
	}
	for _, pattern := range cfg.CleaningPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile cleaning pattern %q: %w", pattern, err)
		}
		f.cleaning = append(f.cleaning, re)
	}
	return f, nil
}

// DetectNoise samples the first and last pages of the document and
// returns the trimmed lines that repeat across more than half of the
// sampled pages. Each line counts at most once per page.
func (f *NoiseFilter) DetectNoise(pages []string) []string {
	sampled := f.samplePageIndexes(len(pages))
	// Repetition is meaningless on a single page.
	if len(sampled) < 2 {
		return nil
	}

	counts := make(map[string]int)
	var order []string
	for _, idx := range sampled {
		seen := make(map[string]bool)
		for _, line := range strings.Split(pages[idx], "\n") {
			line = strings.TrimSpace(line)
			if len(line) < f.minLineLen || len(line) > f.maxLineLen {
				continue
			}
			if seen[line] {
				continue
			}
			seen[line] = true
			if counts[line] == 0 {
				order = append(order, line)
			}
			counts[line]++
		}
	}

	threshold := len(sampled)
	var noise []string
	for _, line := range order {
		// Strictly more than half of the sampled pages.
		if counts[line]*2 > threshold {
			noise = append(noise, line)
		}
	}
	return noise
}

// Clean strips the detected noise lines from every page and applies the
// static cleaning rules. Page count and order are preserved.
func (f *NoiseFilter) Clean(pages []string) []string {
	noise := make(map[string]bool)
	for _, line := range f.DetectNoise(pages) {
		noise[line] = true
	}

	cleaned := make([]string, len(pages))
	for i, page := range pages {
		lines := strings.Split(page, "\n")
		kept := lines[:0]
		for _, line := range lines {
			if noise[strings.TrimSpace(line)] {
				continue
			}
			kept = append(kept, line)
		}
		out := strings.Join(kept, "\n")
		for _, re := range f.cleaning {
			out = re.ReplaceAllString(out, "")
		}
		cleaned[i] = out
	}
	return cleaned
}

// samplePageIndexes picks up to samplePages indexes from each end
// without counting a page twice on short documents.
func (f *NoiseFilter) samplePageIndexes(total int) []int {
	if total == 0 || f.samplePages <= 0 {
		return nil
	}
	seen := make(map[int]bool)
	var idx []int
	for i := 0; i < f.samplePages && i < total; i++ {
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	for i := total - f.samplePages; i < total; i++ {
		if i >= 0 && !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	return idx
}
