package retrieval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chipstack-ai/manual-engine/internal/config"
	"github.com/chipstack-ai/manual-engine/internal/observability"
)

// tool is one compiled entry of the data-driven tool table.
type tool struct {
	id       string
	name     string
	patterns []*regexp.Regexp
	keywords []string
}

// Disambiguator detects which tool a query refers to and reorders the
// candidate pool so that tool's documents come first. Zero or multiple
// detected tools leave the pool untouched; no candidate is ever
// dropped.
type Disambiguator struct {
	tools  []tool
	logger *observability.Logger
}

// NewDisambiguator compiles the configured tool table. A bad pattern
// fails construction rather than silently skipping a tool.
func NewDisambiguator(cfgs []config.ToolConfig, logger *observability.Logger) (*Disambiguator, error) {
	d := &Disambiguator{logger: logger.WithComponent("disambiguator")}
	for _, cfg := range cfgs {
		t := tool{id: cfg.ID, name: cfg.Name}
		for _, p := range cfg.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("tool %s: compile pattern %q: %w", cfg.ID, p, err)
			}
			t.patterns = append(t.patterns, re)
		}
		for _, k := range cfg.Keywords {
			t.keywords = append(t.keywords, strings.ToLower(k))
		}
		d.tools = append(d.tools, t)
	}
	return d, nil
}

// Detect returns the ids of every tool whose keywords occur in the
// query.
func (d *Disambiguator) Detect(query string) []string {
	lower := strings.ToLower(query)
	var ids []string
	for _, t := range d.tools {
		for _, k := range t.keywords {
			if k != "" && strings.Contains(lower, k) {
				ids = append(ids, t.id)
				break
			}
		}
	}
	return ids
}

// Apply reorders candidates for the query. When exactly one tool is
// detected, candidates from that tool's documents move to the front
// with relative order preserved on both sides of the partition. The
// detected tool id is returned for provenance; empty means ambiguous
// or none.
func (d *Disambiguator) Apply(query string, candidates []*Candidate) ([]*Candidate, string) {
	detected := d.Detect(query)
	if len(detected) != 1 {
		if len(detected) > 1 {
			d.logger.Debug().Strs("tools", detected).Msg("multiple tools detected, keeping fused order")
		}
		return candidates, ""
	}

	toolID := detected[0]
	matching := make([]*Candidate, 0, len(candidates))
	others := make([]*Candidate, 0, len(candidates))
	for _, c := range candidates {
		if d.matchesTool(toolID, c.DocumentID) {
			matching = append(matching, c)
		} else {
			others = append(others, c)
		}
	}

	d.logger.Debug().
		Str("tool", toolID).
		Int("matching", len(matching)).
		Int("others", len(others)).
		Msg("partitioned candidates by detected tool")
	return append(matching, others...), toolID
}

// ToolForDocument returns the display name of the tool whose patterns
// match the document id, or empty when no tool claims it.
func (d *Disambiguator) ToolForDocument(documentID string) string {
	for _, t := range d.tools {
		for _, re := range t.patterns {
			if re.MatchString(documentID) {
				return t.name
			}
		}
	}
	return ""
}

func (d *Disambiguator) matchesTool(toolID, documentID string) bool {
	for _, t := range d.tools {
		if t.id != toolID {
			continue
		}
		for _, re := range t.patterns {
			if re.MatchString(documentID) {
				return true
			}
		}
	}
	return false
}
