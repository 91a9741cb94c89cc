package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/chipstack-ai/manual-engine/internal/llm"
	"github.com/chipstack-ai/manual-engine/internal/observability"
)

const expansionSystemPrompt = "You rewrite search queries for a technical manual retrieval system. " +
	"Answer only in the requested format."

const expansionPromptTemplate = `Generate %d alternative phrasings of the user's search query. Each
alternative must vary along a different axis, such as synonymous
technical terminology, restatement as a direct question, or enrichment
with likely surrounding context.

Answer with exactly one line per alternative, formatted as:
%s
User query: %s`

var expansionLineRe = regexp.MustCompile(`(?i)^\s*QUERY\s*\d+\s*[:：]\s*(.+)$`)

// Expander widens a query into multiple reformulations through one
// generation call. Any failure or malformed output degrades to the
// original query alone; expansion never fails a retrieval.
type Expander struct {
	generator llm.Generator
	count     int
	logger    *observability.Logger
}

// NewExpander creates an expander. A nil generator disables expansion.
func NewExpander(generator llm.Generator, count int, logger *observability.Logger) *Expander {
	return &Expander{
		generator: generator,
		count:     count,
		logger:    logger.WithComponent("expander"),
	}
}

// Expand returns the original query followed by up to count distinct
// reformulations.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	queries := []string{query}
	if e.generator == nil || e.count <= 0 {
		return queries
	}

	prompt := fmt.Sprintf(expansionPromptTemplate, e.count, exampleLines(e.count), query)
	out, err := e.generator.Generate(ctx, expansionSystemPrompt, prompt)
	if err != nil {
		e.logger.Warn().Err(err).Msg("query expansion failed, using original query only")
		return queries
	}

	seen := map[string]bool{strings.ToLower(strings.TrimSpace(query)): true}
	for _, line := range strings.Split(out, "\n") {
		m := expansionLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		alt := strings.TrimSpace(m[1])
		if alt == "" || seen[strings.ToLower(alt)] {
			continue
		}
		seen[strings.ToLower(alt)] = true
		queries = append(queries, alt)
		if len(queries) > e.count {
			break
		}
	}

	if len(queries) == 1 {
		e.logger.Warn().Str("output", out).Msg("expansion output had no parsable lines")
	}
	return queries
}

// exampleLines renders one format example per requested alternative.
func exampleLines(count int) string {
	var b strings.Builder
	for i := 1; i <= count; i++ {
		fmt.Fprintf(&b, "QUERY %d: <alternative>\n", i)
	}
	return b.String()
}
