package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newQueryCmd creates the query subcommand.
func newQueryCmd() *cobra.Command {
	var (
		showContext bool
		docFilter   []string
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Retrieve grounded context for a question",
		Long: `Query runs the retrieval pipeline: expansion, hybrid lexical/vector
search with rank fusion, tool disambiguation, reranking, and parent
expansion. The output lists the retrieved sections with provenance;
--context prints the full assembled context block.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.engine.Retrieve(ctx, query, docFilter...)
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			printHeader("Query: %s", result.Query)
			if result.DetectedTool != "" {
				printKeyValue("tool", result.DetectedTool)
			}
			if len(result.DocumentFilter) > 0 {
				printKeyValue("documents", strings.Join(result.DocumentFilter, ", "))
			}
			if len(result.Expansions) > 1 {
				printKeyValue("reformulations", strings.Join(result.Expansions[1:], " | "))
			}
			printKeyValue("candidates", result.Stats.Candidates)
			printKeyValue("cross-method hits", result.Stats.CrossMethodHits)
			printKeyValue("reranked", result.Stats.Reranked)
			printKeyValue("duration", formatDuration(result.Stats.Duration))
			fmt.Println()

			if len(result.Items) == 0 {
				printWarning("no matching sections found")
				return nil
			}

			for _, item := range result.Items {
				flags := itemFlags(item.IsWindowed, item.Truncated)
				printSuccess("[%d] %s | %s | %s%s",
					item.Ref, item.Tool, item.DocumentID, item.HierarchyPath, flags)
			}

			if showContext {
				fmt.Println()
				fmt.Println(result.Context)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showContext, "context", false, "print the full assembled context block")
	cmd.Flags().StringArrayVar(&docFilter, "doc", nil, "restrict retrieval to a document ID (repeatable)")
	return cmd
}

func itemFlags(windowed, truncated bool) string {
	var flags []string
	if windowed {
		flags = append(flags, "windowed")
	}
	if truncated {
		flags = append(flags, "truncated")
	}
	if len(flags) == 0 {
		return ""
	}
	return " (" + strings.Join(flags, ", ") + ")"
}

// newStatusCmd creates the status subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			children, err := a.repos.Children.ListAll(ctx)
			if err != nil {
				return fmt.Errorf("list passages: %w", err)
			}

			perDoc := make(map[string]int)
			for _, c := range children {
				perDoc[c.DocumentID]++
			}
			docs := make([]string, 0, len(perDoc))
			for doc := range perDoc {
				docs = append(docs, doc)
			}
			sort.Strings(docs)

			vectorCount, err := a.vector.Count(ctx)
			if err != nil {
				return fmt.Errorf("count vectors: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
					"documents": perDoc,
					"passages":  len(children),
					"vectors":   vectorCount,
					"lexical":   a.lexical.Count(),
				})
			}

			printHeader("Index status")
			printKeyValue("documents", len(docs))
			printKeyValue("passages", len(children))
			printKeyValue("vectors", vectorCount)
			printKeyValue("lexical entries", a.lexical.Count())
			fmt.Println()

			for _, doc := range docs {
				parents, err := a.repos.Parents.CountByDocument(ctx, doc)
				if err != nil {
					return fmt.Errorf("count parents for %s: %w", doc, err)
				}
				printSuccess("%s: %d sections, %d passages", doc, parents, perDoc[doc])
			}
			return nil
		},
	}
}
