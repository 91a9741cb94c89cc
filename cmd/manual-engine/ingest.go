package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/chipstack-ai/manual-engine/internal/ingest"
)

// newIngestCmd creates the ingest subcommand.
func newIngestCmd() *cobra.Command {
	var documentID string

	cmd := &cobra.Command{
		Use:   "ingest <markdown-file> [markdown-file...]",
		Short: "Ingest Markdown manuals into the index",
		Long: `Ingest reads pre-converted Markdown manuals, segments them along the
table of contents, and writes parent segments and child passages into
the lexical and vector indexes.

The document ID defaults to the file name; --id overrides it for a
single file. Re-ingesting an ID replaces the previous version.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if documentID != "" && len(args) > 1 {
				return fmt.Errorf("--id only applies to a single file")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			bar := newProgressBar(len(args), "ingesting")
			var results []*ingest.Result
			failures := 0

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					printError("%s: %v", path, err)
					failures++
					continue
				}

				id := filepath.Base(path)
				if documentID != "" {
					id = documentID
				}

				result, err := a.pipeline.Ingest(ctx, ingest.Request{DocumentID: id, Data: data})
				if err != nil {
					printError("%s: %v", path, err)
					failures++
					continue
				}
				results = append(results, result)
				if result.DegradedTOC {
					printWarning("%s: no table of contents, ingested as a single segment", id)
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(results)
			}

			for _, r := range results {
				printSuccess("%s: %d parents, %d children in %s",
					r.DocumentID, r.Parents, r.Children, formatDuration(r.Duration))
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d documents failed", failures, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "id", "", "document ID (single file only, defaults to file name)")
	return cmd
}

// newRemoveCmd creates the remove subcommand.
func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <document-id>",
		Short: "Remove a document from all indexes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.pipeline.Remove(ctx, args[0]); err != nil {
				return fmt.Errorf("remove %s: %w", args[0], err)
			}
			if err := a.engine.InvalidateCache(ctx); err != nil {
				printWarning("cache invalidation failed: %v", err)
			}

			printSuccess("%s removed", args[0])
			return nil
		},
	}
}
