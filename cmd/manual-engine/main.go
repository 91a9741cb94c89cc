// Package main provides the Manual Engine CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chipstack-ai/manual-engine/internal/cache"
	"github.com/chipstack-ai/manual-engine/internal/config"
	"github.com/chipstack-ai/manual-engine/internal/extract"
	"github.com/chipstack-ai/manual-engine/internal/index"
	"github.com/chipstack-ai/manual-engine/internal/ingest"
	"github.com/chipstack-ai/manual-engine/internal/llm"
	"github.com/chipstack-ai/manual-engine/internal/observability"
	"github.com/chipstack-ai/manual-engine/internal/retrieval"
	"github.com/chipstack-ai/manual-engine/internal/segment"
	"github.com/chipstack-ai/manual-engine/internal/storage"
)

var version = "dev"

var (
	cfgFile    string
	outputJSON bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "manual-engine",
	Short: "Document-grounded retrieval over tool manuals",
	Long: `Manual Engine ingests TOC-structured manuals into a dual-granularity
index and answers queries with grounded, provenance-tagged context.

Use this tool to:
- Ingest pre-converted Markdown manuals
- Query the corpus with hybrid lexical/vector retrieval
- Remove documents and inspect index state`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Missing .env is fine, real deployments use the environment.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := cfg.Observability.LogFormat
		if outputJSON {
			logFormat = "json"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      logFormat,
			ServiceName: "manual-engine-cli",
		})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: env vars only)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles the wired components shared by the subcommands.
type app struct {
	repos    *storage.Repositories
	writer   *index.DualWriter
	pipeline *ingest.Pipeline
	engine   *retrieval.Engine
	vector   index.VectorIndex
	lexical  *index.Lexical
	cache    cache.Client

	closers []func() error
}

// newApp opens every backend the configuration names and rebuilds the
// in-memory lexical index from the child store.
func newApp(ctx context.Context) (*app, error) {
	a := &app{}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	if err := storage.EnsureSchema(ctx, db); err != nil {
		a.close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	a.repos = storage.NewRepositories(db)

	embedder := newEmbedder()

	a.vector, err = newVectorIndex()
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, a.vector.Close)

	a.lexical = index.NewLexical(index.NewTokenizer(cfg.Lexicon))
	a.writer = index.NewDualWriter(a.repos, a.vector, a.lexical, embedder, cfg.Embedding.BatchSize, logger)

	if _, err := a.writer.RebuildLexical(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("rebuild lexical index: %w", err)
	}

	noise, err := segment.NewNoiseFilter(cfg.Segmentation)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("noise filter: %w", err)
	}
	a.pipeline = ingest.NewPipeline(
		extract.NewMarkdownExtractor(),
		noise,
		segment.NewBoundaryResolver(logger),
		segment.NewChildSplitter(cfg.Segmentation),
		a.writer,
		logger,
	)

	disamb, err := retrieval.NewDisambiguator(cfg.Tools, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("tool config: %w", err)
	}

	a.cache = newCacheClient()
	if a.cache != nil {
		a.closers = append(a.closers, a.cache.Close)
	}

	var generator llm.Generator
	if cfg.Generation.APIKey != "" {
		generator = llm.NewGenerationClient(cfg.Generation)
	} else {
		logger.Warn().Msg("no generation api key, query expansion disabled")
	}

	reranker := llm.DisabledReranker()
	if cfg.Rerank.Enabled && cfg.Rerank.APIKey != "" {
		reranker = llm.NewReranker(cfg.Rerank)
	}

	rc := cfg.Retrieval
	a.engine = retrieval.NewEngine(
		retrieval.NewExpander(generator, rc.Expansions, logger),
		retrieval.NewHybridRetriever(a.lexical, a.vector, embedder, a.repos.Children, rc.RRFK, rc.PerMethodLimit, rc.PoolSize, logger),
		disamb,
		retrieval.NewRerankStage(reranker, rc.RerankTopN, rc.CandidateMaxRunes, logger),
		retrieval.NewParentExpander(a.repos.Parents, rc.MaxParents, rc.ParentSizeThreshold, rc.WindowRadius, rc.FingerprintRunes, logger),
		retrieval.NewAssembler(rc.ItemMaxRunes, rc.ContextBudget),
		a.cache,
		cfg.Cache.TTL,
		logger,
	)

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}
}

func newEmbedder() llm.Embedder {
	if cfg.Embedding.APIKey == "" {
		logger.Warn().Msg("no embedding api key, using mock embedder")
		return llm.NewMockEmbedder(cfg.Embedding.Dimension)
	}
	return llm.NewEmbeddingClient(cfg.Embedding)
}

func newVectorIndex() (index.VectorIndex, error) {
	switch cfg.Vector.Adapter {
	case "qdrant":
		idx, err := index.NewQdrantIndex(cfg.Vector.Qdrant, cfg.Embedding.Dimension)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		return idx, nil
	default:
		return index.NewMemoryIndex(), nil
	}
}

// newCacheClient returns nil when caching is disabled; the engine
// treats a nil client as a no-op.
func newCacheClient() cache.Client {
	if !cfg.Retrieval.CacheResults {
		return nil
	}
	if cfg.Cache.Driver == "redis" {
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory cache")
			return cache.NewMemoryClient(cfg.Cache.MaxEntries)
		}
		return client
	}
	return cache.NewMemoryClient(cfg.Cache.MaxEntries)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("manual-engine %s\n", version)
		},
	}
}
