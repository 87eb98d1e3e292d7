// Package main provides the ragdesk CLI: document indexing, retrieval-backed
// question answering and ticket resolution.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/ragdesk/internal/answer"
	"github.com/bull/ragdesk/internal/chunker"
	"github.com/bull/ragdesk/internal/config"
	"github.com/bull/ragdesk/internal/document"
	"github.com/bull/ragdesk/internal/embedding"
	"github.com/bull/ragdesk/internal/history"
	"github.com/bull/ragdesk/internal/index"
	"github.com/bull/ragdesk/internal/indexer"
	"github.com/bull/ragdesk/internal/notify"
	"github.com/bull/ragdesk/internal/retriever"
	"github.com/bull/ragdesk/internal/ticket"
	"github.com/bull/ragdesk/internal/ticketstore"
)

// Exit codes. Scripts driving the CLI branch on these.
const (
	exitOK           = 0
	exitError        = 1
	exitBadConfig    = 2
	exitLoadError    = 3
	exitCorruptIndex = 4
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ragdesk",
	Short: "Retrieval-augmented answer engine and ticket resolver",
	Long: `ragdesk indexes a local knowledge base, answers questions against it
with cited sources, and drives support tickets through an automated
categorize/resolve lifecycle.

Environment variables:
  OPENAI_API_KEY OpenAI API key for embeddings and generation (required)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		setupLogging(cfg.LogLevel)
		return nil
	},
}

var (
	indexDocs      string
	indexRebuild   bool
	indexChunkSize int
	indexOverlap   int
	indexPath      string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index documents into the local vector index",
	Long: `Loads supported documents (txt, md, csv, pdf) from the docs directory,
chunks and embeds them, and writes the index snapshot to disk.

By default only new or changed documents are processed; --rebuild discards
the existing index and re-embeds everything.`,
	RunE: runIndex,
}

var (
	queryTopK      int
	queryThreshold float64
)

var queryCmd = &cobra.Command{
	Use:   "query \"question\"",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var (
	resolveTicket    string
	resolveStore     string
	resolveSheetID   string
	resolveSheetName string
	resolveCreds     string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run the ticket resolver over pending tickets",
	Long: `Processes tickets from the configured store: open tickets are
categorized and resolved against the document index, failed tickets are
retried within their budget, resolved and closed tickets are skipped.`,
	RunE: runResolve,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past question/answer exchanges",
	RunE:  runHistory,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "config file path")

	indexCmd.Flags().StringVar(&indexDocs, "docs", "", "documents directory (default from config)")
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "discard the existing index and re-embed everything")
	indexCmd.Flags().IntVar(&indexChunkSize, "chunk-size", 0, "chunk size in tokens (default from config)")
	indexCmd.Flags().IntVar(&indexOverlap, "overlap", 0, "chunk overlap in tokens (default from config)")
	indexCmd.Flags().StringVar(&indexPath, "index", "", "index snapshot path (default from config)")

	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "number of chunks to retrieve (default from config)")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", -1, "minimum similarity score (default from config)")

	resolveCmd.Flags().StringVar(&resolveTicket, "ticket", "", "process a single ticket id")
	resolveCmd.Flags().StringVar(&resolveStore, "store", "sqlite", "ticket store backend: sqlite or sheets")
	resolveCmd.Flags().StringVar(&resolveSheetID, "sheet-id", "", "spreadsheet id for the sheets backend")
	resolveCmd.Flags().StringVar(&resolveSheetName, "sheet-name", "Tickets", "sheet name for the sheets backend")
	resolveCmd.Flags().StringVar(&resolveCreds, "credentials", "credentials.json", "Google API credentials file")

	rootCmd.AddCommand(indexCmd, queryCmd, resolveCmd, historyCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error classes to the documented exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalid):
		return exitBadConfig
	case errors.Is(err, document.ErrLoad), errors.Is(err, document.ErrUnsupportedFormat):
		return exitLoadError
	case errors.Is(err, index.ErrCorruptIndex), errors.Is(err, index.ErrDimensionMismatch):
		return exitCorruptIndex
	default:
		return exitError
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// openIndex loads the snapshot if one exists, otherwise returns a fresh
// empty index.
func openIndex(path string, dimension int) (*index.Index, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return index.New(dimension, index.MetricCosine), nil
	}
	return index.LoadFile(path, dimension)
}

func newProvider() (*embedding.OpenAIProvider, error) {
	return embedding.NewOpenAIProvider(embedding.WithModel(cfg.Models.Embedding, cfg.Models.Dimension))
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	docs := indexDocs
	if docs == "" {
		docs = cfg.Paths.Docs
	}
	snapshotPath := indexPath
	if snapshotPath == "" {
		snapshotPath = cfg.Paths.Index
	}
	chunkSize := indexChunkSize
	if chunkSize == 0 {
		chunkSize = cfg.Chunker.MaxTokens
	}
	overlap := indexOverlap
	if overlap == 0 {
		overlap = cfg.Chunker.OverlapTokens
	}

	ch, err := chunker.New(chunkSize, overlap)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	provider, err := newProvider()
	if err != nil {
		return err
	}

	var idx *index.Index
	if indexRebuild {
		idx = index.New(cfg.Models.Dimension, index.MetricCosine)
	} else {
		idx, err = openIndex(snapshotPath, cfg.Models.Dimension)
		if err != nil {
			return err
		}
	}

	pipeline := indexer.NewPipeline(document.NewLoader(), ch, provider, idx, slog.Default())

	var result *indexer.IndexResult
	if indexRebuild {
		result, err = pipeline.IndexAll(ctx, docs)
	} else {
		result, err = pipeline.IndexIncremental(ctx, docs)
	}
	if err != nil {
		return err
	}

	if err := idx.SaveFile(snapshotPath); err != nil {
		return err
	}

	fmt.Printf("Indexed %d/%d documents (%d skipped, %d chunks) in %s\n",
		result.SuccessfulDocs, result.TotalDocs, result.SkippedDocs,
		result.TotalChunks, time.Since(start).Round(time.Millisecond))
	if len(result.FailedDocs) > 0 {
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := args[0]

	topK := queryTopK
	if topK <= 0 {
		topK = cfg.Retriever.TopK
	}
	threshold := queryThreshold
	if threshold < 0 {
		threshold = cfg.Retriever.ScoreThreshold
	}

	provider, err := newProvider()
	if err != nil {
		return err
	}
	idx, err := openIndex(cfg.Paths.Index, cfg.Models.Dimension)
	if err != nil {
		return err
	}
	gen, err := answer.NewOpenAIGenerator(cfg.Models.Chat)
	if err != nil {
		return err
	}

	ret := retriever.New(provider, idx, slog.Default())
	synth := answer.NewSynthesizer(gen, idx, slog.Default())

	results, err := ret.Retrieve(ctx, question, topK, threshold)
	if err != nil && !errors.Is(err, index.ErrEmptyIndex) {
		return err
	}
	ans, err := synth.Answer(ctx, question, results)
	if err != nil {
		return err
	}

	fmt.Println(ans.Text)
	if len(ans.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, c := range ans.Citations {
			fmt.Printf("  - %s (score %.2f)\n", c.Source, c.Score)
		}
	}

	sources := make([]string, len(ans.Citations))
	for i, c := range ans.Citations {
		sources[i] = c.Source
	}
	log := history.NewLog(cfg.Paths.History, slog.Default())
	if err := log.Append(history.Entry{
		AskedAt:   time.Now().UTC(),
		Question:  question,
		Answer:    ans.Text,
		Citations: sources,
		Grounded:  ans.Grounded,
	}); err != nil {
		slog.Warn("failed to record history", "error", err)
	}
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, closeStore, err := openTicketStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := newProvider()
	if err != nil {
		return err
	}
	idx, err := openIndex(cfg.Paths.Index, cfg.Models.Dimension)
	if err != nil {
		return err
	}
	gen, err := answer.NewOpenAIGenerator(cfg.Models.Chat)
	if err != nil {
		return err
	}

	var notifier notify.Notifier = &notify.LogNotifier{Logger: slog.Default()}
	if cfg.Resolver.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Resolver.WebhookURL, slog.Default())
	}

	resolver := ticket.NewResolver(
		store,
		ticket.NewLLMClassifier(gen, nil),
		retriever.New(provider, idx, slog.Default()),
		answer.NewSynthesizer(gen, idx, slog.Default()),
		notifier,
		slog.Default(),
		ticket.WithMaxRetries(cfg.Resolver.MaxRetries),
		ticket.WithRetrieval(cfg.Retriever.TopK, cfg.Retriever.ScoreThreshold),
		ticket.WithWorkers(cfg.Resolver.Workers),
	)

	if resolveTicket != "" {
		t, err := resolver.Process(ctx, resolveTicket)
		if err != nil {
			return err
		}
		fmt.Printf("Ticket %s: %s\n", t.ID, t.Status)
		if t.ResolutionText != "" {
			fmt.Println(t.ResolutionText)
		}
		return nil
	}

	resolved, err := resolver.ProcessPending(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Resolved %d tickets\n", resolved)
	return nil
}

func openTicketStore(ctx context.Context) (ticket.Store, func(), error) {
	switch resolveStore {
	case "sqlite":
		store, err := ticketstore.NewSQLiteStore(cfg.Paths.Tickets)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "sheets":
		if resolveSheetID == "" {
			return nil, nil, fmt.Errorf("%w: --sheet-id is required for the sheets store", config.ErrInvalid)
		}
		svc, err := ticketstore.NewSheetsService(ctx, resolveCreds)
		if err != nil {
			return nil, nil, err
		}
		store := ticketstore.NewSheetsStore(ticketstore.WrapSheetsService(svc), resolveSheetID, resolveSheetName)
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown ticket store %q", config.ErrInvalid, resolveStore)
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	log := history.NewLog(cfg.Paths.History, slog.Default())
	entries, err := log.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No history yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("[%s] %s\n", e.AskedAt.Format(time.RFC3339), e.Question)
		fmt.Printf("  %s\n", e.Answer)
		for _, c := range e.Citations {
			fmt.Printf("  - %s\n", c)
		}
	}
	return nil
}
