// Package main is the Omoide CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/omoide/internal/cache"
	"github.com/hyperjump/omoide/internal/config"
	"github.com/hyperjump/omoide/internal/corpus"
	"github.com/hyperjump/omoide/internal/embedding"
	"github.com/hyperjump/omoide/internal/models"
	"github.com/hyperjump/omoide/internal/retriever"
	"github.com/hyperjump/omoide/internal/server"
	"github.com/hyperjump/omoide/internal/vector"
	"github.com/hyperjump/omoide/internal/watcher"
	"github.com/hyperjump/omoide/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/omoide/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "omoide server" from the project dir uses the project's
// config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("omoide version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (corpus changes, retrieval detail, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Retriever.Restore(ctx); err != nil {
		logger.Fatal("Failed to restore index", zap.Error(err))
	}

	source := corpus.NewDirLoader(cfg.Corpus.Directories, cfg.Corpus.Extensions,
		corpus.WithLogger(logger))

	// Ingest at startup so the index reflects the corpus on disk.
	if report, err := components.Retriever.Ingest(ctx, source); err != nil {
		logger.Error("startup ingest failed", zap.Error(err))
	} else if report.Partial() {
		logger.Warn("startup ingest skipped some chunks", zap.Int("skipped", len(report.Skipped)))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watch *watcher.Watcher
	if cfg.Corpus.Watch {
		watch = watcher.New(cfg.Corpus.Directories, cfg.Corpus.Extensions, func() {
			if _, err := components.Retriever.Ingest(context.Background(), source); err != nil {
				logger.Warn("re-ingest after corpus change failed", zap.Error(err))
			}
		}, watcher.WithLogger(logger))
		if err := watch.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(components.Retriever, source, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watch != nil {
		watch.Stop()
	}
	watchCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = run the ingest in-process)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var report *models.IngestReport
	if *serverURL != "" {
		res, err := ingestViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		report = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		if err := components.Retriever.Restore(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to restore index: %v\n", err)
			os.Exit(1)
		}
		source := corpus.NewDirLoader(cfg.Corpus.Directories, cfg.Corpus.Extensions)
		report, err = components.Retriever.Ingest(ctx, source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("run_id:              %s\n", report.RunID)
		fmt.Printf("documents_processed: %d\n", report.DocumentsProcessed)
		fmt.Printf("documents_removed:   %d\n", report.DocumentsRemoved)
		fmt.Printf("chunks_produced:     %d\n", report.ChunksProduced)
		fmt.Printf("cache_hits:          %d\n", report.CacheHits)
		fmt.Printf("cache_misses:        %d\n", report.CacheMisses)
		if report.Partial() {
			fmt.Printf("skipped:             %d\n", len(report.Skipped))
			for _, s := range report.Skipped {
				fmt.Printf("  %s#%d: %s\n", s.DocumentID, s.ChunkIndex, s.Reason)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
	if report.Partial() {
		os.Exit(2)
	}
}

func ingestViaHTTP(serverURL string) (*models.IngestReport, error) {
	resp, err := http.Post(serverURL+"/api/v1/ingest", "application/json", bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var report models.IngestReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &report, nil
}

// buildQuery joins all positional args with spaces so multi-word queries work
// the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// queryArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
func queryArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: omoide query [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  omoide query how do I rotate credentials
  omoide query "how do I rotate credentials"        # same as above
  omoide query --output json deployment checklist   # structured JSON for other apps
`)
}

func runQuery() {
	queryArgs := queryArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = query the local store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(queryArgs)

	if fs.NArg() < 1 {
		printQueryUsage(fs)
		os.Exit(1)
	}
	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}

	var result *models.RetrievalResult
	if *serverURL != "" {
		res, err := retrieveViaHTTP(*serverURL, queryStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		result = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		if err := components.Retriever.Restore(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to restore index: %v\n", err)
			os.Exit(1)
		}
		result, err = components.Retriever.Retrieve(ctx, queryStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(result.Chunks) == 0 {
			fmt.Println("No matching chunks.")
			return
		}
		for i, ch := range result.Chunks {
			fmt.Printf("%d. %s#%d (score %.4f, %d tokens)\n", i+1, ch.DocumentID, ch.ChunkIndex, ch.Score, ch.TokenCount)
			fmt.Printf("   %s\n", utils.Truncate(ch.Text, 200))
		}
		fmt.Printf("\n%d chunk(s), %d tokens, %dms\n", len(result.Chunks), result.TotalTokens, result.QueryTime)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func retrieveViaHTTP(serverURL, query string) (*models.RetrievalResult, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/retrieve", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result models.RetrievalResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = read the local store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status *retriever.Status
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		if err := components.Retriever.Restore(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to restore index: %v\n", err)
			os.Exit(1)
		}
		status, err = components.Retriever.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:     %d   # count of ingested documents\n", status.Documents)
		fmt.Printf("chunks:        %d   # count of indexed chunks\n", status.Chunks)
		fmt.Printf("cache_entries: %d   # embeddings cached on disk\n", status.CacheEntries)
		fmt.Printf("dimensions:    %d\n", status.Dimensions)
		fmt.Printf("provider:      %s\n", status.Provider)
		if status.LastIngest != "" {
			fmt.Printf("last_ingest:   %s\n", status.LastIngest)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*retriever.Status, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s retriever.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Store     cache.Store
	Embedder  embedding.Embedder
	Index     *vector.FlatIndex
	Retriever *retriever.Orchestrator
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := cache.NewSQLiteStore(cfg.Storage.CachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}

	embedder, err := embedding.NewFromConfig(&cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	index, err := vector.NewFlatIndex(embedder.Dimensions())
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	ret, err := retriever.New(cfg, store, embedder, index, logger)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize retriever: %w", err)
	}

	logger.Info("components initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.Int("dimensions", embedder.Dimensions()),
		zap.String("cache_path", cfg.Storage.CachePath))

	return &Components{
		Store:     store,
		Embedder:  embedder,
		Index:     index,
		Retriever: ret,
	}, nil
}

func printUsage() {
	fmt.Println(`omoide - Local semantic retrieval service

Usage:
  omoide server [flags]           Start the HTTP server
  omoide ingest [flags]           Run a full corpus ingest pass
  omoide query [flags] <query>    Retrieve chunks relevant to a query
  omoide status [flags]           Show corpus/index status
  omoide version                  Show version
  omoide help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/omoide/config.yaml)
  --debug            Enable debug logging (corpus changes, retrieval detail, etc.)

Ingest Flags:
  --config string    Config file path (for in-process mode)
  --server string    Server URL (default: empty = in-process). Point at a running server to reuse its cache.
  --output string    Output format: text or json (default: text)

Query Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to query the local store directly.
  --output string    Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --output string    Output format: text or json (default: text)

Examples:
  omoide server
  omoide ingest
  omoide query "how do I rotate credentials"
  omoide query --output json deployment checklist
  omoide status
  omoide status --output json`)
}
