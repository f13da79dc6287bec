// Package main is the nikki CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/nikki/internal/cli"
	"github.com/hyperjump/nikki/internal/config"
	"github.com/hyperjump/nikki/internal/events"
	"github.com/hyperjump/nikki/internal/guard"
	"github.com/hyperjump/nikki/internal/inbox"
	"github.com/hyperjump/nikki/internal/models"
	"github.com/hyperjump/nikki/internal/rollup"
	"github.com/hyperjump/nikki/internal/search"
	"github.com/hyperjump/nikki/internal/server"
	"github.com/hyperjump/nikki/internal/storage"
	"github.com/hyperjump/nikki/internal/summarizer"
	"github.com/hyperjump/nikki/internal/transcription"
	"github.com/hyperjump/nikki/internal/watcher"
	"github.com/hyperjump/nikki/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/nikki/config.yaml"
	defaultServerURL  = "http://localhost:8086"
)

// loadConfig loads config from path. When path is the default and ./config.yaml
// exists, that file is used instead so "nikki server" works from a checkout.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
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
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "status":
		runStatus(args)
	case "summarize":
		runSummarize(args)
	case "rollup":
		runRollup(args)
	case "wrap":
		runWrap(args)
	case "retry":
		runRetry(args)
	case "search":
		runSearch(args)
	case "version", "--version", "-v":
		fmt.Printf("nikki version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("timezone", cfg.Location().String()),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if n, err := components.Transcription.EnqueuePending(ctx); err != nil {
		logger.Warn("requeue pending chunks failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("requeued pending chunks", zap.Int("count", n))
	}

	ingest := components.Ingestor
	watchSvc := watcher.NewWatcher(
		cfg.Inbox.Directories,
		cfg.Inbox.Suffixes,
		cfg.Inbox.Recursive,
		func(path string) {
			if _, err := ingest.Ingest(ctx, path); err != nil {
				logger.Warn("ingest manifest failed", zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer watchSvc.Stop()
	watchSvc.SyncExisting()

	srv := server.NewServer(
		components.Rollups,
		components.Transcription,
		components.Ingestor,
		components.Index,
		components.Storage,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()
	logger.Info("server listening", zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	watchSvc.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// reorderArgs moves any flags (and their values) that appear after the positional
// arguments to the front, since flag.Parse stops at the first non-flag argument.
func reorderArgs(args []string) []string {
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

// buildSearchQuery joins all positional args so multi-word queries work with or without quotes.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// commandFlags holds flags shared by the client subcommands.
type commandFlags struct {
	fs         *flag.FlagSet
	configPath *string
	serverURL  *string
	output     *string
}

func newCommandFlags(name string) *commandFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &commandFlags{
		fs:         fs,
		configPath: fs.String("config", defaultConfigPath, "config file path (direct mode)"),
		serverURL:  fs.String("server", defaultServerURL, `server URL (empty = run directly against storage; the server must not be running)`),
		output:     fs.String("output", "text", "output format: text or json"),
	}
}

func (f *commandFlags) parse(args []string) cli.OutputFormat {
	_ = f.fs.Parse(reorderArgs(args))
	format, err := cli.ParseOutputFormat(*f.output)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

// direct opens every component against the configured storage for one-shot commands.
func (f *commandFlags) direct() *Components {
	cfg, _, err := loadConfig(*f.configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewCommandLogger(cfg.Debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return components
}

func runStatus(args []string) {
	f := newCommandFlags("status")
	format := f.parse(args)

	var status *cli.Status
	if *f.serverURL != "" {
		s, err := cli.NewClient(*f.serverURL).Status()
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		status = s
	} else {
		cfg, _, err := loadConfig(*f.configPath)
		if err != nil {
			fatalf("Failed to load config: %v", err)
		}
		s, err := directStatus(context.Background(), cfg)
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		status = s
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// directStatus reads counts straight from the database without opening the search index.
func directStatus(ctx context.Context, cfg *config.Config) (*cli.Status, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	chunks, err := store.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	summaries, err := store.CountSummaries(ctx)
	if err != nil {
		return nil, err
	}
	status := &cli.Status{
		Chunks:    chunks,
		Summaries: summaries,
		Config: map[string]interface{}{
			"timezone":          cfg.Location().String(),
			"database_path":     cfg.Storage.DatabasePath,
			"search_index_path": cfg.Storage.SearchIndexPath,
			"summarizer_engine": cfg.Summarizer.Engine,
		},
	}
	if n, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.SearchIndexPath); err == nil {
		status.DiskUsageBytes = &n
	}
	return status, nil
}

func runSummarize(args []string) {
	f := newCommandFlags("summarize")
	force := f.fs.Bool("force", false, "regenerate even when the transcript is unchanged")
	includeNotes := f.fs.String("include-notes", "", "true or false; default from config")
	format := f.parse(args)
	if f.fs.NArg() != 1 {
		fatalf("Usage: nikki summarize [flags] <session-id>")
	}
	sessionID := f.fs.Arg(0)

	var notes *bool
	if *includeNotes != "" {
		v, err := strconv.ParseBool(*includeNotes)
		if err != nil {
			fatalf("invalid --include-notes value %q", *includeNotes)
		}
		notes = &v
	}

	var sum *models.Summary
	if *f.serverURL != "" {
		s, err := cli.NewClient(*f.serverURL).GenerateSessionSummary(sessionID, *force, notes)
		if err != nil {
			fatalf("Summarize failed: %v", err)
		}
		sum = s
	} else {
		c := f.direct()
		defer c.Close()
		opts := rollup.SessionOptions{Force: *force, IncludeNotes: c.Rollups.IncludeNotes()}
		if notes != nil {
			opts.IncludeNotes = *notes
		}
		s, err := c.Rollups.GenerateSessionSummary(context.Background(), sessionID, opts)
		if err != nil {
			c.Close()
			fatalf("Summarize failed: %v", err)
		}
		sum = s
	}
	if err := cli.WriteSummary(os.Stdout, sum, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runRollup(args []string) {
	f := newCommandFlags("rollup")
	force := f.fs.Bool("force", false, "regenerate even when the inputs are unchanged")
	format := f.parse(args)
	if f.fs.NArg() != 2 {
		fatalf("Usage: nikki rollup [flags] <day|week|month|year|year-wrap> <YYYY-MM-DD>")
	}
	levelArg, dateArg := f.fs.Arg(0), f.fs.Arg(1)
	level, err := guard.ParseLevel(levelArg)
	if err != nil {
		fatalf("%v", err)
	}

	var res *cli.RefreshResult
	if *f.serverURL != "" {
		res, err = cli.NewClient(*f.serverURL).RefreshPeriod(levelArg, dateArg, *force)
		if err != nil {
			fatalf("Rollup failed: %v", err)
		}
	} else {
		c := f.direct()
		defer c.Close()
		date, err := time.ParseInLocation("2006-01-02", dateArg, c.Rollups.Location())
		if err != nil {
			c.Close()
			fatalf("invalid date %q, want YYYY-MM-DD", dateArg)
		}
		res = runDirectRollup(context.Background(), c.Rollups, level, date, *force)
	}
	if err := cli.WriteRefresh(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runDirectRollup(ctx context.Context, r *rollup.Coordinator, level guard.Level, date time.Time, force bool) *cli.RefreshResult {
	outcome, err := r.RefreshPeriod(ctx, level, date, force)
	if err != nil {
		fatalf("Rollup failed: %v", err)
	}
	res := &cli.RefreshResult{Outcome: outcome.String()}
	if sum, err := r.GetPeriodSummary(ctx, level, date); err == nil {
		res.Summary = sum
	}
	return res
}

func runWrap(args []string) {
	f := newCommandFlags("wrap")
	force := f.fs.Bool("force", false, "regenerate even when the year is unchanged")
	format := f.parse(args)
	if f.fs.NArg() != 1 {
		fatalf("Usage: nikki wrap [flags] <year>")
	}
	year, err := strconv.Atoi(f.fs.Arg(0))
	if err != nil || year < 1 || year > 9999 {
		fatalf("invalid year %q", f.fs.Arg(0))
	}

	var res *cli.RefreshResult
	if *f.serverURL != "" {
		res, err = cli.NewClient(*f.serverURL).WrapYear(year, *force)
		if err != nil {
			fatalf("Wrap failed: %v", err)
		}
	} else {
		c := f.direct()
		defer c.Close()
		date := time.Date(year, time.January, 1, 0, 0, 0, 0, c.Rollups.Location())
		res = runDirectRollup(context.Background(), c.Rollups, guard.LevelYearWrap, date, *force)
	}
	if err := cli.WriteRefresh(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runRetry(args []string) {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		fatalf("Usage: nikki retry [flags] <chunk-id>")
	}
	queued, err := cli.NewClient(*serverURL).Retry(fs.Arg(0))
	if err != nil {
		fatalf("Retry failed: %v", err)
	}
	if queued {
		fmt.Printf("Chunk %s queued for transcription\n", fs.Arg(0))
		return
	}
	fmt.Printf("Chunk %s is already queued or transcribing\n", fs.Arg(0))
}

func runSearch(args []string) {
	f := newCommandFlags("search")
	limit := f.fs.Int("limit", 10, "number of results")
	level := f.fs.String("level", "", "only summaries of this period type (session, day, week, month, year, year-wrap)")
	fuzzy := f.fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	format := f.parse(args)

	query := &models.SearchQuery{
		Query:      buildSearchQuery(f.fs.Args()),
		Limit:      *limit,
		PeriodType: models.PeriodType(*level),
		Fuzzy:      *fuzzy,
	}
	if err := query.Validate(); err != nil {
		fatalf("Usage: nikki search [flags] <query>: %v", err)
	}

	var resp *models.SearchResponse
	if *f.serverURL != "" {
		r, err := cli.NewClient(*f.serverURL).Search(query)
		if err != nil {
			fatalf("Search failed: %v", err)
		}
		resp = r
	} else {
		c := f.direct()
		defer c.Close()
		r, err := directSearch(context.Background(), c, query)
		if err != nil {
			c.Close()
			fatalf("Search failed: %v", err)
		}
		resp = r
	}
	if err := cli.WriteSearchResults(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// directSearch queries the search index in-process, retrying as fuzzy when an exact query finds nothing.
func directSearch(ctx context.Context, c *Components, query *models.SearchQuery) (*models.SearchResponse, error) {
	run := func(fuzzy bool) (*models.SearchResponse, error) {
		start := time.Now()
		hits, err := c.Index.Search(ctx, query.Query, query.Limit, search.Options{PeriodType: query.PeriodType, Fuzzy: fuzzy})
		if err != nil {
			return nil, err
		}
		resp := &models.SearchResponse{Query: query.Query, Results: []*models.SearchResult{}}
		for _, h := range hits {
			sum, err := c.Storage.GetSummary(ctx, h.SummaryID)
			if err != nil {
				continue
			}
			resp.Results = append(resp.Results, &models.SearchResult{Summary: sum, Score: h.Score, Rank: len(resp.Results) + 1})
		}
		resp.Total = len(resp.Results)
		resp.QueryTime = time.Since(start).Milliseconds()
		return resp, nil
	}
	resp, err := run(query.Fuzzy)
	if err != nil || query.Fuzzy || resp.Total > 0 {
		return resp, err
	}
	if fuzzyResp, err := run(true); err == nil && fuzzyResp.Total > 0 {
		fuzzyResp.AutoFuzzy = true
		return fuzzyResp, nil
	}
	resp.Suggestion, _ = c.Index.Suggest(query.Query)
	return resp, nil
}

// Components holds initialized services.
type Components struct {
	Storage       storage.Storage
	Index         *search.Index
	Bus           *events.Bus
	Summarizer    summarizer.Engine
	Rollups       *rollup.Coordinator
	Transcription *transcription.Coordinator
	Ingestor      *inbox.Ingestor

	guard       guard.Guard
	unsubscribe func()
	closed      bool
}

// Close stops the transcription workers and releases the index and database.
func (c *Components) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.Transcription != nil {
		c.Transcription.Close()
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Summarizer != nil {
		c.Summarizer.Unload()
	}
	if closer, ok := c.guard.(io.Closer); ok {
		_ = closer.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	index, err := search.Open(cfg.Storage.SearchIndexPath, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	c.Index = index
	c.Bus = events.NewBus(logger)
	c.unsubscribe = index.Subscribe(c.Bus)

	engine, err := summarizer.New(&cfg.Summarizer, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize summarizer: %w", err)
	}
	c.Summarizer = engine

	g, err := guard.New(&cfg.Guard, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize guard: %w", err)
	}
	c.guard = g

	loc := cfg.Location()
	c.Rollups = rollup.New(store, engine,
		rollup.WithLogger(logger),
		rollup.WithGuard(g),
		rollup.WithPublisher(c.Bus),
		rollup.WithLocation(loc),
		rollup.WithIncludeNotes(cfg.Summarizer.IncludeNotes),
	)

	transcriber, err := transcription.New(&cfg.Transcription, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize transcriber: %w", err)
	}
	c.Transcription = transcription.NewCoordinator(store, transcriber, c.Rollups,
		transcription.WithLogger(logger),
		transcription.WithConcurrency(cfg.Transcription.Concurrency),
		transcription.WithPublisher(c.Bus),
		transcription.WithLocation(loc),
	)
	c.Ingestor = inbox.NewIngestor(store, c.Transcription, logger)

	logger.Info("components initialized",
		zap.String("summarizer", cfg.Summarizer.Engine),
		zap.String("transcription", cfg.Transcription.Engine),
		zap.String("guard", cfg.Guard.Backend),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`nikki - voice journal transcription and summary rollups

Usage:
  nikki server [flags]                       Start the daemon (inbox watcher, transcription, HTTP API)
  nikki status [flags]                       Show chunk, summary and queue counts
  nikki summarize [flags] <session-id>       Generate a session summary
  nikki rollup [flags] <level> <YYYY-MM-DD>  Refresh the day/week/month/year summary containing a date
  nikki wrap [flags] <year>                  Generate the year wrap-up
  nikki retry [flags] <chunk-id>             Re-queue a chunk whose transcription failed
  nikki search [flags] <query>               Search summaries
  nikki version                              Show version
  nikki help                                 Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/nikki/config.yaml)
  --debug            Enable debug logging

Common Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8086). Use --server "" to work
                     directly against storage while the server is not running.
  --output string    Output format: text or json (default: text)

Summarize Flags:
  --force                  Regenerate even when the transcript is unchanged
  --include-notes bool     Include session notes and category (default from config)

Rollup / Wrap Flags:
  --force            Regenerate even when the inputs are unchanged

Search Flags:
  --limit int        Number of results (default: 10)
  --level string     Only summaries of one period type
  --fuzzy            Typo-tolerant matching (used automatically when nothing matches exactly)

Examples:
  nikki server
  nikki summarize 5f0c2a1e-session
  nikki rollup week 2024-03-13 --force
  nikki wrap 2024
  nikki search --level day sourdough
  nikki status --output json`)
}
