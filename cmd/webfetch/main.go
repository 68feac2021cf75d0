package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/webfetch/pkg/batch"
	"github.com/Sriram-PR/webfetch/pkg/config"
	"github.com/Sriram-PR/webfetch/pkg/extract"
	"github.com/Sriram-PR/webfetch/pkg/metrics"
	"github.com/Sriram-PR/webfetch/pkg/models"
	"github.com/Sriram-PR/webfetch/pkg/orchestrate"
	"github.com/Sriram-PR/webfetch/pkg/search"
	"github.com/Sriram-PR/webfetch/pkg/storage"
)

const version = "0.4.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "fetch":
		runFetch(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "research":
		runResearch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "cache":
		runCache(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("webfetch %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `webfetch - Bounded-concurrency batch web fetcher

Usage:
  webfetch <command> [options]

Commands:
  fetch       Fetch a batch of URLs and print one outcome per URL
  search      Run a web search and print the result links
  research    Search, fetch the top results and print their text
  validate    Validate configuration file
  cache       Inspect or purge the outcome cache (list, purge)
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'webfetch <command> -h' for command-specific help.`)
}

// loadConfig loads the config file. An empty path yields the built-in defaults.
func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return &config.AppConfig{}, nil
	}
	return config.Load(path)
}

// setupLogger creates a configured logrus.Logger with the given log level.
// Logs go to stderr so stdout carries only command output.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}

	return log
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) *config.AppConfig {
	if configFile != "" {
		log.Infof("Loading configuration from %s", configFile)
	}
	appCfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	appWarnings, err := appCfg.Validate()
	for _, w := range appWarnings {
		log.Debug(w)
	}
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	return appCfg
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, log *logrus.Logger) {
	if addr != "" {
		go func() {
			log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}
}

// startMetrics serves Prometheus metrics until ctx ends, if addr is non-empty.
func startMetrics(ctx context.Context, addr string, log *logrus.Logger) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr, log.WithField("component", "metrics")); err != nil {
			log.Errorf("Metrics server error: %v", err)
		}
	}()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. A second signal
// forces exit.
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Cancelling outstanding fetches...", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		sig := <-sigChan
		log.Warnf("Received second signal: %v. Forcing exit.", sig)
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// openCache opens the on-disk outcome cache when it is enabled in config.
func openCache(ctx context.Context, appCfg *config.AppConfig, log *logrus.Logger) (*storage.BadgerCache, error) {
	if !appCfg.Cache.Enabled {
		return nil, nil
	}
	cache, err := storage.NewBadgerCache(appCfg.Cache.Dir, appCfg.Cache.TTL, log.WithField("component", "cache"))
	if err != nil {
		return nil, err
	}
	go cache.RunGC(ctx, 10*time.Minute)
	return cache, nil
}

// readURLs reads one URL per line, skipping blanks and '#' comments.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// collectURLs merges positional URLs with those from urlsFile ("-" for stdin).
func collectURLs(args []string, urlsFile string, stdin io.Reader) ([]string, error) {
	urls := append([]string(nil), args...)
	if urlsFile == "" {
		return urls, nil
	}
	var r io.Reader = stdin
	if urlsFile != "-" {
		f, err := os.Open(urlsFile)
		if err != nil {
			return nil, fmt.Errorf("open urls file: %w", err)
		}
		defer f.Close()
		r = f
	}
	fromFile, err := readURLs(r)
	if err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	return append(urls, fromFile...), nil
}

// runFetch handles the fetch subcommand
func runFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (defaults apply when empty)")
	urlsFile := fs.String("urls-file", "", "File with one URL per line ('-' for stdin)")
	deadline := fs.Duration("deadline", 0, "Overall batch deadline (overrides fetch.batch_timeout)")
	format := fs.String("format", "json", "Output format (json, text)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics_addr)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: webfetch fetch [options] [url...]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  webfetch fetch https://go.dev/doc/ https://pkg.go.dev/net/http\n")
		fmt.Fprintf(os.Stderr, "  webfetch fetch -config config.yaml -urls-file urls.txt -deadline 30s\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	urls, err := collectURLs(fs.Args(), *urlsFile, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no URLs given")
		fs.Usage()
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	if *metricsAddr != "" {
		appCfg.MetricsAddr = *metricsAddr
	}

	ctx, stop := signalContext(log)
	defer stop()
	startPprof(*pprofAddr, log)
	startMetrics(ctx, appCfg.MetricsAddr, log)

	cache, err := openCache(ctx, appCfg, log)
	if err != nil {
		log.Fatalf("Failed to open outcome cache: %v", err)
	}
	var outcomeCache storage.OutcomeCache
	if cache != nil {
		defer cache.Close()
		outcomeCache = cache
	}

	entry := log.WithField("component", "batch")
	coordinator, err := batch.NewCoordinator(*appCfg, batch.Options{
		Extractor: extract.NewDefaultExtractor(appCfg.Extract, entry),
		Cache:     outcomeCache,
	}, entry)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	os.Exit(doFetch(ctx, coordinator, urls, batch.RunOptions{Deadline: *deadline}, *format, os.Stdout, os.Stderr))
}

// doFetch runs one batch and writes the result. Returns exit code (0 = every URL
// produced content or was skipped, 2 = some fetches failed, 1 = error).
func doFetch(ctx context.Context, coordinator *batch.Coordinator, urls []string, opts batch.RunOptions, format string, stdout, stderr io.Writer) int {
	result, err := coordinator.Run(ctx, urls, opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	switch format {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case "text":
		writeTextResult(stdout, result)
	default:
		fmt.Fprintf(stderr, "Error: unknown format %q (supported: json, text)\n", format)
		return 1
	}

	if result.Counts().Failed > 0 {
		return 2
	}
	return 0
}

// writeTextResult prints one line per URL followed by a summary line.
func writeTextResult(w io.Writer, result models.BatchResult) {
	for _, item := range result.Items {
		o := item.Outcome
		detail := ""
		switch o.Status {
		case models.OutcomeSuccess:
			detail = fmt.Sprintf("%s %d bytes", o.ContentType, o.ByteSize)
			if o.Extracted != nil && o.Extracted.Title != "" {
				detail += fmt.Sprintf(" %q", o.Extracted.Title)
			}
		case models.OutcomeSkipped:
			detail = o.SkipReason.String()
		case models.OutcomeFailed:
			detail = fmt.Sprintf("%s: %s", o.ErrorKind, o.Err)
		}
		fmt.Fprintf(w, "[%d] %-7s %s (%d attempt(s), %v) %s\n",
			item.Index, o.Status, item.URL, o.Attempts, o.Elapsed.Round(time.Millisecond), detail)
	}
	c := result.Counts()
	fmt.Fprintf(w, "%d success, %d skipped, %d failed in %v\n",
		c.Success, c.Skipped, c.Failed, result.Elapsed.Round(time.Millisecond))
}

// runSearch handles the search subcommand
func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (defaults apply when empty)")
	maxResults := fs.Int("max-results", 0, "Maximum results (defaults to search.max_results)")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: webfetch search [options] <query>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "Error: a query is required")
		fs.Usage()
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	provider, err := search.NewProvider(appCfg.Search, nil)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	count := appCfg.Search.MaxResults
	if *maxResults > 0 {
		count = *maxResults
	}

	ctx, stop := signalContext(log)
	defer stop()
	os.Exit(doSearch(ctx, provider, query, count, os.Stdout, os.Stderr))
}

// doSearch runs one search and prints the results. Returns exit code.
func doSearch(ctx context.Context, provider search.Provider, query string, count int, stdout, stderr io.Writer) int {
	resp, err := provider.Search(ctx, search.Request{Query: query, Count: count})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if resp.Answer != "" {
		fmt.Fprintf(stdout, "Answer: %s\n\n", resp.Answer)
	}
	if resp.NoResults {
		fmt.Fprintln(stdout, "No results.")
		return 0
	}
	for i, r := range resp.Results {
		fmt.Fprintf(stdout, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(stdout, "   %s\n", r.Description)
		}
	}
	return 0
}

// runResearch handles the research subcommand
func runResearch(args []string) {
	fs := flag.NewFlagSet("research", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (defaults apply when empty)")
	maxURLs := fs.Int("max-urls", 0, "URLs to fetch per query (defaults to search.max_results)")
	maxChars := fs.Int("max-chars", 4000, "Truncate each source to this many characters (0 = no limit)")
	format := fs.String("format", "markdown", "Output format (markdown, json)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: webfetch research [options] <query> [query...]\n\nEach argument is researched as a separate query, in parallel.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one query is required")
		fs.Usage()
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	ctx, stop := signalContext(log)
	defer stop()
	startMetrics(ctx, appCfg.MetricsAddr, log)

	provider, err := search.NewProvider(appCfg.Search, nil)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	entry := log.WithField("component", "research")
	coordinator, err := batch.NewCoordinator(*appCfg, batch.Options{
		Extractor: extract.NewDefaultExtractor(appCfg.Extract, entry),
	}, entry)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	filters := search.Filters{MaxURLs: appCfg.Search.MaxResults, ExcludeDomains: appCfg.Search.ExcludeDomains}
	if *maxURLs > 0 {
		filters.MaxURLs = *maxURLs
	}
	orchestrator := orchestrate.NewOrchestrator(provider, coordinator, filters, entry)
	results := orchestrator.Run(ctx, fs.Args())

	os.Exit(writeResearch(results, *format, *maxChars, os.Stdout, os.Stderr))
}

// writeResearch prints research results. Returns 1 if any query failed.
func writeResearch(results []orchestrate.QueryResult, format string, maxChars int, stdout, stderr io.Writer) int {
	switch format {
	case "markdown":
		for i, r := range results {
			if i > 0 {
				fmt.Fprintln(stdout)
			}
			fmt.Fprint(stdout, orchestrate.FormatMarkdown(r, maxChars))
		}
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	default:
		fmt.Fprintf(stderr, "Error: unknown format %q (supported: markdown, json)\n", format)
		return 1
	}

	for _, r := range results {
		if r.Err() != nil {
			return 1
		}
	}
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: webfetch validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	if _, err := search.NewProvider(appCfg.Search, nil); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	f := appCfg.Fetch
	fmt.Fprintf(stdout, "OK: max_concurrent=%d max_per_host=%d max_attempts=%d batch_timeout=%v\n",
		f.MaxConcurrent, f.MaxPerHost, f.MaxAttempts, f.BatchTimeout)
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runCache handles the cache subcommand
func runCache(args []string) {
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: webfetch cache [options] <list|purge>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	if !appCfg.Cache.Enabled {
		fmt.Fprintln(os.Stderr, "Error: cache.enabled is false in config")
		os.Exit(1)
	}

	cache, err := storage.NewBadgerCache(appCfg.Cache.Dir, appCfg.Cache.TTL, log.WithField("component", "cache"))
	if err != nil {
		log.Fatalf("Failed to open outcome cache: %v", err)
	}
	code := doCache(context.Background(), cache, fs.Arg(0), os.Stdout, os.Stderr)
	cache.Close()
	os.Exit(code)
}

// doCache runs a cache maintenance action. Returns exit code.
func doCache(ctx context.Context, cache storage.CacheAdmin, action string, stdout, stderr io.Writer) int {
	switch action {
	case "list":
		keys, err := cache.Keys(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		for _, k := range keys {
			fmt.Fprintln(stdout, k)
		}
		fmt.Fprintf(stdout, "%d cached URL(s)\n", len(keys))
	case "purge":
		n, err := cache.Len()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if err := cache.Purge(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Purged %d cached URL(s)\n", n)
	default:
		fmt.Fprintf(stderr, "Unknown cache action: %s (supported: list, purge)\n", action)
		return 1
	}
	return 0
}
