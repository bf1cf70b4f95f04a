// Package main is the assethub CLI entry point.
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

	"github.com/hyperjump/assethub/internal/cli"
	"github.com/hyperjump/assethub/internal/config"
	"github.com/hyperjump/assethub/internal/ingest"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/server"
	"github.com/hyperjump/assethub/internal/video"
	"github.com/hyperjump/assethub/internal/watcher"
	"github.com/hyperjump/assethub/internal/worker"
	"github.com/hyperjump/assethub/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/assethub/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml in the
// current directory wins so that running from a checkout picks up the local config.
// It returns the config and the path actually loaded.
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
	case "worker":
		runWorker()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "retry":
		runRetry()
	case "init-buckets":
		runInitBuckets()
	case "probe":
		runProbe()
	case "version", "--version", "-v":
		fmt.Printf("assethub version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// bootstrap loads config, builds the logger and wires every component.
func bootstrap(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, resolved, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	withWorkers := fs.Bool("workers", false, "run the vectorization pool in this process (overrides server.run_workers)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger, components := bootstrap(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []server.Option{server.WithAppConfig(resolvedConfigPath, cfg)}

	var watchSvc *watcher.Watcher
	if cfg.Watch.Enabled || len(cfg.Watch.Directories) > 0 {
		patterns := cfg.Watch.Patterns
		if len(patterns) == 0 {
			patterns = []string{watcher.ExtensionPattern(ingest.SupportedExtensions())}
		}
		var err error
		watchSvc, err = watcher.New(
			cfg.Watch.Directories,
			watcher.IngestCallback(ctx, components.Gate, logger),
			watcher.WithLogger(logger),
			watcher.WithDebounce(cfg.Watch.Debounce),
			watcher.WithPatterns(patterns...),
			watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		)
		if err != nil {
			logger.Fatal("Failed to create watcher", zap.Error(err))
		}
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		watchSvc.SyncExistingFiles()
		opts = append(opts, server.WithWatch(watchSvc))
	}

	if cfg.Server.RunWorkers || *withWorkers {
		components.Worker.Start(ctx)
		defer components.Worker.Stop()
		logger.Info("vectorization workers started", zap.Int("workers", cfg.Queue.Workers))
	}

	srv := server.NewServer(components.Gate, components.Assets, components.Search, &cfg.Server, logger, opts...)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	waitForSignal()
	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runWorker() {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	workers := fs.Int("workers", 0, "number of job slots (default from queue.workers)")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger, components := bootstrap(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	if err := cfg.CheckStandaloneWorker(); err != nil {
		logger.Fatal("Worker cannot run in its own process", zap.Error(err))
	}
	if *workers > 0 {
		components.Worker = newWorker(cfg, components, logger, *workers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	components.Worker.Start(ctx)
	logger.Info("worker started", zap.String("queue", cfg.Queue.Type))

	waitForSignal()
	logger.Info("Shutting down...")
	cancel()
	components.Worker.Stop()
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: assethub ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, _, logger, components := bootstrap(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	failed := false
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stat %s: %v\n", path, err)
			failed = true
			continue
		}
		if info.IsDir() {
			res, err := components.Gate.IngestDirectory(ctx, path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Ingesting %s failed: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("%s: %d ingested, %d duplicates, %d failed\n", path, res.Ingested, res.Duplicates, res.Failed)
			continue
		}
		asset, err := components.Gate.IngestFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingesting %s failed: %v\n", path, err)
			failed = true
			continue
		}
		_ = cli.WriteAsset(os.Stdout, asset, format)
	}
	if cfg.Queue.Type == "memory" {
		// Jobs on a memory queue die with this process, so vectorize before exiting.
		counts := components.drainReady(ctx)
		fmt.Printf("Vectorized: %d completed, %d failed, %d awaiting retry\n",
			counts[worker.OutcomeCompleted], counts[worker.OutcomeFailed], counts[worker.OutcomeRetried])
	}
	if failed {
		components.Close()
		os.Exit(1)
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: assethub search [flags] <text>\n\n")
	fmt.Fprintf(fs.Output(), "Text is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  assethub search sunset over the sea
  assethub search --type video "dog catching a frisbee"
  assethub search --image ./reference.jpg --top-k 5
  assethub search --output json red car
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front so that flag.Parse sees them. The flag package stops at the first
// non-flag argument, so `assethub search "red car" -top-k 5` would otherwise leave
// -top-k unparsed.
func searchArgsReorder(args []string) []string {
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

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = query the stores directly)")
	topK := fs.Int("top-k", 0, "number of results (default from search.default_top_k)")
	assetType := fs.String("type", "", "restrict results to image or video")
	imagePath := fs.String("image", "", "search by a reference image instead of text")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	text := buildSearchQuery(fs.Args())
	if text == "" && *imagePath == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	typ, err := models.ParseAssetType(*assetType)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query := &models.SearchQuery{Text: text, TopK: *topK, AssetType: typ}
	if *imagePath != "" {
		query.Text = ""
		query.Image, err = os.ReadFile(*imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
			os.Exit(1)
		}
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// The server holds the bleve and sqlite locks, so go through its API.
		response, err = searchViaHTTP(*serverURL, query, filepath.Base(*imagePath))
	} else {
		_, _, logger, components := bootstrap(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		response, err = components.Search.Search(context.Background(), query)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery, imageName string) (*models.SearchResponse, error) {
	var resp *http.Response
	var err error
	if len(query.Image) > 0 {
		body, contentType, berr := imageSearchBody(query, imageName)
		if berr != nil {
			return nil, berr
		}
		resp, err = http.Post(serverURL+"/api/v1/search/image", contentType, body)
	} else {
		body, merr := json.Marshal(query)
		if merr != nil {
			return nil, merr
		}
		resp, err = http.Post(serverURL+"/api/v1/search/text", "application/json", bytes.NewReader(body))
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runRetry() {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use the catalog and queue directly)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: assethub retry [flags] <asset-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	if *serverURL != "" {
		resp, err := http.Post(*serverURL+"/api/v1/assets/"+id+"/vectorize", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Retry failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Vectorization requeued: %s\n", id)
		return
	}

	_, _, logger, components := bootstrap(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	if _, err := components.Assets.Retry(context.Background(), id); err != nil {
		fmt.Fprintf(os.Stderr, "Retry failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Vectorization requeued: %s\n", id)
}

func runInitBuckets() {
	fs := flag.NewFlagSet("init-buckets", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	blobs, err := newObjectStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create object store: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	names := bucketsFromConfig(cfg).Names()
	if err := blobs.EnsureBuckets(ctx, names...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create buckets: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Buckets ready: %s\n", strings.Join(names, ", "))
}

func runProbe() {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: assethub probe [flags] <video>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// probe works without a config file; defaults match config.ApplyDefaults.
	vc := config.VideoConfig{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe", FrameInterval: 2.0, MinFrames: 5, MaxFrames: 50}
	if cfg, _, err := loadConfig(*configPath); err == nil {
		vc = cfg.Video
	}
	info, err := video.NewFFmpeg(vc.FFmpegPath, vc.FFprobePath).Probe(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Probe failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteProbe(os.Stdout, fs.Arg(0), info, format)
	policy := video.Policy{Interval: vc.FrameInterval, MinFrames: vc.MinFrames, MaxFrames: vc.MaxFrames}
	if format == cli.OutputText && info.FPS > 0 {
		step := video.IntervalFrames(info.FPS, policy.Interval)
		fmt.Printf("  sampling:   every %d frames (%.1fs), %d to %d keyframes\n", step, policy.Interval, policy.MinFrames, policy.MaxFrames)
	}
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}

func printUsage() {
	fmt.Println(`assethub - Media asset library with visual similarity search

Usage:
  assethub server [flags]             Start the HTTP API (and optionally workers and drop folders)
  assethub worker [flags]             Run the vectorization worker pool
  assethub ingest [flags] <path>...   Ingest files or directories
  assethub search [flags] <text>      Search by text or reference image
  assethub retry [flags] <asset-id>   Requeue vectorization for an asset
  assethub init-buckets [flags]       Create the object store buckets
  assethub probe [flags] <video>      Show stream metadata and the sampling plan
  assethub version                    Show version
  assethub help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/assethub/config.yaml, or ./config.yaml when present)

Server Flags:
  --debug            Enable debug logging
  --workers          Run the vectorization pool in-process

Worker Flags:
  --workers int      Number of job slots (default from queue.workers)

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to query the stores directly.
  --top-k int        Number of results
  --type string      image or video
  --image string     Reference image path
  --output string    text or json

Examples:
  assethub init-buckets
  assethub server --workers
  assethub ingest ~/Pictures/holiday
  assethub search "snowy mountain at dawn"
  assethub search --image ./ref.jpg --type video
  assethub retry 3f0c9a52-8d0e-4f4e-9b8e-1a2b3c4d5e6f`)
}
