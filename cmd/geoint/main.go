// Package main is the geoint CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/geoint/internal/cli"
	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/models"
	"github.com/hyperjump/geoint/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/geoint/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory takes precedence, and when neither file exists the built-in
// defaults are used. An explicit path that cannot be read is an error.
// Returns the config and the path that was loaded ("" for defaults).
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
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
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
	case "delete":
		runDelete()
	case "chat":
		runChat()
	case "detect":
		runDetect()
	case "detections":
		runDetections()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("geoint version %s\n", version)
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
	debug := fs.Bool("debug", false, "enable debug logging")
	skipIngest := fs.Bool("skip-ingest", false, "do not ingest the reports directories at startup")
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
		zap.String("retrieval_backend", cfg.Retrieval.Backend),
	)

	app, err := buildApp(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if !*skipIngest {
		ingestReportsDirs(ctx, app.Ingester, cfg.Ingest.ReportsDirs, logger)
	}
	if app.Watcher != nil {
		if err := app.Watcher.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	go func() {
		if err := app.Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = app.Server.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: geoint ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	format := mustOutputFormat(*outputFormat)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	backend, ingester, err := openIngester(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer backend.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	var results []models.IngestResult
	if info.IsDir() {
		results, err = ingester.IngestDirectory(ctx, path)
	} else {
		var res models.IngestResult
		res, err = ingester.IngestFile(ctx, path)
		if err == nil {
			results = append(results, res)
		}
	}
	if outErr := cli.WriteIngestResults(os.Stdout, results, format); outErr != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", outErr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: geoint delete [flags] <report-id>")
		os.Exit(1)
	}
	reportID := fs.Arg(0)
	if err := cli.NewClient(*serverURL).DeleteReport(context.Background(), reportID); err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Report deleted: %s\n", reportID)
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	contextWindow := fs.Int("context", 0, "number of report snippets to retrieve (0 = server default)")
	noDetections := fs.Bool("no-detections", false, "leave the latest detections out of the prompt")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	message := joinArgs(fs.Args())
	if message == "" {
		fmt.Println("Usage: geoint chat [flags] <message>")
		os.Exit(1)
	}
	format := mustOutputFormat(*outputFormat)

	req := models.ChatRequest{Message: message, ContextWindow: *contextWindow}
	if *noDetections {
		include := false
		req.IncludeDetections = &include
	}
	resp, err := cli.NewClient(*serverURL).Chat(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteChat(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDetect() {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	confidence := fs.Float64("confidence", 0.25, "minimum detection confidence (0-1)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: geoint detect [flags] <image>")
		os.Exit(1)
	}
	format := mustOutputFormat(*outputFormat)

	resp, err := cli.NewClient(*serverURL).Detect(context.Background(), fs.Arg(0), *confidence)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detect failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDetect(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDetections() {
	fs := flag.NewFlagSet("detections", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	summary := fs.Bool("summary", false, "ask the language model for a narrative summary")
	publish := fs.String("publish", "", "JSON detection payload to push as the current set")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustOutputFormat(*outputFormat)

	client := cli.NewClient(*serverURL)
	ctx := context.Background()
	if *publish != "" {
		resp, err := client.PublishDetections(ctx, *publish)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Publish failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteDetections(os.Stdout, resp.GeoJSON, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if *summary {
		resp, err := client.Summarize(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Summary failed: %v\n", err)
			os.Exit(1)
		}
		if format == cli.OutputJSON {
			_ = cli.WriteJSON(os.Stdout, resp)
			return
		}
		fmt.Printf("%s\n\n(%d detection(s))\n", strings.TrimSpace(resp.Summary), resp.Count)
		return
	}
	fc, err := client.LatestDetections(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detections failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDetections(os.Stdout, *fc, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustOutputFormat(*outputFormat)

	st, err := cli.NewClient(*serverURL).Status(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func mustOutputFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

// joinArgs joins positional args with spaces so multi-word messages work with or
// without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse sees them. Go's flag package stops at
// the first non-flag argument.
func argsReorder(args []string) []string {
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

func printUsage() {
	fmt.Println(`geoint - geospatial intelligence analyst assistant

Usage:
  geoint server [--config path] [--debug] [--skip-ingest]
                                         Start the HTTP server
  geoint ingest [--config path] <path>   Ingest a report file or directory
  geoint delete <report-id>              Delete an ingested report
  geoint chat <message>                  Ask the analyst assistant
  geoint detect [--confidence 0.25] <image>
                                         Run object detection on an image
  geoint detections [--summary]          Show the latest detections
  geoint detections --publish <file>     Push a detection payload as the current set
  geoint status                          Show service health and storage
  geoint version                         Show version

Client commands accept --server (default http://localhost:8080) and
--output text|json.

Examples:
  geoint ingest ./data/sample-reports
  geoint chat what vehicles were reported near the bridge
  geoint detect --confidence 0.4 scene.jpg
  geoint detections --summary
  geoint detections --publish feed.json`)
}
