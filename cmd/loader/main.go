package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/markjosims/hCPC/internal/catalog"
	"github.com/markjosims/hCPC/internal/config"
	"github.com/markjosims/hCPC/internal/metrics"
	"github.com/markjosims/hCPC/internal/packet"
	"github.com/markjosims/hCPC/internal/planner"
	"github.com/markjosims/hCPC/internal/sampler"
	"github.com/markjosims/hCPC/internal/server"
	"github.com/markjosims/hCPC/internal/stream"
	"github.com/markjosims/hCPC/internal/wave"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configPathEnv     = "HCPC_CONFIG"
	serviceName       = "hcpc-loader"
)

func main() {
	// A .env file may carry HCPC_CONFIG in development setups.
	_ = godotenv.Load()

	defaultConfig := defaultConfigPath
	if env := os.Getenv(configPathEnv); env != "" {
		defaultConfig = env
	}
	configPath := flag.String("config", defaultConfig, "Path to configuration file")
	epochs := flag.Int("epochs", 1, "Number of passes over the corpus")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("config_path", *configPath),
		slog.Int("epochs", *epochs),
	)
	logger.Info("Configuration loaded",
		slog.Any("corpus_roots", cfg.Corpus.Roots),
		slog.Int("size_window", cfg.Window.SizeWindow),
		slog.Int("batch_size", cfg.Window.BatchSize),
		slog.String("sampler", cfg.Window.Sampler),
		slog.Int64("max_package_frames", cfg.Stream.MaxPackageFrames),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	cat, err := catalog.Discover(logger, cfg.Corpus.Roots, cfg.Corpus.Extension,
		cfg.Corpus.SpeakerLevel, cfg.Corpus.CachePath)
	if err != nil {
		logger.Error("Failed to build corpus catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	appMetrics.RecordDiscovery(len(cat.Refs), cat.FromCache)

	refs := cat.Refs
	if len(cfg.Filter.Paths) > 0 {
		refs, err = catalog.Filter(cfg.Filter.Paths, refs, cfg.Filter.Percentage, cfg.Filter.TotalNum)
		if err != nil {
			logger.Error("Failed to filter catalog", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Catalog filtered",
			slog.Int("kept", len(refs)),
			slog.Int("discovered", len(cat.Refs)),
		)
		if len(refs) == 0 {
			logger.Error("Filter files matched no sequences")
			os.Exit(1)
		}
	}

	loadCfg := packet.Config{
		SizeWindow: cfg.Window.SizeWindow,
		NSpeakers:  cat.NSpeakers(),
		Workers:    cfg.Stream.LoadWorkers,
	}
	if cfg.Labels.PhonePath != "" {
		loadCfg.Phone, err = catalog.ParseLabels(cfg.Labels.PhonePath)
		if err != nil {
			logger.Error("Failed to parse phone labels", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Phone labels loaded",
			slog.Int("sequences", len(loadCfg.Phone.BySeq)),
			slog.Int("classes", loadCfg.Phone.NumClasses),
			slog.Int("step", loadCfg.Phone.Step),
		)
	}
	if cfg.Labels.WordPath != "" {
		loadCfg.Word, err = catalog.ParseLabels(cfg.Labels.WordPath)
		if err != nil {
			logger.Error("Failed to parse word labels", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Word labels loaded",
			slog.Int("sequences", len(loadCfg.Word.BySeq)),
			slog.Int("classes", loadCfg.Word.NumClasses),
			slog.Int("step", loadCfg.Word.Step),
		)
	}

	p, err := planner.New(logger, cfg.Stream.MaxPackageFrames, cfg.Stream.ProbeWorkers,
		wave.FrameCount, probeProgress())
	if err != nil {
		logger.Error("Failed to create planner", slog.String("error", err.Error()))
		os.Exit(1)
	}

	str, err := stream.New(ctx, logger, appMetrics, p, refs, loadCfg, wave.Decode)
	if err != nil {
		logger.Error("Failed to open stream", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer str.Close()

	kind, err := sampler.ParseKind(cfg.Window.Sampler)
	if err != nil {
		logger.Error("Invalid sampler", slog.String("error", err.Error()))
		os.Exit(1)
	}
	loader, err := stream.NewLoader(logger, appMetrics, str, stream.LoaderConfig{
		SizeWindow:   cfg.Window.SizeWindow,
		BatchSize:    cfg.Window.BatchSize,
		Kind:         kind,
		RandomOffset: cfg.Window.RandomOffset,
		Seed:         cfg.Window.Seed,
	})
	if err != nil {
		logger.Error("Failed to create loader", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Loader ready",
		slog.Int("packages", str.PackageCount()),
		slog.Int64("total_frames", str.TotalFrames()),
		slog.Int("batches_per_epoch", loader.Len()),
	)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, loader, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Cancel the run on SIGINT/SIGTERM so the epoch loop exits cleanly.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	for epoch := 0; epoch < *epochs; epoch++ {
		err := loader.Run(ctx, func(b stream.Batch) error {
			// Batches are consumed by the training process; here we only
			// drive the pipeline.
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Run cancelled")
				break
			}
			logger.Error("Epoch failed", slog.Int("epoch", epoch), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	stats := loader.Stats()
	logger.Info("Final loader statistics",
		slog.Int("epochs", stats.Epoch),
		slog.Uint64("batches_yielded", stats.BatchesYielded),
		slog.Uint64("windows_yielded", stats.WindowsYielded),
	)

	logger.Info("Service stopped")
}

// probeProgress renders a terminal progress bar over the length probe of
// each planning pass. The planner calls it from a single goroutine.
func probeProgress() planner.ProgressFunc {
	var (
		progress *mpb.Progress
		bar      *mpb.Bar
	)
	return func(done, total int) {
		if bar == nil {
			progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
			bar = progress.AddBar(int64(total),
				mpb.PrependDecorators(
					decor.Name("Probing: "),
					decor.CountersNoUnit("%d / %d"),
				),
				mpb.AppendDecorators(
					decor.Percentage(),
				),
			)
		}
		bar.SetCurrent(int64(done))
		if done == total {
			progress.Wait()
			bar, progress = nil, nil
		}
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
