package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seqscribe/seqscribe/internal/api"
	"github.com/seqscribe/seqscribe/internal/buffer"
	"github.com/seqscribe/seqscribe/internal/config"
	"github.com/seqscribe/seqscribe/internal/merge"
	"github.com/seqscribe/seqscribe/internal/storage/sqlite"
	"github.com/seqscribe/seqscribe/internal/transcriber"
	"github.com/seqscribe/seqscribe/internal/watcher"
	"github.com/seqscribe/seqscribe/internal/websocket"
	"github.com/seqscribe/seqscribe/internal/worker"
	"github.com/seqscribe/seqscribe/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("Fatal error", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("Starting seqscribe",
		logger.String("inbox", cfg.Pipeline.InboxDir),
		logger.Int("workers", cfg.Pipeline.Workers),
		logger.String("backend", cfg.Transcriber.Backend))

	for _, dir := range []string{
		cfg.Pipeline.InboxDir,
		cfg.Pipeline.ProcessedDir,
		cfg.Pipeline.FailedDir,
		cfg.Pipeline.ArchiveDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Processing history is optional; the pipeline runs without it.
	var history *sqlite.HistoryStorage
	if cfg.Storage.Enabled {
		var err error
		history, err = sqlite.Open(cfg.Storage.Path, log)
		if err != nil {
			return fmt.Errorf("failed to open history storage: %w", err)
		}
		defer history.Close()
	}

	wsServer := websocket.NewServer(log)
	defer wsServer.Close()

	stt, err := transcriber.New(cfg.Transcriber, log)
	if err != nil {
		return fmt.Errorf("failed to create transcriber: %w", err)
	}

	results := buffer.New()

	job := worker.NewJob(stt, results, history, wsServer, worker.JobConfig{
		ProcessedDir:     cfg.Pipeline.ProcessedDir,
		FailedDir:        cfg.Pipeline.FailedDir,
		ArchiveOriginals: cfg.Pipeline.ArchiveOriginals,
	}, log)

	pool := worker.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueCapacity, job, log)
	pool.Start()

	coordinator := merge.New(ctx, merge.Config{
		ArchiveDir:  cfg.Pipeline.ArchiveDir,
		Interval:    cfg.Pipeline.MergeInterval(),
		StartSeq:    cfg.Pipeline.StartSeq,
		MinFreeDisk: cfg.Pipeline.MinFreeDiskBytes(),
	}, results, history, wsServer, log)
	if err := coordinator.Start(); err != nil {
		return fmt.Errorf("failed to start merge coordinator: %w", err)
	}

	watch := watcher.New(ctx, watcher.Config{
		InboxDir:     cfg.Pipeline.InboxDir,
		Extensions:   cfg.Pipeline.Extensions,
		PollInterval: cfg.Pipeline.PollInterval(),
		MinFreeDisk:  cfg.Pipeline.MinFreeDiskBytes(),
	}, pool, log)
	if err := watch.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	var httpServer *http.Server
	if cfg.Server.Enabled {
		handler := api.NewHandler(watch, pool, coordinator, results, history, wsServer, cfg.Pipeline.InboxDir, log)
		router := api.NewRouter(handler, cfg, log)
		httpServer = &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: router.Routes(),
		}
		go func() {
			log.Info("Starting HTTP server", logger.String("addr", cfg.Server.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error", logger.Error(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutdown signal received")

	// Stop intake first, then let in-flight jobs finish, then run the
	// final merge so completed results reach the archive.
	watch.Stop()
	pool.Stop()
	coordinator.Stop()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server shutdown", logger.Error(err))
		}
	}

	log.Info("Shutdown complete")
	return nil
}
