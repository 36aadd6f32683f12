package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Teichhofer/Marktview/config"
	"github.com/Teichhofer/Marktview/llm"
	"github.com/Teichhofer/Marktview/models"
	"github.com/Teichhofer/Marktview/scraper/marktde"
	"github.com/Teichhofer/Marktview/services"
	"github.com/Teichhofer/Marktview/storage"
	"github.com/Teichhofer/Marktview/utils"
)

func main() {
	loopFlag := flag.Bool("loop", false, "re-run the scrape periodically, skipping stored listings")
	clearFlag := flag.Bool("clear", false, "delete the collected output and logs, then exit")
	flag.Parse()

	logger := utils.NewLogger()
	cfg := config.Load()

	if err := run(cfg, logger, *loopFlag, *clearFlag); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *utils.Logger, loop, clearOnly bool) error {
	if clearOnly {
		if err := clearArtifacts(cfg, logger); err != nil {
			return fmt.Errorf("clearing artifacts: %w", err)
		}
		logger.Info("Artifacts cleared.")
		return nil
	}

	logger.Info("=== Marktview scraper starting ===")
	logger.Info("Config — start: %s", cfg.StartURL)
	logger.Info("Config — pages: %d | concurrency: %d | retries: %d | model: %s",
		cfg.MaxPages, cfg.MaxConcurrency, cfg.MaxRetries, cfg.LLMModel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening the listing store: %w", err)
	}
	defer store.Close()

	// The supervisor only manages backends on the default local endpoint;
	// anything else is treated as externally operated.
	var sup *llm.Supervisor
	if cfg.LLMEndpoint == llm.DefaultEndpoint {
		sup = llm.NewSupervisor(cfg.LLMEndpoint, cfg.LLMModel, cfg.OllamaBin, logger)
		defer sup.Stop()
	}

	var trafficWriter io.Writer
	traffic, err := openTrafficLog(cfg.LogDir)
	if err != nil {
		logger.Warn("LLM traffic log unavailable: %v", err)
	} else {
		defer traffic.Close()
		trafficWriter = traffic
	}

	client := llm.NewClient(cfg.LLMEndpoint, cfg.LLMModel,
		time.Duration(cfg.LLMTimeoutSec)*time.Second, sup, trafficWriter, logger)

	if loop {
		interval := time.Duration(cfg.LoopIntervalSec) * time.Second
		for {
			if err := runOnce(ctx, cfg, client, store, logger); err != nil {
				logger.Error("Scrape run failed: %v", err)
			}
			logger.Info("Next run in %v.", interval)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
	}

	return runOnce(ctx, cfg, client, store, logger)
}

// runOnce walks the site once, prints the dataset report, and optionally
// writes listing embeddings.
func runOnce(ctx context.Context, cfg *config.Config, client *llm.Client, store storage.ListingStore, logger *utils.Logger) error {
	scraper := marktde.New(cfg, client, store, logger)
	listings, err := scraper.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	reportSvc := services.NewReportService(logger)
	reportSvc.Print(reportSvc.Generate(listings))

	if cfg.EmbeddingsEnabled && len(listings) > 0 {
		writeEmbeddings(ctx, cfg, listings, logger)
	}

	logger.Info("Done. Output → %s", cfg.OutputPath)
	return nil
}

func writeEmbeddings(ctx context.Context, cfg *config.Config, listings []*models.Listing, logger *utils.Logger) {
	embedder := llm.NewEmbedder(cfg.EmbeddingsEndpoint, cfg.EmbeddingsModel,
		llm.DefaultEmbeddingsTimeout, logger)

	embedded, err := embedder.EmbedListings(ctx, listings)
	if err != nil {
		logger.Warn("Embeddings incomplete: %v", err)
	}
	if len(embedded) == 0 {
		return
	}

	records := make([]storage.EmbeddingRecord, 0, len(embedded))
	for _, e := range embedded {
		records = append(records, storage.EmbeddingRecord{
			ListingID: e.Listing.ListingID,
			Title:     e.Listing.Title,
			Embedding: e.Vector,
		})
	}
	if err := storage.WriteEmbeddings(cfg.EmbeddingsPath, records); err != nil {
		logger.Error("Writing embeddings failed: %v", err)
		return
	}
	logger.Info("%d embeddings written to %s", len(records), cfg.EmbeddingsPath)
}

// buildStore wires the CSV file and, when configured, the PostgreSQL mirror
// behind one ListingStore.
func buildStore(cfg *config.Config, logger *utils.Logger) (storage.ListingStore, error) {
	csvStore, err := storage.NewCSVStore(cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	if !cfg.PostgresEnabled {
		return csvStore, nil
	}

	pgStore, err := storage.NewPostgresStore(cfg.DSN())
	if err != nil {
		return nil, err
	}
	logger.Info("Mirroring listings into PostgreSQL")
	return storage.NewMultiStore(csvStore, pgStore), nil
}

func openTrafficLog(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "llm.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// clearArtifacts removes everything a run produces: the output file, the
// embeddings file, page dumps, the log dir, and the PostgreSQL mirror when
// one is configured.
func clearArtifacts(cfg *config.Config, logger *utils.Logger) error {
	targets := []string{cfg.OutputPath, cfg.EmbeddingsPath}
	if dumps, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.OutputPath), "dump_page_*.html")); err == nil {
		targets = append(targets, dumps...)
	}

	for _, target := range targets {
		err := os.Remove(target)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", target, err)
		}
		if err == nil {
			logger.Info("Removed %s", target)
		}
	}

	if err := os.RemoveAll(cfg.LogDir); err != nil {
		return fmt.Errorf("removing %s: %w", cfg.LogDir, err)
	}

	if cfg.PostgresEnabled {
		store, err := storage.NewPostgresStore(cfg.DSN())
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Clear(); err != nil {
			return err
		}
		logger.Info("Cleared the PostgreSQL listings table")
	}

	return nil
}
