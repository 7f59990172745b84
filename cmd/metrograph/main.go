package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"metrograph/internal/assembler"
	"metrograph/internal/cache"
	"metrograph/internal/config"
	"metrograph/internal/crawler"
	"metrograph/internal/domain"
	"metrograph/internal/expander"
	"metrograph/internal/ident"
	"metrograph/internal/resolver"
	"metrograph/pkg/wikidata"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		systemID   string
		stationIDs []string
		outDir     string
	)

	cmd := &cobra.Command{
		Use:          "metrograph",
		Short:        "Harvest a transit network from Wikidata into a normalized graph document",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), systemID, stationIDs, outDir)
		},
	}

	cmd.Flags().StringVar(&systemID, "system", "", "Wikidata id of the transport system, e.g. Q5503")
	cmd.Flags().StringArrayVar(&stationIDs, "station", nil, "Wikidata id of a seed station (repeatable)")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (overrides OUTPUT_DIR)")
	cmd.MarkFlagRequired("system")
	cmd.MarkFlagRequired("station")

	return cmd
}

func run(parent context.Context, systemID string, stationIDs []string, outDir string) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if outDir == "" {
		outDir = cfg.OutputDir
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var responseCache wikidata.ResponseCache
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without response cache", "error", err)
		} else {
			defer redisCache.Close()
			responseCache = redisCache
		}
	}

	client := wikidata.New(wikidata.Options{
		BaseURL:           cfg.WikidataAPIURL,
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Cache:             responseCache,
		CacheTTL:          cfg.CacheTTL,
		Logger:            logger,
	})

	seeds := make([]domain.EntityID, 0, len(stationIDs))
	for _, id := range stationIDs {
		seeds = append(seeds, domain.EntityID(id))
	}

	crawl := crawler.New(
		resolver.New(client, logger),
		expander.New(client, logger),
		ident.NewAssigner(),
		cfg.FetchConcurrency,
		logger,
	)

	start := time.Now()
	result, err := crawl.Crawl(ctx, domain.EntityID(systemID), seeds)
	if err != nil {
		var seedErr *crawler.SeedError
		if errors.As(err, &seedErr) {
			logger.Error("seed cannot be resolved", "role", seedErr.Role, "id", seedErr.ID, "error", seedErr.Err)
		} else {
			logger.Error("crawl failed", "error", err)
		}
		return err
	}

	doc, err := assembler.Assemble(result)
	if err != nil {
		logger.Error("graph assembly failed", "error", err)
		return err
	}

	if err := writeDocument(outDir, doc); err != nil {
		logger.Error("failed to write output", "error", err)
		return err
	}

	logger.Info("harvest completed",
		"system", doc.ID,
		"lines", len(doc.Lines),
		"stations", len(doc.Stations),
		"skipped", len(result.Diagnostics),
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)

	return nil
}

func writeDocument(outDir string, doc *domain.Document) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(outDir, doc.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
