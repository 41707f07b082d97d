// Package handlers builds the real collaborators and runs pipeline commands.
package handlers

import (
	"context"
	"fmt"

	"skim/internal/classify"
	"skim/internal/config"
	"skim/internal/feeds"
	"skim/internal/fetch"
	"skim/internal/llm"
	"skim/internal/logger"
	"skim/internal/pipeline"
	"skim/internal/render"
	"skim/internal/store"
	"skim/internal/summarize"
)

// HandleRun wires the production collaborators and executes one pipeline run.
func HandleRun(ctx context.Context, cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(cfg.Feeds.URLs) == 0 {
		return fmt.Errorf("no feed URLs configured; set feeds.urls in the config file")
	}

	seenStore, err := store.NewStore(cfg.Output.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open fingerprint store: %w", err)
	}
	defer func() {
		if err := seenStore.Close(); err != nil {
			logger.Warn("Failed to close fingerprint store", "error", err.Error())
		}
	}()

	client, err := llm.NewClient(ctx, cfg.AI.APIKey)
	if err != nil {
		return err
	}

	feedTimeout, _ := cfg.Feeds.TimeoutDuration()
	callTimeout, _ := cfg.AI.TimeoutDuration()
	backoffMin, _ := cfg.Pipeline.BackoffMinDuration()
	backoffMax, _ := cfg.Pipeline.BackoffMaxDuration()

	pool := summarize.NewPool(
		client,
		fetch.NewFetcher(feedTimeout, cfg.Feeds.UserAgent),
		summarize.Options{
			Model:          cfg.AI.SummaryModel,
			Language:       cfg.AI.Language,
			Temperature:    cfg.AI.Temperature,
			UnitSize:       cfg.Pipeline.UnitSize,
			MaxUnits:       config.MaxConcurrentUnits,
			ShortThreshold: cfg.Pipeline.ShortThreshold,
			StubMarkers:    cfg.Pipeline.StubMarkers,
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			BackoffMin:     backoffMin,
			BackoffMax:     backoffMax,
			FallbackLength: cfg.Pipeline.FallbackLength,
			CallTimeout:    callTimeout,
		},
	)

	p := pipeline.New(
		cfg,
		feeds.NewManager(feedTimeout, cfg.Feeds.UserAgent),
		seenStore,
		classify.NewStage(client, cfg.AI.FilterModel, cfg.Pipeline.BatchSize, 0.3),
		pool,
		render.DailySink{Dir: cfg.Output.ReportsDir},
	)

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if summary.ReportPath != "" {
		fmt.Printf("Daily report written to %s (%d items)\n", summary.ReportPath, summary.Fragments)
	} else {
		fmt.Println("No new items to report.")
	}
	return nil
}
