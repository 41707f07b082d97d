// Package pipeline wires the stages together: feed ingestion, duplicate
// suppression, interest classification, concurrent summarization, and the
// daily report. Collaborators come in as interfaces so the whole flow runs
// against stubs in tests.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"skim/internal/classify"
	"skim/internal/config"
	"skim/internal/core"
	"skim/internal/logger"
	"skim/internal/render"
)

// FeedSource supplies candidate items with dense ids and fingerprints set.
type FeedSource interface {
	FetchAll(feedURLs []string) []core.Item
}

// SeenStore is the persistent fingerprint store.
type SeenStore interface {
	FilterNew(items []core.Item) ([]core.Item, int)
	MarkSeen(items []core.Item) error
}

// Classifier reduces candidates to the interest-relevant subset.
type Classifier interface {
	Filter(ctx context.Context, items []core.Item, tags []string) (classify.Result, error)
}

// Summarizer produces one fragment per item, batched by work unit.
type Summarizer interface {
	Run(ctx context.Context, items []core.Item) ([]core.UnitBatch, error)
}

// ReportSink persists a rendered report body.
type ReportSink interface {
	Append(content string) (path string, err error)
}

// Pipeline is one configured end-to-end run.
type Pipeline struct {
	cfg        *config.Config
	source     FeedSource
	store      SeenStore
	classifier Classifier
	summarizer Summarizer
	sink       ReportSink
}

// RunSummary reports what a run did.
type RunSummary struct {
	RunID        string
	Candidates   int    // Items discovered across all feeds
	Duplicates   int    // Items dropped by the fingerprint filter
	Relevant     int    // Items that survived classification (after the cap)
	FailedChunks int    // Classification chunks lost to request failures
	LostItems    int    // Items excluded because their chunk failed
	Fragments    int    // Fragments written to the report
	ReportPath   string // Path of the day's report file ("" when nothing was written)
}

// New creates a pipeline from its collaborators.
func New(cfg *config.Config, source FeedSource, store SeenStore, classifier Classifier, summarizer Summarizer, sink ReportSink) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		source:     source,
		store:      store,
		classifier: classifier,
		summarizer: summarizer,
		sink:       sink,
	}
}

// Run executes one complete pass. Only configuration errors (and report
// write failures) are fatal; per-item and per-chunk failures degrade inside
// their stages.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{RunID: uuid.NewString()}
	log := logger.Get().With("run_id", summary.RunID)

	if deadline, err := p.cfg.Pipeline.RunDeadlineDuration(); err == nil && deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	items := p.source.FetchAll(p.cfg.Feeds.URLs)
	summary.Candidates = len(items)
	if len(items) == 0 {
		log.Info("No items discovered, nothing to do")
		return summary, nil
	}

	fresh, duplicates := p.store.FilterNew(items)
	summary.Duplicates = duplicates
	log.Info("Filtered previously seen items", "candidates", len(items), "duplicates", duplicates)
	if len(fresh) == 0 {
		log.Info("No new items found")
		return summary, nil
	}

	// Every fetched item is marked seen now, relevant or not, so titles the
	// interest filter excludes are not reconsidered on the next run.
	if err := p.store.MarkSeen(items); err != nil {
		return summary, fmt.Errorf("failed to record fingerprints: %w", err)
	}

	result, err := p.classifier.Filter(ctx, fresh, p.cfg.Interests.Tags)
	if err != nil {
		return summary, fmt.Errorf("classification failed: %w", err)
	}
	summary.FailedChunks = result.FailedChunks
	summary.LostItems = result.LostItems

	relevant := result.Relevant
	if max := p.cfg.Pipeline.MaxItems; max > 0 && len(relevant) > max {
		log.Warn("Capping relevant items", "relevant", len(relevant), "max_items", max)
		relevant = relevant[:max]
	}
	summary.Relevant = len(relevant)
	if len(relevant) == 0 {
		log.Info("No items matched the interest tags")
		return summary, nil
	}

	batches, err := p.summarizer.Run(ctx, relevant)
	if err != nil {
		return summary, err
	}
	for _, batch := range batches {
		summary.Fragments += len(batch.Fragments)
	}

	path, err := p.sink.Append(render.RenderBatches(batches))
	if err != nil {
		return summary, fmt.Errorf("failed to write report: %w", err)
	}
	summary.ReportPath = path

	log.Info("Run complete",
		"candidates", summary.Candidates,
		"duplicates", summary.Duplicates,
		"relevant", summary.Relevant,
		"fragments", summary.Fragments,
		"report", summary.ReportPath,
	)

	return summary, nil
}
