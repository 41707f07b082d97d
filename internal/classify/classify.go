// Package classify reduces the candidate item set to the subset matching the
// user's interest profile, using the language service as an oracle over
// batched title lists.
package classify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"skim/internal/core"
	"skim/internal/logger"
	"skim/internal/parser"
)

const filterInstructions = "You are a smart assistant that filters article titles " +
	"based on the user's interest tags. Exclude titles that are advertisements, " +
	"including promotions, sales, sponsored content, and any other form of paid " +
	"content. Reply with one \"<id>: <title>\" line per title that matches the " +
	"interest tags."

// CompletionClient is the slice of the language service the stage needs.
type CompletionClient interface {
	Complete(ctx context.Context, model, instructions, input string, temperature float32) (string, error)
}

// Stage batches candidate titles and asks the service which are relevant.
type Stage struct {
	client      CompletionClient
	model       string
	batchSize   int
	temperature float32
}

// Result reports what one classification pass kept and lost.
type Result struct {
	Relevant     []core.Item // Relevant items, first occurrence order, deduped by id
	FailedChunks int         // Chunks excluded because their request failed
	LostItems    int         // Items excluded because their chunk failed
}

// NewStage creates a classification stage.
func NewStage(client CompletionClient, model string, batchSize int, temperature float32) *Stage {
	return &Stage{
		client:      client,
		model:       model,
		batchSize:   batchSize,
		temperature: temperature,
	}
}

// Filter returns the subset of items relevant to the interest tags. Chunks
// are processed sequentially; a failed chunk excludes only its own items and
// is reported in the result rather than aborting the run. The output is
// always a subset of the input: ids the service invents are dropped, and
// each item appears at most once.
func (s *Stage) Filter(ctx context.Context, items []core.Item, tags []string) (Result, error) {
	result := Result{}
	if len(items) == 0 {
		return result, nil
	}

	byID := make(map[string]core.Item, len(items))
	for _, item := range items {
		byID[strconv.Itoa(item.ID)] = item
	}

	seen := make(map[int]bool, len(items))
	for start := 0; start < len(items); start += s.batchSize {
		end := start + s.batchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		response, err := s.client.Complete(ctx, s.model, filterInstructions, buildPrompt(chunk, tags), s.temperature)
		if err != nil {
			logger.Warn("Classification chunk failed, excluding its items",
				"chunk_start", start, "chunk_size", len(chunk), "error", err.Error())
			result.FailedChunks++
			result.LostItems += len(chunk)
			continue
		}

		for _, id := range parser.ExtractIDs(response) {
			item, ok := byID[id]
			if !ok {
				logger.Debug("Dropping unknown id from classification response", "id", id)
				continue
			}
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			result.Relevant = append(result.Relevant, item)
		}
	}

	logger.Info("Classification finished",
		"candidates", len(items),
		"relevant", len(result.Relevant),
		"failed_chunks", result.FailedChunks,
		"lost_items", result.LostItems,
	)

	return result, nil
}

func buildPrompt(chunk []core.Item, tags []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filter titles by interest tags: %s\n\nTitles:\n", strings.Join(tags, ", "))
	for _, item := range chunk {
		fmt.Fprintf(&b, "%d: %s\n", item.ID, item.Title)
	}
	return b.String()
}
