// Package summarize runs the concurrent condensation stage: relevant items
// are partitioned into contiguous work units, one worker per unit, each
// calling the language service per item with bounded retry and backoff.
// Per-item failures never cross worker boundaries; they degrade to fallback
// summaries that stay visible in the report.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"skim/internal/core"
	"skim/internal/llm"
	"skim/internal/logger"
)

// FailureNotice is the summary used when the service fails for a reason
// other than rate limiting or input rejection. It is deliberately distinct
// from the truncated-content fallback so a reader can tell the two apart.
const FailureNotice = "Failed to summarize the article."

// ErrUnitCapExceeded is returned before any work starts when the item list
// would need more concurrent units than the pool supports.
var ErrUnitCapExceeded = errors.New("summarize: work unit count exceeds concurrency cap")

// CompletionClient is the slice of the language service the pool needs.
type CompletionClient interface {
	Complete(ctx context.Context, model, instructions, input string, temperature float32) (string, error)
}

// ContentFetcher retrieves full article text for stub bodies. It must not
// fail; missing content comes back as "".
type ContentFetcher interface {
	ArticleText(url string) string
}

// Options tunes the pool. All values come from configuration.
type Options struct {
	Model          string        // Summarization model id
	Language       string        // Output language for summaries
	Temperature    float32       // Sampling temperature
	UnitSize       int           // Items per work unit
	MaxUnits       int           // Concurrency cap on simultaneous units
	ShortThreshold int           // Content shorter than this (in runes) skips the service
	StubMarkers    []string      // Body substrings that mean the feed body is a stub
	MaxAttempts    int           // Service attempts per item before degrading
	BackoffMin     time.Duration // Lower bound of the randomized rate-limit backoff
	BackoffMax     time.Duration // Upper bound of the randomized rate-limit backoff
	FallbackLength int           // Rune length of truncated-content fallbacks
	CallTimeout    time.Duration // Per-call timeout for service requests (0 = none)
}

// Pool dispatches work units to parallel workers and collects their output.
type Pool struct {
	client  CompletionClient
	fetcher ContentFetcher
	opts    Options

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// NewPool creates a summarization pool.
func NewPool(client CompletionClient, fetcher ContentFetcher, opts Options) *Pool {
	return &Pool{
		client:  client,
		fetcher: fetcher,
		opts:    opts,
		sleep:   time.Sleep,
	}
}

// collector is the shared result sink. Workers append whole unit batches
// under the lock so a unit's fragments are never interleaved.
type collector struct {
	mu      sync.Mutex
	batches []core.UnitBatch
}

func (c *collector) add(batch core.UnitBatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch)
}

// Run summarizes all items and returns one batch per work unit, in worker
// completion order. Fragment order within a batch matches input order. The
// only error is the pre-start unit-cap check; everything after the fork is
// contained per item.
func (p *Pool) Run(ctx context.Context, items []core.Item) ([]core.UnitBatch, error) {
	if len(items) == 0 {
		return nil, nil
	}

	units := partition(items, p.opts.UnitSize)
	if len(units) > p.opts.MaxUnits {
		return nil, fmt.Errorf("%w: %d items at unit size %d need %d units, cap is %d",
			ErrUnitCapExceeded, len(items), p.opts.UnitSize, len(units), p.opts.MaxUnits)
	}

	logger.Info("Starting summarization", "items", len(items), "units", len(units))

	sink := &collector{}
	var wg sync.WaitGroup
	for i, unit := range units {
		wg.Add(1)
		go func(unitIndex int, unitItems []core.Item) {
			defer wg.Done()
			p.runUnit(ctx, unitIndex, unitItems, sink)
		}(i, unit)
	}
	wg.Wait()

	return sink.batches, nil
}

// runUnit processes one work unit in input order and emits its fragments as
// a single batch once every item is done.
func (p *Pool) runUnit(ctx context.Context, unitIndex int, items []core.Item, sink *collector) {
	start := time.Now()
	fragments := make([]core.Fragment, 0, len(items))
	for _, item := range items {
		fragments = append(fragments, p.summarizeItem(ctx, item))
	}
	sink.add(core.UnitBatch{Unit: unitIndex, Fragments: fragments})
	logger.Debug("Unit finished",
		"unit", unitIndex, "items", len(items), "elapsed", time.Since(start).Round(time.Millisecond))
}

// summarizeItem resolves the item's content, applies the short-content
// short-circuit, and otherwise runs the service call with retry.
func (p *Pool) summarizeItem(ctx context.Context, item core.Item) core.Fragment {
	fragment := core.Fragment{
		ItemID: item.ID,
		Title:  item.Title,
		Link:   item.Link,
		Image:  item.Image,
	}

	content := item.Body
	if p.isStub(content) {
		content = p.fetcher.ArticleText(item.Link)
	}

	// Very short content is treated as already summarized; calling the
	// service for it would cost more than it returns.
	if utf8.RuneCountInString(content) < p.opts.ShortThreshold {
		fragment.Summary = content
		return fragment
	}

	fragment.Summary, fragment.Degraded = p.condense(ctx, content)
	return fragment
}

// condenseState names the retry state machine's states.
type condenseState int

const (
	stateAttempting condenseState = iota
	stateSucceeded
	stateFailedTerminal
)

// condense runs the retry state machine for one service call. Rate limits
// retry with randomized backoff up to MaxAttempts; rejected input and
// unexpected errors terminate immediately with their respective fallbacks.
func (p *Pool) condense(ctx context.Context, content string) (summary string, degraded bool) {
	instructions := fmt.Sprintf("You are a smart assistant that summarizes articles. "+
		"First, exclude any references to author publicity and promotion. "+
		"The summary should be straightforward and concise, within 50 to 200 characters in %s. "+
		"Return only the summary text.", p.opts.Language)

	state := stateAttempting
	attempt := 0
	for state == stateAttempting {
		text, err := p.complete(ctx, instructions, content)
		switch {
		case err == nil:
			state = stateSucceeded
			summary = strings.TrimSpace(text)

		case errors.Is(err, llm.ErrRateLimited):
			attempt++
			if attempt >= p.opts.MaxAttempts {
				logger.Warn("Rate limited on final attempt, using truncated content",
					"attempts", attempt)
				state = stateFailedTerminal
				summary = p.truncate(content)
				break
			}
			wait := p.backoff()
			logger.Debug("Rate limited, backing off", "attempt", attempt, "wait", wait)
			p.sleep(wait)

		case errors.Is(err, llm.ErrRejected):
			// Retrying an invalid request cannot succeed.
			logger.Warn("Service rejected the request, using truncated content", "error", err.Error())
			state = stateFailedTerminal
			summary = p.truncate(content)

		default:
			logger.Warn("Summarization failed", "error", err.Error())
			state = stateFailedTerminal
			summary = FailureNotice
		}
	}

	return summary, state == stateFailedTerminal
}

func (p *Pool) complete(ctx context.Context, instructions, content string) (string, error) {
	if p.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.CallTimeout)
		defer cancel()
	}
	return p.client.Complete(ctx, p.opts.Model, instructions, content, p.opts.Temperature)
}

func (p *Pool) isStub(body string) bool {
	if strings.TrimSpace(body) == "" {
		return true
	}
	for _, marker := range p.opts.StubMarkers {
		if marker != "" && strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// backoff picks a random wait inside the configured window.
func (p *Pool) backoff() time.Duration {
	window := p.opts.BackoffMax - p.opts.BackoffMin
	if window <= 0 {
		return p.opts.BackoffMin
	}
	return p.opts.BackoffMin + rand.N(window)
}

// truncate returns a rune-safe prefix of the content as a degraded summary.
func (p *Pool) truncate(content string) string {
	runes := []rune(content)
	if len(runes) <= p.opts.FallbackLength {
		return content
	}
	return string(runes[:p.opts.FallbackLength])
}

// partition splits items into contiguous slices of at most size each,
// preserving order. The slices share the backing array; workers only read.
func partition(items []core.Item, size int) [][]core.Item {
	units := make([][]core.Item, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		units = append(units, items[start:end])
	}
	return units
}
