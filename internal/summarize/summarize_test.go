package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"skim/internal/core"
	"skim/internal/llm"
)

// stubClient answers every Complete call the same way and counts calls.
type stubClient struct {
	mu       sync.Mutex
	calls    int
	response string
	// errSequence is consumed call by call; nil entries mean success. When
	// exhausted, calls succeed.
	errSequence []error
}

func (c *stubClient) Complete(_ context.Context, _, _, _ string, _ float32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i < len(c.errSequence) && c.errSequence[i] != nil {
		return "", c.errSequence[i]
	}
	return c.response, nil
}

func (c *stubClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// stubFetcher returns a fixed text for every URL and records fetches.
type stubFetcher struct {
	mu    sync.Mutex
	text  string
	calls []string
}

func (f *stubFetcher) ArticleText(url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	return f.text
}

func testOptions() Options {
	return Options{
		Model:          "test-model",
		Language:       "English",
		Temperature:    0.7,
		UnitSize:       2,
		MaxUnits:       16,
		ShortThreshold: 60,
		StubMarkers:    []string{"Read more"},
		MaxAttempts:    3,
		BackoffMin:     time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
		FallbackLength: 20,
	}
}

func newTestPool(client CompletionClient, fetcher ContentFetcher, opts Options) *Pool {
	pool := NewPool(client, fetcher, opts)
	pool.sleep = func(time.Duration) {}
	return pool
}

func longBody(id int) string {
	return fmt.Sprintf("Article %d body. %s", id, strings.Repeat("More detail. ", 20))
}

func makeItems(n int) []core.Item {
	items := make([]core.Item, n)
	for i := range items {
		items[i] = core.Item{
			ID:    i,
			Title: fmt.Sprintf("Title %d", i),
			Link:  fmt.Sprintf("https://example.com/%d", i),
			Body:  longBody(i),
		}
	}
	return items
}

func TestRunUnitCountAndCoverage(t *testing.T) {
	cases := []struct {
		items    int
		unitSize int
		units    int
	}{
		{1, 2, 1},
		{2, 2, 1},
		{3, 2, 2},
		{7, 3, 3},
		{16, 1, 16},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_items_unit_%d", tc.items, tc.unitSize), func(t *testing.T) {
			client := &stubClient{response: "a summary"}
			opts := testOptions()
			opts.UnitSize = tc.unitSize
			pool := newTestPool(client, &stubFetcher{}, opts)

			batches, err := pool.Run(context.Background(), makeItems(tc.items))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}

			if len(batches) != tc.units {
				t.Errorf("Expected %d units, got %d", tc.units, len(batches))
			}

			seen := make(map[int]int)
			for _, batch := range batches {
				for _, fragment := range batch.Fragments {
					seen[fragment.ItemID]++
				}
			}
			if len(seen) != tc.items {
				t.Errorf("Expected %d distinct items in output, got %d", tc.items, len(seen))
			}
			for id, count := range seen {
				if count != 1 {
					t.Errorf("Item %d appears %d times", id, count)
				}
			}
		})
	}
}

func TestRunPreservesOrderWithinUnit(t *testing.T) {
	client := &stubClient{response: "a summary"}
	opts := testOptions()
	opts.UnitSize = 3
	pool := newTestPool(client, &stubFetcher{}, opts)

	batches, err := pool.Run(context.Background(), makeItems(9))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for _, batch := range batches {
		wantFirst := batch.Unit * 3
		for offset, fragment := range batch.Fragments {
			if fragment.ItemID != wantFirst+offset {
				t.Errorf("Unit %d fragment %d: expected item %d, got %d",
					batch.Unit, offset, wantFirst+offset, fragment.ItemID)
			}
		}
	}
}

func TestRunUnitCapFailsFastWithZeroCalls(t *testing.T) {
	client := &stubClient{response: "a summary"}
	opts := testOptions()
	opts.UnitSize = 1
	pool := newTestPool(client, &stubFetcher{}, opts)

	_, err := pool.Run(context.Background(), makeItems(17))

	if !errors.Is(err, ErrUnitCapExceeded) {
		t.Fatalf("Expected ErrUnitCapExceeded, got %v", err)
	}
	if client.callCount() != 0 {
		t.Errorf("Expected zero service calls, got %d", client.callCount())
	}
}

func TestRetryRateLimitedTwiceThenSucceeds(t *testing.T) {
	client := &stubClient{
		response:    "finally a summary",
		errSequence: []error{llm.ErrRateLimited, llm.ErrRateLimited, nil},
	}
	var waits int
	pool := NewPool(client, &stubFetcher{}, testOptions())
	pool.sleep = func(time.Duration) { waits++ }

	batches, err := pool.Run(context.Background(), makeItems(1))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if client.callCount() != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", client.callCount())
	}
	if waits != 2 {
		t.Errorf("Expected 2 backoff sleeps, got %d", waits)
	}
	fragment := batches[0].Fragments[0]
	if fragment.Summary != "finally a summary" {
		t.Errorf("Expected the service summary, got %q", fragment.Summary)
	}
	if fragment.Degraded {
		t.Error("Expected a successful fragment, got degraded")
	}
}

func TestRetryExhaustedRateLimitUsesTruncatedContent(t *testing.T) {
	client := &stubClient{
		errSequence: []error{llm.ErrRateLimited, llm.ErrRateLimited, llm.ErrRateLimited},
	}
	pool := newTestPool(client, &stubFetcher{}, testOptions())

	items := makeItems(1)
	batches, err := pool.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if client.callCount() != 3 {
		t.Errorf("Expected 3 attempts before degrading, got %d", client.callCount())
	}
	fragment := batches[0].Fragments[0]
	want := string([]rune(items[0].Body)[:20])
	if fragment.Summary != want {
		t.Errorf("Expected truncated content %q, got %q", want, fragment.Summary)
	}
	if !fragment.Degraded {
		t.Error("Expected a degraded fragment")
	}
}

func TestRejectedRequestDegradesWithoutRetry(t *testing.T) {
	client := &stubClient{
		errSequence: []error{llm.ErrRejected, llm.ErrRejected, llm.ErrRejected},
	}
	pool := newTestPool(client, &stubFetcher{}, testOptions())

	items := makeItems(1)
	batches, err := pool.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if client.callCount() != 1 {
		t.Errorf("Expected a single attempt for rejected input, got %d", client.callCount())
	}
	fragment := batches[0].Fragments[0]
	want := string([]rune(items[0].Body)[:20])
	if fragment.Summary != want {
		t.Errorf("Expected truncated content %q, got %q", want, fragment.Summary)
	}
}

func TestGenericErrorUsesFailureNotice(t *testing.T) {
	client := &stubClient{
		errSequence: []error{errors.New("connection reset")},
	}
	pool := newTestPool(client, &stubFetcher{}, testOptions())

	batches, err := pool.Run(context.Background(), makeItems(1))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if client.callCount() != 1 {
		t.Errorf("Expected a single attempt for a generic error, got %d", client.callCount())
	}
	fragment := batches[0].Fragments[0]
	if fragment.Summary != FailureNotice {
		t.Errorf("Expected the failure notice, got %q", fragment.Summary)
	}
	if !fragment.Degraded {
		t.Error("Expected a degraded fragment")
	}
}

func TestShortContentSkipsService(t *testing.T) {
	client := &stubClient{response: "should not be used"}
	pool := newTestPool(client, &stubFetcher{}, testOptions())

	item := core.Item{ID: 0, Title: "Short", Link: "https://example.com/0", Body: "Already brief."}
	batches, err := pool.Run(context.Background(), []core.Item{item})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if client.callCount() != 0 {
		t.Errorf("Expected no service calls for short content, got %d", client.callCount())
	}
	fragment := batches[0].Fragments[0]
	if fragment.Summary != "Already brief." {
		t.Errorf("Expected the raw body, got %q", fragment.Summary)
	}
	if fragment.Degraded {
		t.Error("Short-circuit is not a degraded path")
	}
}

func TestStubBodyTriggersFullContentFetch(t *testing.T) {
	client := &stubClient{response: "fetched summary"}
	fetcher := &stubFetcher{text: longBody(0)}
	pool := newTestPool(client, fetcher, testOptions())

	item := core.Item{ID: 0, Title: "Stubbed", Link: "https://example.com/full", Body: "Read more on our site"}
	batches, err := pool.Run(context.Background(), []core.Item{item})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(fetcher.calls) != 1 || fetcher.calls[0] != "https://example.com/full" {
		t.Fatalf("Expected one fetch of the item link, got %v", fetcher.calls)
	}
	if batches[0].Fragments[0].Summary != "fetched summary" {
		t.Errorf("Expected the service summary of fetched content, got %q", batches[0].Fragments[0].Summary)
	}
}

func TestFailedFetchDegradesToEmptyFragment(t *testing.T) {
	client := &stubClient{response: "should not be used"}
	fetcher := &stubFetcher{text: ""}
	pool := newTestPool(client, fetcher, testOptions())

	item := core.Item{ID: 0, Title: "Gone", Link: "https://example.com/404", Body: "Read more"}
	batches, err := pool.Run(context.Background(), []core.Item{item})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if client.callCount() != 0 {
		t.Errorf("Expected empty fetched content to skip the service, got %d calls", client.callCount())
	}
	if batches[0].Fragments[0].Summary != "" {
		t.Errorf("Expected an empty summary, got %q", batches[0].Fragments[0].Summary)
	}
}

func TestFragmentCarriesImage(t *testing.T) {
	client := &stubClient{response: "a summary"}
	pool := newTestPool(client, &stubFetcher{}, testOptions())

	item := core.Item{ID: 0, Title: "Pictured", Link: "https://example.com/0", Body: longBody(0), Image: "https://example.com/i.png"}
	batches, err := pool.Run(context.Background(), []core.Item{item})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if batches[0].Fragments[0].Image != "https://example.com/i.png" {
		t.Errorf("Expected the item image on the fragment, got %q", batches[0].Fragments[0].Image)
	}
}

func TestRunEmptyInput(t *testing.T) {
	client := &stubClient{}
	pool := newTestPool(client, &stubFetcher{}, testOptions())

	batches, err := pool.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("Expected no batches, got %d", len(batches))
	}
}

func TestBackoffStaysInWindow(t *testing.T) {
	opts := testOptions()
	opts.BackoffMin = 5 * time.Second
	opts.BackoffMax = 10 * time.Second
	pool := NewPool(&stubClient{}, &stubFetcher{}, opts)

	for i := 0; i < 100; i++ {
		wait := pool.backoff()
		if wait < opts.BackoffMin || wait >= opts.BackoffMax {
			t.Fatalf("Backoff %s outside [%s, %s)", wait, opts.BackoffMin, opts.BackoffMax)
		}
	}
}
