// Package llm wraps the Gemini SDK behind the small completion surface the
// pipeline needs, and classifies service failures into the conditions the
// retry logic distinguishes: rate-limited, input-rejected, and everything
// else.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrRateLimited indicates the service signalled a parallel-request or
	// quota limit; the call may succeed after a backoff.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrRejected indicates the service refused the request input; retrying
	// the same request cannot succeed.
	ErrRejected = errors.New("llm: request rejected")
)

// Client is a thin completion client over the Gemini API.
type Client struct {
	gClient *genai.Client
}

// NewClient creates a Gemini-backed client. The API key comes from the
// configuration layer (GEMINI_API_KEY or ai.api_key).
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required; set GEMINI_API_KEY or ai.api_key")
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{gClient: gClient}, nil
}

// Complete sends one instruction/input pair to the given model and returns
// the trimmed response text. Failures are translated so callers can branch
// with errors.Is on ErrRateLimited and ErrRejected.
func (c *Client) Complete(ctx context.Context, model, instructions, input string, temperature float32) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: input}},
		Role:  "user",
	}}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	}
	if instructions != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: instructions}},
		}
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", classify(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", model)
	}

	return text, nil
}

// classify maps SDK errors onto the package sentinels. Unrecognized errors
// pass through unchanged and land in the generic-failure branch upstream.
func classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case 429:
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	case 400:
		return fmt.Errorf("%w: %s", ErrRejected, apiErr.Message)
	default:
		return err
	}
}
