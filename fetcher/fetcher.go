// Package fetcher retrieves candidate stories from the Algolia Hacker News
// search API.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/sync/errgroup"

	"hackerdigest/pkg/digest"
)

const defaultBaseURL = "https://hn.algolia.com/api/v1"

// Client queries the Algolia HN search API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an Algolia client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		logger:     logger,
	}
}

// NewClientWithBaseURL creates a client against a specific endpoint. Used by
// tests to point at a local server.
func NewClientWithBaseURL(baseURL string, logger *slog.Logger) *Client {
	c := NewClient(logger)
	c.baseURL = baseURL
	return c
}

type searchResponse struct {
	Hits []digest.Item `json:"hits"`
}

// Fetch returns candidate stories created since the given time: the topK
// highest-ranked stories and every story with at least minScore points.
// The two queries run concurrently and the results merge by story id.
func (c *Client) Fetch(ctx context.Context, topK, minScore int, since time.Time) (map[string]digest.Item, error) {
	sinceFilter := "created_at_i>" + strconv.FormatInt(since.Unix(), 10)

	var mu sync.Mutex
	merged := make(map[string]digest.Item)
	collect := func(items []digest.Item) {
		mu.Lock()
		defer mu.Unlock()
		for _, item := range items {
			merged[item.ID] = item
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := c.search(ctx, url.Values{
			"tags":           {"story"},
			"numericFilters": {sinceFilter},
			"hitsPerPage":    {strconv.Itoa(topK)},
		})
		if err != nil {
			return fmt.Errorf("top stories query: %w", err)
		}
		collect(items)
		return nil
	})
	g.Go(func() error {
		items, err := c.search(ctx, url.Values{
			"tags":           {"story"},
			"numericFilters": {sinceFilter + ",points>=" + strconv.Itoa(minScore)},
			"hitsPerPage":    {"1000"},
		})
		if err != nil {
			return fmt.Errorf("threshold query: %w", err)
		}
		collect(items)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Info("Fetched candidate stories", "count", len(merged), "top_k", topK, "min_score", minScore)
	return merged, nil
}

// search issues one /search query with retries.
func (c *Client) search(ctx context.Context, params url.Values) ([]digest.Item, error) {
	searchURL := c.baseURL + "/search?" + params.Encode()

	var result searchResponse
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("fetch stories: %w", err)
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode != http.StatusOK {
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(fmt.Errorf("unexpected status %d", resp.StatusCode))
				}
				return fmt.Errorf("unexpected status %d", resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			c.logger.Info("Retrying story fetch after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("search after retries: %w", err)
	}
	return result.Hits, nil
}
