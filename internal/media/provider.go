package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/bobarin/reels/internal/models"
)

const (
	// Attempts per provider call, per strategy.
	maxProviderAttempts = 3
	searchTimeout       = 20 * time.Second
)

var (
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 8 * time.Second
)

// SearchQuery is one provider lookup.
type SearchQuery struct {
	Terms   string
	Kind    models.MediaKind
	PerPage int
}

// Candidate is a provider search hit, before download.
type Candidate struct {
	ID       string
	Provider string
	Kind     models.MediaKind
	URL      string
	PageURL  string
	Width    int
	Height   int
	Duration float64
}

func (c Candidate) Key() string {
	return c.Provider + ":" + c.ID
}

func (c Candidate) IsPortrait() bool {
	return c.Height > c.Width
}

// Provider is a stock-media search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, q SearchQuery) ([]Candidate, error)
}

// ProviderError is a non-2xx response from a provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 200))
}

// getJSON performs a GET with retries on rate limiting, 5xx and transient
// network errors, decoding the body into out.
func getJSON(ctx context.Context, client *http.Client, provider string, newReq func(ctx context.Context) (*http.Request, error), out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < maxProviderAttempts; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[Media] %s retry %d/%d (waiting %v)...", provider, attempt, maxProviderAttempts-1, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, searchTimeout)
		req, err := newReq(reqCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("%s request failed: %w", provider, err)
			if isRetryableError(err) && ctx.Err() == nil {
				continue
			}
			return lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode != http.StatusOK {
			lastErr = &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
			if isRetryableStatus(resp.StatusCode) {
				log.Printf("[Media] %s attempt %d returned status %d (retryable)", provider, attempt+1, resp.StatusCode)
				continue
			}
			return lastErr
		}
		if readErr != nil {
			lastErr = fmt.Errorf("%s read failed: %w", provider, readErr)
			continue
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s returned invalid JSON: %w", provider, err)
		}
		return nil
	}
	return fmt.Errorf("%s failed after %d attempts: %w", provider, maxProviderAttempts, lastErr)
}

// retryDelay is exponential backoff with 0-25% jitter.
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusInternalServerError || // 500
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
