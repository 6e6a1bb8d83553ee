// Package source defines the upstream catalog backend contract and the
// HTTP plumbing shared by its implementations.
//
// A backend resolves a roster researcher to the catalog's native author
// identity and fetches that author's publication records as candidate
// works. Catalog-specific field names never leak past a backend; every
// implementation returns the canonical model.Work shape.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/labpubs/internal/model"
)

// Common errors returned by source backends.
var (
	// ErrNotFound indicates the author or record does not exist upstream.
	ErrNotFound = errors.New("not found upstream")

	// ErrAuthError indicates a missing or rejected API key.
	ErrAuthError = errors.New("upstream authentication error")

	// ErrRateLimited indicates the rate limit was still exceeded after
	// the backend's internal retries.
	ErrRateLimited = errors.New("upstream rate limit exceeded")

	// ErrInvalidResponse indicates an unparseable upstream payload.
	ErrInvalidResponse = errors.New("invalid upstream response")
)

// Result is the outcome of one backend call for one researcher.
type Result struct {
	// Works are the candidate records fetched for the researcher,
	// deduplicated by the catalog's native record ID.
	Works []model.Work

	// ResolvedID is a newly resolved native author ID for this catalog,
	// or "" if resolution did not produce one this run. The caller owns
	// persisting it; the backend has no storage side effects.
	ResolvedID string
}

// Backend is one upstream catalog.
type Backend interface {
	Name() model.Source
	ResolveAndFetch(ctx context.Context, r model.Researcher) (Result, error)
}

// MaxNameCandidates bounds name-based author search fallback. Deep
// pagination on a common name trades latency for false positives, so
// only the top few candidates are ever examined.
const MaxNameCandidates = 5

const (
	maxRetries  = 3
	baseBackoff = 500 * time.Millisecond
)

// GetJSON performs a rate-limited GET, retrying with exponential
// backoff on rate limiting and server errors, and decodes the response
// body with decode. A 404 maps to ErrNotFound, 401/403 to ErrAuthError.
func GetJSON(ctx context.Context, hc *http.Client, limiter *rate.Limiter, url string, header http.Header, decode func([]byte) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := hc.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, url)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: status %d", ErrAuthError, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: %s", ErrRateLimited, url)
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("upstream status %d from %s", resp.StatusCode, url)
			continue
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}

		if readErr != nil {
			lastErr = readErr
			continue
		}
		if err := decode(body); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return nil
	}
	return lastErr
}
