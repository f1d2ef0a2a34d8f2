package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxRetries bounds the transient-retry policy applied uniformly to all
// outbound calls (secrets service and third-party providers alike).
const maxRetries = 3

// NewClient returns the shared HTTP client. It is safe for concurrent use;
// its timeout is the only per-call deadline the refresh pipeline enforces.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// Do executes a request with bounded exponential backoff on transient
// failures: network errors, 5xx responses and 429s. The request is rebuilt
// on every attempt so bodies can be replayed safely.
func Do(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, fmt.Errorf("transient upstream status %d", resp.StatusCode)
		}

		return resp, nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)

	return backoff.RetryWithData(operation, policy)
}
