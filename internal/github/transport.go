// internal/github/transport.go
package github

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// Total attempts for an idempotent request, including the first.
	maxRetries = 3
	// Longest wait for a primary rate limit reset before giving up.
	maxRateLimitWait = 2 * time.Minute
)

var errRateLimited = errors.New("github rate limit exhausted")

// retryTransport retries idempotent requests on network errors, 5xx and 429 responses,
// and waits out an exhausted primary rate limit.
type retryTransport struct {
	base            http.RoundTripper
	initialInterval time.Duration
	maxWait         time.Duration
}

func newRetryTransport(base http.RoundTripper, initialInterval time.Duration) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{base: base, initialInterval: initialInterval, maxWait: maxRateLimitWait}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return t.base.RoundTrip(req)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.initialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries-1), req.Context())

	var resp *http.Response
	op := func() error {
		if resp != nil {
			discard(resp)
			resp = nil
		}

		r, err := t.base.RoundTrip(req)
		if err != nil {
			if req.Context().Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r

		if wait, limited := rateLimitWait(r); limited {
			if wait > t.maxWait {
				return backoff.Permanent(errRateLimited)
			}
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-req.Context().Done():
				return backoff.Permanent(req.Context().Err())
			}
			return errRateLimited
		}
		if r.StatusCode >= http.StatusInternalServerError || r.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("retryable status %d", r.StatusCode)
		}
		return nil
	}

	err := backoff.Retry(op, policy)
	if resp != nil {
		// The last response is returned even when it is an error status, so the
		// go-github client can turn it into an *ErrorResponse.
		return resp, nil
	}
	return nil, err
}

// rateLimitWait reports how long to wait when a response signals an exhausted primary rate limit.
func rateLimitWait(r *http.Response) (time.Duration, bool) {
	if r.StatusCode != http.StatusForbidden && r.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}
	if r.Header.Get("X-RateLimit-Remaining") != "0" {
		return 0, false
	}
	reset, err := strconv.ParseInt(r.Header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return 0, false
	}
	wait := time.Until(time.Unix(reset, 0))
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

func discard(r *http.Response) {
	_, _ = io.Copy(io.Discard, r.Body)
	r.Body.Close()
}
