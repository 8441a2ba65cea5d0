package exact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

// Outbound call defaults.
const (
	DefaultCallTimeout = 30 * time.Second
	DefaultMaxAttempts = 3
)

// Client executes authenticated calls against the upstream API. Every call
// passes the circuit breaker, then the rate limiter, then goes on the wire
// with a bearer token from the token manager. Throttling and transient
// failures are retried a bounded number of times.
type Client struct {
	BaseURL string
	Tokens  *TokenManager
	Limiter *Limiter
	Breaker *Breaker

	// HTTPClient defaults to a client with DefaultCallTimeout.
	HTTPClient *http.Client

	// MaxAttempts defaults to DefaultMaxAttempts.
	MaxAttempts int
}

// Response is a fully drained upstream response, safe to use after the
// underlying connection is released.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do executes one upstream API call for a connection. The path is joined onto
// BaseURL. The returned error is ErrCircuitOpen when the endpoint's circuit
// blocks the call, ErrReauthRequired when the connection's credentials are
// terminally invalid, or the last transport error after retry exhaustion.
func (c *Client) Do(ctx context.Context, connectionID, method, path string, body []byte) (*Response, error) {
	log := slogx.FromContext(ctx)
	endpoint := method + " " + path

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	var lastErr error
	attempts := c.maxAttempts()

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.Breaker.Allow(endpoint); err != nil {
			return nil, err
		}

		if err := c.Limiter.Wait(ctx); err != nil {
			c.Breaker.Release(endpoint)
			return nil, err
		}

		resp, err := c.doOnce(ctx, connectionID, method, path, body)
		if err != nil {
			// Credential failures are the connection's problem, not the
			// endpoint's health.
			if errors.Is(err, ErrReauthRequired) {
				c.Breaker.Release(endpoint)
				return nil, err
			}
			c.Breaker.Record(endpoint, false)
			lastErr = err

			if !isTransientNetErr(err) || attempt == attempts {
				return nil, err
			}
			log.Warn("upstream call failed, retrying",
				"endpoint", endpoint, "attempt", attempt, "err", err)
			if err := sleep(ctx, policy.NextBackOff()); err != nil {
				return nil, err
			}
			continue
		}

		c.Limiter.Observe(resp.Header)

		if isRetryableStatus(resp.StatusCode) {
			c.Breaker.Record(endpoint, false)

			throttled := resp.StatusCode == http.StatusTooManyRequests
			if throttled {
				lastErr = fmt.Errorf("exact: throttled on %s", endpoint)
			} else {
				lastErr = fmt.Errorf("exact: upstream returned %d on %s", resp.StatusCode, endpoint)
			}
			if attempt == attempts {
				return resp, lastErr
			}

			delay := policy.NextBackOff()
			if throttled {
				if advised := RetryAfter(resp.Header); advised > 0 {
					delay = advised
				}
				log.Warn("upstream throttled, backing off",
					"endpoint", endpoint, "attempt", attempt, "delay", delay)
			}
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		c.Breaker.Record(endpoint, true)
		return resp, nil
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, connectionID, method, path string, body []byte) (*Response, error) {
	token, err := c.Tokens.Token(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	url := strings.TrimSuffix(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	drained, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       drained,
	}, nil
}

func (c *Client) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: DefaultCallTimeout}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
