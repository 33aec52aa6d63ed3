// Package offchain holds clients for the governance and marketplace APIs
// that events are read from besides the chain itself.
package offchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rocketwatch/internal/ratelimit"
	"rocketwatch/internal/retry"
)

var errUnavailable = errors.New("api unavailable")

// Options configures an API client.
type Options struct {
	Timeout    time.Duration
	RPS        float64
	Burst      int
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *zap.Logger
}

func (o *Options) withDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.RPS <= 0 {
		o.RPS = 2
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type client struct {
	api     string
	http    *http.Client
	limiter *ratelimit.Limiter
	opts    Options
}

func newClient(api string, opts Options) client {
	opts.withDefaults()
	return client{
		api:     api,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: ratelimit.New(opts.RPS, opts.Burst, api),
		opts:    opts,
	}
}

// do sends one request with retries and decodes the JSON response into out.
func (c client) do(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}
	return retry.Do(ctx, c.opts.MaxRetries, c.opts.BaseDelay, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		data, err := c.roundTrip(ctx, method, url, payload)
		if err != nil {
			c.opts.Logger.Debug("request failed", zap.String("api", c.api), zap.String("url", url), zap.Error(err))
			return err
		}
		if err := json.Unmarshal(data, out); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s response: %w", c.api, err))
		}
		return nil
	})
}

func (c client) roundTrip(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", url, err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s status %d", errUnavailable, c.api, resp.StatusCode)
	default:
		const maxSnippetLen = 256
		if len(data) > maxSnippetLen {
			data = data[:maxSnippetLen]
		}
		return nil, retry.Permanent(fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, url, data))
	}
}
