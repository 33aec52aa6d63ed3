package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"rocketwatch/internal/ratelimit"
	"rocketwatch/internal/retry"
)

var (
	// ErrBlockNotFound marks an empty slot or an unknown state.
	ErrBlockNotFound = errors.New("block does not exist")
	errUnavailable   = errors.New("beacon node unavailable")
)

const validatorsPerRequest = 100

// Options configures a REST client.
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
		o.Timeout = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Client reads beacon blocks and state from a consensus node's REST API.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *ratelimit.Limiter
	opts     Options
}

func NewClient(endpoint string, opts Options) *Client {
	opts.withDefaults()
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  ratelimit.New(opts.RPS, opts.Burst, "beacon"),
		opts:     opts,
	}
}

// Block returns the beacon block at slot, or ErrBlockNotFound for a
// missed slot.
func (c *Client) Block(ctx context.Context, slot uint64) (*Block, error) {
	var resp blockResponse
	if err := c.get(ctx, fmt.Sprintf("/eth/v2/beacon/blocks/%d", slot), &resp); err != nil {
		return nil, fmt.Errorf("block %d: %w", slot, err)
	}
	return &resp.Data.Message, nil
}

// HeadSlot returns the slot of the current head block.
func (c *Client) HeadSlot(ctx context.Context) (uint64, error) {
	var resp headerResponse
	if err := c.get(ctx, "/eth/v1/beacon/headers/head", &resp); err != nil {
		return 0, fmt.Errorf("head header: %w", err)
	}
	return uint64(resp.Data.Header.Message.Slot), nil
}

// Validators looks up validators by index or pubkey at stateID.
func (c *Client) Validators(ctx context.Context, stateID string, ids []string) ([]Validator, error) {
	var out []Validator
	for start := 0; start < len(ids); start += validatorsPerRequest {
		end := start + validatorsPerRequest
		if end > len(ids) {
			end = len(ids)
		}
		var resp validatorsResponse
		path := fmt.Sprintf("/eth/v1/beacon/states/%s/validators?id=%s", stateID, strings.Join(ids[start:end], ","))
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("validators: %w", err)
		}
		out = append(out, resp.Data...)
	}
	return out, nil
}

func (c *Client) FinalityCheckpoints(ctx context.Context, stateID string) (*FinalityCheckpoints, error) {
	var resp finalityResponse
	if err := c.get(ctx, fmt.Sprintf("/eth/v1/beacon/states/%s/finality_checkpoints", stateID), &resp); err != nil {
		return nil, fmt.Errorf("finality checkpoints: %w", err)
	}
	return &resp.Data, nil
}

func (c *Client) SyncCommittee(ctx context.Context, stateID string) (*SyncCommittee, error) {
	var resp syncCommitteeResponse
	if err := c.get(ctx, fmt.Sprintf("/eth/v1/beacon/states/%s/sync_committees", stateID), &resp); err != nil {
		return nil, fmt.Errorf("sync committee: %w", err)
	}
	return &resp.Data, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	url := c.endpoint + path
	return retry.Do(ctx, c.opts.MaxRetries, c.opts.BaseDelay, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		data, err := fetch(ctx, c.http, url)
		if err != nil {
			if errors.Is(err, ErrBlockNotFound) {
				return retry.Permanent(err)
			}
			c.opts.Logger.Debug("beacon request failed", zap.String("path", path), zap.Error(err))
			return err
		}
		if err := json.Unmarshal(data, out); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	})
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", url, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return data, nil
	case http.StatusNotFound:
		return nil, ErrBlockNotFound
	case http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: status %d", errUnavailable, resp.StatusCode)
	default:
		const maxSnippetLen = 512
		snippet := data
		if len(snippet) > maxSnippetLen {
			snippet = append(snippet[:maxSnippetLen], []byte("... [truncated]")...)
		}
		return nil, retry.Permanent(fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, url, string(snippet)))
	}
}
