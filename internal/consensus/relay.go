package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"rocketwatch/internal/ratelimit"
	"rocketwatch/internal/retry"
)

// RelayPayload is one relay's record of a delivered block.
type RelayPayload struct {
	ProducerReward decimal.Decimal `json:"producerReward"`
	FeeRecipient   string          `json:"feeRecipient"`
	Relay          struct {
		Tag                  string `json:"tag"`
		ProducerFeeRecipient string `json:"producerFeeRecipient"`
	} `json:"relay"`
}

// Recipient prefers the address the relay paid over the block's coinbase.
func (p RelayPayload) Recipient() string {
	if p.Relay.ProducerFeeRecipient != "" {
		return p.Relay.ProducerFeeRecipient
	}
	return p.FeeRecipient
}

type relayResponse struct {
	Data []RelayPayload `json:"data"`
}

// RelayClient reads MEV payload data from a block explorer's relay API.
type RelayClient struct {
	endpoint string
	http     *http.Client
	limiter  *ratelimit.Limiter
	opts     Options
}

func NewRelayClient(endpoint string, opts Options) *RelayClient {
	opts.withDefaults()
	if opts.RPS <= 0 {
		opts.RPS = 1
	}
	return &RelayClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  ratelimit.New(opts.RPS, opts.Burst, "relay"),
		opts:     opts,
	}
}

// ExecutionBlock returns relay payloads for an EL block. A block built
// locally returns no payloads and no error.
func (c *RelayClient) ExecutionBlock(ctx context.Context, number uint64) ([]RelayPayload, error) {
	url := fmt.Sprintf("%s/api/v1/execution/block/%d", c.endpoint, number)
	var resp relayResponse
	err := retry.Do(ctx, c.opts.MaxRetries, c.opts.BaseDelay, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		data, err := fetch(ctx, c.http, url)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return retry.Permanent(fmt.Errorf("decode relay block %d: %w", number, err))
		}
		return nil
	})
	if errors.Is(err, ErrBlockNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relay block %d: %w", number, err)
	}
	return resp.Data, nil
}
