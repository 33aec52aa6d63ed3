package offchain

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Order is an open limit order on the marketplace. Amounts are in base
// units of their tokens.
type Order struct {
	UID          string    `json:"uid"`
	Owner        string    `json:"owner"`
	SellToken    string    `json:"sellToken"`
	BuyToken     string    `json:"buyToken"`
	SellAmount   string    `json:"sellAmount"`
	BuyAmount    string    `json:"buyAmount"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	CreationDate time.Time `json:"creationDate"`
	ValidTo      int64     `json:"validTo"`
}

// OrdersClient lists marketplace orders for a token.
type OrdersClient struct {
	client
	endpoint string
}

func NewOrdersClient(endpoint string, opts Options) *OrdersClient {
	return &OrdersClient{
		client:   newClient("orders", opts),
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// Orders returns the orders that sell or buy token.
func (c *OrdersClient) Orders(ctx context.Context, token string) ([]Order, error) {
	var out []Order
	url := fmt.Sprintf("%s/api/v1/token/%s/orders", c.endpoint, strings.ToLower(token))
	if err := c.do(ctx, http.MethodGet, url, nil, &out); err != nil {
		return nil, fmt.Errorf("orders for %s: %w", token, err)
	}
	return out, nil
}
