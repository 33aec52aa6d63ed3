package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	goredis "github.com/redis/go-redis/v9"

	"rocketwatch/internal/labels"
)

const keyPrefix = "rocketwatch:label:"

// LabelStore keeps address labels in Redis with the entry expiry as TTL.
type LabelStore struct {
	client goredis.UniversalClient
	nowFn  func() time.Time
}

var _ labels.Store = (*LabelStore)(nil)

// NewLabelStore connects using a redis:// URL.
func NewLabelStore(ctx context.Context, url string) (*LabelStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewLabelStoreWithClient(client), nil
}

func NewLabelStoreWithClient(client goredis.UniversalClient) *LabelStore {
	return &LabelStore{client: client, nowFn: time.Now}
}

func (s *LabelStore) key(addr common.Address) string {
	return keyPrefix + strings.ToLower(addr.Hex())
}

func (s *LabelStore) GetLabel(ctx context.Context, addr common.Address) (labels.Entry, bool, error) {
	val, err := s.client.Get(ctx, s.key(addr)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return labels.Entry{}, false, nil
	}
	if err != nil {
		return labels.Entry{}, false, err
	}
	var entry labels.Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return labels.Entry{}, false, fmt.Errorf("decode label: %w", err)
	}
	return entry, true, nil
}

func (s *LabelStore) PutLabel(ctx context.Context, addr common.Address, entry labels.Entry) error {
	ttl := entry.ExpiresAt.Sub(s.nowFn())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode label: %w", err)
	}
	return s.client.Set(ctx, s.key(addr), data, ttl).Err()
}

func (s *LabelStore) Close() error {
	return s.client.Close()
}
