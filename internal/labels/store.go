package labels

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Entry is a cached label.
type Entry struct {
	Label     string    `json:"label"`
	Source    string    `json:"source"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store persists labels across restarts. Get reports ok=false on a miss.
type Store interface {
	GetLabel(ctx context.Context, addr common.Address) (Entry, bool, error)
	PutLabel(ctx context.Context, addr common.Address, entry Entry) error
}
