package chat

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"rocketwatch/internal/event"
)

// LogBackend writes cards to the log instead of a chat service. It is used
// when no chat token is configured.
type LogBackend struct {
	logger *zap.Logger
	mu     sync.Mutex
	seq    int
}

func NewLogBackend(logger *zap.Logger) *LogBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogBackend{logger: logger.With(zap.String("component", "chat"))}
}

func (b *LogBackend) SendMessage(_ context.Context, channelID string, body event.Body) (string, error) {
	b.mu.Lock()
	b.seq++
	id := fmt.Sprintf("log-%d", b.seq)
	b.mu.Unlock()

	b.logger.Info("message",
		zap.String("channel", channelID),
		zap.String("id", id),
		zap.String("title", body.Title),
		zap.String("description", body.Description),
		zap.Int("fields", len(body.Fields)))
	return id, nil
}
