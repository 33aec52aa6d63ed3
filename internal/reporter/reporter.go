package reporter

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"rocketwatch/internal/chat"
	"rocketwatch/internal/event"
	"rocketwatch/internal/metrics"
)

const (
	colorError          = 0xe74c3c
	maxDescriptionRunes = 1800
)

// Reporter posts failures to a dedicated channel, at most once per key and
// cooldown window.
type Reporter struct {
	backend  chat.Backend
	channel  string
	cooldown time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	nowFn    func() time.Time
}

// New returns a reporter. An empty channel only logs.
func New(backend chat.Backend, channel string, cooldown time.Duration, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		backend:  backend,
		channel:  channel,
		cooldown: cooldown,
		logger:   logger.With(zap.String("component", "reporter")),
		lastSent: make(map[string]time.Time),
		nowFn:    time.Now,
	}
}

// Report posts err under the given context label with the current stack.
func (r *Reporter) Report(ctx context.Context, where string, err error) {
	if err == nil {
		return
	}
	r.report(ctx, where, err.Error(), debug.Stack())
}

// Recover reports a recovered panic value. Use it in a deferred call.
func (r *Reporter) Recover(ctx context.Context, where string) {
	if v := recover(); v != nil {
		r.report(ctx, where, fmt.Sprintf("panic: %v", v), debug.Stack())
	}
}

// ReportPanic reports a value already taken from recover.
func (r *Reporter) ReportPanic(ctx context.Context, where string, v interface{}) {
	r.report(ctx, where, fmt.Sprintf("panic: %v", v), debug.Stack())
}

func (r *Reporter) report(ctx context.Context, where, message string, stack []byte) {
	if r == nil {
		return
	}
	r.logger.Error("failure reported", zap.String("where", where), zap.String("error", message))
	if r.backend == nil || r.channel == "" {
		return
	}

	key := where + "|" + message
	now := r.nowFn()
	r.mu.Lock()
	if last, ok := r.lastSent[key]; ok && now.Sub(last) < r.cooldown {
		r.mu.Unlock()
		metrics.ErrorsReported.WithLabelValues("false").Inc()
		return
	}
	for k, t := range r.lastSent {
		if now.Sub(t) >= r.cooldown {
			delete(r.lastSent, k)
		}
	}
	r.lastSent[key] = now
	r.mu.Unlock()

	body := event.Body{
		Title:       "Error in " + where,
		Description: "```" + truncate(message, maxDescriptionRunes) + "```",
		Color:       colorError,
		Image: &event.Attachment{
			Name:        "stacktrace.txt",
			ContentType: "text/plain",
			Data:        stack,
		},
		Footer: now.UTC().Format(time.RFC3339),
	}
	if _, err := r.backend.SendMessage(ctx, r.channel, body); err != nil {
		r.logger.Warn("post error report", zap.Error(err))
		metrics.ErrorsReported.WithLabelValues("false").Inc()
		return
	}
	metrics.ErrorsReported.WithLabelValues("true").Inc()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
