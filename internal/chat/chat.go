package chat

import (
	"context"
	"errors"
	"fmt"

	"rocketwatch/internal/event"
)

// Kind classifies backend failures for the dispatcher.
type Kind int

const (
	Transient Kind = iota
	NotFound
	Forbidden
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	default:
		return "transient"
	}
}

// Error is a classified backend failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("chat %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify returns the kind of a send error. Unclassified errors are
// treated as transient.
func Classify(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Transient
}

// Backend sends rendered cards to a channel.
type Backend interface {
	SendMessage(ctx context.Context, channelID string, body event.Body) (string, error)
}
