package services

import (
	"context"
	"errors"
	"time"

	"rick-api/models"
)

// ErrEmptyCompletion is returned when a provider answers without any choice
var ErrEmptyCompletion = errors.New("completion returned no choices")

// Completer sends an ordered list of role-tagged messages to a model and
// returns the text of the first choice.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage, temperature float64) (string, error)
}

// withTimeout bounds a single completion call. A zero timeout leaves ctx untouched.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
