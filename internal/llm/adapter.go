// Package llm adapts third-party text-generation providers to a single
// streaming interface. A conversation history goes in; fragments of the
// assistant reply come out, in order, until the provider signals
// completion.
package llm

import (
	"context"
	"strings"

	"lawfi-backend/internal/models"
)

// StreamEvent carries either one fragment of generated text or a
// terminal error. After an error event the channel is closed.
type StreamEvent struct {
	Text string
	Err  error
}

// Adapter is a streaming text-generation provider. The returned channel
// is single-consumption and strictly ordered; it is closed when the
// provider finishes. Failures before the first fragment may be returned
// directly from Stream or arrive as the first event, always as *Error.
type Adapter interface {
	Stream(ctx context.Context, history []models.TurnMessage) (<-chan StreamEvent, error)
}

// Complete drains a stream into a single string. Used where the caller
// wants the whole reply at once, e.g. title generation.
func Complete(ctx context.Context, a Adapter, history []models.TurnMessage) (string, error) {
	ch, err := a.Stream(ctx, history)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for ev := range ch {
		if ev.Err != nil {
			return b.String(), ev.Err
		}
		b.WriteString(ev.Text)
	}
	return b.String(), nil
}
