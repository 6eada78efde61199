package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"lawfi-backend/internal/models"
)

// GeminiAdapter streams completions from the Google Gemini API. It is
// the config-selected alternative to the Anthropic adapter and honors
// the same contract.
type GeminiAdapter struct {
	client      *genai.Client
	model       string
	system      string
	maxTokens   int
	temperature float64
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	System      string
	MaxTokens   int
	Temperature float64
}

var _ Adapter = (*GeminiAdapter)(nil)

func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiAdapter{
		client:      client,
		model:       cfg.Model,
		system:      cfg.System,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (g *GeminiAdapter) Close() {
	g.client.Close()
}

func (g *GeminiAdapter) Stream(ctx context.Context, history []models.TurnMessage) (<-chan StreamEvent, error) {
	if len(history) == 0 {
		return nil, errors.New("gemini: no messages provided")
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(float32(g.temperature))
	if g.maxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.maxTokens))
	}
	if g.system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(g.system)}}
	}

	cs := model.StartChat()
	for _, m := range history[:len(history)-1] {
		role := "model"
		if m.Role == "user" {
			role = "user"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	iter := cs.SendMessageStream(ctx, genai.Text(history[len(history)-1].Content))

	ch := make(chan StreamEvent, 10)
	go func() {
		defer close(ch)

		// emit never blocks past cancellation; a consumer that walks
		// away mid-stream must not strand this goroutine on a full
		// buffer.
		emit := func(ev StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				emit(StreamEvent{Err: mapGeminiError(err)})
				return
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if text, ok := part.(genai.Text); ok && string(text) != "" {
						if !emit(StreamEvent{Text: string(text)}) {
							return
						}
					}
				}
			}
		}
	}()
	return ch, nil
}

func mapGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &Error{Kind: statusKind(apiErr.Code), Message: "gemini: " + apiErr.Message, Err: err}
	}
	return &Error{Kind: KindTransport, Message: "gemini: stream failed", Err: err}
}
