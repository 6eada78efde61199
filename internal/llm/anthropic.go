package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lawfi-backend/internal/models"
)

// AnthropicAdapter streams completions from the Anthropic Messages API.
type AnthropicAdapter struct {
	apiKey      string
	baseURL     string
	model       string
	system      string
	maxTokens   int
	temperature float64
	version     string
	httpClient  *http.Client
}

type AnthropicConfig struct {
	APIKey         string
	BaseURL        string // optional, defaults to https://api.anthropic.com
	Model          string
	System         string
	MaxTokens      int
	Temperature    float64
	Version        string // optional, defaults to 2023-06-01
	RequestTimeout time.Duration
}

var _ Adapter = (*AnthropicAdapter)(nil)

func NewAnthropic(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key required")
	}

	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	version := cfg.Version
	if version == "" {
		version = "2023-06-01"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	return &AnthropicAdapter{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       cfg.Model,
		system:      cfg.System,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		version:     version,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// anthropicStreamEvent is the minimal schema of the provider's SSE feed.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
}

func (a *AnthropicAdapter) Stream(ctx context.Context, history []models.TurnMessage) (<-chan StreamEvent, error) {
	if len(history) == 0 {
		return nil, errors.New("anthropic: no messages provided")
	}

	messages := make([]anthropicMessage, 0, len(history))
	for _, m := range history {
		role := "assistant"
		if m.Role == "user" {
			role = "user"
		}
		messages = append(messages, anthropicMessage{Role: role, Content: m.Content})
	}

	payload := map[string]interface{}{
		"model":       a.model,
		"messages":    messages,
		"max_tokens":  a.maxTokens,
		"temperature": a.temperature,
		"stream":      true,
	}
	if a.system != "" {
		payload["system"] = a.system
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", a.version)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "anthropic: send request", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)

		message := fmt.Sprintf("anthropic: http %d", resp.StatusCode)
		var envelope anthropicErrorEnvelope
		if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
			message = "anthropic: " + envelope.Error.Message
		}
		return nil, &Error{Kind: statusKind(resp.StatusCode), Message: message}
	}

	ch := make(chan StreamEvent, 10)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

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

		buf := make([]byte, 8192)
		leftover := ""
		for {
			select {
			case <-ctx.Done():
				emit(StreamEvent{Err: &Error{Kind: KindTransport, Message: "anthropic: request cancelled", Err: ctx.Err()}})
				return
			default:
			}

			n, err := resp.Body.Read(buf)
			if n > 0 {
				data := leftover + string(buf[:n])
				lines := strings.Split(data, "\n")
				leftover = lines[len(lines)-1]
				for _, line := range lines[:len(lines)-1] {
					line = strings.TrimSpace(line)
					if !strings.HasPrefix(line, "data:") {
						continue
					}
					payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
					if payload == "" || payload == "{}" || payload == "[DONE]" {
						continue
					}

					var evt anthropicStreamEvent
					if perr := json.Unmarshal([]byte(payload), &evt); perr != nil {
						continue
					}
					if evt.Type == "content_block_delta" && evt.Delta.Type == "text_delta" && evt.Delta.Text != "" {
						if !emit(StreamEvent{Text: evt.Delta.Text}) {
							return
						}
						continue
					}
					if evt.Type == "message_stop" {
						return
					}
				}
			}
			if err != nil {
				if err == io.EOF {
					return
				}
				emit(StreamEvent{Err: &Error{Kind: KindTransport, Message: "anthropic: read stream", Err: err}})
				return
			}
		}
	}()
	return ch, nil
}
