// Package chatclient is a Go client for the chat relay and conversation
// APIs. It drives one streaming turn at a time through an explicit state
// machine and reconciles the growing assistant reply into a transcript.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lawfi-backend/internal/models"
	"lawfi-backend/internal/sse"
)

// State of one conversation turn.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateSettledSuccess
	StateSettledFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateSettledSuccess:
		return "settled_success"
	case StateSettledFailed:
		return "settled_failed"
	default:
		return "unknown"
	}
}

// Message is one transcript entry. IsError marks a synthesized failure
// notice rather than model output.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Client talks to the backend over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient builds a Client for the given base URL. The token, if set,
// is sent as a bearer credential on every request.
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// SetHTTPClient overrides the underlying HTTP client, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON sends a request and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", method, path, readAPIError(resp.Body, resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// readAPIError extracts a human-readable message from an error body,
// accepting both the flat relay shape and the enveloped API shape.
func readAPIError(r io.Reader, status int) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return fmt.Sprintf("HTTP %d", status)
	}

	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}

	var envelope models.ErrorResponse
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fmt.Sprintf("HTTP %d", status)
}

// CreateConversation creates a new conversation and returns it.
func (c *Client) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	var out struct {
		Conversation *models.Conversation `json:"conversation"`
	}
	req := models.CreateConversationRequest{Title: title}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/conversations", req, &out); err != nil {
		return nil, err
	}
	return out.Conversation, nil
}

// AppendMessage records one message in a conversation.
func (c *Client) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*models.ChatMessage, error) {
	var out struct {
		Message *models.ChatMessage `json:"message"`
	}
	req := models.AppendMessageRequest{Role: role, Content: content}
	path := "/api/v1/conversations/" + conversationID.String() + "/messages"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return out.Message, nil
}

// ListConversations returns the caller's conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetConversation returns one conversation with its ordered messages.
func (c *Client) GetConversation(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, []models.ChatMessage, error) {
	var out struct {
		Conversation *models.Conversation `json:"conversation"`
		Messages     []models.ChatMessage `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/conversations/"+conversationID.String(), nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Conversation, out.Messages, nil
}

// Session holds the transcript of one ongoing conversation and runs the
// per-turn state machine.
type Session struct {
	client *Client

	mu       sync.Mutex
	state    State
	messages []Message
}

// NewSession starts an empty session over the given client.
func NewSession(client *Client) *Session {
	return &Session{client: client, state: StateIdle}
}

// State returns the current turn state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a snapshot of the transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// begin applies the submit guard: empty input and in-flight turns are
// rejected without touching the transcript.
func (s *Session) begin(input string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if input == "" {
		return false
	}
	if s.state == StateSending || s.state == StateStreaming {
		return false
	}
	s.state = StateSending
	s.messages = append(s.messages, Message{
		ID:      uuid.NewString(),
		Role:    "user",
		Content: input,
	})
	return true
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// appendPlaceholder adds the empty assistant message the stream will
// fill in, and returns its id.
func (s *Session) appendPlaceholder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.messages = append(s.messages, Message{ID: id, Role: "assistant"})
	s.state = StateStreaming
	return id
}

// appendToMessage grows the message with the given id by one fragment.
func (s *Session) appendToMessage(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content += text
			return
		}
	}
}

// fail settles the turn with a synthesized assistant-role error notice.
func (s *Session) fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{
		ID:      uuid.NewString(),
		Role:    "assistant",
		Content: "Sorry, something went wrong: " + reason,
		IsError: true,
	})
	s.state = StateSettledFailed
}

// history converts the transcript into the relay request shape,
// leaving synthesized error notices out.
func (s *Session) history() []models.TurnMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TurnMessage, 0, len(s.messages))
	for _, m := range s.messages {
		if m.IsError {
			continue
		}
		out = append(out, models.TurnMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Send submits one user turn and blocks until the turn settles. The
// returned error reports programmer mistakes only; provider and
// transport failures settle the turn and surface in the transcript.
func (s *Session) Send(ctx context.Context, input string) error {
	if !s.begin(strings.TrimSpace(input)) {
		return nil
	}

	req, err := s.client.newRequest(ctx, http.MethodPost, "/api/v1/chat", models.ChatRequest{Messages: s.history()})
	if err != nil {
		s.fail(err.Error())
		return err
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		// Nothing arrived; no placeholder was ever created.
		s.fail("could not reach the assistant")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.fail(readAPIError(resp.Body, resp.StatusCode))
		return nil
	}

	// First bytes of the response are in flight: the reply starts
	// forming in the transcript from here on.
	placeholderID := s.appendPlaceholder()

	decoder := sse.NewDecoder(resp.Body)
	for {
		ev, err := decoder.Next()
		if err == io.EOF {
			s.setState(StateSettledSuccess)
			return nil
		}
		if err != nil {
			// The sentinel never arrived. Keep whatever was delivered
			// and mark the turn failed.
			s.fail("the response was cut off before completion")
			return nil
		}
		switch ev.Type {
		case sse.EventText:
			s.appendToMessage(placeholderID, ev.Text)
		case sse.EventDone:
			s.setState(StateSettledSuccess)
			return nil
		}
	}
}
