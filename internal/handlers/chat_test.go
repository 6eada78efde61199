package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lawfi-backend/internal/llm"
	"lawfi-backend/internal/models"
	"lawfi-backend/internal/sse"
)

// fakeAdapter replays scripted events, or fails before streaming.
type fakeAdapter struct {
	events []llm.StreamEvent
	preErr error
}

func (f *fakeAdapter) Stream(ctx context.Context, history []models.TurnMessage) (<-chan llm.StreamEvent, error) {
	if f.preErr != nil {
		return nil, f.preErr
	}
	ch := make(chan llm.StreamEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func relayRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRelay_StreamsFragmentsAndSentinel(t *testing.T) {
	adapter := &fakeAdapter{events: []llm.StreamEvent{
		{Text: "Early lease termination "},
		{Text: "usually depends on "},
		{Text: "your contract terms."},
	}}
	h := NewChatHandler(adapter, "ANTHROPIC_API_KEY")

	rr := httptest.NewRecorder()
	h.Relay(rr, relayRequest(`{"messages":[{"role":"user","content":"Can I terminate a lease early?"}]}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}

	body := rr.Body.String()
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("body does not end with the terminal sentinel: %q", body)
	}

	d := sse.NewDecoder(strings.NewReader(body))
	var content string
	for {
		ev, err := d.Next()
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if ev.Type == sse.EventDone {
			break
		}
		content += ev.Text
	}
	if content != "Early lease termination usually depends on your contract terms." {
		t.Errorf("reassembled content = %q", content)
	}
}

func TestRelay_RequestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"messages not an array", `{"messages":"hello"}`},
		{"messages null", `{"messages":null}`},
		{"messages empty array", `{"messages":[]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewChatHandler(&fakeAdapter{}, "ANTHROPIC_API_KEY")
			rr := httptest.NewRecorder()
			h.Relay(rr, relayRequest(tc.body))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp["error"] != "Messages array is required" {
				t.Errorf("error = %q, want %q", resp["error"], "Messages array is required")
			}
		})
	}
}

func TestRelay_MissingCredentialIsConfigError(t *testing.T) {
	h := NewChatHandler(nil, "ANTHROPIC_API_KEY")

	rr := httptest.NewRecorder()
	h.Relay(rr, relayRequest(`{"messages":[{"role":"user","content":"hi"}]}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if !strings.Contains(resp["error"], "ANTHROPIC_API_KEY") {
		t.Errorf("error %q does not name the missing configuration", resp["error"])
	}
}

func TestRelay_PreStreamProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		kind       llm.ErrorKind
		wantStatus int
	}{
		{"auth rejected", llm.KindAuth, http.StatusUnauthorized},
		{"quota exhausted", llm.KindQuota, http.StatusBadRequest},
		{"model unavailable", llm.KindModel, http.StatusNotFound},
		{"transport failure", llm.KindTransport, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter := &fakeAdapter{preErr: &llm.Error{Kind: tc.kind, Message: "provider said no"}}
			h := NewChatHandler(adapter, "ANTHROPIC_API_KEY")

			rr := httptest.NewRecorder()
			h.Relay(rr, relayRequest(`{"messages":[{"role":"user","content":"hi"}]}`))

			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json (no stream opened)", ct)
			}
			if strings.Contains(rr.Body.String(), "data:") {
				t.Error("no partial stream may be opened on a pre-stream failure")
			}
		})
	}
}

func TestRelay_ErrorOnChannelBeforeFirstFragment(t *testing.T) {
	adapter := &fakeAdapter{events: []llm.StreamEvent{
		{Err: &llm.Error{Kind: llm.KindAuth, Message: "invalid x-api-key"}},
	}}
	h := NewChatHandler(adapter, "ANTHROPIC_API_KEY")

	rr := httptest.NewRecorder()
	h.Relay(rr, relayRequest(`{"messages":[{"role":"user","content":"hi"}]}`))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "data:") {
		t.Error("no partial stream may be opened when the error precedes all fragments")
	}
}

func TestRelay_MidStreamFailureTruncatesWithoutSentinel(t *testing.T) {
	adapter := &fakeAdapter{events: []llm.StreamEvent{
		{Text: "partial "},
		{Text: "answer"},
		{Err: errors.New("connection reset")},
	}}
	h := NewChatHandler(adapter, "ANTHROPIC_API_KEY")

	rr := httptest.NewRecorder()
	h.Relay(rr, relayRequest(`{"messages":[{"role":"user","content":"hi"}]}`))

	// Headers were already committed as a stream.
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"partial "`) || !strings.Contains(body, `"answer"`) {
		t.Errorf("delivered fragments must not be retracted: %q", body)
	}
	if strings.Contains(body, "[DONE]") {
		t.Error("a failed stream must not carry the terminal sentinel")
	}
}
