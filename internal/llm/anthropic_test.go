package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"lawfi-backend/internal/models"
)

func anthropicTestServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got == "" {
			t.Error("missing x-api-key header")
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, ev := range events {
			fmt.Fprintf(w, "%s\n", ev)
			flusher.Flush()
		}
	}))
}

func TestAnthropicStream_Success(t *testing.T) {
	server := anthropicTestServer(t, []string{
		`event: message_start`,
		`data: {"type":"message_start"}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"lo, "}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"world"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	})
	defer server.Close()

	adapter, err := NewAnthropic(AnthropicConfig{
		APIKey:  "sk-test",
		BaseURL: server.URL,
		Model:   "claude-3-5-haiku-20241022",
	})
	if err != nil {
		t.Fatalf("NewAnthropic() error: %v", err)
	}

	ch, err := adapter.Stream(context.Background(), []models.TurnMessage{
		{Role: "user", Content: "Can I terminate a lease early?"},
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	var got string
	var fragments int
	for ev := range ch {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		got += ev.Text
		fragments++
	}

	if got != "Hello, world" {
		t.Errorf("content = %q, want %q", got, "Hello, world")
	}
	if fragments != 3 {
		t.Errorf("fragments = %d, want 3", fragments)
	}
}

func TestAnthropicStream_SkipsNonTextEvents(t *testing.T) {
	server := anthropicTestServer(t, []string{
		`data: {"type":"content_block_start"}`,
		``,
		`data: not-json`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"only this"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	})
	defer server.Close()

	adapter, _ := NewAnthropic(AnthropicConfig{APIKey: "sk-test", BaseURL: server.URL})

	ch, err := adapter.Stream(context.Background(), []models.TurnMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	var got string
	for ev := range ch {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		got += ev.Text
	}
	if got != "only this" {
		t.Errorf("content = %q, want %q", got, "only this")
	}
}

func TestAnthropicStream_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"auth rejected", 401, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, KindAuth},
		{"quota exhausted", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"credit balance is too low"}}`, KindQuota},
		{"model unavailable", 404, `{"type":"error","error":{"type":"not_found_error","message":"model not found"}}`, KindModel},
		{"server error", 500, `oops`, KindTransport},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			adapter, _ := NewAnthropic(AnthropicConfig{APIKey: "sk-test", BaseURL: server.URL})

			_, err := adapter.Stream(context.Background(), []models.TurnMessage{{Role: "user", Content: "hi"}})
			if err == nil {
				t.Fatal("expected pre-stream error")
			}
			if got := KindOf(err); got != tc.kind {
				t.Errorf("KindOf(err) = %v, want %v", got, tc.kind)
			}
		})
	}
}

func TestAnthropicStream_AbandonedConsumerReleasesProducer(t *testing.T) {
	// Far more fragments than the channel buffers, so the producer
	// would park on a send if cancellation were ignored mid-stream.
	events := make([]string, 0, 402)
	for i := 0; i < 200; i++ {
		events = append(events,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"x"}}`,
			``,
		)
	}
	events = append(events, `data: {"type":"message_stop"}`, ``)

	server := anthropicTestServer(t, events)
	defer server.Close()

	before := runtime.NumGoroutine()

	adapter, _ := NewAnthropic(AnthropicConfig{APIKey: "sk-test", BaseURL: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := adapter.Stream(ctx, []models.TurnMessage{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	// Read one event, then disconnect the way an aborted client does:
	// cancel and never touch the channel again.
	<-ch
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("producer goroutine still running: %d goroutines before, %d after", before, runtime.NumGoroutine())
}

func TestNewAnthropic_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropic(AnthropicConfig{}); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestComplete_DrainsStream(t *testing.T) {
	server := anthropicTestServer(t, []string{
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Lease "}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Termination"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	})
	defer server.Close()

	adapter, _ := NewAnthropic(AnthropicConfig{APIKey: "sk-test", BaseURL: server.URL})

	got, err := Complete(context.Background(), adapter, []models.TurnMessage{{Role: "user", Content: "title please"}})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got != "Lease Termination" {
		t.Errorf("Complete() = %q, want %q", got, "Lease Termination")
	}
}
