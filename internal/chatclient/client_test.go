package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lawfi-backend/internal/models"
)

// streamServer answers the relay route with scripted SSE lines.
func streamServer(t *testing.T, lines []string, sendDone bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat" {
			http.NotFound(w, r)
			return
		}
		var req models.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			t.Errorf("relay received malformed history: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			w.Write([]byte(line))
		}
		if sendDone {
			w.Write([]byte("data: [DONE]\n\n"))
		}
	}))
}

func TestSend_ReconcilesFragmentsIntoOneMessage(t *testing.T) {
	srv := streamServer(t, []string{
		"data: {\"text\":\"Hel\"}\n\n",
		"data: {\"text\":\"lo, \"}\n\n",
		"data: {\"text\":\"world\"}\n\n",
	}, true)
	defer srv.Close()

	session := NewSession(NewClient(srv.URL, "test-token"))
	if err := session.Send(context.Background(), "say hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if session.State() != StateSettledSuccess {
		t.Errorf("state = %v, want settled_success", session.State())
	}

	msgs := session.Messages()
	if len(msgs) != 2 {
		t.Fatalf("transcript has %d messages, want 2 (user + assistant): %+v", len(msgs), msgs)
	}
	assistant := msgs[1]
	if assistant.Role != "assistant" {
		t.Errorf("second message role = %q, want assistant", assistant.Role)
	}
	if assistant.Content != "Hello, world" {
		t.Errorf("assistant content = %q, want %q", assistant.Content, "Hello, world")
	}
	if assistant.IsError {
		t.Error("successful reply must not be marked as an error notice")
	}
}

func TestSend_FetchFailureSynthesizesOneErrorMessage(t *testing.T) {
	// A closed server makes the request fail before any byte arrives.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	session := NewSession(NewClient(srv.URL, ""))
	if err := session.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if session.State() != StateSettledFailed {
		t.Errorf("state = %v, want settled_failed", session.State())
	}

	msgs := session.Messages()
	if len(msgs) != 2 {
		t.Fatalf("transcript has %d messages, want user turn + one error notice: %+v", len(msgs), msgs)
	}
	notice := msgs[1]
	if !notice.IsError || notice.Role != "assistant" {
		t.Errorf("expected one synthesized assistant error notice, got %+v", notice)
	}
	if notice.Content == "" {
		t.Error("error notice must carry a human-readable explanation")
	}
	// No half-built placeholder may be left behind.
	for _, m := range msgs {
		if m.Role == "assistant" && !m.IsError {
			t.Errorf("found a leftover placeholder message: %+v", m)
		}
	}
}

func TestSend_NonSuccessStatusSettlesFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Invalid API key. Please check your configuration."}`))
	}))
	defer srv.Close()

	session := NewSession(NewClient(srv.URL, ""))
	session.Send(context.Background(), "hello")

	if session.State() != StateSettledFailed {
		t.Fatalf("state = %v, want settled_failed", session.State())
	}
	msgs := session.Messages()
	last := msgs[len(msgs)-1]
	if !last.IsError {
		t.Fatalf("last message is not an error notice: %+v", last)
	}
	if want := "Invalid API key. Please check your configuration."; !strings.Contains(last.Content, want) {
		t.Errorf("error notice %q does not carry the server message %q", last.Content, want)
	}
}

func TestSend_TruncatedStreamKeepsPartialAndFails(t *testing.T) {
	srv := streamServer(t, []string{
		"data: {\"text\":\"The notice period \"}\n\n",
		"data: {\"text\":\"is typically\"}\n\n",
	}, false) // stream ends without the sentinel
	defer srv.Close()

	session := NewSession(NewClient(srv.URL, ""))
	session.Send(context.Background(), "what is the notice period?")

	if session.State() != StateSettledFailed {
		t.Fatalf("state = %v, want settled_failed", session.State())
	}

	msgs := session.Messages()
	if len(msgs) != 3 {
		t.Fatalf("transcript has %d messages, want user + partial + error notice: %+v", len(msgs), msgs)
	}
	if got := msgs[1].Content; got != "The notice period is typically" {
		t.Errorf("partial content = %q; delivered fragments must be kept", got)
	}
	if !msgs[2].IsError {
		t.Errorf("truncation must append a synthesized error notice, got %+v", msgs[2])
	}
}

func TestSend_MalformedEventsAreSkipped(t *testing.T) {
	srv := streamServer(t, []string{
		"data: {\"text\":\"valid \"}\n\n",
		"data: {not json}\n\n",
		": comment line\n\n",
		"data: {\"text\":\"still valid\"}\n\n",
	}, true)
	defer srv.Close()

	session := NewSession(NewClient(srv.URL, ""))
	session.Send(context.Background(), "hello")

	if session.State() != StateSettledSuccess {
		t.Fatalf("state = %v, want settled_success", session.State())
	}
	if got := session.Messages()[1].Content; got != "valid still valid" {
		t.Errorf("content = %q, want malformed events dropped silently", got)
	}
}

func TestSend_SubmitGuard(t *testing.T) {
	session := NewSession(NewClient("http://unused.invalid", ""))

	if err := session.Send(context.Background(), "   "); err != nil {
		t.Fatalf("Send with blank input: %v", err)
	}
	if len(session.Messages()) != 0 {
		t.Error("blank input must not enter the transcript")
	}
	if session.State() != StateIdle {
		t.Errorf("state = %v, want idle", session.State())
	}
}

func TestSend_ReentrancyGuard(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"text\":\"ok\"}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()
	defer once.Do(func() { close(release) })

	session := NewSession(NewClient(srv.URL, ""))

	done := make(chan struct{})
	go func() {
		defer close(done)
		session.Send(context.Background(), "first")
	}()

	// Wait until the first turn is in flight, then try to submit again.
	for session.State() != StateSending {
		time.Sleep(time.Millisecond)
	}
	session.Send(context.Background(), "second")

	msgs := session.Messages()
	if len(msgs) != 1 || msgs[0].Content != "first" {
		t.Errorf("in-flight turn must make a second submit a no-op, transcript: %+v", msgs)
	}

	once.Do(func() { close(release) })
	<-done

	if session.State() != StateSettledSuccess {
		t.Errorf("state = %v, want settled_success", session.State())
	}
}
