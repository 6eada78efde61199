package handlers

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"

	"lawfi-backend/internal/llm"
	"lawfi-backend/internal/models"
	"lawfi-backend/internal/sse"
)

// ChatHandler relays a conversation history to the generation provider
// and streams the reply back as server-sent events. It performs no
// persistence; recording the finished turn is the caller's job.
type ChatHandler struct {
	adapter    llm.Adapter // nil when no provider credential is configured
	credEnvVar string      // named in the configuration error message
}

func NewChatHandler(adapter llm.Adapter, credEnvVar string) *ChatHandler {
	return &ChatHandler{adapter: adapter, credEnvVar: credEnvVar}
}

// relayError is the flat error body of the streaming endpoint, matching
// what the stream consumer expects on a non-success status.
func relayError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// adapterStatus maps a provider failure class to a user-facing status
// and remediation message. This table is the only place provider
// failures and HTTP statuses meet.
func adapterStatus(kind llm.ErrorKind) (int, string) {
	switch kind {
	case llm.KindAuth:
		return http.StatusUnauthorized, "Invalid API key. Please check your provider credential configuration."
	case llm.KindQuota:
		return http.StatusBadRequest, "Credit balance too low. Please add credits to your provider account."
	case llm.KindModel:
		return http.StatusNotFound, "Model not available. Please check your account tier."
	default:
		return http.StatusInternalServerError, "Internal server error. Check server logs for details."
	}
}

func (h *ChatHandler) Relay(w http.ResponseWriter, r *http.Request) {
	// Configuration is checked before anything touches the network.
	if h.adapter == nil {
		relayError(w, http.StatusInternalServerError,
			"Generation API key not configured. Please set "+h.credEnvVar+".")
		return
	}

	var req struct {
		Messages json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		relayError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	trimmed := bytes.TrimSpace(req.Messages)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		relayError(w, http.StatusBadRequest, "Messages array is required")
		return
	}

	var messages []models.TurnMessage
	if err := json.Unmarshal(trimmed, &messages); err != nil || len(messages) == 0 {
		relayError(w, http.StatusBadRequest, "Messages array is required")
		return
	}

	ch, err := h.adapter.Stream(r.Context(), messages)
	if err != nil {
		status, message := adapterStatus(llm.KindOf(err))
		relayError(w, status, message)
		return
	}

	// Peek at the first event so provider failures that arrive on the
	// channel before any fragment still become a proper HTTP error
	// instead of an empty stream.
	first, open := <-ch
	if open && first.Err != nil {
		status, message := adapterStatus(llm.KindOf(first.Err))
		relayError(w, status, message)
		return
	}

	// From here on headers are committed; failures can only truncate.
	writer := sse.NewWriter(w)
	if open {
		if err := writer.Text(first.Text); err != nil {
			return
		}
	}

	for ev := range ch {
		if ev.Err != nil {
			// Partial output already delivered stays delivered; the
			// missing sentinel tells the consumer this turn failed.
			log.Printf("chat: stream aborted: %v", ev.Err)
			return
		}
		if err := writer.Text(ev.Text); err != nil {
			return
		}
	}

	writer.Done()
}
