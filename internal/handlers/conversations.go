package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lawfi-backend/internal/middleware"
	"lawfi-backend/internal/models"
	"lawfi-backend/internal/repository"
	"lawfi-backend/internal/services"
)

type ConversationHandler struct {
	chatRepo *repository.ChatRepo
	queue    *redis.Client
	notifier *services.Notifier
}

func NewConversationHandler(chatRepo *repository.ChatRepo, queue *redis.Client, notifier *services.Notifier) *ConversationHandler {
	return &ConversationHandler{chatRepo: chatRepo, queue: queue, notifier: notifier}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summaries, err := h.chatRepo.ListByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch conversations", r))
		return
	}
	if summaries == nil {
		summaries = []*models.ConversationSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": summaries})
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	conv, err := h.chatRepo.Create(r.Context(), userID, strings.TrimSpace(req.Title))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create conversation", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"conversation": conv})
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	messages, err := h.chatRepo.GetMessages(r.Context(), conv.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch messages", r))
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"messages":     messages,
	})
}

func (h *ConversationHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.ownedConversation(w, r)
	if !ok {
		return
	}

	var req models.AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.Role != "user" && req.Role != "assistant" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Role must be user or assistant", r))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Content is required", r))
		return
	}

	msg, err := h.chatRepo.AppendMessage(r.Context(), conv.ID, req.Role, req.Content)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to append message", r))
		return
	}

	// The opening user message queues async title generation.
	if req.Role == "user" {
		if count, err := h.chatRepo.MessageCount(r.Context(), conv.ID); err == nil && count == 1 {
			h.enqueueTitleJob(r, conv, req.Content)
		}
	}

	h.notifier.Publish(r.Context(), conv.UserID, models.WSMessage{
		Type:    "conversation_updated",
		Payload: models.ConversationUpdate{ConversationID: conv.ID},
	})

	writeJSON(w, http.StatusCreated, map[string]interface{}{"message": msg})
}

func (h *ConversationHandler) enqueueTitleJob(r *http.Request, conv *models.Conversation, firstMessage string) {
	job := models.TitleJob{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		FirstMessage:   firstMessage,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	h.queue.RPush(r.Context(), models.TitleQueue, string(data))
}

// ownedConversation loads the conversation in the URL and verifies it
// belongs to the requesting user. Non-owners get the same 404 as a
// missing conversation, never a hint that it exists.
func (h *ConversationHandler) ownedConversation(w http.ResponseWriter, r *http.Request) (*models.Conversation, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid conversation ID", r))
		return nil, false
	}

	conv, err := h.chatRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Conversation not found", r))
		return nil, false
	}

	if conv.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Conversation not found", r))
		return nil, false
	}

	return conv, true
}
