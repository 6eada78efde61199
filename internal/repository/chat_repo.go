package repository

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"lawfi-backend/internal/models"
)

// ChatRepo persists conversations and their messages. Ownership checks
// belong to the caller; the repo answers for any conversation id.
type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

func (r *ChatRepo) Create(ctx context.Context, userID uuid.UUID, title string) (*models.Conversation, error) {
	if title == "" {
		title = "New Conversation"
	}

	conv := &models.Conversation{
		ID:     uuid.New(),
		UserID: userID,
		Title:  title,
	}

	query := `INSERT INTO conversations (id, user_id, title)
		VALUES ($1, $2, $3) RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, conv.ID, conv.UserID, conv.Title).
		Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *ChatRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	query := `SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// AppendMessage stores one message and bumps the conversation's
// last-modified marker in the same transaction.
func (r *ChatRepo) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, role, content)
		 VALUES ($1, $2, $3, $4) RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListByUser returns the user's conversations ordered by recency, each
// with a preview of its opening message and a message count.
func (r *ChatRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.ConversationSummary, error) {
	query := `SELECT c.id, c.title, c.created_at, c.updated_at,
		COALESCE((SELECT m.content FROM messages m
			WHERE m.conversation_id = c.id ORDER BY m.created_at ASC LIMIT 1), ''),
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		WHERE c.user_id = $1
		ORDER BY c.updated_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*models.ConversationSummary
	for rows.Next() {
		s := &models.ConversationSummary{}
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt, &s.Preview, &s.MessageCount); err != nil {
			return nil, err
		}
		s.Preview = truncateUTF8(s.Preview, 120)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// GetMessages returns a conversation's messages in chronological order.
func (r *ChatRepo) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.ChatMessage, error) {
	query := `SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		m := &models.ChatMessage{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MessageCount is used to decide whether an append was the first
// message (which triggers title generation).
func (r *ChatRepo) MessageCount(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// truncateUTF8 caps s at max bytes without splitting a multi-byte rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func (r *ChatRepo) UpdateTitle(ctx context.Context, conversationID uuid.UUID, title string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET title = $2 WHERE id = $1`, conversationID, title)
	return err
}
