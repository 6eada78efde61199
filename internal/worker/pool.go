package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"lawfi-backend/internal/llm"
	"lawfi-backend/internal/models"
	"lawfi-backend/internal/repository"
	"lawfi-backend/internal/services"
)

// Pool runs background jobs pulled off Redis queues. The only job type
// today is title generation for new conversations.
type Pool struct {
	redis       *redis.Client
	adapter     llm.Adapter
	chatRepo    *repository.ChatRepo
	notifier    *services.Notifier
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	adapter llm.Adapter,
	chatRepo *repository.ChatRepo,
	notifier *services.Notifier,
	workerCount int,
) *Pool {
	return &Pool{
		redis:       redisClient,
		adapter:     adapter,
		chatRepo:    chatRepo,
		notifier:    notifier,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, models.TitleQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var job models.TitleJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Try to acquire lock so two workers never title the same
		// conversation.
		lockKey := fmt.Sprintf("job_lock:title:%s", job.ConversationID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		log.Printf("Worker %d: generating title for conversation %s", id, job.ConversationID)

		if err := p.processTitle(ctx, &job); err != nil {
			log.Printf("Worker %d: title generation failed for %s: %v", id, job.ConversationID, err)
		}

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) processTitle(ctx context.Context, job *models.TitleJob) error {
	if p.adapter == nil {
		return fmt.Errorf("no generation adapter configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	history := []models.TurnMessage{
		{Role: "user", Content: llm.TitlePrompt + "\n\n" + job.FirstMessage},
	}
	raw, err := llm.Complete(ctx, p.adapter, history)
	if err != nil {
		return fmt.Errorf("failed to generate title: %w", err)
	}

	title := cleanTitle(raw)
	if title == "" {
		return fmt.Errorf("provider returned an empty title")
	}

	if err := p.chatRepo.UpdateTitle(ctx, job.ConversationID, title); err != nil {
		return fmt.Errorf("failed to store title: %w", err)
	}

	p.notifier.Publish(ctx, job.UserID, models.WSMessage{
		Type: "conversation_updated",
		Payload: models.ConversationUpdate{
			ConversationID: job.ConversationID,
			Title:          title,
		},
	})
	return nil
}

// cleanTitle strips quoting and trailing punctuation the model tends to
// add despite the prompt, and caps the length for the sidebar.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, `"'`)
	title = strings.TrimRight(title, ".!?")
	title = strings.TrimSpace(title)
	if len(title) > 80 {
		// Back off to a rune boundary so Thai titles are never cut
		// mid-character.
		cut := 80
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = strings.TrimSpace(title[:cut])
	}
	return title
}
