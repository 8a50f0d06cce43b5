package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"voice-assistant/internal/domain"
)

// Conversation keeps the conversation log and turns completed transcripts
// into assistant replies.
type Conversation struct {
	chat    ChatCompleter
	speech  SpeechSynthesizer
	metrics Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	entries  []domain.ConversationEntry
	consumed map[string]bool
}

func NewConversation(chat ChatCompleter, speech SpeechSynthesizer, metrics Metrics, logger *slog.Logger) *Conversation {
	return &Conversation{
		chat:     chat,
		speech:   speech,
		metrics:  metrics,
		logger:   logger,
		consumed: make(map[string]bool),
	}
}

// Handle runs a full turn for a completed job: Begin, Complete, Finish.
// A job that was already handled is ignored.
func (c *Conversation) Handle(ctx context.Context, job domain.TranscriptionJob) error {
	text, ok := c.Begin(job)
	if !ok {
		return nil
	}

	reply, err := c.Complete(ctx, text)
	if err != nil {
		return err
	}

	c.Finish(ctx, reply)
	return nil
}

// Begin appends the user's transcript to the log. It reports false if the job
// is not completed or has been seen before.
func (c *Conversation) Begin(job domain.TranscriptionJob) (string, bool) {
	if job.Status != domain.JobCompleted {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.consumed[job.ID] {
		c.logger.Debug("transcript already handled", "job_id", job.ID)
		return "", false
	}
	c.consumed[job.ID] = true
	c.entries = append(c.entries, domain.ConversationEntry{Sender: domain.SenderUser, Text: job.Text})

	return job.Text, true
}

func (c *Conversation) Complete(ctx context.Context, text string) (string, error) {
	start := time.Now()

	reply, err := c.chat.Complete(ctx, text)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	c.metrics.ObserveCompletion(time.Since(start), err)

	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err)
	}
	return reply, nil
}

// Finish appends the assistant reply and speaks it.
func (c *Conversation) Finish(ctx context.Context, reply string) {
	c.mu.Lock()
	c.entries = append(c.entries, domain.ConversationEntry{Sender: domain.SenderAssistant, Text: reply})
	c.mu.Unlock()

	if err := c.speech.Speak(ctx, reply); err != nil {
		c.logger.Warn("speaking reply", "error", err)
	}
}

func (c *Conversation) Entries() []domain.ConversationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.ConversationEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
