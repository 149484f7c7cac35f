package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"trivia-stats-service/internal/domain"
)

// QuestionSource supplies the next trivia question (see internal/trivia).
type QuestionSource interface {
	NextQuestion(ctx context.Context) (domain.Question, error)
}

// PollPublisher posts a quiz poll to a chat. It is the messaging boundary;
// the scheduler neither formats messages nor retries sends.
type PollPublisher interface {
	PublishQuiz(ctx context.Context, chatID string, question domain.Question) error
}

// Scheduler runs one recurring quiz loop per chat. Starting a chat that
// already has a loop replaces it, mirroring how a repeated /quiz command
// resets the question frequency.
type Scheduler struct {
	source    QuestionSource
	publisher PollPublisher

	mu    sync.Mutex
	jobs  map[string]context.CancelFunc
	group errgroup.Group
}

func New(source QuestionSource, publisher PollPublisher) *Scheduler {
	return &Scheduler{
		source:    source,
		publisher: publisher,
		jobs:      make(map[string]context.CancelFunc),
	}
}

// Start begins a recurring quiz for the chat. It reports whether an existing
// loop was replaced.
func (s *Scheduler) Start(ctx context.Context, chatID string, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	if cancel, ok := s.jobs[chatID]; ok {
		cancel()
		replaced = true
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s.jobs[chatID] = cancel
	s.group.Go(func() error {
		s.run(jobCtx, chatID, interval)
		return nil
	})
	return replaced
}

// Stop cancels the chat's quiz loop. It reports whether a loop was running.
func (s *Scheduler) Stop(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.jobs[chatID]
	if !ok {
		return false
	}
	cancel()
	delete(s.jobs, chatID)
	return true
}

// Shutdown cancels every loop and waits for them to finish.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for chatID, cancel := range s.jobs {
		cancel()
		delete(s.jobs, chatID)
	}
	s.mu.Unlock()
	_ = s.group.Wait()
}

func (s *Scheduler) run(ctx context.Context, chatID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			question, err := s.source.NextQuestion(ctx)
			if err != nil {
				log.Printf("chat %s: fetch question: %v", chatID, err)
				continue
			}
			if err := s.publisher.PublishQuiz(ctx, chatID, question); err != nil {
				log.Printf("chat %s: publish quiz: %v", chatID, err)
			}
		}
	}
}
