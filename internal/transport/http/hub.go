package http

import (
	"context"
	"sync"

	"trivia-stats-service/internal/domain"
)

// Hub fans scheduled quiz polls out to the chat's connected clients. It is the
// scheduler.PollPublisher for the WebSocket transport.
type Hub struct {
	mu    sync.RWMutex
	chats map[string]map[chan outboundMessage[any]]struct{}
}

func NewHub() *Hub {
	return &Hub{chats: make(map[string]map[chan outboundMessage[any]]struct{})}
}

// PublishQuiz delivers a quiz poll to every connection in the chat.
func (h *Hub) PublishQuiz(_ context.Context, chatID string, question domain.Question) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for send := range h.chats[chatID] {
		select {
		case send <- outboundMessage[any]{Type: "quiz", Payload: question}:
		default:
			// Slow client; it will catch up from its next leaderboard pull.
		}
	}
	return nil
}

func (h *Hub) subscribe(chatID string, send chan outboundMessage[any]) func() {
	h.mu.Lock()
	conns, ok := h.chats[chatID]
	if !ok {
		conns = make(map[chan outboundMessage[any]]struct{})
		h.chats[chatID] = conns
	}
	conns[send] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(conns, send)
		if len(conns) == 0 {
			delete(h.chats, chatID)
		}
		h.mu.Unlock()
	}
}
