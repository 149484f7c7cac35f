package memory

import (
	"context"
	"sync"

	"trivia-stats-service/internal/domain"
)

// StatsStore is an in-memory implementation of app.StatsRepository, used in
// tests and when no backing store is configured. Each chat gets its own map.
type StatsStore struct {
	mu    sync.RWMutex
	chats map[string]map[string]domain.UserRecord
}

func NewStatsStore() *StatsStore {
	return &StatsStore{
		chats: make(map[string]map[string]domain.UserRecord),
	}
}

func (s *StatsStore) Get(_ context.Context, chatID, userName string) (domain.UserRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.chats[chatID][userName]
	return clone(record), ok, nil
}

func (s *StatsStore) Put(_ context.Context, chatID string, record domain.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		chat = make(map[string]domain.UserRecord)
		s.chats[chatID] = chat
	}
	chat[record.UserName] = clone(record)
	return nil
}

func (s *StatsStore) All(_ context.Context, chatID string) ([]domain.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat := s.chats[chatID]
	records := make([]domain.UserRecord, 0, len(chat))
	for _, record := range chat {
		records = append(records, clone(record))
	}
	return records, nil
}

// MigrateRoundFields is a no-op: in-process records never predate the round
// fields, zero values are already in place.
func (s *StatsStore) MigrateRoundFields(_ context.Context, _ string) (int, error) {
	return 0, nil
}

// clone keeps callers from aliasing the stored categories map.
func clone(record domain.UserRecord) domain.UserRecord {
	if record.Categories == nil {
		return record
	}
	categories := make(map[string]int, len(record.Categories))
	for category, count := range record.Categories {
		categories[category] = count
	}
	record.Categories = categories
	return record
}
