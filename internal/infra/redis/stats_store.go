package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"trivia-stats-service/internal/domain"
)

// StatsStore is a Redis implementation of app.StatsRepository.
// Layout: one hash per chat (chat:{chatID}:stats), field = user_name,
// value = JSON record. Chats share no keys, so one chat's data can be
// inspected or dropped without touching any other.
type StatsStore struct {
	client *redis.Client
}

func NewStatsStore(client *redis.Client) *StatsStore {
	return &StatsStore{client: client}
}

func (s *StatsStore) Get(ctx context.Context, chatID, userName string) (domain.UserRecord, bool, error) {
	raw, err := s.client.HGet(ctx, s.key(chatID), userName).Result()
	if err == redis.Nil {
		return domain.UserRecord{}, false, nil
	}
	if err != nil {
		return domain.UserRecord{}, false, fmt.Errorf("get record: %w", err)
	}
	record, err := decodeRecord([]byte(raw))
	if err != nil {
		return domain.UserRecord{}, false, err
	}
	return record, true, nil
}

func (s *StatsStore) Put(ctx context.Context, chatID string, record domain.UserRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.client.HSet(ctx, s.key(chatID), record.UserName, raw).Err(); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (s *StatsStore) All(ctx context.Context, chatID string) ([]domain.UserRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(chatID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	records := make([]domain.UserRecord, 0, len(fields))
	for _, raw := range fields {
		record, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// MigrateRoundFields rewrites records that were stored before current_round
// and rounds_won existed, initializing only the fields that are genuinely
// absent in the stored JSON. Re-running it never clobbers live counters.
func (s *StatsStore) MigrateRoundFields(ctx context.Context, chatID string) (int, error) {
	fields, err := s.client.HGetAll(ctx, s.key(chatID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}

	migrated := 0
	for userName, raw := range fields {
		var probe struct {
			CurrentRound *int `json:"current_round"`
			RoundsWon    *int `json:"rounds_won"`
		}
		if err := json.Unmarshal([]byte(raw), &probe); err != nil {
			return migrated, fmt.Errorf("decode record %q: %w", userName, err)
		}
		if probe.CurrentRound != nil && probe.RoundsWon != nil {
			continue
		}
		record, err := decodeRecord([]byte(raw))
		if err != nil {
			return migrated, err
		}
		if probe.CurrentRound != nil {
			record.CurrentRound = *probe.CurrentRound
		}
		if probe.RoundsWon != nil {
			record.RoundsWon = *probe.RoundsWon
		}
		if err := s.Put(ctx, chatID, record); err != nil {
			return migrated, err
		}
		migrated++
	}
	return migrated, nil
}

func (s *StatsStore) key(chatID string) string {
	return "chat:" + chatID + ":stats"
}

func decodeRecord(raw []byte) (domain.UserRecord, error) {
	var record domain.UserRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.UserRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}
