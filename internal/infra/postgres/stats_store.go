package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"trivia-stats-service/internal/domain"
)

// StatsStore persists user records in Postgres, one row per (chat_id, user_name).
// chat_id is the partition key; no query ever spans chats.
type StatsStore struct {
	pool *pgxpool.Pool
}

func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

func (s *StatsStore) Get(ctx context.Context, chatID, userName string) (domain.UserRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_name, score, total_answered, winning_percentage, categories,
		       COALESCE(current_round, 0), COALESCE(rounds_won, 0)
		FROM user_stats WHERE chat_id=$1 AND user_name=$2`, chatID, userName)

	record, err := scanRecord(row)
	if err == pgx.ErrNoRows {
		return domain.UserRecord{}, false, nil
	}
	if err != nil {
		return domain.UserRecord{}, false, fmt.Errorf("get record: %w", err)
	}
	return record, true, nil
}

func (s *StatsStore) Put(ctx context.Context, chatID string, record domain.UserRecord) error {
	categories, err := json.Marshal(record.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_stats (chat_id, user_name, score, total_answered, winning_percentage, categories, current_round, rounds_won)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chat_id, user_name) DO UPDATE SET
			score = EXCLUDED.score,
			total_answered = EXCLUDED.total_answered,
			winning_percentage = EXCLUDED.winning_percentage,
			categories = EXCLUDED.categories,
			current_round = EXCLUDED.current_round,
			rounds_won = EXCLUDED.rounds_won`,
		chatID, record.UserName, record.Score, record.TotalAnswered,
		record.WinningPercentage, categories, record.CurrentRound, record.RoundsWon)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (s *StatsStore) All(ctx context.Context, chatID string) ([]domain.UserRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_name, score, total_answered, winning_percentage, categories,
		       COALESCE(current_round, 0), COALESCE(rounds_won, 0)
		FROM user_stats WHERE chat_id=$1`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []domain.UserRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// MigrateRoundFields zeroes the round columns on rows created before the
// columns existed (they are NULL there). Migrated rows are left alone.
func (s *StatsStore) MigrateRoundFields(ctx context.Context, chatID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_stats
		SET current_round = COALESCE(current_round, 0), rounds_won = COALESCE(rounds_won, 0)
		WHERE chat_id=$1 AND (current_round IS NULL OR rounds_won IS NULL)`, chatID)
	if err != nil {
		return 0, fmt.Errorf("migrate records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRecord(row pgx.Row) (domain.UserRecord, error) {
	var record domain.UserRecord
	var categories []byte
	if err := row.Scan(&record.UserName, &record.Score, &record.TotalAnswered,
		&record.WinningPercentage, &categories, &record.CurrentRound, &record.RoundsWon); err != nil {
		return domain.UserRecord{}, err
	}
	if err := json.Unmarshal(categories, &record.Categories); err != nil {
		return domain.UserRecord{}, fmt.Errorf("unmarshal categories: %w", err)
	}
	return record, nil
}
