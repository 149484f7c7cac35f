package app

import (
	"context"
	"math"
	"sort"
	"sync"

	"trivia-stats-service/internal/domain"
)

// StatsRepository abstracts how per-chat user records are stored (in-memory, Redis, Postgres).
// Each chat maps to an independent collection; implementations must not share
// state across chats.
type StatsRepository interface {
	Get(ctx context.Context, chatID, userName string) (domain.UserRecord, bool, error)
	Put(ctx context.Context, chatID string, record domain.UserRecord) error
	All(ctx context.Context, chatID string) ([]domain.UserRecord, error)
	// MigrateRoundFields backfills current_round/rounds_won on records persisted
	// before those fields existed. It returns how many records were touched and
	// must leave already-migrated records alone.
	MigrateRoundFields(ctx context.Context, chatID string) (int, error)
}

// StatsService contains the scoring and leaderboard use cases.
//
// Writes are serialized per chat: ScoreUser's read-modify-write and the whole
// CloseRound pass run under the chat's mutex, so duplicate answer deliveries
// cannot lose an update and a round close cannot interleave with scoring.
// Different chats never contend. Chat mutexes are kept for the life of the
// process (one per chat ever seen); chats are few and long-lived, so the map
// is never pruned.
type StatsService struct {
	store StatsRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStatsService(store StatsRepository) *StatsService {
	return &StatsService{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// RecordAnswer derives correctness from a poll-answer event and scores the user.
func (s *StatsService) RecordAnswer(ctx context.Context, event domain.AnswerEvent) (domain.UserRecord, error) {
	return s.ScoreUser(ctx, event.ChatID, event.UserName, event.Category, event.Correct())
}

// ScoreUser applies one answer to the user's record and recomputes the derived
// statistics. Unknown categories are accepted and tracked verbatim.
func (s *StatsService) ScoreUser(ctx context.Context, chatID, userName, category string, correct bool) (domain.UserRecord, error) {
	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	record, exists, err := s.store.Get(ctx, chatID, userName)
	if err != nil {
		return domain.UserRecord{}, err
	}

	switch {
	case exists && correct:
		record.Score++
		record.TotalAnswered++
		// current_round mirrors the new total_answered, it is not incremented.
		record.CurrentRound = record.TotalAnswered
		if record.Categories == nil {
			record.Categories = make(map[string]int)
		}
		record.Categories[category]++
		record.WinningPercentage = winningPercentage(record.Score, record.TotalAnswered)
	case exists && !correct:
		record.TotalAnswered++
		record.WinningPercentage = winningPercentage(record.Score, record.TotalAnswered)
	case !exists && correct:
		record = domain.UserRecord{
			UserName:          userName,
			Score:             1,
			TotalAnswered:     1,
			WinningPercentage: 100,
			Categories:        map[string]int{category: 1},
			CurrentRound:      1,
		}
	default:
		record = domain.UserRecord{
			UserName:      userName,
			TotalAnswered: 1,
			Categories:    map[string]int{},
			CurrentRound:  1,
		}
	}

	if err := s.store.Put(ctx, chatID, record); err != nil {
		return domain.UserRecord{}, err
	}
	return record, nil
}

// Scores returns the chat's leaderboard: all records ordered by current_round
// (highest first, stable ties), each annotated with the user's best category.
// It never mutates stored state.
func (s *StatsService) Scores(ctx context.Context, chatID string) ([]domain.UserStanding, error) {
	records, err := s.store.All(ctx, chatID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CurrentRound > records[j].CurrentRound
	})

	standings := make([]domain.UserStanding, 0, len(records))
	for _, record := range records {
		standings = append(standings, annotate(record))
	}
	return standings, nil
}

// Stats returns a single user's annotated record, or domain.ErrUserNotFound.
func (s *StatsService) Stats(ctx context.Context, chatID, userName string) (domain.UserStanding, error) {
	record, exists, err := s.store.Get(ctx, chatID, userName)
	if err != nil {
		return domain.UserStanding{}, err
	}
	if !exists {
		return domain.UserStanding{}, domain.ErrUserNotFound
	}
	return annotate(record), nil
}

// ResetScore zeroes one user's current_round, leaving every other field alone.
func (s *StatsService) ResetScore(ctx context.Context, chatID, userName string) error {
	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	record, exists, err := s.store.Get(ctx, chatID, userName)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	record.CurrentRound = 0
	return s.store.Put(ctx, chatID, record)
}

// CloseRound ends the chat's current round: the user with the highest
// current_round wins, every user's current_round is reset to zero, and the
// winner's rounds_won is incremented after the reset pass. Returns the
// winner's name, or domain.ErrNoParticipants when the chat has no records.
// Ties go to whichever tied record the store lists first; store listing
// order is not specified, so a tied round has no deterministic winner.
func (s *StatsService) CloseRound(ctx context.Context, chatID string) (string, error) {
	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	records, err := s.store.All(ctx, chatID)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", domain.ErrNoParticipants
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CurrentRound > records[j].CurrentRound
	})
	winner := records[0]

	for i := range records {
		records[i].CurrentRound = 0
		if err := s.store.Put(ctx, chatID, records[i]); err != nil {
			return "", err
		}
	}

	winner.CurrentRound = 0
	winner.RoundsWon++
	if err := s.store.Put(ctx, chatID, winner); err != nil {
		return "", err
	}
	return winner.UserName, nil
}

// MigrateChat backfills the round fields on the chat's legacy records.
// Safe to run repeatedly; already-migrated records are untouched.
func (s *StatsService) MigrateChat(ctx context.Context, chatID string) (int, error) {
	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	return s.store.MigrateRoundFields(ctx, chatID)
}

func (s *StatsService) chatLock(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[chatID] = lock
	}
	return lock
}

// annotate derives the best_category presentation field.
func annotate(record domain.UserRecord) domain.UserStanding {
	standing := domain.UserStanding{UserRecord: record}
	best, bestCount := "", 0
	for category, count := range record.Categories {
		if count > bestCount {
			best, bestCount = category, count
		}
	}
	standing.BestCategory = best
	return standing
}

// winningPercentage is 100*score/total rounded to two decimal places.
func winningPercentage(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(10000*float64(score)/float64(total)) / 100
}
