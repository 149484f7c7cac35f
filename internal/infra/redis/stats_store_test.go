package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"trivia-stats-service/internal/domain"
)

func newTestStore(t *testing.T) (*StatsStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStatsStore(client), mr
}

func TestStatsStoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	record := domain.UserRecord{
		UserName:          "alice",
		Score:             3,
		TotalAnswered:     4,
		WinningPercentage: 75,
		Categories:        map[string]int{"SCIENCE": 2, "ART": 1},
		CurrentRound:      4,
		RoundsWon:         1,
	}
	if err := store.Put(ctx, "chat-1", record); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists("chat:chat-1:stats") {
		t.Fatalf("expected per-chat hash key")
	}

	got, ok, err := store.Get(ctx, "chat-1", "alice")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Score != 3 || got.Categories["SCIENCE"] != 2 || got.RoundsWon != 1 {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, ok, _ := store.Get(ctx, "chat-1", "bob"); ok {
		t.Fatalf("expected bob to be absent")
	}
}

func TestStatsStoreAllIsPerChat(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_ = store.Put(ctx, "chat-1", domain.UserRecord{UserName: "alice"})
	_ = store.Put(ctx, "chat-1", domain.UserRecord{UserName: "bob"})
	_ = store.Put(ctx, "chat-2", domain.UserRecord{UserName: "carol"})

	records, err := store.All(ctx, "chat-1")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestMigrateRoundFields(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	// Record persisted before round tracking existed.
	mr.HSet("chat:chat-1:stats", "alice",
		`{"user_name":"alice","score":4,"total_answered":6,"winning_percentage":66.67,"categories":{"FILM":4}}`)
	// Already-migrated record with live counters.
	_ = store.Put(ctx, "chat-1", domain.UserRecord{UserName: "bob", Score: 1, TotalAnswered: 1, CurrentRound: 5, RoundsWon: 2})

	migrated, err := store.MigrateRoundFields(ctx, "chat-1")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated != 1 {
		t.Fatalf("expected 1 migrated record, got %d", migrated)
	}

	alice, ok, err := store.Get(ctx, "chat-1", "alice")
	if err != nil || !ok {
		t.Fatalf("get alice: ok=%v err=%v", ok, err)
	}
	if alice.CurrentRound != 0 || alice.RoundsWon != 0 {
		t.Fatalf("expected zeroed round fields, got %+v", alice)
	}
	if alice.Score != 4 || alice.Categories["FILM"] != 4 {
		t.Fatalf("migration clobbered existing fields: %+v", alice)
	}

	bob, _, _ := store.Get(ctx, "chat-1", "bob")
	if bob.CurrentRound != 5 || bob.RoundsWon != 2 {
		t.Fatalf("migration touched live counters: %+v", bob)
	}

	// Idempotent: a second run finds nothing to do.
	migrated, err = store.MigrateRoundFields(ctx, "chat-1")
	if err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	if migrated != 0 {
		t.Fatalf("expected idempotent migration, got %d", migrated)
	}
}
