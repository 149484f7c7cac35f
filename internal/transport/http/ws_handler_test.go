package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"trivia-stats-service/internal/app"
	"trivia-stats-service/internal/domain"
	"trivia-stats-service/internal/infra/memory"
	"trivia-stats-service/internal/scheduler"
)

type nopSource struct{}

func (nopSource) NextQuestion(_ context.Context) (domain.Question, error) {
	return domain.Question{}, nil
}

func newTestConn(t *testing.T, query string) *websocket.Conn {
	t.Helper()

	service := app.NewStatsService(memory.NewStatsStore())
	hub := NewHub()
	sched := scheduler.New(nopSource{}, hub)
	t.Cleanup(sched.Shutdown)
	handler := NewWSHandler(service, sched, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	u := "ws" + server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAnswerFlow(t *testing.T) {
	conn := newTestConn(t, "chatId=chat-1&user=alice")

	writeMsg(t, conn, "answer", map[string]any{
		"selectedOption": 2,
		"correctOption":  2,
		"category":       "SCIENCE",
	})

	typ, payload := readNext(t, conn)
	if typ != "answerResult" {
		t.Fatalf("expected answerResult, got %s", typ)
	}
	var result answerResult
	mustUnmarshal(t, payload, &result)
	if !result.Correct || result.Record.Score != 1 {
		t.Fatalf("expected correct answer scored, got %+v", result)
	}

	typ, payload = readNext(t, conn)
	if typ != "leaderboard" {
		t.Fatalf("expected leaderboard, got %s", typ)
	}
	var standings []map[string]any
	mustUnmarshal(t, payload, &standings)
	if len(standings) != 1 || standings[0]["user_name"] != "alice" {
		t.Fatalf("expected alice on leaderboard, got %v", standings)
	}
}

func TestStatsUnknownUser(t *testing.T) {
	conn := newTestConn(t, "chatId=chat-1&user=alice")

	writeMsg(t, conn, "stats", map[string]any{"userName": "ghost"})

	typ, payload := readNext(t, conn)
	if typ != "error" {
		t.Fatalf("expected error, got %s", typ)
	}
	var errPayload errorPayload
	mustUnmarshal(t, payload, &errPayload)
	if errPayload.Message == "" {
		t.Fatalf("expected error message")
	}
}

func TestCloseRoundOverSocket(t *testing.T) {
	conn := newTestConn(t, "chatId=chat-1&user=alice")

	writeMsg(t, conn, "answer", map[string]any{
		"selectedOption": 1,
		"correctOption":  1,
		"category":       "ART",
	})
	readNext(t, conn) // answerResult
	readNext(t, conn) // leaderboard

	writeMsg(t, conn, "closeRound", nil)
	typ, payload := readNext(t, conn)
	if typ != "roundClosed" {
		t.Fatalf("expected roundClosed, got %s", typ)
	}
	var closed roundClosed
	mustUnmarshal(t, payload, &closed)
	if closed.Winner != "alice" {
		t.Fatalf("expected alice to win, got %q", closed.Winner)
	}
}

func TestCloseRoundEmptyChatOverSocket(t *testing.T) {
	conn := newTestConn(t, "chatId=chat-1&user=alice")

	writeMsg(t, conn, "closeRound", nil)
	typ, _ := readNext(t, conn)
	if typ != "error" {
		t.Fatalf("expected error for empty chat, got %s", typ)
	}
}

func TestMissingQueryParams(t *testing.T) {
	service := app.NewStatsService(memory.NewStatsStore())
	hub := NewHub()
	sched := scheduler.New(nopSource{}, hub)
	defer sched.Shutdown()
	handler := NewWSHandler(service, sched, hub)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ws?chatId=chat-1", nil)
	handler.ServeWS(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func writeMsg(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.Type, msg.Payload
}

func mustUnmarshal(t *testing.T, raw json.RawMessage, out any) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
}
