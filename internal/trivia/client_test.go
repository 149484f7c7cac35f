package trivia

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trivia-stats-service/internal/domain"
)

func newTestServer(t *testing.T, apiBody string) (*httptest.Server, *int) {
	t.Helper()
	tokenRequests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api_token.php", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		w.Write([]byte(`{"response_code":0,"token":"tok-123"}`))
	})
	mux.HandleFunc("/api.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok-123" {
			t.Errorf("expected session token on request, got %q", r.URL.Query().Get("token"))
		}
		w.Write([]byte(apiBody))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &tokenRequests
}

func TestQuestionUnescapesAndShuffles(t *testing.T) {
	server, tokenRequests := newTestServer(t, `{
		"response_code": 0,
		"results": [{
			"category": "Science &amp; Nature",
			"difficulty": "easy",
			"question": "What&#039;s H2O?",
			"correct_answer": "Water",
			"incorrect_answers": ["Salt", "Sugar", "Air"]
		}]
	}`)

	client := NewClient(server.URL, time.Second)
	question, err := client.Question(context.Background(), CategoryScience, DifficultyEasy)
	if err != nil {
		t.Fatalf("question: %v", err)
	}

	if question.Category != "Science & Nature" {
		t.Fatalf("expected unescaped category, got %q", question.Category)
	}
	if question.Prompt != "What's H2O?" {
		t.Fatalf("expected unescaped prompt, got %q", question.Prompt)
	}
	if len(question.Answers) != 4 {
		t.Fatalf("expected 4 answers, got %v", question.Answers)
	}
	if question.Answers[question.CorrectIndex] != "Water" {
		t.Fatalf("correct index points at %q", question.Answers[question.CorrectIndex])
	}
	if *tokenRequests != 1 {
		t.Fatalf("expected a single token request, got %d", *tokenRequests)
	}

	// Token is cached across fetches.
	if _, err := client.Question(context.Background(), CategoryArt, DifficultyHard); err != nil {
		t.Fatalf("second question: %v", err)
	}
	if *tokenRequests != 1 {
		t.Fatalf("expected cached token, got %d requests", *tokenRequests)
	}
}

func TestQuestionUnavailable(t *testing.T) {
	server, _ := newTestServer(t, `{"response_code":1,"results":[]}`)

	client := NewClient(server.URL, time.Second)
	_, err := client.Question(context.Background(), CategoryVehicles, DifficultyMedium)
	if !errors.Is(err, domain.ErrQuestionUnavailable) {
		t.Fatalf("expected ErrQuestionUnavailable, got %v", err)
	}
}

func TestExhaustedTokenIsDropped(t *testing.T) {
	server, tokenRequests := newTestServer(t, `{"response_code":4,"results":[]}`)

	client := NewClient(server.URL, time.Second)
	_, err := client.Question(context.Background(), CategoryHistory, DifficultyEasy)
	if !errors.Is(err, domain.ErrQuestionUnavailable) {
		t.Fatalf("expected ErrQuestionUnavailable, got %v", err)
	}

	// The stale token was cleared, so the next fetch requests a fresh one.
	_, _ = client.Question(context.Background(), CategoryHistory, DifficultyEasy)
	if *tokenRequests != 2 {
		t.Fatalf("expected a fresh token request, got %d", *tokenRequests)
	}
}
