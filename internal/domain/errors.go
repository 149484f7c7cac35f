package domain

import "errors"

var (
	// ErrUserNotFound is returned when stats are requested for a user the chat has never seen.
	ErrUserNotFound = errors.New("user not found in chat")
	// ErrNoParticipants is returned when a round is closed on a chat with no records.
	ErrNoParticipants = errors.New("no participants in chat")
	// ErrQuestionUnavailable indicates the trivia API returned no usable question.
	ErrQuestionUnavailable = errors.New("trivia question unavailable")
)
