package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"trivia-stats-service/internal/app"
	"trivia-stats-service/internal/domain"
	"trivia-stats-service/internal/scheduler"
)

type WSHandler struct {
	service   *app.StatsService
	scheduler *scheduler.Scheduler
	hub       *Hub
	upgrader  websocket.Upgrader
}

func NewWSHandler(service *app.StatsService, sched *scheduler.Scheduler, hub *Hub) *WSHandler {
	return &WSHandler{
		service:   service,
		scheduler: sched,
		hub:       hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	SelectedOption int    `json:"selectedOption"`
	CorrectOption  int    `json:"correctOption"`
	Category       string `json:"category"`
}

type answerResult struct {
	Correct bool              `json:"correct"`
	Record  domain.UserRecord `json:"record"`
}

type statsPayload struct {
	UserName string `json:"userName"`
}

type roundClosed struct {
	Winner string `json:"winner"`
}

type quizSchedulePayload struct {
	IntervalMinutes float64 `json:"intervalMinutes"`
}

type quizScheduleResult struct {
	Replaced bool `json:"replaced"`
}

type quizStopResult struct {
	Stopped bool `json:"stopped"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and wires it into the scoring use cases.
// One connection serves one user in one chat, both taken from query params.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chatId")
	userName := r.URL.Query().Get("user")
	if chatID == "" || userName == "" {
		http.Error(w, "missing chatId or user", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	unsubscribe := h.hub.subscribe(chatID, send)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r.Context(), chatID, userName, inbound, send)
	}

	// Detach from the hub before closing so a concurrent quiz publish
	// cannot hit a closed channel.
	unsubscribe()
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, chatID, userName string, inbound inboundMessage, send chan outboundMessage[any]) {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			sendError(send, "invalid answer payload")
			return
		}
		record, err := h.service.RecordAnswer(ctx, domain.AnswerEvent{
			ChatID:         chatID,
			UserName:       userName,
			SelectedOption: payload.SelectedOption,
			CorrectOption:  payload.CorrectOption,
			Category:       payload.Category,
		})
		if err != nil {
			sendError(send, err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "answerResult", Payload: answerResult{
			Correct: payload.SelectedOption == payload.CorrectOption,
			Record:  record,
		}}
		h.sendScores(ctx, chatID, send)

	case "scores":
		h.sendScores(ctx, chatID, send)

	case "stats":
		target := userName
		if len(inbound.Payload) > 0 {
			var payload statsPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sendError(send, "invalid stats payload")
				return
			}
			if payload.UserName != "" {
				target = payload.UserName
			}
		}
		standing, err := h.service.Stats(ctx, chatID, target)
		if errors.Is(err, domain.ErrUserNotFound) {
			sendError(send, "no stats for "+target)
			return
		}
		if err != nil {
			sendError(send, err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "stats", Payload: standing}

	case "closeRound":
		winner, err := h.service.CloseRound(ctx, chatID)
		if errors.Is(err, domain.ErrNoParticipants) {
			sendError(send, "no participants in this chat yet")
			return
		}
		if err != nil {
			sendError(send, err.Error())
			return
		}
		send <- outboundMessage[any]{Type: "roundClosed", Payload: roundClosed{Winner: winner}}
		h.sendScores(ctx, chatID, send)

	case "startQuiz":
		var payload quizSchedulePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.IntervalMinutes <= 0 {
			sendError(send, "interval needs to be greater than 0 minutes")
			return
		}
		interval := time.Duration(payload.IntervalMinutes * float64(time.Minute))
		// Quiz loops outlive the connection; they stop on stopQuiz or shutdown.
		replaced := h.scheduler.Start(context.Background(), chatID, interval)
		send <- outboundMessage[any]{Type: "quizStarted", Payload: quizScheduleResult{Replaced: replaced}}

	case "stopQuiz":
		stopped := h.scheduler.Stop(chatID)
		send <- outboundMessage[any]{Type: "quizStopped", Payload: quizStopResult{Stopped: stopped}}

	default:
		sendError(send, "unsupported message type")
	}
}

func (h *WSHandler) sendScores(ctx context.Context, chatID string, send chan outboundMessage[any]) {
	standings, err := h.service.Scores(ctx, chatID)
	if err != nil {
		sendError(send, err.Error())
		return
	}
	send <- outboundMessage[any]{Type: "leaderboard", Payload: standings}
}

func sendError(send chan outboundMessage[any], message string) {
	send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}
