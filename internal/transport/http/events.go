package http

import (
	"encoding/json"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
)

// inboundMessage is the envelope for every client event. Payloads are typed
// per event name and validated at this boundary before reaching the rooms.
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// Inbound event names.
const (
	evtJoinRoom     = "join-room"
	evtStartQuiz    = "start-quiz"
	evtSubmitAnswer = "submit-answer"
	evtEndQuiz      = "end-quiz"
	evtPlayAgain    = "play-again"
)

// Outbound event names.
const (
	evtConnected         = "connected"
	evtRoomState         = "room-state"
	evtUserJoined        = "user-joined"
	evtQuizStarted       = "quiz-started"
	evtAnswerSubmitted   = "answer-submitted"
	evtAnswerResult      = "answer-result"
	evtUpdateLeaderboard = "update-leaderboard"
	evtNextQuestion      = "next-question"
	evtQuizFinished      = "quiz-finished"
	evtQuizEnded         = "quiz-ended"
	evtUserLeft          = "user-left"
	evtHostTransferred   = "host-transferred"
	evtRoomClosed        = "room-closed"
	evtError             = "error"
)

type joinRoomPayload struct {
	RoomCode    string `json:"roomCode"`
	DisplayName string `json:"displayName"`
}

type startQuizPayload struct {
	RoomCode   string `json:"roomCode"`
	Topic      string `json:"topic,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

type submitAnswerPayload struct {
	RoomCode      string `json:"roomCode"`
	Answer        string `json:"answer"`
	QuestionIndex int    `json:"questionIndex"`
}

type endQuizPayload struct {
	RoomCode string `json:"roomCode"`
}

type playAgainPayload struct {
	RoomCode string `json:"roomCode"`
}

// connectedPayload tells a fresh connection its server-assigned id, which it
// needs as hostId when creating a room over REST.
type connectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

type userJoinedPayload struct {
	DisplayName      string                   `json:"username"`
	ParticipantCount int                      `json:"participantCount"`
	Participants     []domain.ParticipantView `json:"participants"`
}

type userLeftPayload struct {
	DisplayName      string                   `json:"username"`
	ParticipantCount int                      `json:"participantCount"`
	Participants     []domain.ParticipantView `json:"participants"`
}

type answerSubmittedPayload struct {
	DisplayName string `json:"username"`
	HasAnswered bool   `json:"hasAnswered"`
	IsCorrect   bool   `json:"isCorrect"`
}

type leaderboardPayload struct {
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

type nextQuestionPayload struct {
	Question       domain.SanitizedQuestion `json:"question"`
	QuestionNumber int                      `json:"questionNumber"`
	TotalQuestions int                      `json:"totalQuestions"`
}

type hostTransferredPayload struct {
	NewHost string `json:"newHost"`
	Message string `json:"message"`
}

type roomClosedPayload struct {
	Message string `json:"message"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// roomStatePayload and quiz-started reuse the core result shapes directly.
type roomStatePayload = app.RoomState
