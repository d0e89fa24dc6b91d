package domain

import "time"

// GameState tracks where a room is in its lifecycle.
type GameState string

const (
	StateWaiting  GameState = "waiting"
	StatePlaying  GameState = "playing"
	StateFinished GameState = "finished"
)

// NoAnswer is the sentinel value a client submits when its countdown expires
// without a real answer. It never matches a correct answer.
const NoAnswer = ""

// Question is a full bank entry, answer key included. It never leaves the
// process; clients only ever see SanitizedQuestion.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// QuestionBank holds every question for one topic, grouped by difficulty,
// plus per-difficulty timing and scoring settings.
type QuestionBank struct {
	Topic             string                `json:"topic"`
	Name              string                `json:"name"`
	Description       string                `json:"description"`
	Difficulties      map[string][]Question `json:"difficulties"`
	TimePerQuestion   map[string]int        `json:"timePerQuestion"`
	PointsPerQuestion map[string]int        `json:"pointsPerQuestion"`
}

const (
	defaultTimePerQuestion   = 30
	defaultPointsPerQuestion = 10
)

// TimeLimit returns the per-question time limit for a difficulty,
// falling back to 30 seconds when the bank does not configure one.
func (b QuestionBank) TimeLimit(difficulty string) int {
	if v, ok := b.TimePerQuestion[difficulty]; ok && v > 0 {
		return v
	}
	return defaultTimePerQuestion
}

// Points returns the flat per-question point value for a difficulty,
// falling back to 10 when the bank does not configure one.
func (b QuestionBank) Points(difficulty string) int {
	if v, ok := b.PointsPerQuestion[difficulty]; ok && v > 0 {
		return v
	}
	return defaultPointsPerQuestion
}

// SanitizedQuestion is the client-facing question shape. The correct answer
// and explanation are stripped before it is built.
type SanitizedQuestion struct {
	ID        string   `json:"id"`
	Prompt    string   `json:"question"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
}

// QuizSet is one shuffled, sanitized playthrough for a (topic, difficulty) pair.
type QuizSet struct {
	ID                string              `json:"id"`
	Topic             string              `json:"topic"`
	Name              string              `json:"name"`
	Description       string              `json:"description,omitempty"`
	Difficulty        string              `json:"difficulty"`
	TimePerQuestion   int                 `json:"timePerQuestion"`
	PointsPerQuestion int                 `json:"pointsPerQuestion"`
	Questions         []SanitizedQuestion `json:"questions"`
}

// TopicInfo describes one available question bank.
type TopicInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ParticipantView is the public projection of a participant broadcast to a room.
type ParticipantView struct {
	ConnectionID string `json:"connectionId"`
	Identity     string `json:"userId,omitempty"`
	DisplayName  string `json:"username"`
	Score        int    `json:"score"`
	Answered     bool   `json:"answered"`
	TimeTaken    int    `json:"timeTaken"`
}

// LeaderboardEntry is one ranked row. Ranks are 1-based and distinct:
// ties on both score and time keep their sort-stable order.
type LeaderboardEntry struct {
	Rank         int    `json:"rank"`
	DisplayName  string `json:"username"`
	Identity     string `json:"userId,omitempty"`
	Score        int    `json:"score"`
	TimeTaken    int    `json:"timeTaken"`
	ConnectionID string `json:"connectionId"`
}

// AnswerOutcome summarizes one submission for the submitting participant.
type AnswerOutcome struct {
	Correct        bool `json:"isCorrect"`
	Score          int  `json:"score"`
	TimeTaken      int  `json:"timeTaken"`
	TotalTimeTaken int  `json:"totalTimeTaken"`
}

// RoomSummary is the public-safe projection of a room; it carries no
// participant identities or answers.
type RoomSummary struct {
	Code              string    `json:"id"`
	Topic             string    `json:"topic"`
	Difficulty        string    `json:"difficulty"`
	Title             string    `json:"quizTitle"`
	CreatedAt         time.Time `json:"createdAt"`
	State             GameState `json:"gameState"`
	ParticipantCount  int       `json:"participantCount"`
	CurrentQuestion   int       `json:"currentQuestion"`
	TotalQuestions    int       `json:"totalQuestions"`
	TimePerQuestion   int       `json:"timePerQuestion"`
	PointsPerQuestion int       `json:"pointsPerQuestion"`
}

// QuizAttempt is the best-effort record persisted per identified participant
// when a quiz finishes. Guests (empty identity) are never recorded.
type QuizAttempt struct {
	Identity       string
	RoomCode       string
	Topic          string
	Score          int
	TotalQuestions int
	CorrectAnswers int
	Rank           int
	TimeTaken      int
	CompletedAt    time.Time
}
