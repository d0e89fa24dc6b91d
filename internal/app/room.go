package app

import (
	"sort"
	"sync"
	"time"

	"arena-quiz-service/internal/domain"
)

// Room is the in-memory state machine for one quiz session. Every mutating
// operation takes the room mutex, so no two operations on the same room can
// interleave their read-modify-write sequences. Rooms share no state, so
// operations on different rooms run fully in parallel.
type Room struct {
	mu  sync.Mutex
	now func() time.Time

	code         string
	title        string
	topic        string
	difficulty   string
	hostConnID   string
	hostIdentity string

	quiz           domain.QuizSet
	state          domain.GameState
	current        int
	questionStarts map[int]time.Time

	participants map[string]*participant
	joinSeq      int

	finalLeaderboard []domain.LeaderboardEntry
	createdAt        time.Time
	finishedAt       time.Time
}

type participant struct {
	connID        string
	identity      string
	displayName   string
	score         int
	answered      bool
	currentAnswer string
	correctCount  int
	timeTaken     int
	answerTimes   []int
	joinedAt      time.Time
	joinOrder     int
}

func newRoom(code, hostConnID, hostIdentity, topic, difficulty, title string, quiz domain.QuizSet, now func() time.Time) *Room {
	if title == "" {
		title = quiz.Name
	}
	return &Room{
		now:            now,
		code:           code,
		title:          title,
		topic:          topic,
		difficulty:     difficulty,
		hostConnID:     hostConnID,
		hostIdentity:   hostIdentity,
		quiz:           quiz,
		state:          domain.StateWaiting,
		questionStarts: make(map[int]time.Time),
		participants:   make(map[string]*participant),
		createdAt:      now(),
	}
}

// Code returns the room's registry key.
func (r *Room) Code() string { return r.code }

// TopicDifficulty returns the room's current selection criteria.
func (r *Room) TopicDifficulty() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topic, r.difficulty
}

// State returns the current lifecycle state.
func (r *Room) State() domain.GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsEmpty reports whether the room has no participants.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants) == 0
}

// IsHost reports whether the caller is recognized as host, matching either
// the live connection id or the stable identity. Both checks are kept so a
// reconnecting host with a fresh connection id is still authorized.
func (r *Room) IsHost(connID, identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isHostLocked(connID, identity)
}

func (r *Room) isHostLocked(connID, identity string) bool {
	if connID != "" && connID == r.hostConnID {
		return true
	}
	return identity != "" && identity == r.hostIdentity
}

// RoomState is the snapshot sent to a participant on join.
type RoomState struct {
	Participants    []domain.ParticipantView  `json:"participants"`
	Leaderboard     []domain.LeaderboardEntry `json:"leaderboard"`
	State           domain.GameState          `json:"gameState"`
	CurrentQuestion int                       `json:"currentQuestion"`
	Topic           string                    `json:"topic"`
	Difficulty      string                    `json:"difficulty"`
}

// Join adds a participant while the room is waiting. The same connection id
// never appears twice; a rejoin under the same id refreshes the display name.
func (r *Room) Join(connID, identity, displayName string) (RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateWaiting {
		return RoomState{}, domain.ErrQuizInProgress
	}

	if p, ok := r.participants[connID]; ok {
		p.displayName = displayName
		p.identity = identity
	} else {
		r.joinSeq++
		r.participants[connID] = &participant{
			connID:      connID,
			identity:    identity,
			displayName: displayName,
			joinedAt:    r.now(),
			joinOrder:   r.joinSeq,
		}
	}
	return r.snapshotLocked(), nil
}

// StartResult carries everything the gateway broadcasts on quiz start.
type StartResult struct {
	Quiz           domain.QuizSet           `json:"quiz"`
	Question       domain.SanitizedQuestion `json:"question"`
	QuestionNumber int                      `json:"questionNumber"`
	TotalQuestions int                      `json:"totalQuestions"`
}

// Start transitions Waiting -> Playing. When replacement is non-nil the quiz
// set and selection criteria are swapped first (last-moment reconfiguration).
// Every participant's score and answer state is reset regardless of prior values.
func (r *Room) Start(connID, identity string, replacement *domain.QuizSet, topic, difficulty string) (StartResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostLocked(connID, identity) {
		return StartResult{}, domain.ErrNotHost
	}
	if r.state != domain.StateWaiting {
		return StartResult{}, domain.ErrQuizAlreadyStarted
	}
	if len(r.participants) == 0 {
		return StartResult{}, domain.ErrNoParticipants
	}

	if replacement != nil && len(replacement.Questions) > 0 {
		r.quiz = *replacement
		r.topic = topic
		r.difficulty = difficulty
	}

	r.state = domain.StatePlaying
	r.current = 0
	r.questionStarts = map[int]time.Time{0: r.now()}
	for _, p := range r.participants {
		p.score = 0
		p.answered = false
		p.currentAnswer = ""
		p.correctCount = 0
		p.timeTaken = 0
		p.answerTimes = nil
	}

	return StartResult{
		Quiz:           r.quiz,
		Question:       r.quiz.Questions[0],
		QuestionNumber: 1,
		TotalQuestions: len(r.quiz.Questions),
	}, nil
}

// ResolveQuestion validates that connID may answer questionIndex right now and
// returns the question id plus the room's topic for the correctness check.
// The actual check runs outside the room lock; ApplyAnswer re-validates.
func (r *Room) ResolveQuestion(connID string, questionIndex int) (questionID, topic string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StatePlaying {
		return "", "", domain.ErrQuizNotActive
	}
	p, ok := r.participants[connID]
	if !ok {
		return "", "", domain.ErrParticipantNotFound
	}
	if p.answered {
		return "", "", domain.ErrAlreadyAnswered
	}
	if questionIndex != r.current {
		return "", "", domain.ErrQuestionNotFound
	}
	return r.quiz.Questions[questionIndex].ID, r.topic, nil
}

// ApplyAnswer records a submission whose correctness has already been decided
// by the question source. Elapsed time is floored to whole seconds since the
// question became active, logged per question, and added to the cumulative
// total. Correct answers award the flat per-question point value and bump the
// explicit correct-answer counter.
func (r *Room) ApplyAnswer(connID string, questionIndex int, answer string, correct bool) (domain.AnswerOutcome, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StatePlaying {
		return domain.AnswerOutcome{}, false, domain.ErrQuizNotActive
	}
	p, ok := r.participants[connID]
	if !ok {
		return domain.AnswerOutcome{}, false, domain.ErrParticipantNotFound
	}
	if p.answered {
		return domain.AnswerOutcome{}, false, domain.ErrAlreadyAnswered
	}
	// A submission for any question other than the live one is a mismatch,
	// whether stale or out of bounds.
	if questionIndex != r.current {
		return domain.AnswerOutcome{}, false, domain.ErrQuestionNotFound
	}

	start, ok := r.questionStarts[questionIndex]
	if !ok {
		start = r.now()
	}
	elapsed := int(r.now().Sub(start).Seconds())
	p.answerTimes = append(p.answerTimes, elapsed)
	p.timeTaken += elapsed

	if correct {
		p.score += r.quiz.PointsPerQuestion
		p.correctCount++
	}
	p.currentAnswer = answer
	p.answered = true

	return domain.AnswerOutcome{
		Correct:        correct,
		Score:          p.score,
		TimeTaken:      elapsed,
		TotalTimeTaken: p.timeTaken,
	}, r.allAnsweredLocked(), nil
}

func (r *Room) allAnsweredLocked() bool {
	if len(r.participants) == 0 {
		return false
	}
	for _, p := range r.participants {
		if !p.answered {
			return false
		}
	}
	return true
}

// AdvanceResult is either the next question or the frozen final leaderboard.
type AdvanceResult struct {
	Finished       bool                      `json:"finished"`
	Question       domain.SanitizedQuestion  `json:"question,omitempty"`
	QuestionNumber int                       `json:"questionNumber,omitempty"`
	TotalQuestions int                       `json:"totalQuestions,omitempty"`
	Leaderboard    []domain.LeaderboardEntry `json:"leaderboard,omitempty"`
}

// Advance moves the cursor forward from the given question. In bounds: stamps
// the new question's start time and clears every participant's answer state.
// Out of bounds: the quiz is finished and the final leaderboard is computed
// and frozen. Advances are keyed to the question that triggered them: once the
// cursor has moved past fromIndex the call is rejected, so two completion
// triggers for the same question (say, a submission and a departure racing
// through the grace window) advance the room exactly once.
func (r *Room) Advance(fromIndex int) (AdvanceResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StatePlaying {
		return AdvanceResult{}, domain.ErrQuizNotActive
	}
	if r.current != fromIndex {
		return AdvanceResult{}, domain.ErrQuestionAdvanced
	}

	r.current++
	if r.current >= len(r.quiz.Questions) {
		r.finishLocked()
		return AdvanceResult{
			Finished:    true,
			Leaderboard: r.finalLeaderboard,
		}, nil
	}

	r.questionStarts[r.current] = r.now()
	for _, p := range r.participants {
		p.answered = false
		p.currentAnswer = ""
	}
	return AdvanceResult{
		Question:       r.quiz.Questions[r.current],
		QuestionNumber: r.current + 1,
		TotalQuestions: len(r.quiz.Questions),
	}, nil
}

// End force-finishes the quiz regardless of answer completion. Host only.
func (r *Room) End(connID, identity string) ([]domain.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostLocked(connID, identity) {
		return nil, domain.ErrNotHost
	}
	if r.state != domain.StatePlaying {
		return nil, domain.ErrQuizNotActive
	}
	r.finishLocked()
	return r.finalLeaderboard, nil
}

func (r *Room) finishLocked() {
	r.state = domain.StateFinished
	r.finishedAt = r.now()
	r.finalLeaderboard = r.leaderboardLocked()
}

// Reset is the host-triggered "play again": a fresh quiz set, zeroed scores,
// state back to Waiting. Room code and roster are preserved.
func (r *Room) Reset(connID, identity string, quiz domain.QuizSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostLocked(connID, identity) {
		return domain.ErrNotHost
	}

	r.quiz = quiz
	r.state = domain.StateWaiting
	r.current = 0
	r.questionStarts = make(map[int]time.Time)
	r.finalLeaderboard = nil
	r.finishedAt = time.Time{}
	for _, p := range r.participants {
		p.score = 0
		p.answered = false
		p.currentAnswer = ""
		p.correctCount = 0
		p.timeTaken = 0
		p.answerTimes = nil
	}
	return nil
}

// LeaveResult tells the gateway what to broadcast after a departure.
// QuestionIndex pins AllAnswered to the question that was live when the
// participant left.
type LeaveResult struct {
	DisplayName     string
	Participants    []domain.ParticipantView
	Empty           bool
	WasHost         bool
	HostTransferred bool
	NewHostName     string
	Playing         bool
	AllAnswered     bool
	QuestionIndex   int
}

// Leave removes a participant in any state. When the departing participant
// held the host role and others remain, the role moves to the earliest-joined
// remaining participant; an empty room after a host departure is reported so
// the registry can delete it. The host is recognized by connection id or
// stable identity, same as every other host check, so a reconnected host
// departing under a fresh connection id still triggers the transfer.
func (r *Room) Leave(connID string) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[connID]
	if !ok {
		return LeaveResult{}, domain.ErrParticipantNotFound
	}
	delete(r.participants, connID)

	res := LeaveResult{
		DisplayName:   p.displayName,
		WasHost:       r.isHostLocked(connID, p.identity),
		Playing:       r.state == domain.StatePlaying,
		QuestionIndex: r.current,
	}

	if res.WasHost {
		if next := r.earliestJoinedLocked(); next != nil {
			r.hostConnID = next.connID
			r.hostIdentity = next.identity
			res.HostTransferred = true
			res.NewHostName = next.displayName
		}
	}

	res.Empty = len(r.participants) == 0
	res.Participants = r.participantViewsLocked()
	res.AllAnswered = r.state == domain.StatePlaying && r.allAnsweredLocked()
	return res, nil
}

func (r *Room) earliestJoinedLocked() *participant {
	var next *participant
	for _, p := range r.participants {
		if next == nil || p.joinOrder < next.joinOrder {
			next = p
		}
	}
	return next
}

// Leaderboard returns the frozen final ranking once finished, otherwise a
// live ranking of the current roster.
func (r *Room) Leaderboard() []domain.LeaderboardEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.StateFinished && r.finalLeaderboard != nil {
		return r.finalLeaderboard
	}
	return r.leaderboardLocked()
}

// leaderboardLocked ranks by score descending, then cumulative time ascending
// (faster wins ties). The sort is stable over join order, so full ties get
// consecutive distinct ranks in a deterministic order.
func (r *Room) leaderboardLocked() []domain.LeaderboardEntry {
	ps := make([]*participant, 0, len(r.participants))
	for _, p := range r.participants {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].joinOrder < ps[j].joinOrder })
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].score != ps[j].score {
			return ps[i].score > ps[j].score
		}
		return ps[i].timeTaken < ps[j].timeTaken
	})

	entries := make([]domain.LeaderboardEntry, len(ps))
	for i, p := range ps {
		entries[i] = domain.LeaderboardEntry{
			Rank:         i + 1,
			DisplayName:  p.displayName,
			Identity:     p.identity,
			Score:        p.score,
			TimeTaken:    p.timeTaken,
			ConnectionID: p.connID,
		}
	}
	return entries
}

// Participants returns the public views in join order.
func (r *Room) Participants() []domain.ParticipantView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participantViewsLocked()
}

func (r *Room) participantViewsLocked() []domain.ParticipantView {
	ps := make([]*participant, 0, len(r.participants))
	for _, p := range r.participants {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].joinOrder < ps[j].joinOrder })

	views := make([]domain.ParticipantView, len(ps))
	for i, p := range ps {
		views[i] = domain.ParticipantView{
			ConnectionID: p.connID,
			Identity:     p.identity,
			DisplayName:  p.displayName,
			Score:        p.score,
			Answered:     p.answered,
			TimeTaken:    p.timeTaken,
		}
	}
	return views
}

// Snapshot returns the room-state view sent to a joining participant.
func (r *Room) Snapshot() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() RoomState {
	lb := r.finalLeaderboard
	if r.state != domain.StateFinished || lb == nil {
		lb = r.leaderboardLocked()
	}
	return RoomState{
		Participants:    r.participantViewsLocked(),
		Leaderboard:     lb,
		State:           r.state,
		CurrentQuestion: r.current,
		Topic:           r.topic,
		Difficulty:      r.difficulty,
	}
}

// Summary is the public-safe projection used by the registry listing.
func (r *Room) Summary() domain.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomSummary{
		Code:              r.code,
		Topic:             r.topic,
		Difficulty:        r.difficulty,
		Title:             r.title,
		CreatedAt:         r.createdAt,
		State:             r.state,
		ParticipantCount:  len(r.participants),
		CurrentQuestion:   r.current,
		TotalQuestions:    len(r.quiz.Questions),
		TimePerQuestion:   r.quiz.TimePerQuestion,
		PointsPerQuestion: r.quiz.PointsPerQuestion,
	}
}

// Attempts builds the best-effort persistence records for a finished quiz.
// Guests (empty identity) are skipped; ranks come from the frozen leaderboard.
func (r *Room) Attempts() []domain.QuizAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateFinished {
		return nil
	}
	ranks := make(map[string]int, len(r.finalLeaderboard))
	for _, e := range r.finalLeaderboard {
		ranks[e.ConnectionID] = e.Rank
	}

	attempts := make([]domain.QuizAttempt, 0, len(r.participants))
	for _, p := range r.participants {
		if p.identity == "" {
			continue
		}
		attempts = append(attempts, domain.QuizAttempt{
			Identity:       p.identity,
			RoomCode:       r.code,
			Topic:          r.topic,
			Score:          p.score,
			TotalQuestions: len(r.quiz.Questions),
			CorrectAnswers: p.correctCount,
			Rank:           ranks[p.connID],
			TimeTaken:      p.timeTaken,
			CompletedAt:    r.finishedAt,
		})
	}
	return attempts
}

func (r *Room) finishedBefore(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == domain.StateFinished && !r.finishedAt.IsZero() && r.finishedAt.Before(cutoff)
}
