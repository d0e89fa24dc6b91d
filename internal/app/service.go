package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"arena-quiz-service/internal/domain"
)

// QuestionSource supplies sanitized quiz sets and is the single source of
// truth for answer correctness. The room never computes correctness itself.
type QuestionSource interface {
	FetchQuizSet(ctx context.Context, topic, difficulty string, count int) (domain.QuizSet, error)
	CheckAnswer(ctx context.Context, topic, questionID, answer string) (bool, error)
	Topics(ctx context.Context) ([]domain.TopicInfo, error)
}

// AttemptSink records completed quiz attempts. Writes are best-effort:
// failures are logged and never block or roll back in-memory transitions.
type AttemptSink interface {
	RecordAttempts(ctx context.Context, attempts []domain.QuizAttempt) error
}

const (
	// DefaultQuestionsPerSet is how many questions a room pulls per round.
	DefaultQuestionsPerSet = 10
	// DefaultRetention is how long finished rooms stay visible before cleanup.
	DefaultRetention = time.Hour
)

// RoomService contains the room use cases: registry lifecycle plus the
// operations the gateway routes into individual rooms.
type RoomService struct {
	registry *Registry
	source   QuestionSource
	sink     AttemptSink
	log      *zap.Logger
	perSet   int
}

func NewRoomService(registry *Registry, source QuestionSource, sink AttemptSink, log *zap.Logger) *RoomService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomService{
		registry: registry,
		source:   source,
		sink:     sink,
		log:      log,
		perSet:   DefaultQuestionsPerSet,
	}
}

// SetQuestionsPerSet overrides how many questions each fetched set carries.
func (s *RoomService) SetQuestionsPerSet(n int) {
	if n > 0 {
		s.perSet = n
	}
}

// CreatedRoom is returned from CreateRoom: the generated code plus the
// public-safe view of the new room.
type CreatedRoom struct {
	Code string             `json:"roomId"`
	Room domain.RoomSummary `json:"room"`
}

// CreateRoom fetches a quiz set for the selection criteria and places a new
// room in the registry under a collision-free code.
func (s *RoomService) CreateRoom(ctx context.Context, hostConnID, hostIdentity, topic, difficulty, title string) (CreatedRoom, error) {
	quiz, err := s.source.FetchQuizSet(ctx, topic, difficulty, s.perSet)
	if err != nil {
		return CreatedRoom{}, err
	}

	room := s.registry.Place(hostConnID, hostIdentity, topic, difficulty, title, quiz)
	s.log.Info("room created",
		zap.String("room", room.Code()),
		zap.String("topic", topic),
		zap.String("difficulty", difficulty))
	return CreatedRoom{Code: room.Code(), Room: room.Summary()}, nil
}

// RoomSummary returns the public view of one room.
func (s *RoomService) RoomSummary(code string) (domain.RoomSummary, error) {
	room, ok := s.registry.Room(code)
	if !ok {
		return domain.RoomSummary{}, domain.ErrRoomNotFound
	}
	return room.Summary(), nil
}

// Rooms lists public summaries of every live room.
func (s *RoomService) Rooms() []domain.RoomSummary {
	return s.registry.Summaries()
}

// RoomCount reports the number of live rooms.
func (s *RoomService) RoomCount() int {
	return s.registry.Len()
}

// DeleteRoom removes a room by code.
func (s *RoomService) DeleteRoom(code string) error {
	if !s.registry.Delete(code) {
		return domain.ErrRoomNotFound
	}
	s.log.Info("room deleted", zap.String("room", code))
	return nil
}

// Topics lists the available question banks.
func (s *RoomService) Topics(ctx context.Context) ([]domain.TopicInfo, error) {
	return s.source.Topics(ctx)
}

// Preview returns a sanitized quiz set without creating a room.
func (s *RoomService) Preview(ctx context.Context, topic, difficulty string, count int) (domain.QuizSet, error) {
	if count <= 0 {
		count = s.perSet
	}
	return s.source.FetchQuizSet(ctx, topic, difficulty, count)
}

// Join adds a participant to a waiting room and returns the snapshot the
// gateway sends back to the joiner.
func (s *RoomService) Join(code, connID, identity, displayName string) (RoomState, error) {
	room, ok := s.registry.Room(code)
	if !ok {
		return RoomState{}, domain.ErrRoomNotFound
	}
	state, err := room.Join(connID, identity, displayName)
	if err != nil {
		return RoomState{}, err
	}
	s.log.Info("participant joined",
		zap.String("room", code),
		zap.String("name", displayName))
	return state, nil
}

// StartQuiz begins the quiz, optionally re-fetching the quiz set when the
// host supplies a new topic/difficulty pair at start time.
func (s *RoomService) StartQuiz(ctx context.Context, code, connID, identity, topic, difficulty string) (StartResult, error) {
	room, ok := s.registry.Room(code)
	if !ok {
		return StartResult{}, domain.ErrRoomNotFound
	}

	var replacement *domain.QuizSet
	if topic != "" && difficulty != "" {
		if quiz, err := s.source.FetchQuizSet(ctx, topic, difficulty, s.perSet); err == nil {
			replacement = &quiz
		}
		// An invalid last-moment selection falls back to the set fetched
		// at creation rather than failing the start.
	}

	res, err := room.Start(connID, identity, replacement, topic, difficulty)
	if err != nil {
		return StartResult{}, err
	}
	s.log.Info("quiz started",
		zap.String("room", code),
		zap.Int("questions", res.TotalQuestions))
	return res, nil
}

// SubmitAnswer scores one submission. Correctness is delegated to the
// question source between two locked room phases, so the check never runs
// under the room lock and a client-supplied correctness flag is never trusted.
// The second return value reports whether every participant has now answered.
func (s *RoomService) SubmitAnswer(ctx context.Context, code, connID, answer string, questionIndex int) (domain.AnswerOutcome, bool, error) {
	room, ok := s.registry.Room(code)
	if !ok {
		return domain.AnswerOutcome{}, false, domain.ErrRoomNotFound
	}

	questionID, topic, err := room.ResolveQuestion(connID, questionIndex)
	if err != nil {
		return domain.AnswerOutcome{}, false, err
	}

	correct := false
	if answer != domain.NoAnswer {
		correct, err = s.source.CheckAnswer(ctx, topic, questionID, answer)
		if err != nil {
			return domain.AnswerOutcome{}, false, err
		}
	}

	return room.ApplyAnswer(connID, questionIndex, answer, correct)
}

// AdvanceQuestion moves a room past the given question to the next one, or
// finishes the quiz when the cursor runs past the last one. A stale fromIndex
// (the room already advanced) fails with ErrQuestionAdvanced.
func (s *RoomService) AdvanceQuestion(code string, fromIndex int) (AdvanceResult, error) {
	room, ok := s.registry.Room(code)
	if !ok {
		return AdvanceResult{}, domain.ErrRoomNotFound
	}
	res, err := room.Advance(fromIndex)
	if err != nil {
		return AdvanceResult{}, err
	}
	if res.Finished {
		s.log.Info("quiz finished", zap.String("room", code))
		s.persistAttempts(room)
	}
	return res, nil
}

// EndQuiz force-finishes a quiz. Host only.
func (s *RoomService) EndQuiz(code, connID, identity string) ([]domain.LeaderboardEntry, error) {
	room, ok := s.registry.Room(code)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	lb, err := room.End(connID, identity)
	if err != nil {
		return nil, err
	}
	s.log.Info("quiz ended by host", zap.String("room", code))
	s.persistAttempts(room)
	return lb, nil
}

// PlayAgain resets a room for another round: a fresh quiz pull for the
// room's current selection, zeroed scores, state back to Waiting.
func (s *RoomService) PlayAgain(ctx context.Context, code, connID, identity string) (RoomState, error) {
	room, ok := s.registry.Room(code)
	if !ok {
		return RoomState{}, domain.ErrRoomNotFound
	}

	topic, difficulty := room.TopicDifficulty()
	quiz, err := s.source.FetchQuizSet(ctx, topic, difficulty, s.perSet)
	if err != nil {
		return RoomState{}, err
	}
	if err := room.Reset(connID, identity, quiz); err != nil {
		return RoomState{}, err
	}
	s.log.Info("room reset for another round", zap.String("room", code))
	return room.Snapshot(), nil
}

// Leave removes a participant. A host departure transfers the host role to
// the earliest-joined remaining participant; when no participants remain the
// room is deleted from the registry.
func (s *RoomService) Leave(code, connID string) (LeaveResult, error) {
	room, ok := s.registry.Room(code)
	if !ok {
		return LeaveResult{}, domain.ErrRoomNotFound
	}
	res, err := room.Leave(connID)
	if err != nil {
		return LeaveResult{}, err
	}
	if res.WasHost && res.Empty {
		s.registry.Delete(code)
		s.log.Info("room closed after host left", zap.String("room", code))
	}
	return res, nil
}

// Leaderboard returns the current (or frozen final) ranking for a room.
func (s *RoomService) Leaderboard(code string) ([]domain.LeaderboardEntry, error) {
	room, ok := s.registry.Room(code)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room.Leaderboard(), nil
}

// CleanupEmptyRooms and CleanupStaleFinishedRooms run from the server's
// periodic timer.
func (s *RoomService) CleanupEmptyRooms() int {
	n := s.registry.CleanupEmpty()
	if n > 0 {
		s.log.Info("cleaned up empty rooms", zap.Int("count", n))
	}
	return n
}

func (s *RoomService) CleanupStaleFinishedRooms(retention time.Duration) int {
	if retention <= 0 {
		retention = DefaultRetention
	}
	n := s.registry.CleanupStaleFinished(retention)
	if n > 0 {
		s.log.Info("cleaned up stale finished rooms", zap.Int("count", n))
	}
	return n
}

// persistAttempts hands completed attempts to the sink on a detached
// goroutine. Sink failure is logged and swallowed; it must never block or
// corrupt the in-memory transition that triggered it.
func (s *RoomService) persistAttempts(room *Room) {
	if s.sink == nil {
		return
	}
	attempts := room.Attempts()
	if len(attempts) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.sink.RecordAttempts(ctx, attempts); err != nil {
			s.log.Warn("failed to record quiz attempts",
				zap.String("room", room.Code()),
				zap.Int("attempts", len(attempts)),
				zap.Error(err))
		}
	}()
}
