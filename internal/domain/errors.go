package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room code does not resolve to a live room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidTopic is returned when no question bank exists for a topic.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrNoQuestions is returned when a topic/difficulty pair yields an empty set.
	ErrNoQuestions = errors.New("no questions available for topic and difficulty")
	// ErrQuizInProgress is returned on join attempts outside the waiting state.
	ErrQuizInProgress = errors.New("cannot join room while quiz is in progress")
	// ErrQuizAlreadyStarted is returned when the host starts a quiz outside the waiting state.
	ErrQuizAlreadyStarted = errors.New("quiz already started")
	// ErrQuizNotActive is returned when an answer arrives outside the playing state.
	ErrQuizNotActive = errors.New("quiz is not active")
	// ErrParticipantNotFound is returned when a connection tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrAlreadyAnswered is returned on duplicate submissions for the same question.
	ErrAlreadyAnswered = errors.New("answer already submitted")
	// ErrNotHost is returned when a non-host attempts a host-only action.
	ErrNotHost = errors.New("only the host can perform this action")
	// ErrNoParticipants is returned when a quiz is started with an empty roster.
	ErrNoParticipants = errors.New("cannot start quiz with no participants")
	// ErrQuestionNotFound is returned when a question index or ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionAdvanced is returned when an advance targets a question the
	// room has already moved past.
	ErrQuestionAdvanced = errors.New("question already advanced")
)
