package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"arena-quiz-service/internal/app"
)

// DefaultGraceDelay is the pause between "all answered" and advancing,
// letting clients show per-question results before the next one arrives.
const DefaultGraceDelay = 2 * time.Second

// Gateway owns one websocket per connected user, routes inbound events into
// the room service, and fans derived views out to every connection subscribed
// to a room. Each connection gets a fresh connection id; the stable identity
// is resolved once at upgrade time and rides along for host checks.
type Gateway struct {
	service  *app.RoomService
	log      *zap.Logger
	verifier *TokenVerifier
	upgrader websocket.Upgrader
	grace    time.Duration

	mu    sync.RWMutex
	rooms map[string]map[string]*client
}

func NewGateway(service *app.RoomService, verifier *TokenVerifier, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		service:  service,
		log:      log,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		grace: DefaultGraceDelay,
		rooms: make(map[string]map[string]*client),
	}
}

// SetGraceDelay overrides the all-answered advance delay (tests use this).
func (g *Gateway) SetGraceDelay(d time.Duration) { g.grace = d }

type client struct {
	conn        *websocket.Conn
	send        chan outboundMessage[any]
	quit        chan struct{}
	connID      string
	identity    string
	displayName string

	mu       sync.Mutex
	roomCode string
}

func (c *client) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

func (c *client) setRoom(code string) {
	c.mu.Lock()
	c.roomCode = code
	c.mu.Unlock()
}

// ServeWS upgrades the request and runs the connection's event loop.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := g.resolveIdentity(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{
		conn:     conn,
		send:     make(chan outboundMessage[any], 16),
		quit:     make(chan struct{}),
		connID:   uuid.NewString(),
		identity: identity,
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-c.send:
				if err := conn.WriteJSON(msg); err != nil {
					g.log.Debug("ws write error", zap.Error(err))
					return
				}
			case <-c.quit:
				return
			}
		}
	}()

	g.sendTo(c, evtConnected, connectedPayload{ConnectionID: c.connID})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		g.dispatch(r.Context(), c, inbound)
	}

	g.disconnect(c)
	close(c.quit)
	<-writerDone
}

// resolveIdentity authenticates the connection. With a verifier configured a
// valid bearer token is mandatory; without one the caller-supplied userId is
// accepted as-is and may be empty (guest).
func (g *Gateway) resolveIdentity(r *http.Request) (string, error) {
	if g.verifier == nil {
		return r.URL.Query().Get("userId"), nil
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return "", errors.New("authentication required")
	}
	return g.verifier.Identity(token)
}

func (g *Gateway) dispatch(ctx context.Context, c *client, msg inboundMessage) {
	switch msg.Type {
	case evtJoinRoom:
		var p joinRoomPayload
		if !g.decode(c, msg.Payload, &p) {
			return
		}
		g.handleJoin(c, p)
	case evtStartQuiz:
		var p startQuizPayload
		if !g.decode(c, msg.Payload, &p) {
			return
		}
		g.handleStart(ctx, c, p)
	case evtSubmitAnswer:
		var p submitAnswerPayload
		if !g.decode(c, msg.Payload, &p) {
			return
		}
		g.handleSubmit(ctx, c, p)
	case evtEndQuiz:
		var p endQuizPayload
		if !g.decode(c, msg.Payload, &p) {
			return
		}
		g.handleEnd(c, p)
	case evtPlayAgain:
		var p playAgainPayload
		if !g.decode(c, msg.Payload, &p) {
			return
		}
		g.handlePlayAgain(ctx, c, p)
	default:
		g.sendError(c, "unsupported message type")
	}
}

func (g *Gateway) decode(c *client, raw json.RawMessage, into any) bool {
	if err := json.Unmarshal(raw, into); err != nil {
		g.sendError(c, "invalid payload")
		return false
	}
	return true
}

func (g *Gateway) handleJoin(c *client, p joinRoomPayload) {
	// A connection sits in at most one room: switching rooms runs the full
	// leave transition on the previous one first, so it can empty out,
	// transfer its host role, or complete its current question.
	if prev := c.room(); prev != "" && prev != p.RoomCode {
		g.leaveRoom(c, prev)
		c.setRoom("")
	}

	state, err := g.service.Join(p.RoomCode, c.connID, c.identity, p.DisplayName)
	if err != nil {
		g.sendError(c, err.Error())
		return
	}

	c.displayName = p.DisplayName
	c.setRoom(p.RoomCode)
	g.register(p.RoomCode, c)

	g.broadcastExcept(p.RoomCode, c.connID, evtUserJoined, userJoinedPayload{
		DisplayName:      p.DisplayName,
		ParticipantCount: len(state.Participants),
		Participants:     state.Participants,
	})
	g.sendTo(c, evtRoomState, roomStatePayload(state))
}

func (g *Gateway) handleStart(ctx context.Context, c *client, p startQuizPayload) {
	res, err := g.service.StartQuiz(ctx, p.RoomCode, c.connID, c.identity, p.Topic, p.Difficulty)
	if err != nil {
		g.sendError(c, err.Error())
		return
	}
	g.broadcast(p.RoomCode, evtQuizStarted, res)
}

func (g *Gateway) handleSubmit(ctx context.Context, c *client, p submitAnswerPayload) {
	outcome, allAnswered, err := g.service.SubmitAnswer(ctx, p.RoomCode, c.connID, p.Answer, p.QuestionIndex)
	if err != nil {
		g.sendError(c, err.Error())
		return
	}
	answersSubmitted.Inc()

	g.sendTo(c, evtAnswerResult, outcome)
	g.broadcastExcept(p.RoomCode, c.connID, evtAnswerSubmitted, answerSubmittedPayload{
		DisplayName: c.displayName,
		HasAnswered: true,
		IsCorrect:   outcome.Correct,
	})
	g.broadcastLeaderboard(p.RoomCode)

	if allAnswered {
		g.scheduleAdvance(p.RoomCode, p.QuestionIndex)
	}
}

func (g *Gateway) handleEnd(c *client, p endQuizPayload) {
	lb, err := g.service.EndQuiz(p.RoomCode, c.connID, c.identity)
	if err != nil {
		g.sendError(c, err.Error())
		return
	}
	quizzesFinished.Inc()
	g.broadcast(p.RoomCode, evtQuizEnded, leaderboardPayload{Leaderboard: lb})
}

func (g *Gateway) handlePlayAgain(ctx context.Context, c *client, p playAgainPayload) {
	state, err := g.service.PlayAgain(ctx, p.RoomCode, c.connID, c.identity)
	if err != nil {
		g.sendError(c, err.Error())
		return
	}
	g.broadcast(p.RoomCode, evtRoomState, roomStatePayload(state))
}

// scheduleAdvance moves the room past fromIndex after the grace delay. The
// delay is presentation only; the room itself has no timer. Advancing can
// legitimately fail when the host force-ends during the grace window, or when
// another trigger for the same question (a submission and a departure can
// both complete it) already advanced the room.
func (g *Gateway) scheduleAdvance(roomCode string, fromIndex int) {
	time.AfterFunc(g.grace, func() {
		res, err := g.service.AdvanceQuestion(roomCode, fromIndex)
		if err != nil {
			g.log.Debug("advance skipped", zap.String("room", roomCode), zap.Error(err))
			return
		}
		if res.Finished {
			quizzesFinished.Inc()
			g.broadcast(roomCode, evtQuizFinished, leaderboardPayload{Leaderboard: res.Leaderboard})
			return
		}
		g.broadcast(roomCode, evtNextQuestion, nextQuestionPayload{
			Question:       res.Question,
			QuestionNumber: res.QuestionNumber,
			TotalQuestions: res.TotalQuestions,
		})
	})
}

// disconnect runs the leave transition for the connection's room and tells
// the survivors what changed.
func (g *Gateway) disconnect(c *client) {
	if roomCode := c.room(); roomCode != "" {
		g.leaveRoom(c, roomCode)
	}
}

func (g *Gateway) leaveRoom(c *client, roomCode string) {
	res, err := g.service.Leave(roomCode, c.connID)
	g.unregister(roomCode, c)
	if err != nil {
		return
	}

	if res.WasHost && res.Empty {
		g.broadcast(roomCode, evtRoomClosed, roomClosedPayload{Message: "Host disconnected. Room closed."})
		return
	}
	if res.HostTransferred {
		g.broadcast(roomCode, evtHostTransferred, hostTransferredPayload{
			NewHost: res.NewHostName,
			Message: "Host transferred to " + res.NewHostName,
		})
	}
	g.broadcast(roomCode, evtUserLeft, userLeftPayload{
		DisplayName:      res.DisplayName,
		ParticipantCount: len(res.Participants),
		Participants:     res.Participants,
	})
	if res.Playing {
		g.broadcastLeaderboard(roomCode)
	}
	if res.AllAnswered {
		g.scheduleAdvance(roomCode, res.QuestionIndex)
	}
}

func (g *Gateway) broadcastLeaderboard(roomCode string) {
	lb, err := g.service.Leaderboard(roomCode)
	if err != nil {
		return
	}
	g.broadcast(roomCode, evtUpdateLeaderboard, leaderboardPayload{Leaderboard: lb})
}

func (g *Gateway) register(roomCode string, c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rooms[roomCode] == nil {
		g.rooms[roomCode] = make(map[string]*client)
	}
	g.rooms[roomCode][c.connID] = c
}

func (g *Gateway) unregister(roomCode string, c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if conns, ok := g.rooms[roomCode]; ok {
		delete(conns, c.connID)
		if len(conns) == 0 {
			delete(g.rooms, roomCode)
		}
	}
}

func (g *Gateway) subscribers(roomCode string) []*client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	conns := make([]*client, 0, len(g.rooms[roomCode]))
	for _, c := range g.rooms[roomCode] {
		conns = append(conns, c)
	}
	return conns
}

func (g *Gateway) broadcast(roomCode, event string, payload any) {
	for _, c := range g.subscribers(roomCode) {
		g.sendTo(c, event, payload)
	}
}

func (g *Gateway) broadcastExcept(roomCode, exceptConnID, event string, payload any) {
	for _, c := range g.subscribers(roomCode) {
		if c.connID == exceptConnID {
			continue
		}
		g.sendTo(c, event, payload)
	}
}

// sendTo never blocks the dispatching goroutine: a connection whose write
// buffer is full simply misses the update rather than stalling the room.
func (g *Gateway) sendTo(c *client, event string, payload any) {
	msg := outboundMessage[any]{Type: event, Payload: payload}
	select {
	case c.send <- msg:
	case <-c.quit:
	default:
		g.log.Debug("dropping event for slow connection",
			zap.String("event", event),
			zap.String("conn", c.connID))
	}
}

func (g *Gateway) sendError(c *client, message string) {
	g.sendTo(c, evtError, errorPayload{Message: message})
}
