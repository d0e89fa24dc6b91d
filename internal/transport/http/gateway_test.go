package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
)

func sampleBanks() map[string]domain.QuestionBank {
	return map[string]domain.QuestionBank{
		"aptitude": {
			Topic: "aptitude",
			Name:  "Aptitude",
			Difficulties: map[string][]domain.Question{
				"easy": {
					{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: "4"},
					{ID: "q2", Prompt: "What is 3 + 3?", Options: []string{"5", "6"}, CorrectAnswer: "6"},
				},
			},
		},
	}
}

type testServer struct {
	service *app.RoomService
	router  *chi.Mux
	server  *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	source := memory.NewQuestionSource(memory.NewStaticBankLoader(sampleBanks()), time.Minute)
	service := app.NewRoomService(app.NewRegistry(), source, nil, nil)
	service.SetQuestionsPerSet(2)

	gateway := NewGateway(service, nil, nil)
	gateway.SetGraceDelay(50 * time.Millisecond)
	router := NewRouter(NewRestHandler(service, nil), gateway)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{service: service, router: router, server: server}
}

// dial opens a websocket as the given identity and returns the connection
// plus its server-assigned connection id.
func (ts *testServer) dial(t *testing.T, identity string) (*websocket.Conn, string) {
	t.Helper()
	u := "ws" + ts.server.URL[len("http"):] + "/ws?userId=" + identity
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	payload := readUntil(conn, t, "connected")
	connID, _ := payload["connectionId"].(string)
	if connID == "" {
		t.Fatalf("expected a connection id, got %v", payload)
	}
	return conn, connID
}

func send(conn *websocket.Conn, t *testing.T, event string, payload map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": event, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readUntil reads events until one of the wanted type arrives, skipping
// interleaved broadcasts.
func readUntil(conn *websocket.Conn, t *testing.T, want string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read while waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
		if msg.Type == "error" && want != "error" {
			t.Fatalf("unexpected error event while waiting for %s: %v", want, msg.Payload)
		}
	}
	t.Fatalf("never received %s", want)
	return nil
}

func TestWebSocketQuizFlow(t *testing.T) {
	ts := newTestServer(t)

	hostConn, hostID := ts.dial(t, "u-host")
	created, err := ts.service.CreateRoom(context.Background(), hostID, "u-host", "aptitude", "easy", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	code := created.Code

	send(hostConn, t, "join-room", map[string]any{"roomCode": code, "displayName": "Host"})
	state := readUntil(hostConn, t, "room-state")
	if state["gameState"] != "waiting" {
		t.Fatalf("expected waiting room, got %v", state["gameState"])
	}

	playerConn, _ := ts.dial(t, "u2")
	send(playerConn, t, "join-room", map[string]any{"roomCode": code, "displayName": "Bob"})
	readUntil(playerConn, t, "room-state")

	joined := readUntil(hostConn, t, "user-joined")
	if joined["username"] != "Bob" || joined["participantCount"].(float64) != 2 {
		t.Fatalf("unexpected user-joined payload %v", joined)
	}

	send(hostConn, t, "start-quiz", map[string]any{"roomCode": code})
	started := readUntil(hostConn, t, "quiz-started")
	readUntil(playerConn, t, "quiz-started")
	if started["totalQuestions"].(float64) != 2 {
		t.Fatalf("expected 2 questions, got %v", started["totalQuestions"])
	}

	// Question 1: both answer, then the grace delay elapses and the next
	// question is broadcast.
	send(hostConn, t, "submit-answer", map[string]any{"roomCode": code, "answer": "4", "questionIndex": 0})
	result := readUntil(hostConn, t, "answer-result")
	if _, ok := result["score"]; !ok {
		t.Fatalf("answer-result missing score: %v", result)
	}
	submitted := readUntil(playerConn, t, "answer-submitted")
	if submitted["username"] != "Host" {
		t.Fatalf("unexpected answer-submitted payload %v", submitted)
	}

	send(playerConn, t, "submit-answer", map[string]any{"roomCode": code, "answer": "3", "questionIndex": 0})
	readUntil(playerConn, t, "answer-result")

	next := readUntil(hostConn, t, "next-question")
	if next["questionNumber"].(float64) != 2 {
		t.Fatalf("expected question 2, got %v", next["questionNumber"])
	}
	readUntil(playerConn, t, "next-question")

	// Question 2: both answer, the quiz finishes with a leaderboard.
	send(hostConn, t, "submit-answer", map[string]any{"roomCode": code, "answer": "6", "questionIndex": 1})
	send(playerConn, t, "submit-answer", map[string]any{"roomCode": code, "answer": "", "questionIndex": 1})

	finished := readUntil(hostConn, t, "quiz-finished")
	lb, ok := finished["leaderboard"].([]any)
	if !ok || len(lb) != 2 {
		t.Fatalf("expected a 2-entry leaderboard, got %v", finished)
	}
	first := lb[0].(map[string]any)
	if first["username"] != "Host" || first["rank"].(float64) != 1 {
		t.Fatalf("expected Host ranked first, got %v", first)
	}
}

func TestWebSocketHostDisconnect(t *testing.T) {
	ts := newTestServer(t)

	hostConn, hostID := ts.dial(t, "u-host")
	created, err := ts.service.CreateRoom(context.Background(), hostID, "u-host", "aptitude", "easy", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	code := created.Code

	send(hostConn, t, "join-room", map[string]any{"roomCode": code, "displayName": "Host"})
	readUntil(hostConn, t, "room-state")

	playerConn, _ := ts.dial(t, "u2")
	send(playerConn, t, "join-room", map[string]any{"roomCode": code, "displayName": "Bob"})
	readUntil(playerConn, t, "room-state")

	hostConn.Close()

	transferred := readUntil(playerConn, t, "host-transferred")
	if transferred["newHost"] != "Bob" {
		t.Fatalf("expected Bob as new host, got %v", transferred)
	}
	left := readUntil(playerConn, t, "user-left")
	if left["username"] != "Host" || left["participantCount"].(float64) != 1 {
		t.Fatalf("unexpected user-left payload %v", left)
	}

	// The survivor inherited the host role: starting the quiz now succeeds.
	send(playerConn, t, "start-quiz", map[string]any{"roomCode": code})
	readUntil(playerConn, t, "quiz-started")
}

func TestWebSocketDisconnectDuringGraceDelay(t *testing.T) {
	ts := newTestServer(t)

	hostConn, hostID := ts.dial(t, "u-host")
	created, err := ts.service.CreateRoom(context.Background(), hostID, "u-host", "aptitude", "easy", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	code := created.Code

	send(hostConn, t, "join-room", map[string]any{"roomCode": code, "displayName": "Host"})
	readUntil(hostConn, t, "room-state")

	playerConn, _ := ts.dial(t, "u2")
	send(playerConn, t, "join-room", map[string]any{"roomCode": code, "displayName": "Bob"})
	readUntil(playerConn, t, "room-state")

	send(hostConn, t, "start-quiz", map[string]any{"roomCode": code})
	readUntil(hostConn, t, "quiz-started")
	readUntil(playerConn, t, "quiz-started")

	// Both answer question 0, then Bob drops inside the grace window. The
	// submission and the departure each complete question 0; the room must
	// still advance exactly once.
	send(hostConn, t, "submit-answer", map[string]any{"roomCode": code, "answer": "4", "questionIndex": 0})
	readUntil(hostConn, t, "answer-result")
	send(playerConn, t, "submit-answer", map[string]any{"roomCode": code, "answer": "3", "questionIndex": 0})
	readUntil(playerConn, t, "answer-result")
	playerConn.Close()

	next := readUntil(hostConn, t, "next-question")
	if next["questionNumber"].(float64) != 2 {
		t.Fatalf("expected question 2, got %v", next["questionNumber"])
	}

	// Give any stray second timer time to fire, then verify question 1 was
	// not skipped.
	time.Sleep(200 * time.Millisecond)
	summary, err := ts.service.RoomSummary(code)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.State != domain.StatePlaying || summary.CurrentQuestion != 1 {
		t.Fatalf("room advanced twice: state=%s currentQuestion=%d", summary.State, summary.CurrentQuestion)
	}
}

func TestWebSocketSwitchRoomLeavesPrevious(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	hostConn, hostID := ts.dial(t, "u-host")
	roomA, err := ts.service.CreateRoom(ctx, hostID, "u-host", "aptitude", "easy", "")
	if err != nil {
		t.Fatalf("create room A: %v", err)
	}
	send(hostConn, t, "join-room", map[string]any{"roomCode": roomA.Code, "displayName": "Host"})
	readUntil(hostConn, t, "room-state")

	playerConn, playerID := ts.dial(t, "u2")
	send(playerConn, t, "join-room", map[string]any{"roomCode": roomA.Code, "displayName": "Bob"})
	readUntil(playerConn, t, "room-state")
	readUntil(hostConn, t, "user-joined")

	// Bob moves to his own room. His membership in room A must end, not
	// linger as a ghost that keeps the room from emptying.
	roomB, err := ts.service.CreateRoom(ctx, playerID, "u2", "aptitude", "easy", "")
	if err != nil {
		t.Fatalf("create room B: %v", err)
	}
	send(playerConn, t, "join-room", map[string]any{"roomCode": roomB.Code, "displayName": "Bob"})
	readUntil(playerConn, t, "room-state")

	left := readUntil(hostConn, t, "user-left")
	if left["username"] != "Bob" || left["participantCount"].(float64) != 1 {
		t.Fatalf("expected Bob to leave room A, got %v", left)
	}
	summaryA, err := ts.service.RoomSummary(roomA.Code)
	if err != nil {
		t.Fatalf("summary A: %v", err)
	}
	if summaryA.ParticipantCount != 1 {
		t.Fatalf("room A kept a ghost participant: %d", summaryA.ParticipantCount)
	}

	// The host switching away from their own now-empty room deletes it.
	send(hostConn, t, "join-room", map[string]any{"roomCode": roomB.Code, "displayName": "Host"})
	readUntil(hostConn, t, "room-state")
	if _, err := ts.service.RoomSummary(roomA.Code); err != domain.ErrRoomNotFound {
		t.Fatalf("expected empty room A to be deleted, got %v", err)
	}
	summaryB, err := ts.service.RoomSummary(roomB.Code)
	if err != nil {
		t.Fatalf("summary B: %v", err)
	}
	if summaryB.ParticipantCount != 2 {
		t.Fatalf("expected both in room B, got %d", summaryB.ParticipantCount)
	}
}

func TestWebSocketJoinErrors(t *testing.T) {
	ts := newTestServer(t)

	conn, _ := ts.dial(t, "u1")
	send(conn, t, "join-room", map[string]any{"roomCode": "NOPE01", "displayName": "Alice"})
	errPayload := readUntil(conn, t, "error")
	if errPayload["message"] != domain.ErrRoomNotFound.Error() {
		t.Fatalf("expected room-not-found error, got %v", errPayload)
	}

	send(conn, t, "mystery-event", map[string]any{})
	errPayload = readUntil(conn, t, "error")
	if errPayload["message"] != "unsupported message type" {
		t.Fatalf("expected unsupported-type error, got %v", errPayload)
	}
}

func TestWebSocketStartRequiresHost(t *testing.T) {
	ts := newTestServer(t)

	_, hostID := ts.dial(t, "u-host")
	created, err := ts.service.CreateRoom(context.Background(), hostID, "u-host", "aptitude", "easy", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	intruder, _ := ts.dial(t, "u2")
	send(intruder, t, "join-room", map[string]any{"roomCode": created.Code, "displayName": "Bob"})
	readUntil(intruder, t, "room-state")

	send(intruder, t, "start-quiz", map[string]any{"roomCode": created.Code})
	errPayload := readUntil(intruder, t, "error")
	if errPayload["message"] != domain.ErrNotHost.Error() {
		t.Fatalf("expected not-host error, got %v", errPayload)
	}
}
