package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateAndFetchRoom(t *testing.T) {
	ts := newTestServer(t)

	body := `{"hostId":"conn-1","hostUserId":"u1","topic":"aptitude","difficulty":"easy","quizTitle":"Friday Quiz"}`
	resp := doRequest(t, ts, http.MethodPost, "/api/rooms", body)
	if resp.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		RoomID string `json:"roomId"`
		Room   struct {
			Title string `json:"quizTitle"`
			State string `json:"gameState"`
		} `json:"room"`
	}
	decode(t, resp, &created)
	if len(created.RoomID) != 6 {
		t.Fatalf("expected a 6-char room code, got %q", created.RoomID)
	}
	if created.Room.Title != "Friday Quiz" || created.Room.State != "waiting" {
		t.Fatalf("unexpected room %+v", created.Room)
	}

	resp = doRequest(t, ts, http.MethodGet, "/api/rooms/"+created.RoomID, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.Code)
	}

	resp = doRequest(t, ts, http.MethodGet, "/api/rooms", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.Code)
	}
	var listed struct {
		Rooms []json.RawMessage `json:"rooms"`
	}
	decode(t, resp, &listed)
	if len(listed.Rooms) != 1 {
		t.Fatalf("expected 1 listed room, got %d", len(listed.Rooms))
	}

	resp = doRequest(t, ts, http.MethodDelete, "/api/rooms/"+created.RoomID, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.Code)
	}
	resp = doRequest(t, ts, http.MethodGet, "/api/rooms/"+created.RoomID, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, ts, http.MethodPost, "/api/rooms", `{"topic":"aptitude"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("missing hostId: expected 400, got %d", resp.Code)
	}

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms", `{"hostId":"c1","topic":"astrology"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("invalid topic: expected 400, got %d", resp.Code)
	}

	resp = doRequest(t, ts, http.MethodPost, "/api/rooms", `not json`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("bad payload: expected 400, got %d", resp.Code)
	}

	// Omitted topic and difficulty fall back to defaults.
	resp = doRequest(t, ts, http.MethodPost, "/api/rooms", `{"hostId":"c1"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("defaults: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestListTopics(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, ts, http.MethodGet, "/api/rooms/topics", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var topics struct {
		Topics []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"topics"`
	}
	decode(t, resp, &topics)
	if len(topics.Topics) != 1 || topics.Topics[0].ID != "aptitude" {
		t.Fatalf("unexpected topics %+v", topics)
	}
}

func TestPreviewQuizIsSanitized(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, ts, http.MethodGet, "/api/quizzes/aptitude/easy?count=1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "correctAnswer") {
		t.Fatalf("preview leaked answer material: %s", resp.Body.String())
	}
	var preview struct {
		Quiz struct {
			Questions []struct {
				ID string `json:"id"`
			} `json:"questions"`
		} `json:"quiz"`
	}
	decode(t, resp, &preview)
	if len(preview.Quiz.Questions) != 1 {
		t.Fatalf("expected count=1 respected, got %d questions", len(preview.Quiz.Questions))
	}

	resp = doRequest(t, ts, http.MethodGet, "/api/quizzes/aptitude/brutal", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown difficulty: expected 404, got %d", resp.Code)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp := doRequest(t, ts, http.MethodGet, "/healthz", "")
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.Code, resp.Body.String())
	}
}

func doRequest(t *testing.T, ts *testServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
