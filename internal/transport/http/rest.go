package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
)

// RestHandler exposes the non-realtime surface: room bootstrap and discovery.
type RestHandler struct {
	service *app.RoomService
	log     *zap.Logger
}

func NewRestHandler(service *app.RoomService, log *zap.Logger) *RestHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RestHandler{service: service, log: log}
}

// NewRouter wires the REST handlers, the websocket endpoint, health, and
// metrics into one chi router.
func NewRouter(rest *RestHandler, gateway *Gateway) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", gateway.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", rest.createRoom)
			r.Get("/", rest.listRooms)
			r.Get("/topics", rest.listTopics)
			r.Get("/{code}", rest.getRoom)
			r.Delete("/{code}", rest.deleteRoom)
		})
		r.Get("/quizzes/{topic}/{difficulty}", rest.previewQuiz)
	})
	return r
}

type createRoomRequest struct {
	HostID     string `json:"hostId"`
	HostUserID string `json:"hostUserId"`
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	QuizTitle  string `json:"quizTitle"`
}

func (h *RestHandler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.HostID == "" {
		h.writeError(w, http.StatusBadRequest, "host ID is required")
		return
	}
	if req.Topic == "" {
		req.Topic = "aptitude"
	}
	if req.Difficulty == "" {
		req.Difficulty = "easy"
	}

	created, err := h.service.CreateRoom(r.Context(), req.HostID, req.HostUserID, req.Topic, req.Difficulty, req.QuizTitle)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	roomsCreated.Inc()
	h.writeJSON(w, http.StatusOK, created)
}

func (h *RestHandler) listRooms(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"rooms": h.service.Rooms()})
}

func (h *RestHandler) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.service.Topics(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (h *RestHandler) getRoom(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.RoomSummary(chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *RestHandler) deleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRoom(chi.URLParam(r, "code")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "room deleted"})
}

func (h *RestHandler) previewQuiz(w http.ResponseWriter, r *http.Request) {
	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			count = n
		}
	}
	quiz, err := h.service.Preview(r.Context(), chi.URLParam(r, "topic"), chi.URLParam(r, "difficulty"), count)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"quiz": quiz})
}

func (h *RestHandler) writeServiceError(w http.ResponseWriter, err error) {
	h.writeError(w, statusFor(err), err.Error())
}

func (h *RestHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *RestHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("failed to encode response", zap.Error(err))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrNoQuestions),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTopic),
		errors.Is(err, domain.ErrNoParticipants):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrQuizInProgress),
		errors.Is(err, domain.ErrQuizAlreadyStarted),
		errors.Is(err, domain.ErrQuizNotActive),
		errors.Is(err, domain.ErrAlreadyAnswered):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
