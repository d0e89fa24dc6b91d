package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_rooms_created_total",
		Help: "Number of rooms created.",
	})
	answersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_answers_submitted_total",
		Help: "Number of answer submissions accepted.",
	})
	quizzesFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_quizzes_finished_total",
		Help: "Number of quizzes run to completion or ended by the host.",
	})
)
