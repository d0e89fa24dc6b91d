package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"arena-quiz-service/internal/domain"
)

type countingLoader struct {
	inner BankLoader
	loads int
}

func (l *countingLoader) LoadBank(ctx context.Context, topic string) (domain.QuestionBank, error) {
	l.loads++
	return l.inner.LoadBank(ctx, topic)
}

func (l *countingLoader) Topics(ctx context.Context) ([]domain.TopicInfo, error) {
	return l.inner.Topics(ctx)
}

func sampleBank(questions int) domain.QuestionBank {
	pool := make([]domain.Question, questions)
	for i := range pool {
		id := strconv.Itoa(i + 1)
		pool[i] = domain.Question{
			ID:            "q" + id,
			Prompt:        "question " + id,
			Options:       []string{"a", "b", "c"},
			CorrectAnswer: "a",
			Explanation:   "because a",
		}
	}
	return domain.QuestionBank{
		Topic:             "aptitude",
		Name:              "Aptitude",
		Description:       "General aptitude",
		Difficulties:      map[string][]domain.Question{"easy": pool},
		TimePerQuestion:   map[string]int{"easy": 25},
		PointsPerQuestion: map[string]int{"easy": 15},
	}
}

func newCountingSource(questions int, ttl time.Duration) (*QuestionSource, *countingLoader) {
	loader := &countingLoader{
		inner: NewStaticBankLoader(map[string]domain.QuestionBank{"aptitude": sampleBank(questions)}),
	}
	return NewQuestionSource(loader, ttl), loader
}

func TestFetchQuizSetUsesCache(t *testing.T) {
	ctx := context.Background()
	src, loader := newCountingSource(5, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := src.FetchQuizSet(ctx, "aptitude", "easy", 0); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if loader.loads != 1 {
		t.Fatalf("expected a single bank load, got %d", loader.loads)
	}

	// Expire the entry and verify the next fetch reloads.
	src.clock = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := src.FetchQuizSet(ctx, "aptitude", "easy", 0); err != nil {
		t.Fatalf("fetch after expiry: %v", err)
	}
	if loader.loads != 2 {
		t.Fatalf("expected reload after expiry, got %d loads", loader.loads)
	}
}

func TestFetchQuizSetCapsAndConfigures(t *testing.T) {
	ctx := context.Background()
	src, _ := newCountingSource(8, time.Minute)

	set, err := src.FetchQuizSet(ctx, "aptitude", "easy", 3)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(set.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(set.Questions))
	}
	if set.TimePerQuestion != 25 || set.PointsPerQuestion != 15 {
		t.Fatalf("expected bank-configured 25s/15pts, got %d/%d", set.TimePerQuestion, set.PointsPerQuestion)
	}
	for _, q := range set.Questions {
		if q.TimeLimit != 25 {
			t.Fatalf("expected per-question limit 25, got %d", q.TimeLimit)
		}
	}

	// A count larger than the pool returns the whole pool.
	set, err = src.FetchQuizSet(ctx, "aptitude", "easy", 50)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(set.Questions) != 8 {
		t.Fatalf("expected full pool of 8, got %d", len(set.Questions))
	}
}

func TestFetchQuizSetNeverLeaksAnswers(t *testing.T) {
	ctx := context.Background()
	src, _ := newCountingSource(10, time.Minute)

	for i := 0; i < 20; i++ {
		set, err := src.FetchQuizSet(ctx, "aptitude", "easy", 5)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		raw, err := json.Marshal(set)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		payload := string(raw)
		if strings.Contains(payload, "correctAnswer") || strings.Contains(payload, "because a") {
			t.Fatalf("sanitized set leaked answer material: %s", payload)
		}
	}
}

func TestFetchQuizSetErrors(t *testing.T) {
	ctx := context.Background()
	src, _ := newCountingSource(3, time.Minute)

	if _, err := src.FetchQuizSet(ctx, "history", "easy", 0); err != domain.ErrInvalidTopic {
		t.Fatalf("expected ErrInvalidTopic, got %v", err)
	}
	if _, err := src.FetchQuizSet(ctx, "aptitude", "impossible", 0); err != domain.ErrNoQuestions {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestCheckAnswer(t *testing.T) {
	ctx := context.Background()
	src, loader := newCountingSource(3, time.Minute)

	ok, err := src.CheckAnswer(ctx, "aptitude", "q1", "a")
	if err != nil || !ok {
		t.Fatalf("expected correct, got ok=%v err=%v", ok, err)
	}
	ok, err = src.CheckAnswer(ctx, "aptitude", "q1", "b")
	if err != nil || ok {
		t.Fatalf("expected incorrect, got ok=%v err=%v", ok, err)
	}
	if _, err := src.CheckAnswer(ctx, "aptitude", "zz", "a"); err != domain.ErrQuestionNotFound {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	if loader.loads != 1 {
		t.Fatalf("checks should run against the cached bank, got %d loads", loader.loads)
	}
}

func TestCheckAnswerEmptyKeyNeverMatches(t *testing.T) {
	ctx := context.Background()
	bank := sampleBank(1)
	bank.Difficulties["easy"][0].CorrectAnswer = ""
	src := NewQuestionSource(NewStaticBankLoader(map[string]domain.QuestionBank{"aptitude": bank}), time.Minute)

	ok, err := src.CheckAnswer(ctx, "aptitude", "q1", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatalf("an empty answer key must never be marked correct")
	}
}

func TestStaticLoaderTopics(t *testing.T) {
	src, _ := newCountingSource(1, time.Minute)
	topics, err := src.Topics(context.Background())
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if len(topics) != 1 || topics[0].ID != "aptitude" || topics[0].Name != "Aptitude" {
		t.Fatalf("unexpected topics %+v", topics)
	}
}
