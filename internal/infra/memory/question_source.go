package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"arena-quiz-service/internal/domain"
)

// BankLoader fetches question banks from a backing store (Postgres, files, etc).
type BankLoader interface {
	LoadBank(ctx context.Context, topic string) (domain.QuestionBank, error)
	Topics(ctx context.Context) ([]domain.TopicInfo, error)
}

// QuestionSource caches question banks with TTL to avoid repeated store hits
// and implements the quiz-set/answer contract on top of them. Sanitized sets
// never carry a correct answer or explanation; selection is shuffled per fetch.
type QuestionSource struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedBank
}

type cachedBank struct {
	bank      domain.QuestionBank
	expiresAt time.Time
}

func NewQuestionSource(loader BankLoader, ttl time.Duration) *QuestionSource {
	return &QuestionSource{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBank),
	}
}

// FetchQuizSet builds a shuffled, sanitized playthrough for one
// (topic, difficulty) pair, capped at count questions.
func (s *QuestionSource) FetchQuizSet(ctx context.Context, topic, difficulty string, count int) (domain.QuizSet, error) {
	bank, err := s.bank(ctx, topic)
	if err != nil {
		return domain.QuizSet{}, err
	}

	pool, ok := bank.Difficulties[difficulty]
	if !ok || len(pool) == 0 {
		return domain.QuizSet{}, domain.ErrNoQuestions
	}

	picked := s.shuffled(pool)
	if count > 0 && count < len(picked) {
		picked = picked[:count]
	}

	timeLimit := bank.TimeLimit(difficulty)
	questions := make([]domain.SanitizedQuestion, len(picked))
	for i, q := range picked {
		questions[i] = domain.SanitizedQuestion{
			ID:        q.ID,
			Prompt:    q.Prompt,
			Options:   q.Options,
			TimeLimit: timeLimit,
		}
	}

	return domain.QuizSet{
		ID:                topic + "-" + difficulty,
		Topic:             topic,
		Name:              bank.Name,
		Description:       bank.Description,
		Difficulty:        difficulty,
		TimePerQuestion:   timeLimit,
		PointsPerQuestion: bank.Points(difficulty),
		Questions:         questions,
	}, nil
}

// CheckAnswer is the single source of truth for correctness. The question is
// looked up across every difficulty so a mid-quiz difficulty change cannot
// orphan in-flight submissions.
func (s *QuestionSource) CheckAnswer(ctx context.Context, topic, questionID, answer string) (bool, error) {
	bank, err := s.bank(ctx, topic)
	if err != nil {
		return false, err
	}
	for _, pool := range bank.Difficulties {
		for _, q := range pool {
			if q.ID == questionID {
				return q.CorrectAnswer != "" && q.CorrectAnswer == answer, nil
			}
		}
	}
	return false, domain.ErrQuestionNotFound
}

// Topics lists the available banks.
func (s *QuestionSource) Topics(ctx context.Context) ([]domain.TopicInfo, error) {
	return s.loader.Topics(ctx)
}

func (s *QuestionSource) bank(ctx context.Context, topic string) (domain.QuestionBank, error) {
	now := s.clock()

	s.mu.RLock()
	if entry, ok := s.cache[topic]; ok && entry.expiresAt.After(now) {
		s.mu.RUnlock()
		return entry.bank, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do(topic, func() (interface{}, error) {
		now := s.clock()
		s.mu.RLock()
		if entry, ok := s.cache[topic]; ok && entry.expiresAt.After(now) {
			s.mu.RUnlock()
			return entry.bank, nil
		}
		s.mu.RUnlock()

		bank, err := s.loader.LoadBank(ctx, topic)
		if err != nil {
			return domain.QuestionBank{}, err
		}

		s.mu.Lock()
		s.cache[topic] = cachedBank{
			bank:      bank,
			expiresAt: now.Add(s.ttlWithJitter()),
		}
		s.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

func (s *QuestionSource) shuffled(pool []domain.Question) []domain.Question {
	out := make([]domain.Question, len(pool))
	copy(out, pool)
	s.rndMu.Lock()
	s.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	s.rndMu.Unlock()
	return out
}

func (s *QuestionSource) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}

// StaticBankLoader is a simple loader backed by an in-memory map (useful for
// tests/demos and the no-database server mode).
type StaticBankLoader struct {
	banks map[string]domain.QuestionBank
}

func NewStaticBankLoader(banks map[string]domain.QuestionBank) *StaticBankLoader {
	return &StaticBankLoader{banks: banks}
}

func (l *StaticBankLoader) LoadBank(_ context.Context, topic string) (domain.QuestionBank, error) {
	if bank, ok := l.banks[topic]; ok {
		return bank, nil
	}
	return domain.QuestionBank{}, domain.ErrInvalidTopic
}

func (l *StaticBankLoader) Topics(_ context.Context) ([]domain.TopicInfo, error) {
	topics := make([]domain.TopicInfo, 0, len(l.banks))
	for _, bank := range l.banks {
		topics = append(topics, domain.TopicInfo{
			ID:          bank.Topic,
			Name:        bank.Name,
			Description: bank.Description,
		})
	}
	return topics, nil
}
