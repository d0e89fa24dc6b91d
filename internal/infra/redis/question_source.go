package redis

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"arena-quiz-service/internal/domain"
)

// BankLoader fetches question banks from a backing store (e.g., Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context, topic string) (domain.QuestionBank, error)
	Topics(ctx context.Context) ([]domain.TopicInfo, error)
}

// SetFetcher builds sanitized quiz sets; the in-memory source provides it.
type SetFetcher interface {
	FetchQuizSet(ctx context.Context, topic, difficulty string, count int) (domain.QuizSet, error)
	Topics(ctx context.Context) ([]domain.TopicInfo, error)
}

// QuestionSource keeps answer keys in Redis so the hot CheckAnswer path never
// touches the backing store, and delegates quiz-set building to an inner
// fetcher. Keys are stored as:
//
//	HSET bank:{topic}:answers {questionID} {correctAnswer}
type QuestionSource struct {
	client *redis.Client
	inner  SetFetcher
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionSource(client *redis.Client, inner SetFetcher, loader BankLoader, ttl time.Duration) *QuestionSource {
	return &QuestionSource{
		client: client,
		inner:  inner,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchQuizSet delegates to the in-process source; sanitized sets are cheap
// to build and must be re-shuffled per fetch anyway.
func (s *QuestionSource) FetchQuizSet(ctx context.Context, topic, difficulty string, count int) (domain.QuizSet, error) {
	return s.inner.FetchQuizSet(ctx, topic, difficulty, count)
}

// Topics delegates to the in-process source.
func (s *QuestionSource) Topics(ctx context.Context) ([]domain.TopicInfo, error) {
	return s.inner.Topics(ctx)
}

// CheckAnswer resolves correctness from the Redis answer hash, filling it
// from the bank loader on a miss. An unknown question id after a successful
// fill means the id is genuinely invalid.
func (s *QuestionSource) CheckAnswer(ctx context.Context, topic, questionID, answer string) (bool, error) {
	key := s.answersKey(topic)

	correct, err := s.client.HGet(ctx, key, questionID).Result()
	if err == nil {
		return correct != "" && correct == answer, nil
	}
	if err != redis.Nil {
		// Redis being down degrades to a loader hit rather than failing the answer.
		return s.checkViaLoader(ctx, topic, questionID, answer)
	}

	if _, err, _ = s.sf.Do(topic, func() (interface{}, error) {
		return nil, s.fillAnswers(ctx, topic)
	}); err != nil {
		return false, err
	}

	correct, err = s.client.HGet(ctx, key, questionID).Result()
	if err == redis.Nil {
		return false, domain.ErrQuestionNotFound
	}
	if err != nil {
		return s.checkViaLoader(ctx, topic, questionID, answer)
	}
	return correct != "" && correct == answer, nil
}

func (s *QuestionSource) fillAnswers(ctx context.Context, topic string) error {
	bank, err := s.loader.LoadBank(ctx, topic)
	if err != nil {
		return err
	}

	key := s.answersKey(topic)
	pipe := s.client.Pipeline()
	for _, pool := range bank.Difficulties {
		for _, q := range pool {
			pipe.HSet(ctx, key, q.ID, q.CorrectAnswer)
		}
	}
	if ttl := s.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *QuestionSource) checkViaLoader(ctx context.Context, topic, questionID, answer string) (bool, error) {
	bank, err := s.loader.LoadBank(ctx, topic)
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

func (s *QuestionSource) answersKey(topic string) string {
	return "bank:" + topic + ":answers"
}

func (s *QuestionSource) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
