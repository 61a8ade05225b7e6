package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizduel-service/internal/domain"
	"quizduel-service/internal/infra/memory"
)

// QuestionRepository caches questions in Redis and falls back to a loader on cache miss.
// Questions are stored as JSON: SET duel:question:{questionID} {json}
// Question sets are stored as lists: RPUSH duel:set:{setID} {questionID...}
type QuestionRepository struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	if q, ok := r.cached(ctx, questionID); ok {
		return q, nil
	}

	result, err, _ := r.sf.Do("q:"+questionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if q, ok := r.cached(ctx, questionID); ok {
			return q, nil
		}
		q, err := r.loader.LoadQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		r.store(ctx, q)
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (r *QuestionRepository) QuestionSet(ctx context.Context, setID string) ([]string, error) {
	key := r.setKey(setID)
	ids, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err == nil && len(ids) > 0 {
		return ids, nil
	}

	result, err, _ := r.sf.Do("set:"+setID, func() (interface{}, error) {
		ids, err := r.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			pipe := r.client.TxPipeline()
			pipe.Del(ctx, key)
			values := make([]interface{}, len(ids))
			for i, id := range ids {
				values[i] = id
			}
			pipe.RPush(ctx, key, values...)
			if ttl := r.ttlWithJitter(); ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			_, _ = pipe.Exec(ctx)
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// SampleQuestions is never cached; sampled questions warm the per-question cache.
func (r *QuestionRepository) SampleQuestions(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error) {
	questions, err := r.loader.SampleQuestions(ctx, filter, count)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		r.store(ctx, q)
	}
	return questions, nil
}

func (r *QuestionRepository) cached(ctx context.Context, questionID string) (domain.Question, bool) {
	raw, err := r.client.Get(ctx, r.questionKey(questionID)).Bytes()
	if err != nil {
		return domain.Question{}, false
	}
	var q domain.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Question{}, false
	}
	return q, true
}

func (r *QuestionRepository) store(ctx context.Context, q domain.Question) {
	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	// best-effort; a failed write only costs a future loader call
	_ = r.client.Set(ctx, r.questionKey(q.ID), raw, r.ttlWithJitter()).Err()
}

func (r *QuestionRepository) questionKey(questionID string) string {
	return "duel:question:" + questionID
}

func (r *QuestionRepository) setKey(setID string) string {
	return "duel:set:" + setID
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
