package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizduel-service/internal/domain"
)

// QuestionLoader fetches question content from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestion(ctx context.Context, questionID string) (domain.Question, error)
	LoadQuestionSet(ctx context.Context, setID string) ([]string, error)
	SampleQuestions(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error)
}

// QuestionRepository caches questions and question sets with TTL to avoid repeated DB hits.
// Sampling always goes to the loader; the sampled questions warm the cache.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand

	mu        sync.RWMutex
	questions map[string]cachedQuestion
	sets      map[string]cachedSet
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

type cachedSet struct {
	ids       []string
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader:    loader,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		questions: make(map[string]cachedQuestion),
		sets:      make(map[string]cachedSet),
	}
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	if q, ok := r.cachedQuestion(questionID); ok {
		return q, nil
	}

	result, err, _ := r.sf.Do("q:"+questionID, func() (interface{}, error) {
		if q, ok := r.cachedQuestion(questionID); ok {
			return q, nil
		}
		q, err := r.loader.LoadQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}
		r.store(q)
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (r *QuestionRepository) QuestionSet(ctx context.Context, setID string) ([]string, error) {
	now := r.clock()
	r.mu.RLock()
	if entry, ok := r.sets[setID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.ids, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("set:"+setID, func() (interface{}, error) {
		ids, err := r.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return nil, err
		}
		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		r.sets[setID] = cachedSet{ids: ids, expiresAt: expiresAt}
		r.mu.Unlock()
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (r *QuestionRepository) SampleQuestions(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error) {
	questions, err := r.loader.SampleQuestions(ctx, filter, count)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		r.store(q)
	}
	return questions, nil
}

func (r *QuestionRepository) cachedQuestion(questionID string) (domain.Question, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.questions[questionID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Question{}, false
	}
	return entry.question, true
}

func (r *QuestionRepository) store(q domain.Question) {
	expiresAt := r.clock().Add(r.ttlWithJitter())
	r.mu.Lock()
	r.questions[q.ID] = cachedQuestion{question: q, expiresAt: expiresAt}
	r.mu.Unlock()
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by in-memory maps (useful for tests/demos).
type StaticQuestionLoader struct {
	mu        sync.Mutex
	questions map[string]domain.Question
	sets      map[string][]string
	rnd       *rand.Rand
}

func NewStaticQuestionLoader(questions []domain.Question, sets map[string][]string) *StaticQuestionLoader {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	if sets == nil {
		sets = make(map[string][]string)
	}
	return &StaticQuestionLoader{
		questions: byID,
		sets:      sets,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (l *StaticQuestionLoader) LoadQuestion(_ context.Context, questionID string) (domain.Question, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if q, ok := l.questions[questionID]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (l *StaticQuestionLoader) LoadQuestionSet(_ context.Context, setID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids, ok := l.sets[setID]
	if !ok {
		return nil, domain.ErrQuestionSetNotFound
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// SampleQuestions returns up to count random published questions matching filter.
func (l *StaticQuestionLoader) SampleQuestions(_ context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	matches := make([]domain.Question, 0, len(l.questions))
	for _, q := range l.questions {
		if !q.Published {
			continue
		}
		if filter.Topic != "" && q.Topic != filter.Topic {
			continue
		}
		if filter.Difficulty != "" && q.Difficulty != filter.Difficulty {
			continue
		}
		matches = append(matches, q)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	l.rnd.Shuffle(len(matches), func(i, j int) { matches[i], matches[j] = matches[j], matches[i] })
	if len(matches) > count {
		matches = matches[:count]
	}
	return matches, nil
}
