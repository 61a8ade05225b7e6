package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quizduel-service/internal/domain"
	"quizduel-service/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{QuestionLoader: memory.NewStaticQuestionLoader(sampleQuestions(), nil)}
	repo := NewQuestionRepository(newClient(mr), loader, time.Minute)

	q, err := repo.GetQuestion(context.Background(), "q1")
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if q.CorrectOptionID != "b" || len(q.Options) != 2 {
		t.Fatalf("unexpected question %+v", q)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("duel:question:q1") {
		t.Fatalf("expected question cached in redis")
	}

	// Second call should hit cache, loader not incremented.
	_, _ = repo.GetQuestion(context.Background(), "q1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

func TestQuestionSetCachedAsList(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := memory.NewStaticQuestionLoader(sampleQuestions(), map[string][]string{"set-1": {"q2", "q1"}})
	repo := NewQuestionRepository(newClient(mr), loader, time.Minute)

	ids, err := repo.QuestionSet(context.Background(), "set-1")
	if err != nil {
		t.Fatalf("question set: %v", err)
	}
	if len(ids) != 2 || ids[0] != "q2" {
		t.Fatalf("unexpected ids %v", ids)
	}
	cached, err := mr.List("duel:set:set-1")
	if err != nil || len(cached) != 2 || cached[0] != "q2" || cached[1] != "q1" {
		t.Fatalf("expected ordered list in redis, got %v (%v)", cached, err)
	}
}

func TestSampleWarmsQuestionCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewQuestionRepository(newClient(mr), memory.NewStaticQuestionLoader(sampleQuestions(), nil), time.Minute)
	got, err := repo.SampleQuestions(context.Background(), domain.QuestionFilter{}, 2)
	if err != nil || len(got) != 2 {
		t.Fatalf("sample: %v (%d)", err, len(got))
	}
	for _, q := range got {
		if !mr.Exists("duel:question:" + q.ID) {
			t.Fatalf("expected %s cached after sampling", q.ID)
		}
	}
}

type countingLoader struct {
	memory.QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestion(ctx, questionID)
}

func sampleQuestions() []domain.Question {
	options := []domain.Option{{ID: "a", Text: "3"}, {ID: "b", Text: "4"}}
	return []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Options: options, CorrectOptionID: "b", Published: true},
		{ID: "q2", Prompt: "What is 1 + 2?", Options: options, CorrectOptionID: "a", Published: true},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
