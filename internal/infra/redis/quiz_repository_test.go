package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-quiz-engine/internal/domain"
	"live-quiz-engine/internal/infra/memory"
)

func TestQuizCacheStoresDefinitionInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(t, mr)

	loader := &countingLoader{QuizLoader: memory.Catalog{"quiz-1": sampleQuiz()}}
	repo := NewQuizCache(client, loader, time.Minute, nil)

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.Questions[0].Answer != "o2" {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if !mr.Exists("quiz:quiz-1:definition") {
		t.Fatalf("expected definition key in redis")
	}
	if ttl := mr.TTL("quiz:quiz-1:definition"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("ttl should be jittered within 10%%, got %s", ttl)
	}

	// Second call should hit cache, loader not incremented.
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	if err := repo.Invalidate(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 3: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestQuizCacheDegradesWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(t, mr)
	mr.Close()

	loader := &countingLoader{QuizLoader: memory.Catalog{"quiz-1": sampleQuiz()}}
	repo := NewQuizCache(client, loader, time.Minute, nil)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("expected loader fallback, got %v", err)
	}
	if _, err := repo.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestQuizCacheDiscardsCorruptEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(t, mr)
	if err := mr.Set("quiz:quiz-1:definition", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	loader := &countingLoader{QuizLoader: memory.Catalog{"quiz-1": sampleQuiz()}}
	repo := NewQuizCache(client, loader, 0, nil)
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected a reload, loader calls %d", loader.calls)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func newClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:      "q1",
				Prompt:  "What is 2 + 2?",
				Options: []domain.Option{{ID: "o1", Text: "3"}, {ID: "o2", Text: "4"}},
				Answer:  "o2",
				Points:  1,
			},
		},
	}
}
