package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-engine/internal/clock"
	"live-quiz-engine/internal/domain"
)

// QuizLoader fetches quiz definitions from the content store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache is an app.QuizRepository that keeps loaded definitions for a
// jittered TTL. Concurrent misses for the same quiz share one load.
type QuizCache struct {
	loader QuizLoader
	ttl    time.Duration
	clock  clock.Clock
	group  singleflight.Group

	mu      sync.RWMutex
	entries map[string]cachedQuiz
	rnd     *rand.Rand
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizCache(loader QuizLoader, ttl time.Duration, c clock.Clock) *QuizCache {
	if c == nil {
		c = clock.Real()
	}
	return &QuizCache{
		loader:  loader,
		ttl:     ttl,
		clock:   c,
		entries: make(map[string]cachedQuiz),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(quizID); ok {
		return quiz, nil
	}

	v, err, _ := c.group.Do(quizID, func() (any, error) {
		if quiz, ok := c.lookup(quizID); ok {
			return quiz, nil
		}
		quiz, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		expiresAt := c.clock.Now().Add(c.jitteredTTL())
		c.mu.Lock()
		c.entries[quizID] = cachedQuiz{quiz: quiz, expiresAt: expiresAt}
		c.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return v.(domain.Quiz), nil
}

// Invalidate drops quizID so the next read goes to the loader.
func (c *QuizCache) Invalidate(quizID string) {
	c.mu.Lock()
	delete(c.entries, quizID)
	c.mu.Unlock()
}

func (c *QuizCache) lookup(quizID string) (domain.Quiz, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[quizID]
	if !ok || !entry.expiresAt.After(c.clock.Now()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// jitteredTTL spreads expirations by up to 10% of the TTL.
func (c *QuizCache) jitteredTTL() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(int64(c.ttl)/10+1))
}

// Catalog is a fixed set of quizzes, used for demos and tests.
type Catalog map[string]domain.Quiz

func (c Catalog) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	quiz, ok := c[quizID]
	if !ok {
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	return quiz, nil
}

// GetQuiz lets a Catalog serve as an uncached repository.
func (c Catalog) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return c.LoadQuiz(ctx, quizID)
}
