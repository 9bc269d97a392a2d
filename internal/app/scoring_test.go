package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/domain"
)

func TestScorer(t *testing.T) {
	q := domain.Question{ID: "q1", Answer: "b"}
	limit := 10 * time.Second
	deadline := epoch.Add(limit)
	speed := app.Scorer{Policy: app.ScoringSpeed, BasePoints: 1000, MinFactor: 0.25}
	flat := app.Scorer{Policy: app.ScoringFlat, BasePoints: 1000}

	cases := []struct {
		name    string
		scorer  app.Scorer
		q       domain.Question
		answer  string
		at      time.Time
		correct bool
		points  int
	}{
		{"wrong answer", speed, q, "a", epoch, false, 0},
		{"instant answer", speed, q, "b", epoch, true, 1000},
		{"20 percent elapsed", speed, q, "b", epoch.Add(2 * time.Second), true, 800},
		{"below the floor", speed, q, "b", epoch.Add(9 * time.Second), true, 250},
		{"at the deadline", speed, q, "b", deadline, true, 250},
		{"flat policy", flat, q, "b", epoch.Add(9 * time.Second), true, 1000},
		{"question points", speed, domain.Question{ID: "q2", Answer: "x", Points: 200}, "x", epoch.Add(5 * time.Second), true, 100},
		{"answers are exact", speed, q, "B", epoch, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			correct, points := tc.scorer.Score(tc.q, tc.answer, tc.at, deadline, limit)
			require.Equal(t, tc.correct, correct)
			require.Equal(t, tc.points, points)
		})
	}
}

func TestScorerIsDeterministic(t *testing.T) {
	s := app.DefaultScorer()
	q := domain.Question{ID: "q1", Answer: "b"}
	at := epoch.Add(3333 * time.Millisecond)
	_, first := s.Score(q, "b", at, epoch.Add(7*time.Second), 7*time.Second)
	for i := 0; i < 10; i++ {
		_, again := s.Score(q, "b", at, epoch.Add(7*time.Second), 7*time.Second)
		require.Equal(t, first, again)
	}
}
