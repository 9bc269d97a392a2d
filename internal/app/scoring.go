package app

import (
	"math"
	"time"

	"live-quiz-engine/internal/domain"
)

// ScoringPolicy selects how correct answers are rewarded.
type ScoringPolicy string

const (
	// ScoringSpeed scales points by the share of the time limit left at submission.
	ScoringSpeed ScoringPolicy = "speed"
	// ScoringFlat awards full points for any correct answer.
	ScoringFlat ScoringPolicy = "flat"
)

// Scorer computes score deltas. The result depends only on the answer, the
// submission timestamp and the deadline, so totals can be re-derived from
// stored submissions.
type Scorer struct {
	Policy     ScoringPolicy
	BasePoints int
	// MinFactor is the lower clamp of the speed factor, in [0, 1].
	MinFactor float64
}

func DefaultScorer() Scorer {
	return Scorer{Policy: ScoringSpeed, BasePoints: 1000, MinFactor: 0.25}
}

// Score returns correctness and the points awarded for answer.
func (s Scorer) Score(q domain.Question, answer string, submittedAt, deadline time.Time, limit time.Duration) (bool, int) {
	if answer != q.Answer {
		return false, 0
	}
	base := int64(q.Points)
	if base <= 0 {
		base = int64(s.BasePoints)
	}
	if s.Policy == ScoringFlat || limit <= 0 {
		return true, int(base)
	}

	remaining := deadline.Sub(submittedAt)
	if remaining > limit {
		remaining = limit
	}
	if remaining < 0 {
		remaining = 0
	}

	// Integer arithmetic keeps the result identical across platforms.
	minPermille := int64(math.Round(clampFactor(s.MinFactor) * 1000))
	floor := base * minPermille / 1000
	scaled := base * int64(remaining) / int64(limit)
	if scaled < floor {
		scaled = floor
	}
	return true, int(scaled)
}

func clampFactor(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
