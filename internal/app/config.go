package app

import "time"

// ExclusivityPolicy decides which sessions conflict with each other.
type ExclusivityPolicy string

const (
	// PolicyPerQuiz allows one active session per quiz.
	PolicyPerQuiz ExclusivityPolicy = "per_quiz"
	// PolicyPerHost allows one active session per quiz and host.
	PolicyPerHost ExclusivityPolicy = "per_host"
)

func (p ExclusivityPolicy) key(quizID, hostID string) string {
	if p == PolicyPerHost {
		return quizID + "/" + hostID
	}
	return quizID
}

// SessionConfig tunes a single session actor.
type SessionConfig struct {
	DefaultTimeLimit time.Duration
	RevealInterval   time.Duration
	PresenceGrace    time.Duration
	Retention        time.Duration
	QueueSize        int
	MaxSendFailures  int
	MaxChatLength    int
	Scoring          Scorer
}

// RetryPolicy bounds the durable write of a finished session.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

// EngineConfig is everything the registry needs to build sessions.
type EngineConfig struct {
	Policy  ExclusivityPolicy
	Session SessionConfig
	Results RetryPolicy
}

// DefaultEngineConfig returns production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Policy: PolicyPerQuiz,
		Session: SessionConfig{
			DefaultTimeLimit: 30 * time.Second,
			RevealInterval:   5 * time.Second,
			PresenceGrace:    15 * time.Second,
			Retention:        2 * time.Minute,
			QueueSize:        256,
			MaxSendFailures:  3,
			MaxChatLength:    500,
			Scoring:          DefaultScorer(),
		},
		Results: RetryPolicy{
			MaxRetries:      8,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			AttemptTimeout:  5 * time.Second,
		},
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultEngineConfig().Session
	if c.DefaultTimeLimit <= 0 {
		c.DefaultTimeLimit = d.DefaultTimeLimit
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxSendFailures <= 0 {
		c.MaxSendFailures = d.MaxSendFailures
	}
	if c.MaxChatLength <= 0 {
		c.MaxChatLength = d.MaxChatLength
	}
	if c.Scoring.BasePoints <= 0 {
		c.Scoring.BasePoints = d.Scoring.BasePoints
	}
	if c.Scoring.Policy == "" {
		c.Scoring.Policy = d.Scoring.Policy
	}
	return c
}
