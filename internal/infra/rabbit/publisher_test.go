package rabbit

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/domain"
)

func TestRoutingKey(t *testing.T) {
	require.Equal(t, "session.finished", RoutingKey(app.EventSessionFinished))
	require.Equal(t, "session.results_failed", RoutingKey(app.EventResultsFailed))
}

func TestNewMessageCarriesResultPayload(t *testing.T) {
	at := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	event := app.LifecycleEvent{
		Kind:      app.EventResultsFailed,
		SessionID: "s-1",
		QuizID:    "quiz-1",
		HostID:    "host",
		At:        at,
		Reason:    "store down",
		Result: &domain.AttemptResult{
			SessionID:    "s-1",
			QuizID:       "quiz-1",
			Participants: []domain.ParticipantResult{{UserID: "u1", Score: 800, Rank: 1}},
		},
	}

	msg, err := NewMessage(event)
	require.NoError(t, err)
	require.Equal(t, "application/json", msg.ContentType)
	require.Equal(t, amqp.Persistent, msg.DeliveryMode)
	require.Equal(t, "s-1:results_failed", msg.MessageId)
	require.True(t, msg.Timestamp.Equal(at))

	var decoded app.LifecycleEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	require.Equal(t, "store down", decoded.Reason)
	require.NotNil(t, decoded.Result)
	require.Equal(t, 800, decoded.Result.Participants[0].Score)
}
