// Package realtime publishes question events to dashboard clients through Redis Pub/Sub.
// Every organization has its own channel.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuelReschke/MeliDesk/app/models"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	EventNewQuestion        = "question:new"
	EventQuestionProcessing = "question:processing"
)

// Event is the message published on an organization channel.
type Event struct {
	Type           string    `json:"type"`
	OrganizationID string    `json:"organization_id"`
	Payload        any       `json:"payload"`
	EmittedAt      time.Time `json:"emitted_at"`
}

type AccountSummary struct {
	ID       string `json:"id"`
	MLUserID string `json:"ml_user_id"`
	Nickname string `json:"nickname"`
}

type NewQuestionPayload struct {
	Question *models.Question `json:"question"`
	Account  AccountSummary   `json:"account"`
}

type ProcessingPayload struct {
	MLQuestionID string `json:"ml_question_id"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Channel returns the Pub/Sub channel of an organization.
func Channel(organizationID string) string {
	return "melidesk:org:" + organizationID + ":questions"
}

type RedisNotifier struct {
	client  publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRedisNotifier publishes through client. m may be nil.
func NewRedisNotifier(client publisher, m *metrics.Metrics) *RedisNotifier {
	return &RedisNotifier{client: client, metrics: m, now: time.Now}
}

func (n *RedisNotifier) EmitNewQuestion(ctx context.Context, question *models.Question, account *models.Account) error {
	payload := NewQuestionPayload{Question: question}
	if account != nil {
		payload.Account = AccountSummary{ID: account.ID, MLUserID: account.MLUserID, Nickname: account.Nickname}
	}
	return n.publish(ctx, EventNewQuestion, question.OrganizationID, payload)
}

func (n *RedisNotifier) EmitQuestionProcessing(ctx context.Context, mlQuestionID, organizationID string) error {
	return n.publish(ctx, EventQuestionProcessing, organizationID, ProcessingPayload{MLQuestionID: mlQuestionID})
}

func (n *RedisNotifier) publish(ctx context.Context, eventType, organizationID string, payload any) error {
	raw, err := json.Marshal(Event{
		Type:           eventType,
		OrganizationID: organizationID,
		Payload:        payload,
		EmittedAt:      n.now().UTC(),
	})
	if err != nil {
		n.metrics.RecordRealtimeError(eventType)
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	if err := n.client.Publish(ctx, Channel(organizationID), raw).Err(); err != nil {
		n.metrics.RecordRealtimeError(eventType)
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}
