// Package events publishes ledger change notifications so other systems can
// react to new expenses and settlements without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	GroupCreated      = "group.created"
	GroupUpdated      = "group.updated"
	GroupDeleted      = "group.deleted"
	MembersAdded      = "group.members_added"
	MemberRemoved     = "group.member_removed"
	ExpenseCreated    = "expense.created"
	ExpenseUpdated    = "expense.updated"
	ExpenseDeleted    = "expense.deleted"
	SettlementCreated = "settlement.created"
	SettlementUpdated = "settlement.updated"
	SettlementDeleted = "settlement.deleted"
)

// Event describes one change to a group's ledger.
type Event struct {
	Type       string `json:"type"`
	GroupID    string `json:"groupId"`
	EntityID   string `json:"entityId,omitempty"`
	ActorID    string `json:"actorId"`
	OccurredAt int64  `json:"occurredAt"`
}

// New builds an event stamped with the current time.
func New(eventType, groupID, entityID, actorID string) Event {
	return Event{
		Type:       eventType,
		GroupID:    groupID,
		EntityID:   entityID,
		ActorID:    actorID,
		OccurredAt: time.Now().Unix(),
	}
}

// Publisher delivers events. Publishing is best effort: callers log
// failures and never fail the write that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by group ID, so all
// events of one group land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

// Publish runs inline on write RPCs: every message is flushed on its own.
const (
	batchSize    = 1
	batchTimeout = 10 * time.Millisecond
	writeTimeout = 2 * time.Second
)

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchSize:              batchSize,
			BatchTimeout:           batchTimeout,
			WriteTimeout:           writeTimeout,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.GroupID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher logs events instead of shipping them. Used when no brokers
// are configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	slog.Debug("Ledger event", "type", event.Type, "group_id", event.GroupID, "entity_id", event.EntityID, "actor_id", event.ActorID)
	return nil
}

func (LogPublisher) Close() error { return nil }
