package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// messagesChannel is the Valkey pub/sub channel new messages are announced on.
const messagesChannel = "chat:messages"

// messageTuple is the only thing put on the bus for a new message: enough to re-read the authoritative row from
// Postgres, never the message content itself. This keeps every gateway instance's fan-out identical regardless of
// which instance wrote the message or how far replication has caught up.
type messageTuple struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	SenderID       uuid.UUID `json:"senderId"`
}

// Publisher announces new messages on a Valkey pub/sub channel for consumption by every gateway instance's Hub.Run.
type Publisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewPublisher creates a new message publisher.
func NewPublisher(rdb *redis.Client, logger zerolog.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: logger}
}

// PublishMessage announces that a message was sent. Subscribers are expected to re-read the message from the
// database rather than trust any payload carried here.
func (p *Publisher) PublishMessage(ctx context.Context, messageID, conversationID, senderID uuid.UUID) error {
	payload, err := json.Marshal(messageTuple{MessageID: messageID, ConversationID: conversationID, SenderID: senderID})
	if err != nil {
		return fmt.Errorf("marshal message tuple: %w", err)
	}
	if err := p.rdb.Publish(ctx, messagesChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish message tuple: %w", err)
	}
	return nil
}
