package events

import (
	"time"

	"github.com/spec-kit/moving-chat/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionOpened  EventType = "chat.session_opened"
	EventMessagesMerged EventType = "chat.messages_merged"
	EventMessageSent    EventType = "chat.message_sent"
	EventSendFailed     EventType = "chat.send_failed"
	EventFetchFailed    EventType = "chat.fetch_failed"
	EventMessagesSeen   EventType = "chat.messages_seen"
)

// Event represents something that happened inside a chat session.
type Event struct {
	ID             string      `json:"id"`
	Type           EventType   `json:"type"`
	ConversationID string      `json:"conversation_id"`
	UserID         string      `json:"user_id"`
	Timestamp      time.Time   `json:"timestamp"`
	Payload        interface{} `json:"payload"`
}

// SessionOpenedPayload payload.
type SessionOpenedPayload struct {
	Status          domain.ConversationStatus `json:"status"`
	CounterpartName string                    `json:"counterpart_name"`
}

// MessagesMergedPayload payload.
type MessagesMergedPayload struct {
	Added      int      `json:"added"`
	Size       int      `json:"size"`
	MessageIDs []string `json:"message_ids"`
	// SenderIDs of the added messages, in store order.
	SenderIDs []string `json:"sender_ids"`
}

// MessageSentPayload payload.
type MessageSentPayload struct {
	MessageID   string             `json:"message_id"`
	Kind        domain.ContentKind `json:"kind"`
	Attachments int                `json:"attachments"`
}

// FailurePayload payload for fetch and send failures.
type FailurePayload struct {
	Error     string `json:"error"`
	FirstLoad bool   `json:"first_load,omitempty"`
}

// MessagesSeenPayload payload.
type MessagesSeenPayload struct {
	LastMessageID string    `json:"last_message_id"`
	LastCreatedAt time.Time `json:"last_created_at"`
}
