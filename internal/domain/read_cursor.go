package domain

import "time"

// ReadCursor is the newest message a user has seen in a conversation.
type ReadCursor struct {
	UserID         string
	ConversationID string
	LastMessageID  string
	LastCreatedAt  time.Time
	UpdatedAt      time.Time
}
