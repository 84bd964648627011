package domain

// ConversationStatus mirrors the lifecycle of the order behind a chat.
type ConversationStatus string

const (
	ConversationStatusPending    ConversationStatus = "pending"
	ConversationStatusProcessing ConversationStatus = "processing"
	ConversationStatusDone       ConversationStatus = "done"
)

// Conversation is a chat between one customer and one company. Read-only here;
// the backend creates it when a task or offer interaction starts.
type Conversation struct {
	ID               string
	CounterpartID    string
	CounterpartName  string
	CounterpartImage string
	OrderRef         string
	Status           ConversationStatus
}
