package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spec-kit/moving-chat/internal/domain"
)

// Client is the subset of the marketplace backend the chat core consumes.
// Implementations are bound to one authenticated identity.
type Client interface {
	FetchMessages(ctx context.Context, conversationID string, page int) (MessagePage, error)
	SendMessage(ctx context.Context, req SendRequest) (domain.Message, error)
	FetchConversation(ctx context.Context, conversationID string) (domain.Conversation, error)
}

// MessagePage is one page of a conversation's messages, in backend order.
type MessagePage struct {
	Messages []domain.Message
	Total    int
	HasNext  bool
}

// SendRequest carries a draft to the backend.
type SendRequest struct {
	ConversationID  string
	Text            string
	Files           []domain.LocalFile
	ClientCreatedAt time.Time
	ClientNonce     string
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err is a 401/403 from the backend.
func IsUnauthorized(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden
	}
	return false
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}
