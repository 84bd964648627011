package dto

import (
	"time"

	"github.com/spec-kit/moving-chat/internal/domain"
)

// ConversationResponse describes the counterpart and order behind a chat.
type ConversationResponse struct {
	ID               string                    `json:"id"`
	CounterpartID    string                    `json:"counterpart_id"`
	CounterpartName  string                    `json:"counterpart_name"`
	CounterpartImage string                    `json:"counterpart_image,omitempty"`
	OrderRef         string                    `json:"order_ref,omitempty"`
	Status           domain.ConversationStatus `json:"status"`
}

// MessageResponse represents one chat message.
type MessageResponse struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	SenderID       string               `json:"sender_id"`
	Mine           bool                 `json:"mine"`
	Kind           domain.ContentKind   `json:"kind"`
	Body           string               `json:"body"`
	Attachments    []AttachmentResponse `json:"attachments"`
	CreatedAt      time.Time            `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID        string                    `json:"id"`
	FileName  string                    `json:"file_name"`
	MimeType  string                    `json:"mime_type"`
	Category  domain.AttachmentCategory `json:"category"`
	SizeBytes int64                     `json:"size_bytes"`
	URL       string                    `json:"url,omitempty"`
}

// ScrollCommandResponse tells the view to scroll to the newest message.
type ScrollCommandResponse struct {
	Seq      uint64                `json:"seq"`
	Behavior domain.ScrollBehavior `json:"behavior"`
}

// DraftFileResponse describes a selected, unsent file.
type DraftFileResponse struct {
	ID          string                    `json:"id"`
	FileName    string                    `json:"file_name"`
	ContentType string                    `json:"content_type"`
	Category    domain.AttachmentCategory `json:"category"`
	SizeBytes   int64                     `json:"size_bytes"`
}

// DraftResponse is the composer state.
type DraftResponse struct {
	Text  string              `json:"text"`
	Files []DraftFileResponse `json:"files"`
}

// NoticeResponse is the dismissible error notice.
type NoticeResponse struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ChatStateResponse is everything the chat view renders.
type ChatStateResponse struct {
	Conversation     ConversationResponse   `json:"conversation"`
	Messages         []MessageResponse      `json:"messages"`
	Loading          bool                   `json:"loading"`
	AutoScroll       bool                   `json:"auto_scroll"`
	ShowJumpToBottom bool                   `json:"show_jump_to_bottom"`
	Scroll           *ScrollCommandResponse `json:"scroll,omitempty"`
	Draft            DraftResponse          `json:"draft"`
	CanSend          bool                   `json:"can_send"`
	Sending          bool                   `json:"sending"`
	LastError        *NoticeResponse        `json:"last_error,omitempty"`
}

// ScrollRequest carries viewport measurements of a scroll event.
type ScrollRequest struct {
	ScrollHeight float64 `json:"scroll_height"`
	ScrollTop    float64 `json:"scroll_top"`
	ClientHeight float64 `json:"client_height"`
}

// ScrollResponse reports the autoscroll flag after a scroll event.
type ScrollResponse struct {
	AutoScroll       bool `json:"auto_scroll"`
	ShowJumpToBottom bool `json:"show_jump_to_bottom"`
}

// DraftTextRequest replaces the draft text.
type DraftTextRequest struct {
	Text string `json:"text"`
}

// KeyRequest is a key press in the composer.
type KeyRequest struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift"`
	Ctrl  bool   `json:"ctrl"`
	Alt   bool   `json:"alt"`
	Meta  bool   `json:"meta"`
}

// KeyResponse reports whether the key triggered a send.
type KeyResponse struct {
	Sent    bool              `json:"sent"`
	Message *MessageResponse  `json:"message,omitempty"`
	State   ChatStateResponse `json:"state"`
}

// SendResponse returns the canonical stored message. State is omitted when the
// session moved to another conversation before it could be read.
type SendResponse struct {
	Message MessageResponse    `json:"message"`
	State   *ChatStateResponse `json:"state,omitempty"`
}

// ReadCursorResponse is the newest message the user has seen.
type ReadCursorResponse struct {
	ConversationID string     `json:"conversation_id"`
	LastMessageID  string     `json:"last_message_id,omitempty"`
	LastCreatedAt  *time.Time `json:"last_created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}
