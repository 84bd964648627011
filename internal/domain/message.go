package domain

import (
	"strings"
	"time"
)

// ContentKind tags what a message carries.
type ContentKind string

const (
	ContentTextOnly        ContentKind = "TEXT_ONLY"
	ContentWithAttachments ContentKind = "WITH_ATTACHMENTS"
)

// AttachmentCategory differentiates inline images from generic files.
type AttachmentCategory string

const (
	AttachmentImage AttachmentCategory = "image"
	AttachmentFile  AttachmentCategory = "file"
)

// Message is one immutable unit of chat content.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	Attachments    []Attachment
	CreatedAt      time.Time
}

// Kind reports the content variant of the message.
func (m Message) Kind() ContentKind {
	if len(m.Attachments) > 0 {
		return ContentWithAttachments
	}
	return ContentTextOnly
}

// Attachment is exclusively owned by its message.
type Attachment struct {
	ID        string
	Name      string
	SizeBytes int64
	MimeType  string
	Category  AttachmentCategory
	URL       string
}

// CategoryForMime maps a MIME type to an attachment category.
func CategoryForMime(mimeType string) AttachmentCategory {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/") {
		return AttachmentImage
	}
	return AttachmentFile
}
