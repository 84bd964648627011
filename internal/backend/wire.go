package backend

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/spec-kit/moving-chat/internal/domain"
)

// flexID accepts both numeric and string identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type wireAttachment struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

type wireDetails struct {
	Files []wireAttachment `json:"files"`
}

type wireMessage struct {
	ID        flexID          `json:"id"`
	Chat      flexID          `json:"chat"`
	Sender    flexID          `json:"sender"`
	Text      *string         `json:"text"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}

type wirePage struct {
	Count   int           `json:"count"`
	Next    *string       `json:"next"`
	Results []wireMessage `json:"results"`
}

type wireCounterpart struct {
	ID    flexID `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

type wireConversation struct {
	ID          flexID          `json:"id"`
	Status      string          `json:"status"`
	Order       flexID          `json:"order"`
	Counterpart wireCounterpart `json:"counterpart"`
}

// toDomain maps the loosely typed wire message to the tagged domain shape.
// Unknown or malformed details are treated as a text-only message.
func (w wireMessage) toDomain(conversationID string) domain.Message {
	msg := domain.Message{
		ID:             string(w.ID),
		ConversationID: string(w.Chat),
		SenderID:       string(w.Sender),
		CreatedAt:      w.CreatedAt,
	}
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}
	if w.Text != nil {
		msg.Body = *w.Text
	}
	for _, att := range decodeDetails(w.Details) {
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			ID:        string(att.ID),
			Name:      att.Name,
			SizeBytes: att.Size,
			MimeType:  att.Type,
			Category:  domain.CategoryForMime(att.Type),
			URL:       att.URL,
		})
	}
	return msg
}

func decodeDetails(raw json.RawMessage) []wireAttachment {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var details wireDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil
	}
	return details.Files
}

func (w wireConversation) toDomain() domain.Conversation {
	return domain.Conversation{
		ID:               string(w.ID),
		CounterpartID:    string(w.Counterpart.ID),
		CounterpartName:  w.Counterpart.Name,
		CounterpartImage: w.Counterpart.Image,
		OrderRef:         string(w.Order),
		Status:           domain.ConversationStatus(strings.ToLower(w.Status)),
	}
}
