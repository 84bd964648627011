package chat

import (
	"slices"

	"github.com/spec-kit/moving-chat/internal/domain"
)

// StoreChange describes the outcome of a mutating store call.
type StoreChange struct {
	PrevSize int
	Size     int
}

// Grew reports whether new messages were added.
func (c StoreChange) Grew() bool {
	return c.Size > c.PrevSize
}

// MessageStore keeps the de-duplicated, time-ordered message list of one conversation.
// It is not safe for concurrent use; the owning Session serializes access.
type MessageStore struct {
	messages    []domain.Message
	ids         map[string]struct{}
	subscribers []func(StoreChange)
}

// NewMessageStore returns an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{ids: make(map[string]struct{})}
}

// Subscribe registers fn to be called after every mutating call.
func (s *MessageStore) Subscribe(fn func(StoreChange)) {
	s.subscribers = append(s.subscribers, fn)
}

// ReplaceOrMerge unions batch into the store by message id and returns how many
// messages were added. Messages absent from batch are kept.
func (s *MessageStore) ReplaceOrMerge(batch []domain.Message) int {
	prev := len(s.messages)
	added := 0
	for _, msg := range batch {
		if s.insert(msg) {
			added++
		}
	}
	if added > 0 {
		s.sort()
	}
	s.notify(StoreChange{PrevSize: prev, Size: len(s.messages)})
	return added
}

// AppendLocal inserts a single message, typically the canonical copy of a message
// the local user just sent.
func (s *MessageStore) AppendLocal(msg domain.Message) bool {
	prev := len(s.messages)
	added := s.insert(msg)
	if added {
		s.sort()
	}
	s.notify(StoreChange{PrevSize: prev, Size: len(s.messages)})
	return added
}

// Size returns the number of messages.
func (s *MessageStore) Size() int {
	return len(s.messages)
}

// All returns a copy of the ordered message list.
func (s *MessageStore) All() []domain.Message {
	return slices.Clone(s.messages)
}

// Has reports whether a message id is present.
func (s *MessageStore) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Last returns the newest message.
func (s *MessageStore) Last() (domain.Message, bool) {
	if len(s.messages) == 0 {
		return domain.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

func (s *MessageStore) insert(msg domain.Message) bool {
	if msg.ID == "" {
		return false
	}
	if _, exists := s.ids[msg.ID]; exists {
		return false
	}
	s.ids[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	return true
}

// sort keeps arrival order for equal timestamps: existing entries precede new ones.
func (s *MessageStore) sort() {
	slices.SortStableFunc(s.messages, compareCreatedAt)
}

func (s *MessageStore) notify(change StoreChange) {
	for _, fn := range s.subscribers {
		fn(change)
	}
}

func compareCreatedAt(a, b domain.Message) int {
	return a.CreatedAt.Compare(b.CreatedAt)
}

// sortBatch orders a fetched batch ascending by creation time.
func sortBatch(batch []domain.Message) []domain.Message {
	out := slices.Clone(batch)
	slices.SortStableFunc(out, compareCreatedAt)
	return out
}
