package chat

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/spec-kit/moving-chat/internal/backend"
	"github.com/spec-kit/moving-chat/internal/domain"
)

var errBackendDown = errors.New("backend down")

// fakeClient serves canned pages and records sends. A gate, when set for a
// conversation, holds FetchMessages until it is closed, even past cancellation, so
// tests can deliver a response after the session moved on. A hold does the same for
// the next call only, and a conversation gate holds FetchConversation.
type fakeClient struct {
	mu         sync.Mutex
	pages      map[string][]backend.MessagePage
	fetchErr   map[string]error
	gates      map[string]chan struct{}
	holds      map[string]chan struct{}
	convGates  map[string]chan struct{}
	convCalls  map[string]int
	fetchCalls map[string]int
	sendErr    error
	sendGate   chan struct{}
	sent       []backend.SendRequest
	nextID     int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pages:      make(map[string][]backend.MessagePage),
		fetchErr:   make(map[string]error),
		gates:      make(map[string]chan struct{}),
		holds:      make(map[string]chan struct{}),
		convGates:  make(map[string]chan struct{}),
		convCalls:  make(map[string]int),
		fetchCalls: make(map[string]int),
		nextID:     1000,
	}
}

func (f *fakeClient) setMessages(convID string, msgs ...domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[convID] = []backend.MessagePage{{Messages: msgs, Total: len(msgs)}}
}

func (f *fakeClient) setPages(convID string, pages ...backend.MessagePage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[convID] = pages
}

func (f *fakeClient) setFetchErr(convID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr[convID] = err
}

func (f *fakeClient) gate(convID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[convID] = ch
	return ch
}

func (f *fakeClient) holdNext(convID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.holds[convID] = ch
	return ch
}

func (f *fakeClient) gateConversation(convID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.convGates[convID] = ch
	return ch
}

func (f *fakeClient) conversationCalls(convID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convCalls[convID]
}

func (f *fakeClient) setSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeClient) calls(convID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls[convID]
}

func (f *fakeClient) sends() []backend.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.SendRequest, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeClient) FetchMessages(_ context.Context, conversationID string, page int) (backend.MessagePage, error) {
	f.mu.Lock()
	f.fetchCalls[conversationID]++
	gate := f.gates[conversationID]
	hold := f.holds[conversationID]
	delete(f.holds, conversationID)
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if hold != nil {
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[conversationID]; err != nil {
		return backend.MessagePage{}, err
	}
	pages := f.pages[conversationID]
	if page < 1 || page > len(pages) {
		return backend.MessagePage{}, nil
	}
	result := pages[page-1]
	result.HasNext = page < len(pages)
	return result, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, req backend.SendRequest) (domain.Message, error) {
	f.mu.Lock()
	gate := f.sendGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Message{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return domain.Message{}, f.sendErr
	}
	f.nextID++
	msg := domain.Message{
		ID:             "srv-" + strconv.Itoa(f.nextID),
		ConversationID: req.ConversationID,
		SenderID:       "me",
		Body:           req.Text,
		CreatedAt:      req.ClientCreatedAt,
	}
	for _, file := range req.Files {
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			ID:        file.ID,
			Name:      file.Name,
			SizeBytes: file.SizeBytes,
			MimeType:  file.ContentType,
			Category:  domain.CategoryForMime(file.ContentType),
		})
	}
	return msg, nil
}

func (f *fakeClient) FetchConversation(_ context.Context, conversationID string) (domain.Conversation, error) {
	f.mu.Lock()
	f.convCalls[conversationID]++
	gate := f.convGates[conversationID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	if conversationID == "missing" {
		return domain.Conversation{}, &backend.StatusError{StatusCode: 404, Body: "not found"}
	}
	return domain.Conversation{
		ID:              conversationID,
		CounterpartID:   "c-" + conversationID,
		CounterpartName: "Movers Inc",
		Status:          domain.ConversationStatusProcessing,
	}, nil
}

