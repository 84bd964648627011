package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/spec-kit/moving-chat/internal/backend"
	"github.com/spec-kit/moving-chat/internal/chat"
	"github.com/spec-kit/moving-chat/internal/domain"
	apperrors "github.com/spec-kit/moving-chat/pkg/util/errorutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubBackend struct {
	mu             sync.Mutex
	tokens         []string
	convFetches    int
	sendErr        error
	conversationOK map[string]bool
}

func (b *stubBackend) As(sc domain.SessionContext) backend.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = append(b.tokens, sc.Token)
	return &stubClient{parent: b}
}

func (b *stubBackend) fetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.convFetches
}

type stubClient struct {
	parent *stubBackend
}

func (c *stubClient) FetchMessages(context.Context, string, int) (backend.MessagePage, error) {
	return backend.MessagePage{}, nil
}

func (c *stubClient) SendMessage(_ context.Context, req backend.SendRequest) (domain.Message, error) {
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	if c.parent.sendErr != nil {
		return domain.Message{}, c.parent.sendErr
	}
	return domain.Message{ID: "m-1", ConversationID: req.ConversationID, Body: req.Text, CreatedAt: req.ClientCreatedAt}, nil
}

func (c *stubClient) FetchConversation(_ context.Context, id string) (domain.Conversation, error) {
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	c.parent.convFetches++
	if c.parent.conversationOK != nil && !c.parent.conversationOK[id] {
		return domain.Conversation{}, &backend.StatusError{StatusCode: 404}
	}
	return domain.Conversation{ID: id, Status: domain.ConversationStatusPending}, nil
}

type memConversationCache struct {
	mu      sync.Mutex
	entries map[string]domain.Conversation
}

func (m *memConversationCache) Get(_ context.Context, userID, conversationID string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.entries[userID+"/"+conversationID]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

func (m *memConversationCache) Set(_ context.Context, userID string, conv domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID+"/"+conv.ID] = conv
	return nil
}

func newTestService(t *testing.T, b *stubBackend, now func() time.Time) *ChatService {
	t.Helper()
	svc := NewChatService(ChatDependencies{
		Backend: b,
		Session: chat.Options{PollInterval: time.Hour, Now: now},
	})
	t.Cleanup(svc.Shutdown)
	return svc
}

var alice = domain.SessionContext{UserID: "alice", Account: domain.AccountTypeCustomer, Token: "t1"}

func TestChatService_OpenAndSwitch(t *testing.T) {
	svc := newTestService(t, &stubBackend{}, nil)

	st, err := svc.OpenSession(context.Background(), alice, "42")
	require.NoError(t, err)
	assert.Equal(t, "42", st.Conversation.ID)
	assert.Equal(t, 1, svc.ActiveSessions())

	_, err = svc.OpenSession(context.Background(), alice, "43")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.ActiveSessions())

	_, err = svc.Session("alice", "42")
	assert.Equal(t, "NO_ACTIVE_SESSION", apperrors.ToDomainError(err).Code)

	session, err := svc.Session("alice", "43")
	require.NoError(t, err)
	assert.Equal(t, "43", session.ConversationID())
}

func TestChatService_ReopenSameConversationKeepsState(t *testing.T) {
	b := &stubBackend{}
	svc := newTestService(t, b, nil)

	_, err := svc.OpenSession(context.Background(), alice, "42")
	require.NoError(t, err)
	session, err := svc.Session("alice", "42")
	require.NoError(t, err)
	require.NoError(t, session.SetDraftText("keep me"))

	st, err := svc.OpenSession(context.Background(), alice, "42")
	require.NoError(t, err)
	assert.Equal(t, "keep me", st.DraftText)
	assert.Equal(t, 1, b.fetches())
}

func TestChatService_TokenChangeReplacesSession(t *testing.T) {
	b := &stubBackend{}
	svc := newTestService(t, b, nil)

	_, err := svc.OpenSession(context.Background(), alice, "42")
	require.NoError(t, err)
	first, err := svc.Session("alice", "42")
	require.NoError(t, err)

	refreshed := alice
	refreshed.Token = "t2"
	_, err = svc.OpenSession(context.Background(), refreshed, "42")
	require.NoError(t, err)
	second, err := svc.Session("alice", "42")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	_, err = first.State()
	assert.ErrorIs(t, err, chat.ErrSessionClosed)
	assert.Equal(t, []string{"t1", "t2"}, b.tokens)
}

func TestChatService_OpenUnknownConversation(t *testing.T) {
	svc := newTestService(t, &stubBackend{conversationOK: map[string]bool{}}, nil)

	_, err := svc.OpenSession(context.Background(), alice, "404")
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)

	_, err = svc.OpenSession(context.Background(), alice, "")
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestChatService_Send(t *testing.T) {
	b := &stubBackend{}
	svc := newTestService(t, b, nil)
	_, err := svc.OpenSession(context.Background(), alice, "42")
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), "alice", "42")
	assert.Equal(t, "SEND_NOT_ALLOWED", apperrors.ToDomainError(err).Code)

	session, _ := svc.Session("alice", "42")
	require.NoError(t, session.SetDraftText("Hello"))

	b.mu.Lock()
	b.sendErr = errors.New("boom")
	b.mu.Unlock()
	_, err = svc.Send(context.Background(), "alice", "42")
	assert.Equal(t, "SEND_FAILED", apperrors.ToDomainError(err).Code)

	b.mu.Lock()
	b.sendErr = nil
	b.mu.Unlock()
	msg, err := svc.Send(context.Background(), "alice", "42")
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.Body)

	_, err = svc.Send(context.Background(), "bob", "42")
	assert.Equal(t, "NO_ACTIVE_SESSION", apperrors.ToDomainError(err).Code)
}

func TestChatService_ReapIdle(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	svc := newTestService(t, &stubBackend{}, clock)

	bob := domain.SessionContext{UserID: "bob", Token: "t3"}
	_, err := svc.OpenSession(context.Background(), alice, "42")
	require.NoError(t, err)
	_, err = svc.OpenSession(context.Background(), bob, "7")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(20 * time.Minute)
	mu.Unlock()
	_, err = svc.Session("bob", "7")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(15 * time.Minute)
	mu.Unlock()

	assert.Equal(t, 1, svc.ReapIdle(30*time.Minute))
	assert.Equal(t, 1, svc.ActiveSessions())
	_, err = svc.Session("alice", "42")
	assert.Error(t, err)
}

func TestChatService_CloseSession(t *testing.T) {
	svc := newTestService(t, &stubBackend{}, nil)
	_, err := svc.OpenSession(context.Background(), alice, "42")
	require.NoError(t, err)

	assert.True(t, svc.CloseSession("alice"))
	assert.False(t, svc.CloseSession("alice"))
	assert.Zero(t, svc.ActiveSessions())
}

func TestChatService_ConversationCache(t *testing.T) {
	b := &stubBackend{}
	cache := &memConversationCache{entries: map[string]domain.Conversation{}}
	svc := NewChatService(ChatDependencies{
		Backend:       b,
		Conversations: cache,
		Session:       chat.Options{PollInterval: time.Hour},
	})
	t.Cleanup(svc.Shutdown)

	_, err := svc.OpenSession(context.Background(), alice, "42")
	require.NoError(t, err)
	_, err = svc.OpenSession(context.Background(), alice, "43")
	require.NoError(t, err)
	_, err = svc.OpenSession(context.Background(), alice, "42")
	require.NoError(t, err)

	assert.Equal(t, 2, b.fetches())
}

func TestChatService_ReadCursorWithoutRepository(t *testing.T) {
	svc := newTestService(t, &stubBackend{}, nil)
	cursor, err := svc.ReadCursor(context.Background(), "alice", "42")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestMapSessionError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: chat.ErrNothingToSend, want: "SEND_NOT_ALLOWED"},
		{err: chat.ErrNotOpen, want: "NO_ACTIVE_SESSION"},
		{err: chat.ErrSessionClosed, want: "NO_ACTIVE_SESSION"},
		{err: chat.ErrFileNotFound, want: "NOT_FOUND"},
		{err: errors.New("io"), want: "SEND_FAILED"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, apperrors.ToDomainError(MapSessionError(tt.err, "42")).Code, tt.err.Error())
	}
	assert.NoError(t, MapSessionError(nil, "42"))
}

func TestMapBackendError_SupersededOpen(t *testing.T) {
	got := apperrors.ToDomainError(mapBackendError(chat.ErrOpenSuperseded, "42"))
	assert.Equal(t, "OPEN_SUPERSEDED", got.Code)
	assert.Equal(t, http.StatusConflict, got.HTTPStatus)
}
