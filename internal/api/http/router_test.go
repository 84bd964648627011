package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/moving-chat/internal/api/dto"
	"github.com/spec-kit/moving-chat/internal/api/http/handlers"
	"github.com/spec-kit/moving-chat/internal/auth"
	"github.com/spec-kit/moving-chat/internal/backend"
	"github.com/spec-kit/moving-chat/internal/chat"
	"github.com/spec-kit/moving-chat/internal/config"
	"github.com/spec-kit/moving-chat/internal/domain"
	"github.com/spec-kit/moving-chat/internal/observability"
	"github.com/spec-kit/moving-chat/internal/service"
)

type fakeBackend struct {
	mu        sync.Mutex
	messages  []domain.Message
	sendErr   error
	afterSend func()
}

func (f *fakeBackend) As(domain.SessionContext) backend.Client { return f }

func (f *fakeBackend) FetchMessages(context.Context, string, int) (backend.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return backend.MessagePage{Messages: append([]domain.Message(nil), f.messages...)}, nil
}

func (f *fakeBackend) SendMessage(_ context.Context, req backend.SendRequest) (domain.Message, error) {
	f.mu.Lock()
	hook := f.afterSend
	f.mu.Unlock()
	if hook != nil {
		defer hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return domain.Message{}, f.sendErr
	}
	msg := domain.Message{ID: "sent-1", ConversationID: req.ConversationID, SenderID: "7", Body: req.Text, CreatedAt: req.ClientCreatedAt}
	for _, file := range req.Files {
		msg.Attachments = append(msg.Attachments, domain.Attachment{ID: file.ID, Name: file.Name, MimeType: file.ContentType, Category: domain.CategoryForMime(file.ContentType)})
	}
	return msg, nil
}

func (f *fakeBackend) FetchConversation(_ context.Context, id string) (domain.Conversation, error) {
	if id == "404" {
		return domain.Conversation{}, &backend.StatusError{StatusCode: http.StatusNotFound}
	}
	return domain.Conversation{ID: id, CounterpartName: "Movers Inc", Status: domain.ConversationStatusProcessing}, nil
}

type testServer struct {
	app     *fiber.App
	backend *fakeBackend
	chats   *service.ChatService
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fb := &fakeBackend{messages: []domain.Message{
		{ID: "1", SenderID: "3", Body: "Hello, we can move you on Friday", CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{ID: "2", SenderID: "7", Body: "Great", CreatedAt: time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)},
	}}
	chatService := service.NewChatService(service.ChatDependencies{
		Backend: fb,
		Session: chat.Options{PollInterval: time.Hour},
	})
	t.Cleanup(chatService.Shutdown)

	tokens := auth.NewTokenManager("test-secret", 15)
	token, _, err := tokens.GenerateToken("7", domain.AccountTypeCustomer)
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	limits := config.ChatConfig{MaxAttachmentBytes: 1024, MaxAttachments: 2, AllowedMimePrefixes: []string{"image/", "application/pdf"}}

	app := NewApp("test", 0)
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("test", "dev", nil, chatService, metrics),
		Chat:           handlers.NewChatHandler(chatService, limits),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, backend: fb, chats: chatService, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func (s *testServer) json(t *testing.T, method, path string, payload any) (int, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return s.do(t, method, path, body, fiber.MIMEApplicationJSON)
}

func (s *testServer) open(t *testing.T) dto.ChatStateResponse {
	t.Helper()
	status, raw := s.json(t, http.MethodPost, "/chats/42/session", nil)
	require.Equal(t, http.StatusCreated, status, string(raw))
	return s.waitLoaded(t)
}

func (s *testServer) waitLoaded(t *testing.T) dto.ChatStateResponse {
	t.Helper()
	var state dto.ChatStateResponse
	require.Eventually(t, func() bool {
		status, raw := s.json(t, http.MethodGet, "/chats/42/state", nil)
		if status != http.StatusOK {
			return false
		}
		state = decodeData[dto.ChatStateResponse](t, raw)
		return !state.Loading
	}, 2*time.Second, 5*time.Millisecond)
	return state
}

func decodeData[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope), string(raw))
	return envelope.Data
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope), string(raw))
	return envelope.Error.Code
}

func TestRoutes_RequireToken(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/chats/42/state", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_OpenSessionAndState(t *testing.T) {
	srv := newTestServer(t)
	state := srv.open(t)

	assert.Equal(t, "42", state.Conversation.ID)
	assert.Equal(t, "Movers Inc", state.Conversation.CounterpartName)
	require.Len(t, state.Messages, 2)
	assert.False(t, state.Messages[0].Mine)
	assert.True(t, state.Messages[1].Mine)
	assert.Equal(t, domain.ContentTextOnly, state.Messages[0].Kind)
	require.NotNil(t, state.Scroll)
	assert.Equal(t, domain.ScrollInstant, state.Scroll.Behavior)
	assert.False(t, state.CanSend)
}

func TestRoutes_StateWithoutSession(t *testing.T) {
	srv := newTestServer(t)
	status, raw := srv.json(t, http.MethodGet, "/chats/42/state", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NO_ACTIVE_SESSION", errorCode(t, raw))
}

func TestRoutes_OpenUnknownConversation(t *testing.T) {
	srv := newTestServer(t)
	status, raw := srv.json(t, http.MethodPost, "/chats/404/session", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(t, raw))
}

func TestRoutes_ScrollAndJump(t *testing.T) {
	srv := newTestServer(t)
	srv.open(t)

	status, raw := srv.json(t, http.MethodPost, "/chats/42/scroll", dto.ScrollRequest{ScrollHeight: 2000, ScrollTop: 100, ClientHeight: 500})
	require.Equal(t, http.StatusOK, status, string(raw))
	scroll := decodeData[dto.ScrollResponse](t, raw)
	assert.False(t, scroll.AutoScroll)
	assert.True(t, scroll.ShowJumpToBottom)

	status, raw = srv.json(t, http.MethodPost, "/chats/42/jump-to-bottom", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	state := decodeData[dto.ChatStateResponse](t, raw)
	assert.True(t, state.AutoScroll)
	assert.Equal(t, domain.ScrollInstant, state.Scroll.Behavior)
}

func TestRoutes_DraftAndSend(t *testing.T) {
	srv := newTestServer(t)
	srv.open(t)

	status, raw := srv.json(t, http.MethodPost, "/chats/42/send", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "SEND_NOT_ALLOWED", errorCode(t, raw))

	status, raw = srv.json(t, http.MethodPut, "/chats/42/draft", dto.DraftTextRequest{Text: "See you Friday"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.True(t, decodeData[dto.ChatStateResponse](t, raw).CanSend)

	status, raw = srv.json(t, http.MethodPost, "/chats/42/send", nil)
	require.Equal(t, http.StatusCreated, status, string(raw))
	sent := decodeData[dto.SendResponse](t, raw)
	assert.Equal(t, "See you Friday", sent.Message.Body)
	assert.True(t, sent.Message.Mine)
	require.NotNil(t, sent.State)
	assert.Len(t, sent.State.Messages, 3)
	assert.Empty(t, sent.State.Draft.Text)
	assert.Equal(t, domain.ScrollSmooth, sent.State.Scroll.Behavior)
}

func TestRoutes_SendReturnsMessageWhenSwitchedMidSend(t *testing.T) {
	srv := newTestServer(t)
	srv.open(t)
	status, raw := srv.json(t, http.MethodPut, "/chats/42/draft", dto.DraftTextRequest{Text: "See you Friday"})
	require.Equal(t, http.StatusOK, status, string(raw))

	other := domain.SessionContext{UserID: "7", Account: domain.AccountTypeCustomer, Token: srv.token}
	switched := make(chan error, 1)
	srv.backend.mu.Lock()
	srv.backend.afterSend = func() {
		_, err := srv.chats.OpenSession(context.Background(), other, "43")
		switched <- err
	}
	srv.backend.mu.Unlock()

	status, raw = srv.json(t, http.MethodPost, "/chats/42/send", nil)
	require.NoError(t, <-switched)
	require.Equal(t, http.StatusCreated, status, string(raw))
	sent := decodeData[dto.SendResponse](t, raw)
	assert.Equal(t, "sent-1", sent.Message.ID)
	assert.Equal(t, "See you Friday", sent.Message.Body)
	assert.Nil(t, sent.State)
}

func TestRoutes_SendFailureKeepsDraft(t *testing.T) {
	srv := newTestServer(t)
	srv.open(t)
	srv.backend.mu.Lock()
	srv.backend.sendErr = &backend.StatusError{StatusCode: http.StatusInternalServerError}
	srv.backend.mu.Unlock()

	_, _ = srv.json(t, http.MethodPut, "/chats/42/draft", dto.DraftTextRequest{Text: "retry me"})
	status, raw := srv.json(t, http.MethodPost, "/chats/42/send", nil)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "SEND_FAILED", errorCode(t, raw))

	status, raw = srv.json(t, http.MethodGet, "/chats/42/state", nil)
	require.Equal(t, http.StatusOK, status)
	state := decodeData[dto.ChatStateResponse](t, raw)
	assert.Equal(t, "retry me", state.Draft.Text)
	require.NotNil(t, state.LastError)
	assert.Equal(t, "SEND_FAILED", state.LastError.Code)

	status, raw = srv.json(t, http.MethodDelete, "/chats/42/error", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, decodeData[dto.ChatStateResponse](t, raw).LastError)
}

func TestRoutes_Keys(t *testing.T) {
	srv := newTestServer(t)
	srv.open(t)
	_, _ = srv.json(t, http.MethodPut, "/chats/42/draft", dto.DraftTextRequest{Text: "first line"})

	status, raw := srv.json(t, http.MethodPost, "/chats/42/keys", dto.KeyRequest{Key: "Enter", Shift: true})
	require.Equal(t, http.StatusOK, status, string(raw))
	resp := decodeData[dto.KeyResponse](t, raw)
	assert.False(t, resp.Sent)
	assert.Equal(t, "first line\n", resp.State.Draft.Text)

	status, raw = srv.json(t, http.MethodPost, "/chats/42/keys", dto.KeyRequest{Key: "Enter"})
	require.Equal(t, http.StatusOK, status, string(raw))
	resp = decodeData[dto.KeyResponse](t, raw)
	assert.True(t, resp.Sent)
	require.NotNil(t, resp.Message)
	assert.Equal(t, "first line\n", resp.Message.Body)

	status, _ = srv.json(t, http.MethodPost, "/chats/42/keys", dto.KeyRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func multipartFiles(t *testing.T, files map[string]string) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for name, contentType := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte("data"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestRoutes_DraftFiles(t *testing.T) {
	srv := newTestServer(t)
	srv.open(t)

	body, contentType := multipartFiles(t, map[string]string{"van.jpg": "image/jpeg"})
	status, raw := srv.do(t, http.MethodPost, "/chats/42/draft/files", body, contentType)
	require.Equal(t, http.StatusOK, status, string(raw))
	state := decodeData[dto.ChatStateResponse](t, raw)
	require.Len(t, state.Draft.Files, 1)
	assert.Equal(t, domain.AttachmentImage, state.Draft.Files[0].Category)
	assert.True(t, state.CanSend)

	body, contentType = multipartFiles(t, map[string]string{"run.sh": "application/x-sh"})
	status, raw = srv.do(t, http.MethodPost, "/chats/42/draft/files", body, contentType)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ATTACHMENT_REJECTED", errorCode(t, raw))

	body, contentType = multipartFiles(t, map[string]string{"a.pdf": "application/pdf", "b.pdf": "application/pdf"})
	status, raw = srv.do(t, http.MethodPost, "/chats/42/draft/files", body, contentType)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ATTACHMENT_REJECTED", errorCode(t, raw))

	status, raw = srv.json(t, http.MethodDelete, "/chats/42/draft/files/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status, string(raw))

	status, raw = srv.json(t, http.MethodDelete, "/chats/42/draft/files/"+state.Draft.Files[0].ID, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Empty(t, decodeData[dto.ChatStateResponse](t, raw).Draft.Files)

	status, raw = srv.json(t, http.MethodPost, "/chats/42/send", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status, string(raw))
}

func TestRoutes_CloseSession(t *testing.T) {
	srv := newTestServer(t)
	srv.open(t)

	status, _ := srv.json(t, http.MethodDelete, "/chats/session", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = srv.json(t, http.MethodGet, "/chats/42/state", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRoutes_ReadCursorWithoutStorage(t *testing.T) {
	srv := newTestServer(t)
	status, raw := srv.json(t, http.MethodGet, "/chats/42/read-cursor", nil)
	require.Equal(t, http.StatusOK, status)
	cursor := decodeData[dto.ReadCursorResponse](t, raw)
	assert.Equal(t, "42", cursor.ConversationID)
	assert.Empty(t, cursor.LastMessageID)
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	srv.open(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(raw), `"active_sessions":1`), string(raw))
}
