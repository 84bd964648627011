package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/moving-chat/internal/backend"
	"github.com/spec-kit/moving-chat/internal/chat"
	"github.com/spec-kit/moving-chat/internal/domain"
	"github.com/spec-kit/moving-chat/internal/repository"
	apperrors "github.com/spec-kit/moving-chat/pkg/util/errorutil"
)

// ClientFactory binds a backend client to an authenticated identity.
type ClientFactory interface {
	As(sc domain.SessionContext) backend.Client
}

// ChatDependencies bundles collaborators for the chat service.
type ChatDependencies struct {
	Backend       ClientFactory
	Conversations repository.ConversationCache
	ReadCursors   repository.ReadCursorRepository
	Session       chat.Options
	Logger        *zap.Logger
}

// ChatService owns at most one chat session per user and routes view operations to it.
type ChatService struct {
	backend     ClientFactory
	cache       repository.ConversationCache
	readCursors repository.ReadCursorRepository
	opts        chat.Options
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session    *chat.Session
	token      string
	lastAccess time.Time
}

// NewChatService constructs the service.
func NewChatService(deps ChatDependencies) *ChatService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Session.Now
	if now == nil {
		now = time.Now
	}
	return &ChatService{
		backend:     deps.Backend,
		cache:       deps.Conversations,
		readCursors: deps.ReadCursors,
		opts:        deps.Session,
		logger:      logger,
		now:         now,
		sessions:    make(map[string]*sessionEntry),
	}
}

// OpenSession attaches the user's session to a conversation, creating the session on
// first use. Opening a different conversation switches the existing session.
func (s *ChatService) OpenSession(ctx context.Context, sc domain.SessionContext, conversationID string) (chat.State, error) {
	if conversationID == "" {
		return chat.State{}, apperrors.NewValidationError("conversation id required", nil)
	}
	session := s.sessionFor(sc)
	if session.ConversationID() != conversationID {
		if _, err := session.Open(ctx, conversationID); err != nil {
			return chat.State{}, mapBackendError(err, conversationID)
		}
	}
	return session.State()
}

// CloseSession stops the user's session, if any.
func (s *ChatService) CloseSession(userID string) bool {
	s.mu.Lock()
	entry, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()
	if ok {
		entry.session.Close()
	}
	return ok
}

// Session returns the user's session if it is attached to conversationID.
func (s *ChatService) Session(userID, conversationID string) (*chat.Session, error) {
	s.mu.Lock()
	entry, ok := s.sessions[userID]
	if ok {
		entry.lastAccess = s.now()
	}
	s.mu.Unlock()
	if !ok || entry.session.ConversationID() != conversationID {
		return nil, apperrors.NewNoActiveSession(conversationID)
	}
	return entry.session, nil
}

// Send submits the draft of the user's active conversation.
func (s *ChatService) Send(ctx context.Context, userID, conversationID string) (domain.Message, error) {
	session, err := s.Session(userID, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	msg, err := session.Send(ctx)
	return msg, MapSessionError(err, conversationID)
}

// ReadCursor returns the persisted read position, or nil when none exists.
func (s *ChatService) ReadCursor(ctx context.Context, userID, conversationID string) (*domain.ReadCursor, error) {
	if s.readCursors == nil {
		return nil, nil
	}
	cursor, err := s.readCursors.Get(ctx, userID, conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cursor, err
}

// ReapIdle closes sessions untouched for longer than maxIdle and returns how many.
func (s *ChatService) ReapIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	var stale []*chat.Session

	s.mu.Lock()
	for userID, entry := range s.sessions {
		if entry.lastAccess.Before(cutoff) {
			stale = append(stale, entry.session)
			delete(s.sessions, userID)
		}
	}
	s.mu.Unlock()

	for _, session := range stale {
		session.Close()
	}
	if len(stale) > 0 {
		s.logger.Info("closed idle chat sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// ActiveSessions returns the number of open sessions.
func (s *ChatService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every session.
func (s *ChatService) Shutdown() {
	s.mu.Lock()
	entries := s.sessions
	s.sessions = make(map[string]*sessionEntry)
	s.mu.Unlock()

	for _, entry := range entries {
		entry.session.Close()
	}
}

// sessionFor returns the user's session, replacing it when the token changed since the
// backend client is bound to the token.
func (s *ChatService) sessionFor(sc domain.SessionContext) *chat.Session {
	s.mu.Lock()
	entry, ok := s.sessions[sc.UserID]
	var replaced *chat.Session
	if ok && entry.token != sc.Token {
		replaced = entry.session
		ok = false
	}
	if !ok {
		client := s.backend.As(sc)
		if s.cache != nil {
			client = &cachingClient{Client: client, cache: s.cache, userID: sc.UserID, logger: s.logger}
		}
		entry = &sessionEntry{
			session: chat.NewSession(sc, client, s.logger, s.opts),
			token:   sc.Token,
		}
		s.sessions[sc.UserID] = entry
	}
	entry.lastAccess = s.now()
	s.mu.Unlock()

	if replaced != nil {
		replaced.Close()
	}
	return entry.session
}

// MapSessionError translates chat session errors into domain errors.
func MapSessionError(err error, conversationID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrNothingToSend):
		return apperrors.NewSendNotAllowed("draft is empty or a send is already in progress")
	case errors.Is(err, chat.ErrNotOpen), errors.Is(err, chat.ErrSessionClosed):
		return apperrors.NewNoActiveSession(conversationID)
	case errors.Is(err, chat.ErrFileNotFound):
		return apperrors.NewNotFound("draft file", nil)
	default:
		return apperrors.NewSendFailed(err)
	}
}

func mapBackendError(err error, conversationID string) error {
	switch {
	case backend.IsNotFound(err):
		return apperrors.NewNotFound("conversation", map[string]any{"conversation_id": conversationID})
	case backend.IsUnauthorized(err):
		return apperrors.NewForbidden("conversation not accessible")
	case errors.Is(err, chat.ErrSessionClosed):
		return apperrors.NewNoActiveSession(conversationID)
	case errors.Is(err, chat.ErrOpenSuperseded):
		return apperrors.NewOpenSuperseded(conversationID)
	default:
		return apperrors.NewFetchFailed(err)
	}
}

// cachingClient serves conversation metadata from the cache when possible.
type cachingClient struct {
	backend.Client
	cache  repository.ConversationCache
	userID string
	logger *zap.Logger
}

func (c *cachingClient) FetchConversation(ctx context.Context, conversationID string) (domain.Conversation, error) {
	cached, err := c.cache.Get(ctx, c.userID, conversationID)
	if err != nil {
		c.logger.Debug("conversation cache read failed", zap.Error(err))
	}
	if cached != nil {
		return *cached, nil
	}
	conv, err := c.Client.FetchConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if err := c.cache.Set(ctx, c.userID, conv); err != nil {
		c.logger.Debug("conversation cache write failed", zap.Error(err))
	}
	return conv, nil
}
