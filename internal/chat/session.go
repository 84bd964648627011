package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/moving-chat/internal/backend"
	"github.com/spec-kit/moving-chat/internal/domain"
	"github.com/spec-kit/moving-chat/internal/events"
)

var (
	// ErrSessionClosed is returned by every operation after Close.
	ErrSessionClosed = errors.New("chat session closed")
	// ErrNotOpen is returned when no conversation has been opened yet.
	ErrNotOpen = errors.New("no conversation open")
	// ErrNothingToSend is returned when the draft cannot be sent.
	ErrNothingToSend = errors.New("nothing to send")
	// ErrFileNotFound is returned when removing an unknown draft file.
	ErrFileNotFound = errors.New("draft file not found")
	// ErrOpenSuperseded is returned by an Open that lost to a later Open call.
	ErrOpenSuperseded = errors.New("conversation open superseded")
)

const draftSaveTimeout = 3 * time.Second

// DraftStore keeps draft text across conversation switches.
type DraftStore interface {
	Load(ctx context.Context, userID, conversationID string) (string, error)
	Save(ctx context.Context, userID, conversationID, text string) error
}

// Recorder receives chat level measurements.
type Recorder interface {
	RecordPoll(ok bool, duration time.Duration)
	RecordSend(ok bool, duration time.Duration)
}

// Options tune a Session.
type Options struct {
	PollInterval    time.Duration
	PollMaxPages    int
	ScrollThreshold float64
	Drafts          DraftStore
	Metrics         Recorder
	Dispatcher      events.Dispatcher
	Now             func() time.Time
}

// NoticeKind classifies the user-visible error notice.
type NoticeKind string

const (
	// NoticeFetch is set when the first load of a conversation fails.
	NoticeFetch NoticeKind = "FETCH_FAILED"
	// NoticeSend is set when the backend rejects a send.
	NoticeSend NoticeKind = "SEND_FAILED"
)

// Notice is a dismissible error shown to the user.
type Notice struct {
	Kind    NoticeKind
	Message string
	At      time.Time
}

// FileView describes a selected draft file without its content.
type FileView struct {
	ID          string
	Name        string
	SizeBytes   int64
	ContentType string
	Category    domain.AttachmentCategory
}

// State is a snapshot of a session for the presentation layer.
type State struct {
	Conversation     domain.Conversation
	Messages         []domain.Message
	Loading          bool
	AutoScroll       bool
	ShowJumpToBottom bool
	Scroll           *domain.ScrollCommand
	DraftText        string
	DraftFiles       []FileView
	CanSend          bool
	Sending          bool
	LastError        *Notice
}

// Session keeps one conversation's messages in sync with the backend while a user
// reads and composes. All state is owned by a single goroutine; network calls run
// elsewhere and post their results back, tagged with the generation they belong to.
type Session struct {
	sc     domain.SessionContext
	client backend.Client
	poller *Poller
	logger *zap.Logger
	opts   Options

	actions   chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// owned by the run loop
	gen          uint64
	opening      uint64
	genCtx       context.Context
	genCancel    context.CancelFunc
	conversation domain.Conversation
	store        *MessageStore
	scroll       *AutoscrollController
	composer     *Composer
	loading      bool
	fetchedOnce  bool
	lastError    *Notice
	lastSeenID   string
}

// NewSession starts the owner goroutine. Call Open to attach a conversation and Close
// when the view goes away.
func NewSession(sc domain.SessionContext, client backend.Client, logger *zap.Logger, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &Session{
		sc:         sc,
		client:     client,
		poller:     NewPoller(client, opts.PollInterval, opts.PollMaxPages),
		logger:     logger.With(zap.String("user_id", sc.UserID)),
		opts:       opts,
		actions:    make(chan func()),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		store:      NewMessageStore(),
		scroll:     NewAutoscrollController(opts.ScrollThreshold),
		composer:   NewComposer(),
	}
	go s.run()
	return s
}

// Context returns the identity the session runs as.
func (s *Session) Context() domain.SessionContext {
	return s.sc
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.actions:
			fn()
		case <-s.quit:
			s.stopPolling()
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it.
func (s *Session) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.actions <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrSessionClosed
	}
	<-finished
	return nil
}

// post hands fn to the owner goroutine without waiting for it to run.
func (s *Session) post(fn func()) {
	select {
	case s.actions <- fn:
	case <-s.done:
	}
}

// Open attaches the session to a conversation. On an already open session this
// switches conversations: polling for the old one stops, responses still in flight
// for it are discarded, and its draft text is saved. When Open is called again
// before an earlier call finishes, the latest call wins and the earlier one returns
// ErrOpenSuperseded.
func (s *Session) Open(ctx context.Context, conversationID string) (domain.Conversation, error) {
	var ticket uint64
	if err := s.do(func() {
		s.opening++
		ticket = s.opening
	}); err != nil {
		return domain.Conversation{}, err
	}

	conv, err := s.client.FetchConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	draftText := s.loadDraft(ctx, conversationID)

	var (
		prevID     string
		prevText   string
		superseded bool
	)
	err = s.do(func() {
		if ticket != s.opening {
			superseded = true
			return
		}
		prevID = s.conversation.ID
		prevText = s.composer.Draft().Text
		s.reset(conv, draftText)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	if superseded {
		s.logger.Debug("discarding superseded open", zap.String("conversation_id", conversationID))
		return domain.Conversation{}, ErrOpenSuperseded
	}
	if prevID != "" && prevID != conv.ID {
		s.saveDraft(prevID, prevText)
	}
	return conv, nil
}

// Close stops polling and the owner goroutine. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		var (
			convID string
			text   string
		)
		_ = s.do(func() {
			convID = s.conversation.ID
			text = s.composer.Draft().Text
		})
		close(s.quit)
		<-s.done
		s.baseCancel()
		s.wg.Wait()
		if convID != "" {
			s.saveDraft(convID, text)
		}
	})
}

// ConversationID returns the open conversation id, or "" before Open.
func (s *Session) ConversationID() string {
	var id string
	if err := s.do(func() { id = s.conversation.ID }); err != nil {
		return ""
	}
	return id
}

// State returns a snapshot of everything the view renders.
func (s *Session) State() (State, error) {
	var st State
	err := s.do(func() {
		st = State{
			Conversation:     s.conversation,
			Messages:         s.store.All(),
			Loading:          s.loading,
			AutoScroll:       s.scroll.AutoScroll(),
			ShowJumpToBottom: s.scroll.ShowJumpToBottom(),
			DraftText:        s.composer.Draft().Text,
			CanSend:          s.composer.CanSend(),
			Sending:          s.composer.Sending(),
		}
		if cmd, ok := s.scroll.LastCommand(); ok {
			st.Scroll = &cmd
		}
		for _, f := range s.composer.Draft().Files {
			st.DraftFiles = append(st.DraftFiles, FileView{
				ID:          f.ID,
				Name:        f.Name,
				SizeBytes:   f.SizeBytes,
				ContentType: f.ContentType,
				Category:    domain.CategoryForMime(f.ContentType),
			})
		}
		if s.lastError != nil {
			notice := *s.lastError
			st.LastError = &notice
		}
	})
	return st, err
}

// HandleScroll feeds a viewport scroll event and returns the resulting autoScroll flag.
func (s *Session) HandleScroll(m domain.ScrollMetrics) (bool, error) {
	var auto bool
	err := s.withOpen(func() {
		auto = s.scroll.OnScroll(m)
		if auto {
			s.markSeen()
		}
	})
	return auto, err
}

// JumpToBottom re-enables autoscroll and returns the scroll command to apply.
func (s *Session) JumpToBottom() (domain.ScrollCommand, error) {
	var cmd domain.ScrollCommand
	err := s.withOpen(func() {
		cmd = s.scroll.JumpToBottom()
		s.markSeen()
	})
	return cmd, err
}

// SetDraftText replaces the draft text.
func (s *Session) SetDraftText(text string) error {
	return s.withOpen(func() { s.composer.SetText(text) })
}

// AddFiles adds files to the draft, assigning ids to those without one.
func (s *Session) AddFiles(files ...domain.LocalFile) ([]domain.LocalFile, error) {
	added := make([]domain.LocalFile, 0, len(files))
	for _, f := range files {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.SizeBytes == 0 {
			f.SizeBytes = int64(len(f.Data))
		}
		added = append(added, f)
	}
	err := s.withOpen(func() { s.composer.AddFiles(added...) })
	return added, err
}

// RemoveFile drops one draft file.
func (s *Session) RemoveFile(id string) error {
	var found bool
	if err := s.withOpen(func() { found = s.composer.RemoveFile(id) }); err != nil {
		return err
	}
	if !found {
		return ErrFileNotFound
	}
	return nil
}

// ClearFiles drops all draft files.
func (s *Session) ClearFiles() error {
	return s.withOpen(func() { s.composer.ClearFiles() })
}

// CancelDraft discards the draft.
func (s *Session) CancelDraft() error {
	return s.withOpen(func() { s.composer.Cancel() })
}

// DismissError clears the user-visible error notice.
func (s *Session) DismissError() error {
	return s.withOpen(func() { s.lastError = nil })
}

// HandleKey applies a composer key press; Enter without modifiers sends when possible.
// sent reports whether a send happened.
func (s *Session) HandleKey(ctx context.Context, ev domain.KeyEvent) (sent bool, msg domain.Message, err error) {
	var wantsSend, canSend bool
	if err := s.withOpen(func() {
		wantsSend = s.composer.HandleKey(ev)
		canSend = s.composer.CanSend()
	}); err != nil {
		return false, domain.Message{}, err
	}
	if !wantsSend || !canSend {
		return false, domain.Message{}, nil
	}
	msg, err = s.Send(ctx)
	if errors.Is(err, ErrNothingToSend) {
		return false, domain.Message{}, nil
	}
	return err == nil, msg, err
}

// Send submits the draft. On success the canonical message is added to the store,
// the draft is cleared and the view scrolls to the bottom. On failure the draft is
// left exactly as it was and a notice is recorded.
func (s *Session) Send(ctx context.Context) (domain.Message, error) {
	var (
		gen     uint64
		req     backend.SendRequest
		allowed bool
	)
	err := s.withOpen(func() {
		var draft domain.Draft
		draft, allowed = s.composer.begin()
		if !allowed {
			return
		}
		gen = s.gen
		req = backend.SendRequest{
			ConversationID:  s.conversation.ID,
			Text:            draft.Text,
			Files:           draft.Files,
			ClientCreatedAt: s.opts.Now(),
			ClientNonce:     uuid.NewString(),
		}
	})
	if err != nil {
		return domain.Message{}, err
	}
	if !allowed {
		return domain.Message{}, ErrNothingToSend
	}

	started := time.Now()
	msg, sendErr := s.client.SendMessage(ctx, req)
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordSend(sendErr == nil, time.Since(started))
	}

	err = s.do(func() {
		if gen != s.gen {
			s.logger.Debug("discarding stale send response",
				zap.String("conversation_id", req.ConversationID))
			return
		}
		if sendErr != nil {
			s.composer.finish(false)
			s.lastError = &Notice{Kind: NoticeSend, Message: "message could not be sent", At: s.opts.Now()}
			s.logger.Warn("send failed", zap.String("conversation_id", req.ConversationID), zap.Error(sendErr))
			s.publish(events.EventSendFailed, events.FailurePayload{Error: sendErr.Error()})
			return
		}
		if msg.ConversationID == "" {
			msg.ConversationID = req.ConversationID
		}
		s.store.AppendLocal(msg)
		s.composer.finish(true)
		s.scroll.OnLocalSend()
		s.markSeen()
		s.publish(events.EventMessageSent, events.MessageSentPayload{
			MessageID:   msg.ID,
			Kind:        msg.Kind(),
			Attachments: len(msg.Attachments),
		})
	})
	if sendErr != nil {
		return domain.Message{}, fmt.Errorf("send message: %w", sendErr)
	}
	if err != nil {
		// stored by the backend even though the session closed meanwhile
		s.logger.Debug("send completed after session closed", zap.String("message_id", msg.ID))
	}
	return msg, nil
}

// withOpen runs fn on the owner goroutine if a conversation is open.
func (s *Session) withOpen(fn func()) error {
	var open bool
	err := s.do(func() {
		if s.conversation.ID == "" {
			return
		}
		open = true
		fn()
	})
	if err != nil {
		return err
	}
	if !open {
		return ErrNotOpen
	}
	return nil
}

// reset replaces all per-conversation state and starts polling. Owner goroutine only.
func (s *Session) reset(conv domain.Conversation, draftText string) {
	s.stopPolling()

	s.gen++
	s.genCtx, s.genCancel = context.WithCancel(s.baseCtx)
	s.conversation = conv
	s.store = NewMessageStore()
	s.store.Subscribe(s.onStoreChange)
	s.scroll.Reset()
	s.composer = NewComposer()
	s.composer.SetText(draftText)
	s.loading = true
	s.fetchedOnce = false
	s.lastError = nil
	s.lastSeenID = ""

	s.logger.Info("chat session opened",
		zap.String("conversation_id", conv.ID),
		zap.Uint64("generation", s.gen))
	s.publish(events.EventSessionOpened, events.SessionOpenedPayload{
		Status:          conv.Status,
		CounterpartName: conv.CounterpartName,
	})

	gen, ctx := s.gen, s.genCtx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.poller.Run(ctx, func() {
			s.post(func() { s.onTick(gen) })
		})
	}()
}

func (s *Session) stopPolling() {
	if s.genCancel != nil {
		s.genCancel()
		s.genCancel = nil
	}
}

// onTick starts a fetch for the current generation. Each fetch is bounded by the poll
// interval so a hung request ends before it could pile up behind later ticks; fetches
// may overlap and the store's merge absorbs repeated messages. Owner goroutine only.
func (s *Session) onTick(gen uint64) {
	if gen != s.gen {
		return
	}
	genCtx, convID := s.genCtx, s.conversation.ID
	ctx, cancel := context.WithTimeout(genCtx, s.poller.Interval())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		started := time.Now()
		batch, err := s.poller.FetchWindow(ctx, convID)
		if s.opts.Metrics != nil && genCtx.Err() == nil {
			s.opts.Metrics.RecordPoll(err == nil, time.Since(started))
		}
		s.post(func() { s.applyFetch(gen, batch, err) })
	}()
}

// applyFetch merges a poll result unless it belongs to an older generation. Only the
// first result to arrive for a generation may raise the fetch notice.
func (s *Session) applyFetch(gen uint64, batch []domain.Message, err error) {
	if gen != s.gen {
		s.logger.Debug("discarding stale poll response", zap.Uint64("generation", gen))
		return
	}
	first := !s.fetchedOnce
	s.fetchedOnce = true
	s.loading = false

	if err != nil {
		s.logger.Warn("poll failed",
			zap.String("conversation_id", s.conversation.ID),
			zap.Bool("first_load", first),
			zap.Error(err))
		if first {
			s.lastError = &Notice{Kind: NoticeFetch, Message: "messages could not be loaded", At: s.opts.Now()}
		}
		s.publish(events.EventFetchFailed, events.FailurePayload{Error: err.Error(), FirstLoad: first})
		return
	}

	var fresh []domain.Message
	pending := make(map[string]struct{})
	for _, msg := range batch {
		if _, dup := pending[msg.ID]; dup || msg.ID == "" || s.store.Has(msg.ID) {
			continue
		}
		pending[msg.ID] = struct{}{}
		fresh = append(fresh, msg)
	}
	added := s.store.ReplaceOrMerge(batch)
	if added == 0 {
		return
	}
	payload := events.MessagesMergedPayload{Added: added, Size: s.store.Size()}
	for _, msg := range fresh {
		payload.MessageIDs = append(payload.MessageIDs, msg.ID)
		payload.SenderIDs = append(payload.SenderIDs, msg.SenderID)
	}
	s.publish(events.EventMessagesMerged, payload)
}

func (s *Session) onStoreChange(change StoreChange) {
	if _, scrolled := s.scroll.OnStoreChange(change); scrolled {
		s.markSeen()
	}
}

// markSeen reports the newest message as seen once per message.
func (s *Session) markSeen() {
	last, ok := s.store.Last()
	if !ok || last.ID == s.lastSeenID {
		return
	}
	s.lastSeenID = last.ID
	s.publish(events.EventMessagesSeen, events.MessagesSeenPayload{
		LastMessageID: last.ID,
		LastCreatedAt: last.CreatedAt,
	})
}

func (s *Session) publish(eventType events.EventType, payload interface{}) {
	if s.opts.Dispatcher == nil {
		return
	}
	err := s.opts.Dispatcher.Publish(s.baseCtx, events.Event{
		Type:           eventType,
		ConversationID: s.conversation.ID,
		UserID:         s.sc.UserID,
		Payload:        payload,
	})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}

func (s *Session) loadDraft(ctx context.Context, conversationID string) string {
	if s.opts.Drafts == nil {
		return ""
	}
	text, err := s.opts.Drafts.Load(ctx, s.sc.UserID, conversationID)
	if err != nil {
		s.logger.Warn("load draft failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return ""
	}
	return text
}

func (s *Session) saveDraft(conversationID, text string) {
	if s.opts.Drafts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), draftSaveTimeout)
	defer cancel()
	if err := s.opts.Drafts.Save(ctx, s.sc.UserID, conversationID, text); err != nil {
		s.logger.Warn("save draft failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}
