package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/moving-chat/internal/domain"
	"github.com/spec-kit/moving-chat/internal/events"
	"github.com/spec-kit/moving-chat/internal/repository"
)

const (
	defaultCursorQueue = 256
	cursorWriteTimeout = 3 * time.Second
)

// ReadCursorWorker persists "messages seen" events as read cursors. Event handlers run
// on a session's owner goroutine, so the handler only enqueues; Run does the writes.
type ReadCursorWorker struct {
	repo   repository.ReadCursorRepository
	logger *zap.Logger
	queue  chan domain.ReadCursor
}

// NewReadCursorWorker builds the worker with a bounded queue.
func NewReadCursorWorker(repo repository.ReadCursorRepository, logger *zap.Logger, queueSize int) *ReadCursorWorker {
	if queueSize <= 0 {
		queueSize = defaultCursorQueue
	}
	return &ReadCursorWorker{repo: repo, logger: logger, queue: make(chan domain.ReadCursor, queueSize)}
}

// Register subscribes the worker to the dispatcher.
func (w *ReadCursorWorker) Register(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventMessagesSeen, w.handleMessagesSeen)
}

func (w *ReadCursorWorker) handleMessagesSeen(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MessagesSeenPayload)
	if !ok || payload.LastMessageID == "" {
		return nil
	}
	cursor := domain.ReadCursor{
		UserID:         event.UserID,
		ConversationID: event.ConversationID,
		LastMessageID:  payload.LastMessageID,
		LastCreatedAt:  payload.LastCreatedAt,
	}
	select {
	case w.queue <- cursor:
	default:
		w.logger.Warn("read cursor queue full; dropping update",
			zap.String("conversation_id", cursor.ConversationID))
	}
	return nil
}

// Run writes queued cursors until ctx is done, then flushes what is left.
func (w *ReadCursorWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return
		case cursor := <-w.queue:
			w.write(cursor)
		}
	}
}

func (w *ReadCursorWorker) flush() {
	for {
		select {
		case cursor := <-w.queue:
			w.write(cursor)
		default:
			return
		}
	}
}

func (w *ReadCursorWorker) write(cursor domain.ReadCursor) {
	ctx, cancel := context.WithTimeout(context.Background(), cursorWriteTimeout)
	defer cancel()
	if err := w.repo.Upsert(ctx, &cursor); err != nil {
		w.logger.Warn("persist read cursor failed",
			zap.String("user_id", cursor.UserID),
			zap.String("conversation_id", cursor.ConversationID),
			zap.Error(err))
	}
}
