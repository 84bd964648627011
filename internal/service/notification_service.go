package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/moving-chat/internal/config"
	"github.com/spec-kit/moving-chat/internal/events"
)

// NotificationService reacts to chat events that deserve attention outside the session.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventMessagesMerged, n.handleMessagesMerged)
	n.dispatcher.Subscribe(events.EventSendFailed, n.handleSendFailed)
}

// handleMessagesMerged notifies about messages written by the counterpart.
func (n *NotificationService) handleMessagesMerged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MessagesMergedPayload)
	if !ok {
		return nil
	}
	incoming := 0
	for _, sender := range payload.SenderIDs {
		if sender != event.UserID {
			incoming++
		}
	}
	if incoming == 0 {
		return nil
	}
	n.logger.Info("IncomingMessages",
		zap.String("conversation_id", event.ConversationID),
		zap.String("user_id", event.UserID),
		zap.Int("count", incoming))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleSendFailed(ctx context.Context, event events.Event) error {
	n.logger.Warn("SendFailed",
		zap.String("conversation_id", event.ConversationID),
		zap.String("user_id", event.UserID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("conversation_id", event.ConversationID),
		zap.String("event_type", string(event.Type)))
}
