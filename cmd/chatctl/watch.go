package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/moving-chat/internal/backend"
	"github.com/spec-kit/moving-chat/internal/chat"
	"github.com/spec-kit/moving-chat/internal/config"
	"github.com/spec-kit/moving-chat/internal/domain"
	"github.com/spec-kit/moving-chat/internal/events"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll a conversation and print messages as they arrive",
		RunE:  runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := environment()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sc, err := sessionContext(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Handlers run on the session goroutine; they only signal.
	merged := make(chan struct{}, 1)
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.EventMessagesMerged, func(context.Context, events.Event) error {
		select {
		case merged <- struct{}{}:
		default:
		}
		return nil
	})

	session := openSession(cfg, logger, sc, dispatcher)
	defer session.Close()

	conv, err := session.Open(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "conversation %s with %s (%s)\n", conv.ID, conv.CounterpartName, conv.Status)

	printed := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-merged:
		}
		state, err := session.State()
		if err != nil {
			return err
		}
		for _, msg := range state.Messages {
			if _, ok := printed[msg.ID]; ok {
				continue
			}
			printed[msg.ID] = struct{}{}
			printMessage(out, sc.UserID, msg)
		}
	}
}

func openSession(cfg *config.Config, logger *zap.Logger, sc domain.SessionContext, dispatcher events.Dispatcher) *chat.Session {
	client := backend.NewHTTPClient(cfg.Backend, logger).As(sc)
	return chat.NewSession(sc, client, logger, chat.Options{
		PollInterval:    cfg.Chat.PollInterval(),
		PollMaxPages:    cfg.Chat.PollMaxPages,
		ScrollThreshold: float64(cfg.Chat.ScrollThresholdPx),
		Dispatcher:      dispatcher,
	})
}

func printMessage(w io.Writer, userID string, msg domain.Message) {
	who := msg.SenderID
	if msg.SenderID == userID {
		who = "me"
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", msg.CreatedAt.Local().Format(time.DateTime), who, msg.Body)
	for _, att := range msg.Attachments {
		fmt.Fprintf(w, "    %s %s (%d bytes) %s\n", att.Category, att.Name, att.SizeBytes, att.URL)
	}
}
