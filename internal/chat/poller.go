package chat

import (
	"context"
	"time"

	"github.com/spec-kit/moving-chat/internal/backend"
	"github.com/spec-kit/moving-chat/internal/domain"
)

const (
	// DefaultPollInterval is the delay between two poll ticks.
	DefaultPollInterval = 10 * time.Second
	// DefaultPollMaxPages bounds how many pages one tick walks.
	DefaultPollMaxPages = 5
)

// Poller fetches a conversation's message window on a fixed schedule.
type Poller struct {
	client   backend.Client
	interval time.Duration
	maxPages int
}

// NewPoller builds a poller; non-positive values fall back to the defaults.
func NewPoller(client backend.Client, interval time.Duration, maxPages int) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxPages <= 0 {
		maxPages = DefaultPollMaxPages
	}
	return &Poller{client: client, interval: interval, maxPages: maxPages}
}

// Interval returns the delay between ticks.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run calls tick once immediately and then on every interval until ctx is done.
// tick must not block on network I/O.
func (p *Poller) Run(ctx context.Context, tick func()) {
	tick()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// FetchWindow walks pages from the first one while the backend reports more,
// up to maxPages, and returns the union sorted ascending by creation time.
func (p *Poller) FetchWindow(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var batch []domain.Message
	for page := 1; page <= p.maxPages; page++ {
		result, err := p.client.FetchMessages(ctx, conversationID, page)
		if err != nil {
			return nil, err
		}
		batch = append(batch, result.Messages...)
		if !result.HasNext || len(result.Messages) == 0 {
			break
		}
	}
	return sortBatch(batch), nil
}
