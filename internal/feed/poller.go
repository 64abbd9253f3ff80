package feed

import (
	"context"
	"time"

	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
)

// Poller is the fallback implementation: it reads new rows from the message
// store on a bounded interval. Ordering comes from the store's
// (created_at, id) sort, so a poller and a broker converge to the same view.
type Poller struct {
	messages repository.MessageRepository
	interval time.Duration
}

func NewPoller(messages repository.MessageRepository, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{messages: messages, interval: interval}
}

func (p *Poller) Subscribe(ctx context.Context, threadID, afterID uint64) (<-chan model.Message, error) {
	out := make(chan model.Message, 64)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		lastID := afterID
		for {
			msgs, err := p.messages.ListByThreadAfter(ctx, threadID, lastID)
			if err == nil {
				for _, msg := range msgs {
					select {
					case out <- msg:
						lastID = msg.ID
					case <-ctx.Done():
						return
					}
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
