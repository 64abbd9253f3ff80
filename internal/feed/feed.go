// Package feed delivers new chat messages to readers. Two implementations
// exist behind one interface: a push broker fed by the chat service, and a
// bounded-interval poller over the message store. Both deliver strictly in
// creation order, so a client can switch between them without reordering.
package feed

import (
	"context"

	"github.com/peermart/peermart-backend/internal/model"
)

// Feed streams a thread's messages created after afterID, in order. The
// channel closes when ctx is done.
type Feed interface {
	Subscribe(ctx context.Context, threadID, afterID uint64) (<-chan model.Message, error)
}
