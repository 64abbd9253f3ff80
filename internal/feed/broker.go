package feed

import (
	"context"
	"sync"

	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
)

// Broker is the push implementation: the chat service publishes every stored
// message and the broker fans it out to subscribers of that thread. A new
// subscription first replays the backlog from the store so no message
// between afterID and "now" is lost, then switches to live events; ids are
// tracked so nothing is delivered twice or out of order.
type Broker struct {
	messages repository.MessageRepository

	mu   sync.Mutex
	subs map[uint64][]*subscriber
}

type subscriber struct {
	ch     chan model.Message
	lastID uint64
	done   <-chan struct{}
}

func NewBroker(messages repository.MessageRepository) *Broker {
	return &Broker{messages: messages, subs: make(map[uint64][]*subscriber)}
}

// Publish delivers msg to the thread's live subscribers. Slow or cancelled
// subscribers are skipped, not blocked on; cancelled ones are torn down by
// their own watcher, which is the only place the channel is closed.
func (b *Broker) Publish(msg model.Message) {
	if msg.ThreadID == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[msg.ThreadID] {
		select {
		case <-sub.done:
			continue
		default:
		}
		if msg.ID > sub.lastID {
			select {
			case sub.ch <- msg:
				sub.lastID = msg.ID
			default:
			}
		}
	}
}

// Subscribe replays the stored backlog after afterID, then registers for
// live delivery. The lock is held across both steps: messages are stored
// before they are published, so a concurrent Publish either lands in the
// backlog read or blocks until the subscriber is registered. The channel is
// closed when ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, threadID, afterID uint64) (<-chan model.Message, error) {
	b.mu.Lock()
	backlog, err := b.messages.ListByThreadAfter(ctx, threadID, afterID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}

	sub := &subscriber{ch: make(chan model.Message, len(backlog)+64), lastID: afterID, done: ctx.Done()}
	for _, msg := range backlog {
		if msg.ID > sub.lastID {
			sub.ch <- msg
			sub.lastID = msg.ID
		}
	}
	b.subs[threadID] = append(b.subs[threadID], sub)
	b.mu.Unlock()

	go func() {
		<-sub.done
		b.unsubscribe(threadID, sub)
	}()

	return sub.ch, nil
}

func (b *Broker) unsubscribe(threadID uint64, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.subs[threadID][:0]
	for _, s := range b.subs[threadID] {
		if s != sub {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, threadID)
	} else {
		b.subs[threadID] = kept
	}
	close(sub.ch)
}
