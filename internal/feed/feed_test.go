package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
)

// memMessages is an in-memory MessageRepository backing the feed tests.
type memMessages struct {
	mu     sync.Mutex
	nextID uint64
	msgs   []model.Message
}

func (m *memMessages) Create(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	msg.CreatedAt = time.Now()
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memMessages) ListByThread(_ context.Context, threadID uint64) ([]model.Message, error) {
	return m.listAfter(threadID, 0), nil
}

func (m *memMessages) ListByListing(context.Context, uint64) ([]model.Message, error) {
	return nil, nil
}

func (m *memMessages) ListByThreadAfter(_ context.Context, threadID, afterID uint64) ([]model.Message, error) {
	return m.listAfter(threadID, afterID), nil
}

func (m *memMessages) listAfter(threadID, afterID uint64) []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Message
	for _, msg := range m.msgs {
		if msg.ThreadID == threadID && msg.ID > afterID {
			out = append(out, msg)
		}
	}
	return out
}

func (m *memMessages) SetDB(*gorm.DB) {}

var _ repository.MessageRepository = (*memMessages)(nil)

func storeMessage(t *testing.T, store *memMessages, threadID uint64, body string) model.Message {
	t.Helper()
	msg := model.Message{ThreadID: threadID, SenderID: "sender", Body: body, Type: model.MessageTypeText}
	if err := store.Create(context.Background(), &msg); err != nil {
		t.Fatalf("create: %v", err)
	}
	return msg
}

func collect(t *testing.T, ch <-chan model.Message, n int) []model.Message {
	t.Helper()
	var got []model.Message
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d messages", len(got), n)
			}
			got = append(got, msg)
		case <-timeout:
			t.Fatalf("timed out after %d of %d messages", len(got), n)
		}
	}
	return got
}

func assertOrdered(t *testing.T, msgs []model.Message, wantIDs []uint64) {
	t.Helper()
	if len(msgs) != len(wantIDs) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(wantIDs))
	}
	for i, msg := range msgs {
		if msg.ID != wantIDs[i] {
			t.Fatalf("position %d: id = %d, want %d", i, msg.ID, wantIDs[i])
		}
	}
}

func TestBrokerReplaysBacklogThenStreamsLive(t *testing.T) {
	store := &memMessages{}
	broker := NewBroker(store)
	const threadID = 1

	m1 := storeMessage(t, store, threadID, "one")
	m2 := storeMessage(t, store, threadID, "two")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := broker.Subscribe(ctx, threadID, 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m3 := storeMessage(t, store, threadID, "three")
	broker.Publish(m3)

	got := collect(t, ch, 3)
	assertOrdered(t, got, []uint64{m1.ID, m2.ID, m3.ID})
}

func TestBrokerSkipsDuplicates(t *testing.T) {
	store := &memMessages{}
	broker := NewBroker(store)
	const threadID = 1

	m1 := storeMessage(t, store, threadID, "one")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := broker.Subscribe(ctx, threadID, 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// The backlog already delivered m1; a late publish of it must be a no-op.
	broker.Publish(m1)
	m2 := storeMessage(t, store, threadID, "two")
	broker.Publish(m2)

	got := collect(t, ch, 2)
	assertOrdered(t, got, []uint64{m1.ID, m2.ID})
}

func TestBrokerHonorsAfterCursor(t *testing.T) {
	store := &memMessages{}
	broker := NewBroker(store)
	const threadID = 1

	m1 := storeMessage(t, store, threadID, "one")
	m2 := storeMessage(t, store, threadID, "two")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := broker.Subscribe(ctx, threadID, m1.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	got := collect(t, ch, 1)
	assertOrdered(t, got, []uint64{m2.ID})
}

func TestBrokerIsolatesThreads(t *testing.T) {
	store := &memMessages{}
	broker := NewBroker(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := broker.Subscribe(ctx, 1, 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	otherThread := storeMessage(t, store, 2, "elsewhere")
	broker.Publish(otherThread)
	mine := storeMessage(t, store, 1, "here")
	broker.Publish(mine)

	got := collect(t, ch, 1)
	assertOrdered(t, got, []uint64{mine.ID})
}

func TestBrokerIgnoresListingMessages(t *testing.T) {
	broker := NewBroker(&memMessages{})
	// Public listing chat has no thread; publishing it must not panic or
	// reach thread subscribers.
	broker.Publish(model.Message{ID: 1, ListingID: 9, Body: "public"})
}

// racingMessages stores one extra message and publishes it concurrently
// while the backlog is being read, reproducing a writer that lands between
// a subscriber's catch-up query and its registration.
type racingMessages struct {
	*memMessages
	broker **Broker
	once   sync.Once
	wg     sync.WaitGroup
}

func (r *racingMessages) ListByThreadAfter(ctx context.Context, threadID, afterID uint64) ([]model.Message, error) {
	out, err := r.memMessages.ListByThreadAfter(ctx, threadID, afterID)
	r.once.Do(func() {
		msg := model.Message{ThreadID: threadID, SenderID: "sender", Body: "racer", Type: model.MessageTypeText}
		_ = r.memMessages.Create(ctx, &msg)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			(*r.broker).Publish(msg)
		}()
	})
	return out, err
}

func TestBrokerDeliversMessageStoredDuringSubscribe(t *testing.T) {
	store := &racingMessages{memMessages: &memMessages{}}
	broker := NewBroker(store)
	store.broker = &broker
	const threadID = 1

	m1 := storeMessage(t, store.memMessages, threadID, "one")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The racing publish happens while Subscribe reads the backlog. It must
	// either land in the backlog or block until the subscriber is
	// registered; it may not fall into the gap.
	ch, err := broker.Subscribe(ctx, threadID, 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	store.wg.Wait()

	got := collect(t, ch, 2)
	assertOrdered(t, got, []uint64{m1.ID, m1.ID + 1})
}

func TestBrokerClosesAndDropsSubscriberOnCancel(t *testing.T) {
	store := &memMessages{}
	broker := NewBroker(store)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := broker.Subscribe(ctx, 1, 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel, got a message")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after cancel")
	}

	// The registration is reaped without waiting for another publish.
	deadline := time.Now().Add(5 * time.Second)
	for {
		broker.mu.Lock()
		n := len(broker.subs)
		broker.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscriber still registered after cancel: %d threads", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPollerDeliversInOrder(t *testing.T) {
	store := &memMessages{}
	poller := NewPoller(store, 10*time.Millisecond)
	const threadID = 1

	m1 := storeMessage(t, store, threadID, "one")
	m2 := storeMessage(t, store, threadID, "two")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := poller.Subscribe(ctx, threadID, 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	got := collect(t, ch, 2)
	m3 := storeMessage(t, store, threadID, "three")
	got = append(got, collect(t, ch, 1)...)
	assertOrdered(t, got, []uint64{m1.ID, m2.ID, m3.ID})
}

func TestPollerClosesOnCancel(t *testing.T) {
	poller := NewPoller(&memMessages{}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := poller.Subscribe(ctx, 1, 0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel, got a message")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

// Both implementations expose the same interface and must converge to the
// same ordered view of a thread.
func TestFeedImplementationsAgree(t *testing.T) {
	store := &memMessages{}
	broker := NewBroker(store)
	poller := NewPoller(store, 10*time.Millisecond)
	const threadID = 1

	var want []uint64
	for _, body := range []string{"one", "two", "three"} {
		want = append(want, storeMessage(t, store, threadID, body).ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feeds := map[string]Feed{"broker": broker, "poller": poller}
	for name, f := range feeds {
		t.Run(name, func(t *testing.T) {
			ch, err := f.Subscribe(ctx, threadID, 0)
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			assertOrdered(t, collect(t, ch, 3), want)
		})
	}
}
