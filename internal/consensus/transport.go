package consensus

import (
	"context"
	"sync"

	"quorumgate/pkg/domain"
)

// Transport delivers consensus messages to every registered node, including
// the sender. Implementations must preserve per-sender ordering but may
// deliver concurrently across senders.
type Transport interface {
	Broadcast(ctx context.Context, msg Message) error
}

// Handler consumes messages delivered to one node.
type Handler func(ctx context.Context, msg Message)

// LocalBus is the in-process Transport used by the single-binary deployment
// and by tests. Each registered node gets a FIFO inbox drained by its own
// goroutine, so a slow node never blocks the others. Partition simulates
// failed nodes by cutting a node's inbox and outbox.
type LocalBus struct {
	mu     sync.RWMutex
	inbox  map[domain.NodeID]chan Message
	cut    map[domain.NodeID]bool
	done   chan struct{}
	closed bool
}

const inboxDepth = 1024

func NewLocalBus() *LocalBus {
	return &LocalBus{
		inbox: make(map[domain.NodeID]chan Message),
		cut:   make(map[domain.NodeID]bool),
		done:  make(chan struct{}),
	}
}

// Register attaches a node's handler and starts its delivery goroutine.
func (b *LocalBus) Register(id domain.NodeID, h Handler) {
	ch := make(chan Message, inboxDepth)

	b.mu.Lock()
	b.inbox[id] = ch
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-b.done:
				return
			case msg := <-ch:
				h(context.Background(), msg)
			}
		}
	}()
}

// Broadcast enqueues the message at every reachable node. Messages from or to
// a partitioned node are dropped, mimicking a dead peer.
func (b *LocalBus) Broadcast(_ context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed || b.cut[msg.From] {
		return nil
	}
	for id, ch := range b.inbox {
		if b.cut[id] {
			continue
		}
		select {
		case ch <- msg:
		default:
			// Inbox full: drop rather than block the cluster. The round
			// deadline turns sustained loss into an abort.
		}
	}
	return nil
}

// Partition cuts a node off from the bus in both directions.
func (b *LocalBus) Partition(id domain.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cut[id] = true
}

// Heal reconnects a previously partitioned node.
func (b *LocalBus) Heal(id domain.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cut, id)
}

// Close stops all delivery goroutines.
func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
}
