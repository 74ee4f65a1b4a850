package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher accepts events from hot paths without blocking them: events go
// through a buffered channel drained by one worker goroutine. A full buffer
// drops the event with a warning; the audit trail is best-effort by contract,
// the record log itself is the source of truth.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
		now:    time.Now,
	}
}

// Emit enqueues an event. Never blocks.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, event dropped", "kind", event.Kind)
		}
	}
}

// Run drains the inbox into the sink until ctx is done. Sink failures are
// logged and skipped; one bad event must not stall the trail.
func (p *Publisher) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-p.inbox:
			if err := sink.Write(ctx, event); err != nil && p.logger != nil {
				p.logger.WarnContext(ctx, "audit sink write failed", "kind", event.Kind, "error", err)
			}
		}
	}
}
