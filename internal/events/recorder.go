package events

import (
	"context"
	"fmt"

	"github.com/wolfman30/agent-console/internal/resolution"
)

// OutboxRecorder writes resolution events to the outbox.
type OutboxRecorder struct {
	outbox *OutboxStore
}

func NewOutboxRecorder(outbox *OutboxStore) *OutboxRecorder {
	if outbox == nil {
		panic("events: outbox store required")
	}
	return &OutboxRecorder{outbox: outbox}
}

// Record implements resolution.EventRecorder.
func (r *OutboxRecorder) Record(ctx context.Context, event resolution.Event) error {
	if _, err := r.outbox.Append(ctx, event.ConversationID, event.Type, event); err != nil {
		return fmt.Errorf("events: record %s: %w", event.Type, err)
	}
	return nil
}

var _ resolution.EventRecorder = (*OutboxRecorder)(nil)
