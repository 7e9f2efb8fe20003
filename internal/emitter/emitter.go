package emitter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/pkg/logging"
)

// DefaultLayout renders display timestamps as wall-clock time, e.g. "04:05 PM".
const DefaultLayout = "03:04 PM"

// MessageAppender is the registry surface the emitter writes through.
type MessageAppender interface {
	AppendMessage(ctx context.Context, conversationID string, msg conversations.Message) error
}

// IDSource hands out unique message ids.
type IDSource interface {
	Next() string
}

// Observer is told about every message after it lands on a timeline.
type Observer interface {
	MessageAppended(ctx context.Context, conversationID string, msg conversations.Message)
}

// Emitter constructs timeline messages and appends them to conversations.
// It is the only component that creates messages after seeding.
type Emitter struct {
	messages MessageAppender
	ids      IDSource
	now      func() time.Time
	layout   string
	observer Observer
	logger   *logging.Logger
}

// New wires an emitter with the wall clock and the default layout.
func New(messages MessageAppender, ids IDSource, logger *logging.Logger) *Emitter {
	if messages == nil || ids == nil {
		panic("emitter: message appender and id source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Emitter{
		messages: messages,
		ids:      ids,
		now:      time.Now,
		layout:   DefaultLayout,
		logger:   logger,
	}
}

// WithClock overrides the time source.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	if now != nil {
		e.now = now
	}
	return e
}

// WithLayout overrides the display timestamp layout.
func (e *Emitter) WithLayout(layout string) *Emitter {
	if strings.TrimSpace(layout) != "" {
		e.layout = layout
	}
	return e
}

// WithObserver registers the post-append observer.
func (e *Emitter) WithObserver(observer Observer) *Emitter {
	e.observer = observer
	return e
}

// Emit appends a message to the conversation timeline and returns it.
func (e *Emitter) Emit(ctx context.Context, conversationID string, sender conversations.Sender, content string, typ conversations.MessageType, payload map[string]string) (conversations.Message, error) {
	now := e.now()
	msg := conversations.Message{
		ID:        e.ids.Next(),
		Sender:    sender,
		Content:   content,
		Type:      typ,
		Payload:   compactPayload(payload),
		Timestamp: now.Format(e.layout),
		CreatedAt: now.UTC(),
	}
	if err := e.messages.AppendMessage(ctx, conversationID, msg); err != nil {
		return conversations.Message{}, fmt.Errorf("emitter: append to %s: %w", conversationID, err)
	}
	e.logger.Debug("message emitted",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"sender", string(sender),
		"type", string(typ),
	)
	if e.observer != nil {
		e.observer.MessageAppended(ctx, conversationID, msg)
	}
	return msg, nil
}

// System emits a message authored by the console itself.
func (e *Emitter) System(ctx context.Context, conversationID, content string, typ conversations.MessageType, payload map[string]string) (conversations.Message, error) {
	return e.Emit(ctx, conversationID, conversations.SenderSystem, content, typ, payload)
}

// Operator emits a plain text message written by the operator.
func (e *Emitter) Operator(ctx context.Context, conversationID, content string) (conversations.Message, error) {
	return e.Emit(ctx, conversationID, conversations.SenderOperator, content, conversations.MessageTypeText, nil)
}

func compactPayload(payload map[string]string) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		if v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
