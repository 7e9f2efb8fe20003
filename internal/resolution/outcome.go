package resolution

import (
	"context"
	"time"

	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/notify"
	"github.com/wolfman30/agent-console/internal/suggestions"
)

// Status summarizes what an operator action did to one suggestion.
type Status string

const (
	StatusResolved      Status = "resolved"
	StatusDismissed     Status = "dismissed"
	StatusNotFound      Status = "not_found"
	StatusUnknownAction Status = "unknown_action"
	StatusFailed        Status = "failed"
)

// Outcome is the per-suggestion result of dismiss or accept.
type Outcome struct {
	ConversationID string                 `json:"conversation_id"`
	SuggestionID   string                 `json:"suggestion_id"`
	Kind           suggestions.ActionKind `json:"action_kind,omitempty"`
	Status         Status                 `json:"status"`
	Message        *conversations.Message `json:"message,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// BatchReport lists one Outcome per member of an accepted batch group.
type BatchReport struct {
	Key              string                 `json:"key"`
	Kind             suggestions.ActionKind `json:"action_kind"`
	DivergentPayload bool                   `json:"divergent_payload"`
	Outcomes         []Outcome              `json:"outcomes"`
	Resolved         int                    `json:"resolved"`
	Failed           int                    `json:"failed"`
}

// AcceptCommand carries the operator's confirmed action. ConversationID is
// the caller's view and is advisory; Kind defaults to the suggestion's kind;
// Payload overlays the suggestion payload.
type AcceptCommand struct {
	ConversationID string                 `json:"conversation_id,omitempty"`
	SuggestionID   string                 `json:"suggestion_id"`
	Kind           suggestions.ActionKind `json:"action_kind,omitempty"`
	Payload        suggestions.Payload    `json:"payload,omitempty"`
}

// Event types recorded for every resolution.
const (
	EventResolved  = "suggestion.resolved.v1"
	EventDismissed = "suggestion.dismissed.v1"
	EventFeedback  = "suggestion.feedback.v1"
)

// Event is the durable record of one operator decision.
type Event struct {
	Type           string                 `json:"type"`
	ConversationID string                 `json:"conversation_id"`
	SuggestionID   string                 `json:"suggestion_id"`
	Kind           suggestions.ActionKind `json:"action_kind,omitempty"`
	Status         Status                 `json:"status,omitempty"`
	MessageID      string                 `json:"message_id,omitempty"`
	Helpful        *bool                  `json:"helpful,omitempty"`
	OccurredAt     time.Time              `json:"occurred_at"`
}

// MessageEmitter appends messages to conversation timelines.
type MessageEmitter interface {
	Emit(ctx context.Context, conversationID string, sender conversations.Sender, content string, typ conversations.MessageType, payload map[string]string) (conversations.Message, error)
}

// ContactDirectory resolves a conversation to its contact and doubles as the
// registry existence check.
type ContactDirectory interface {
	Contact(ctx context.Context, conversationID string) (conversations.Contact, error)
}

// ViewSwitcher receives the hint to focus a conversation after an accept.
type ViewSwitcher interface {
	SelectActive(ctx context.Context, conversationID string)
}

// RemovalObserver is told when a suggestion leaves the store.
type RemovalObserver interface {
	SuggestionRemoved(ctx context.Context, conversationID, suggestionID string, status Status)
}

// EventRecorder persists resolution events.
type EventRecorder interface {
	Record(ctx context.Context, event Event) error
}

// EscalationNotifier alerts the support team.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, esc notify.Escalation) error
}
