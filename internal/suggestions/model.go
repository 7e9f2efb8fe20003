package suggestions

import (
	"fmt"
	"strings"
)

// ActionKind is the operation a suggestion asks the operator to perform.
type ActionKind string

const (
	ActionScheduleFollowup ActionKind = "SCHEDULE_FOLLOWUP"
	ActionSendTemplate     ActionKind = "SEND_TEMPLATE"
	ActionEscalate         ActionKind = "ESCALATE"
	ActionSendMessage      ActionKind = "SEND_MESSAGE"
)

// KnownKinds lists every action kind the resolution engine can execute.
var KnownKinds = []ActionKind{ActionScheduleFollowup, ActionSendTemplate, ActionEscalate, ActionSendMessage}

// Known reports whether k has a resolution handler.
func (k ActionKind) Known() bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Priority is a three-level urgency classification. HIGH > MEDIUM > LOW.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Rank orders priorities; unknown values rank below LOW.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the three levels.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// ParsePriority accepts a priority name in any case.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
	}
	return p, nil
}

// Payload keys understood by the resolution engine. Other keys pass through untouched.
const (
	PayloadDate         = "date"
	PayloadTime         = "time"
	PayloadNote         = "note"
	PayloadTemplateName = "templateName"
	PayloadMessage      = "message"
)

// Payload carries kind-dependent action parameters.
type Payload map[string]string

// Get returns the trimmed value for key.
func (p Payload) Get(key string) string {
	return strings.TrimSpace(p[key])
}

// Clone copies the payload; a nil payload clones to nil.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns p overlaid with non-empty values from overrides.
func (p Payload) Merge(overrides Payload) Payload {
	out := p.Clone()
	if out == nil {
		out = Payload{}
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Equal compares payloads by content.
func (p Payload) Equal(other Payload) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Reasoning explains why a suggestion was produced. Display only.
type Reasoning struct {
	Trigger  string   `json:"trigger,omitempty" yaml:"trigger"`
	Intent   string   `json:"intent,omitempty" yaml:"intent"`
	Entities []string `json:"entities,omitempty" yaml:"entities"`
}

// Suggestion is an AI-originated candidate action tied to one conversation.
// Fields never change after insertion; only presence in the store does.
type Suggestion struct {
	ID             string     `json:"id" yaml:"id"`
	ConversationID string     `json:"conversation_id" yaml:"conversation_id"`
	Kind           ActionKind `json:"action_kind" yaml:"action_kind"`
	Title          string     `json:"title" yaml:"title"`
	Description    string     `json:"description" yaml:"description"`
	Priority       Priority   `json:"priority" yaml:"priority"`
	Confidence     int        `json:"confidence" yaml:"confidence"`
	Payload        Payload    `json:"payload,omitempty" yaml:"payload"`
	Reasoning      *Reasoning `json:"reasoning,omitempty" yaml:"reasoning"`
}

// Validate checks a suggestion before it enters a store.
func (s Suggestion) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSuggestion)
	}
	if strings.TrimSpace(string(s.Kind)) == "" {
		return fmt.Errorf("%w: %s: action kind is required", ErrInvalidSuggestion, s.ID)
	}
	if !s.Priority.Valid() {
		return fmt.Errorf("%w: %s: priority %q", ErrInvalidSuggestion, s.ID, s.Priority)
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("%w: %s: confidence %d out of range", ErrInvalidSuggestion, s.ID, s.Confidence)
	}
	return nil
}

func (s Suggestion) clone() Suggestion {
	s.Payload = s.Payload.Clone()
	if s.Reasoning != nil {
		r := *s.Reasoning
		r.Entities = append([]string(nil), r.Entities...)
		s.Reasoning = &r
	}
	return s
}

// Entry is the suggestion list of one conversation.
type Entry struct {
	ConversationID string       `json:"conversation_id" yaml:"conversation_id"`
	Suggestions    []Suggestion `json:"suggestions" yaml:"suggestions"`
}

// Snapshot is an ordered mapping from conversation id to suggestions, in
// the order conversations were first seeded.
type Snapshot []Entry

// AsMap converts the snapshot to a plain map.
func (s Snapshot) AsMap() map[string][]Suggestion {
	out := make(map[string][]Suggestion, len(s))
	for _, e := range s {
		out[e.ConversationID] = e.Suggestions
	}
	return out
}

// Count returns the total number of suggestions.
func (s Snapshot) Count() int {
	n := 0
	for _, e := range s {
		n += len(e.Suggestions)
	}
	return n
}
