package conversations

import (
	"fmt"
	"strings"
	"time"
)

// LeadStage classifies how warm a contact is.
type LeadStage string

const (
	LeadStageNew  LeadStage = "NEW"
	LeadStageWarm LeadStage = "WARM"
	LeadStageHot  LeadStage = "HOT"
)

// Valid reports whether s is a known lead stage.
func (s LeadStage) Valid() bool {
	switch s {
	case LeadStageNew, LeadStageWarm, LeadStageHot:
		return true
	}
	return false
}

// Sender identifies who authored a message.
type Sender string

const (
	SenderOperator Sender = "OPERATOR"
	SenderContact  Sender = "CONTACT"
	SenderSystem   Sender = "SYSTEM"
)

// MessageType describes how a message is rendered.
type MessageType string

const (
	MessageTypeText          MessageType = "TEXT"
	MessageTypeDocument      MessageType = "DOCUMENT"
	MessageTypeScheduledCall MessageType = "SCHEDULED_CALL"
)

// Contact is the person on the other end of a conversation.
type Contact struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Avatar     string    `json:"avatar,omitempty" yaml:"avatar"`
	Phone      string    `json:"phone,omitempty" yaml:"phone"`
	Email      string    `json:"email,omitempty" yaml:"email"`
	LeadStage  LeadStage `json:"lead_stage" yaml:"lead_stage"`
	Tags       []string  `json:"tags,omitempty" yaml:"tags"`
	Notes      string    `json:"notes,omitempty" yaml:"notes"`
	LastActive string    `json:"last_active,omitempty" yaml:"last_active"`
	Source     string    `json:"source,omitempty" yaml:"source"`
}

// Message is one entry of a conversation timeline. Messages are never
// edited or removed once appended.
type Message struct {
	ID        string            `json:"id" yaml:"id"`
	Sender    Sender            `json:"sender" yaml:"sender"`
	Content   string            `json:"content" yaml:"content"`
	Type      MessageType       `json:"type" yaml:"type"`
	Payload   map[string]string `json:"payload,omitempty" yaml:"payload"`
	Timestamp string            `json:"timestamp" yaml:"timestamp"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
}

// Conversation is a contact's chat with the operator.
type Conversation struct {
	ID          string    `json:"id" yaml:"id"`
	Contact     Contact   `json:"contact" yaml:"contact"`
	Messages    []Message `json:"messages" yaml:"messages"`
	UnreadCount int       `json:"unread_count" yaml:"unread_count"`
	Pinned      bool      `json:"pinned" yaml:"pinned"`
}

// Validate checks the fields the registry relies on.
func (c Conversation) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrMissingConversationID
	}
	if c.Contact.LeadStage != "" && !c.Contact.LeadStage.Valid() {
		return fmt.Errorf("%w: lead stage %q", ErrInvalidConversation, c.Contact.LeadStage)
	}
	if c.UnreadCount < 0 {
		return fmt.Errorf("%w: negative unread count", ErrInvalidConversation)
	}
	return nil
}

// clone returns a copy that shares no slices or maps with c.
func (c Conversation) clone() Conversation {
	out := c
	out.Contact.Tags = append([]string(nil), c.Contact.Tags...)
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.clone()
	}
	return out
}

func (m Message) clone() Message {
	if m.Payload != nil {
		payload := make(map[string]string, len(m.Payload))
		for k, v := range m.Payload {
			payload[k] = v
		}
		m.Payload = payload
	}
	return m
}

// ListView selects a subset of the inbox.
type ListView string

const (
	ViewAll    ListView = "all"
	ViewUnread ListView = "unread"
	ViewHot    ListView = "hot"
	ViewWarm   ListView = "warm"
)

// ParseListView normalizes a view name; the empty string means all.
func ParseListView(raw string) (ListView, error) {
	switch v := ListView(strings.ToLower(strings.TrimSpace(raw))); v {
	case "", ViewAll:
		return ViewAll, nil
	case ViewUnread, ViewHot, ViewWarm:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidListView, raw)
	}
}

// ListFilter narrows the inbox listing.
type ListFilter struct {
	View  ListView
	Query string
}

// Matches reports whether c belongs in the filtered listing.
func (f ListFilter) Matches(c Conversation) bool {
	switch f.View {
	case ViewUnread:
		if c.UnreadCount == 0 {
			return false
		}
	case ViewHot:
		if c.Contact.LeadStage != LeadStageHot {
			return false
		}
	case ViewWarm:
		if c.Contact.LeadStage != LeadStageWarm {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(c.Contact.Name), q)
	}
	return true
}
