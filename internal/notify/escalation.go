package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/agent-console/pkg/logging"
)

// Escalation describes a conversation handed to technical support.
type Escalation struct {
	ConversationID string
	SuggestionID   string
	ContactName    string
	ContactPhone   string
	ContactEmail   string
	Title          string
	Note           string
	At             time.Time
}

// EscalationNotifier emails the support team when an escalation is accepted.
type EscalationNotifier struct {
	email  EmailSender
	to     string
	logger *logging.Logger
}

// NewEscalationNotifier sends to the given support address. An empty address
// turns notifications off.
func NewEscalationNotifier(email EmailSender, to string, logger *logging.Logger) *EscalationNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationNotifier{email: email, to: strings.TrimSpace(to), logger: logger}
}

// NotifyEscalation sends one email per escalation.
func (n *EscalationNotifier) NotifyEscalation(ctx context.Context, esc Escalation) error {
	if n == nil || n.email == nil || n.to == "" {
		return nil
	}
	if esc.At.IsZero() {
		esc.At = time.Now()
	}
	msg := EmailMessage{
		To:       n.to,
		ToName:   "Technical Support",
		Subject:  escalationSubject(esc),
		Body:     formatEscalationText(esc),
		HTML:     formatEscalationHTML(esc),
		Category: "escalation",
		Tags: map[string]string{
			"conversation_id": esc.ConversationID,
			"suggestion_id":   esc.SuggestionID,
		},
	}
	if err := n.email.Send(ctx, msg); err != nil {
		n.logger.Error("notify: escalation email failed", "error", err, "conversation_id", esc.ConversationID)
		return fmt.Errorf("notify: escalation email: %w", err)
	}
	n.logger.Info("notify: escalation email sent", "conversation_id", esc.ConversationID, "suggestion_id", esc.SuggestionID)
	return nil
}

func escalationSubject(esc Escalation) string {
	name := esc.ContactName
	if name == "" {
		name = esc.ConversationID
	}
	return "Escalation: " + name
}

func formatEscalationText(esc Escalation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation %s was escalated to Technical Support.\n\n", esc.ConversationID)
	if esc.ContactName != "" {
		fmt.Fprintf(&b, "Contact: %s\n", esc.ContactName)
	}
	if esc.ContactPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", esc.ContactPhone)
	}
	if esc.ContactEmail != "" {
		fmt.Fprintf(&b, "Email: %s\n", esc.ContactEmail)
	}
	if esc.Title != "" {
		fmt.Fprintf(&b, "Suggestion: %s\n", esc.Title)
	}
	if esc.Note != "" {
		fmt.Fprintf(&b, "\nNote from the operator:\n%s\n", esc.Note)
	}
	fmt.Fprintf(&b, "\nEscalated at %s\n", esc.At.UTC().Format(time.RFC1123))
	return b.String()
}

func formatEscalationHTML(esc Escalation) string {
	var b strings.Builder
	b.WriteString("<h2>Escalated to Technical Support</h2><ul>")
	fmt.Fprintf(&b, "<li><strong>Conversation:</strong> %s</li>", html.EscapeString(esc.ConversationID))
	if esc.ContactName != "" {
		fmt.Fprintf(&b, "<li><strong>Contact:</strong> %s</li>", html.EscapeString(esc.ContactName))
	}
	if esc.ContactPhone != "" {
		fmt.Fprintf(&b, "<li><strong>Phone:</strong> %s</li>", html.EscapeString(esc.ContactPhone))
	}
	if esc.ContactEmail != "" {
		fmt.Fprintf(&b, "<li><strong>Email:</strong> %s</li>", html.EscapeString(esc.ContactEmail))
	}
	b.WriteString("</ul>")
	if esc.Note != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(esc.Note))
	}
	return b.String()
}
