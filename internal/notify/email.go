package notify

import (
	"context"
	"net/mail"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/agent-console/pkg/logging"
)

const defaultFromName = "Agent Console"

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a provider-neutral email. Category and Tags let support
// tooling trace a mail back to the conversation and suggestion it is about.
type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	Body     string // plain text
	HTML     string // optional
	Category string
	Tags     map[string]string
}

// SenderConfig selects and configures an email provider.
type SenderConfig struct {
	Provider       string // sendgrid, ses or stub
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// NewEmailSender picks a sender for cfg.Provider. A provider that is
// selected but not configured falls back to the stub with a warning.
func NewEmailSender(cfg SenderConfig, ses *sesv2.Client, logger *logging.Logger) EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	from := FromAddress{Email: cfg.FromEmail, Name: cfg.FromName}
	switch provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); provider {
	case "sendgrid":
		if s := NewSendGridSender(cfg.SendGridAPIKey, from, logger); s != nil {
			return s
		}
		logger.Warn("notify: sendgrid selected without api key, using stub")
	case "ses":
		if s := NewSESSender(ses, from, logger); s != nil {
			return s
		}
		logger.Warn("notify: ses selected without client, using stub")
	case "", "stub":
	default:
		logger.Warn("notify: unknown email provider, using stub", "provider", provider)
	}
	return NewStubEmailSender(logger)
}

// FromAddress is the From identity shared by every provider.
type FromAddress struct {
	Email string
	Name  string
}

func (a FromAddress) displayName() string {
	if a.Name == "" {
		return defaultFromName
	}
	return a.Name
}

// address renders the From header with RFC 5322 quoting.
func (a FromAddress) address() string {
	return (&mail.Address{Name: a.displayName(), Address: a.Email}).String()
}

// sortedTags returns tag keys in a stable order so providers see the same
// sequence on every send.
func sortedTags(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StubEmailSender logs instead of sending.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("notify: stub email", "to", msg.To, "subject", msg.Subject, "category", msg.Category)
	return nil
}

var _ EmailSender = (*StubEmailSender)(nil)
