package resolution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/agent-console/internal/aggregation"
	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/notify"
	"github.com/wolfman30/agent-console/internal/observability/metrics"
	"github.com/wolfman30/agent-console/internal/suggestions"
	"github.com/wolfman30/agent-console/pkg/logging"
)

// BatchSource recomputes a batch group from the current store state.
type BatchSource interface {
	Batch(ctx context.Context, key aggregation.GroupKey) (aggregation.BatchGroup, error)
}

// draft is the message an accepted action narrates.
type draft struct {
	sender  conversations.Sender
	typ     conversations.MessageType
	content string
	payload map[string]string
}

type renderFunc func(payload suggestions.Payload) (draft, error)

type acceptMode struct {
	exactPayload bool
	switchView   bool
}

// Engine turns operator decisions into timeline messages and store removals.
// Operations run one at a time.
type Engine struct {
	mu        sync.Mutex
	store     suggestions.Store
	contacts  ContactDirectory
	emitter   MessageEmitter
	batches   BatchSource
	documents DocumentClassifier
	handlers  map[suggestions.ActionKind]renderFunc

	views    ViewSwitcher
	removals RemovalObserver
	recorder EventRecorder
	notifier EscalationNotifier
	metrics  *metrics.ConsoleMetrics

	logger *logging.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewEngine wires the engine around its required collaborators.
func NewEngine(store suggestions.Store, contacts ContactDirectory, emitter MessageEmitter, batches BatchSource, logger *logging.Logger) *Engine {
	if store == nil || contacts == nil || emitter == nil || batches == nil {
		panic("resolution: store, contacts, emitter and batch source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:     store,
		contacts:  contacts,
		emitter:   emitter,
		batches:   batches,
		documents: NewDocumentClassifier(nil, nil),
		logger:    logger,
		tracer:    otel.Tracer("agentconsole.internal.resolution"),
		now:       time.Now,
	}
	e.handlers = map[suggestions.ActionKind]renderFunc{
		suggestions.ActionScheduleFollowup: renderSchedule,
		suggestions.ActionSendTemplate:     e.renderTemplate,
		suggestions.ActionEscalate:         renderEscalation,
		suggestions.ActionSendMessage:      renderOperatorMessage,
	}
	return e
}

// WithDocumentClassifier sets the SEND_TEMPLATE document rule.
func (e *Engine) WithDocumentClassifier(c DocumentClassifier) *Engine {
	e.documents = c
	return e
}

// WithViewSwitcher registers the active-conversation hint receiver.
func (e *Engine) WithViewSwitcher(v ViewSwitcher) *Engine {
	e.views = v
	return e
}

// WithRemovalObserver registers a listener for removed suggestions.
func (e *Engine) WithRemovalObserver(o RemovalObserver) *Engine {
	e.removals = o
	return e
}

// WithRecorder registers the resolution event recorder.
func (e *Engine) WithRecorder(r EventRecorder) *Engine {
	e.recorder = r
	return e
}

// WithNotifier registers the escalation notifier.
func (e *Engine) WithNotifier(n EscalationNotifier) *Engine {
	e.notifier = n
	return e
}

// WithMetrics registers Prometheus collectors.
func (e *Engine) WithMetrics(m *metrics.ConsoleMetrics) *Engine {
	e.metrics = m
	return e
}

// WithClock overrides the event clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Dismiss removes a suggestion without emitting a message. Like Accept it
// acts on the suggestion's owning conversation, so a stale conversationID
// still dismisses the pending item. Dismissing an absent suggestion is a
// no-op reported as StatusNotFound.
func (e *Engine) Dismiss(ctx context.Context, conversationID, suggestionID string) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() { e.metrics.ObserveLatency("dismiss", time.Since(start).Seconds()) }()

	ctx, span := e.tracer.Start(ctx, "resolution.dismiss", trace.WithAttributes(
		attribute.String("conversation_id", conversationID),
		attribute.String("suggestion_id", suggestionID),
	))
	defer span.End()

	out := Outcome{ConversationID: conversationID, SuggestionID: suggestionID}
	sugg, found, err := e.store.Get(ctx, suggestionID)
	if err != nil {
		return e.fail(span, out, fmt.Errorf("resolution: lookup %s: %w", suggestionID, err))
	}
	target := conversationID
	if found {
		target = sugg.ConversationID
		out.ConversationID = target
		out.Kind = sugg.Kind
		if conversationID != "" && conversationID != target {
			e.logger.Warn("resolution: dismiss routed to owning conversation",
				"requested_conversation_id", conversationID, "conversation_id", target, "suggestion_id", suggestionID)
		}
	}

	removed, err := e.store.Remove(ctx, target, suggestionID)
	if err != nil {
		return e.fail(span, out, fmt.Errorf("resolution: dismiss %s: %w", suggestionID, err))
	}
	if !removed {
		out.Status = StatusNotFound
		e.logger.Debug("resolution: dismiss of absent suggestion", "conversation_id", target, "suggestion_id", suggestionID)
		e.metrics.ObserveResolution(string(out.Kind), string(out.Status))
		return out, nil
	}

	out.Status = StatusDismissed
	e.logger.Info("resolution: suggestion dismissed", "conversation_id", target, "suggestion_id", suggestionID)
	e.finish(ctx, out, EventDismissed)
	return out, nil
}

// Accept executes the suggestion's action against its owning conversation.
// An absent suggestion is a no-op reported as StatusNotFound. Emission and
// removal happen together: when the conversation is unknown or the payload
// is incomplete the suggestion stays pending and an error is returned.
// The one exception is a store failure after the message went out: the
// outcome is StatusFailed but carries the emitted Message, the error names
// its id, and the suggestion stays pending until dismissed.
func (e *Engine) Accept(ctx context.Context, cmd AcceptCommand) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accept(ctx, cmd, acceptMode{switchView: true})
}

// AcceptBatch accepts every member of the group currently named by key with
// the group's kind and representative payload. Members are independent: a
// failing member is reported and the rest still run.
func (e *Engine) AcceptBatch(ctx context.Context, key aggregation.GroupKey, overrides suggestions.Payload) (BatchReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "resolution.accept_batch", trace.WithAttributes(attribute.String("group_key", key.String())))
	defer span.End()

	group, err := e.batches.Batch(ctx, key)
	if err != nil {
		span.RecordError(err)
		return BatchReport{Key: key.String(), Kind: key.Kind}, err
	}

	report := BatchReport{
		Key:              group.Key,
		Kind:             group.Kind,
		DivergentPayload: group.DivergentPayload,
		Outcomes:         make([]Outcome, 0, len(group.Members)),
	}
	if group.DivergentPayload {
		e.logger.Warn("resolution: batch members carry divergent payloads, using representative",
			"group_key", group.Key, "members", len(group.Members))
	}

	payload := group.Payload.Merge(overrides)
	for _, m := range group.Members {
		out, err := e.accept(ctx, AcceptCommand{
			ConversationID: m.ConversationID,
			SuggestionID:   m.SuggestionID,
			Kind:           group.Kind,
			Payload:        payload,
		}, acceptMode{exactPayload: true})
		switch {
		case err != nil:
			report.Failed++
			e.logger.Warn("resolution: batch member failed", "group_key", group.Key,
				"conversation_id", m.ConversationID, "suggestion_id", m.SuggestionID, "error", err)
		case out.Status == StatusResolved:
			report.Resolved++
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	e.metrics.ObserveBatch(len(group.Members))
	span.SetAttributes(attribute.Int("resolved", report.Resolved), attribute.Int("failed", report.Failed))
	e.logger.Info("resolution: batch accepted", "group_key", group.Key, "resolved", report.Resolved, "failed", report.Failed)
	return report, nil
}

// RecordFeedback stores the operator's verdict on a resolved suggestion.
func (e *Engine) RecordFeedback(ctx context.Context, suggestionID string, helpful bool) error {
	retired, err := e.store.Retired(ctx, suggestionID)
	if err != nil {
		return fmt.Errorf("resolution: feedback lookup %s: %w", suggestionID, err)
	}
	if !retired {
		return fmt.Errorf("%w: %s", ErrSuggestionNotResolved, suggestionID)
	}

	e.logger.Info("resolution: feedback received", "suggestion_id", suggestionID, "helpful", helpful)
	if e.recorder == nil {
		return nil
	}
	verdict := helpful
	if err := e.recorder.Record(ctx, Event{
		Type:         EventFeedback,
		SuggestionID: suggestionID,
		Helpful:      &verdict,
		OccurredAt:   e.now().UTC(),
	}); err != nil {
		return fmt.Errorf("resolution: record feedback %s: %w", suggestionID, err)
	}
	return nil
}

func (e *Engine) accept(ctx context.Context, cmd AcceptCommand, mode acceptMode) (Outcome, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveLatency("accept", time.Since(start).Seconds()) }()

	ctx, span := e.tracer.Start(ctx, "resolution.accept", trace.WithAttributes(attribute.String("suggestion_id", cmd.SuggestionID)))
	defer span.End()

	out := Outcome{ConversationID: cmd.ConversationID, SuggestionID: cmd.SuggestionID, Kind: cmd.Kind}
	sugg, found, err := e.store.Get(ctx, cmd.SuggestionID)
	if err != nil {
		return e.fail(span, out, fmt.Errorf("resolution: lookup %s: %w", cmd.SuggestionID, err))
	}
	if !found {
		out.Status = StatusNotFound
		e.logger.Debug("resolution: accept of absent suggestion", "conversation_id", cmd.ConversationID, "suggestion_id", cmd.SuggestionID)
		e.metrics.ObserveResolution(string(out.Kind), string(out.Status))
		return out, nil
	}

	target := sugg.ConversationID
	if cmd.ConversationID != "" && cmd.ConversationID != target {
		e.logger.Warn("resolution: accept routed to owning conversation",
			"requested_conversation_id", cmd.ConversationID, "conversation_id", target, "suggestion_id", sugg.ID)
	}
	kind := cmd.Kind
	if kind == "" {
		kind = sugg.Kind
	}
	payload := sugg.Payload.Merge(cmd.Payload)
	if mode.exactPayload {
		payload = cmd.Payload.Clone()
	}
	out.ConversationID = target
	out.Kind = kind
	span.SetAttributes(attribute.String("conversation_id", target), attribute.String("action_kind", string(kind)))

	render, known := e.handlers[kind]
	if !known {
		if _, err := e.store.Remove(ctx, target, sugg.ID); err != nil {
			return e.fail(span, out, fmt.Errorf("resolution: remove %s: %w", sugg.ID, err))
		}
		out.Status = StatusUnknownAction
		e.logger.Warn("resolution: unknown action kind, suggestion removed without message",
			"conversation_id", target, "suggestion_id", sugg.ID, "action_kind", string(kind))
		e.finish(ctx, out, EventResolved)
		return out, nil
	}

	contact, err := e.contacts.Contact(ctx, target)
	if err != nil {
		return e.fail(span, out, registryError(target, err))
	}

	d, err := render(payload)
	if err != nil {
		return e.fail(span, out, err)
	}

	msg, err := e.emitter.Emit(ctx, target, d.sender, d.content, d.typ, d.payload)
	if err != nil {
		return e.fail(span, out, registryError(target, err))
	}
	if _, err := e.store.Remove(ctx, target, sugg.ID); err != nil {
		out.Message = &msg
		e.logger.Error("resolution: message emitted but suggestion still pending",
			"conversation_id", target, "suggestion_id", sugg.ID, "message_id", msg.ID, "error", err)
		return e.fail(span, out, fmt.Errorf("resolution: remove %s after emitting message %s: %w", sugg.ID, msg.ID, err))
	}

	out.Status = StatusResolved
	out.Message = &msg
	e.logger.Info("resolution: suggestion accepted", "conversation_id", target, "suggestion_id", sugg.ID,
		"action_kind", string(kind), "message_id", msg.ID)

	if kind == suggestions.ActionEscalate {
		e.escalate(ctx, target, contact, sugg, payload)
	}
	if mode.switchView && e.views != nil {
		e.views.SelectActive(ctx, target)
	}
	e.finish(ctx, out, EventResolved)
	return out, nil
}

func registryError(conversationID string, err error) error {
	if errors.Is(err, conversations.ErrConversationNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrRegistryMiss, conversationID, err)
	}
	return fmt.Errorf("resolution: conversation %s: %w", conversationID, err)
}

func (e *Engine) fail(span trace.Span, out Outcome, err error) (Outcome, error) {
	out.Status = StatusFailed
	out.Error = err.Error()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.ObserveResolution(string(out.Kind), string(out.Status))
	return out, err
}

// finish notifies observers and records the event once a suggestion is gone.
func (e *Engine) finish(ctx context.Context, out Outcome, eventType string) {
	e.metrics.ObserveResolution(string(out.Kind), string(out.Status))
	if e.removals != nil {
		e.removals.SuggestionRemoved(ctx, out.ConversationID, out.SuggestionID, out.Status)
	}
	if e.recorder == nil {
		return
	}
	event := Event{
		Type:           eventType,
		ConversationID: out.ConversationID,
		SuggestionID:   out.SuggestionID,
		Kind:           out.Kind,
		Status:         out.Status,
		OccurredAt:     e.now().UTC(),
	}
	if out.Message != nil {
		event.MessageID = out.Message.ID
	}
	if err := e.recorder.Record(ctx, event); err != nil {
		e.logger.Error("resolution: record event failed", "error", err,
			"conversation_id", out.ConversationID, "suggestion_id", out.SuggestionID, "type", eventType)
	}
}

func (e *Engine) escalate(ctx context.Context, conversationID string, contact conversations.Contact, sugg suggestions.Suggestion, payload suggestions.Payload) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.NotifyEscalation(ctx, notify.Escalation{
		ConversationID: conversationID,
		SuggestionID:   sugg.ID,
		ContactName:    contact.Name,
		ContactPhone:   contact.Phone,
		ContactEmail:   contact.Email,
		Title:          sugg.Title,
		Note:           payload.Get(suggestions.PayloadNote),
		At:             e.now(),
	})
	if err != nil {
		e.logger.Warn("resolution: escalation notification failed", "error", err,
			"conversation_id", conversationID, "suggestion_id", sugg.ID)
	}
}

func renderSchedule(p suggestions.Payload) (draft, error) {
	date, clock := p.Get(suggestions.PayloadDate), p.Get(suggestions.PayloadTime)
	if date == "" || clock == "" {
		return draft{}, fmt.Errorf("%w: schedule requires date and time", ErrInvalidPayload)
	}
	note := p.Get(suggestions.PayloadNote)
	content := fmt.Sprintf("Scheduled Call for %s at %s", date, clock)
	if note != "" {
		content += ". Note: " + note
	}
	return draft{
		sender:  conversations.SenderSystem,
		typ:     conversations.MessageTypeScheduledCall,
		content: content,
		payload: map[string]string{
			suggestions.PayloadDate: date,
			suggestions.PayloadTime: clock,
			suggestions.PayloadNote: note,
		},
	}, nil
}

func (e *Engine) renderTemplate(p suggestions.Payload) (draft, error) {
	name := p.Get(suggestions.PayloadTemplateName)
	if name == "" {
		return draft{}, fmt.Errorf("%w: template name required", ErrInvalidPayload)
	}
	d := draft{
		sender:  conversations.SenderSystem,
		payload: map[string]string{suggestions.PayloadTemplateName: name},
	}
	if e.documents.IsDocument(name) {
		d.typ = conversations.MessageTypeDocument
		d.content = name
	} else {
		d.typ = conversations.MessageTypeText
		d.content = "Sent Template - " + name
	}
	return d, nil
}

func renderEscalation(p suggestions.Payload) (draft, error) {
	note := p.Get(suggestions.PayloadNote)
	content := "Escalated to Technical Support"
	if note != "" {
		content += ": " + note
	}
	return draft{
		sender:  conversations.SenderSystem,
		typ:     conversations.MessageTypeText,
		content: content,
		payload: map[string]string{suggestions.PayloadNote: note},
	}, nil
}

func renderOperatorMessage(p suggestions.Payload) (draft, error) {
	text := p.Get(suggestions.PayloadMessage)
	if text == "" {
		return draft{}, fmt.Errorf("%w: message text required", ErrInvalidPayload)
	}
	return draft{
		sender:  conversations.SenderOperator,
		typ:     conversations.MessageTypeText,
		content: text,
	}, nil
}
