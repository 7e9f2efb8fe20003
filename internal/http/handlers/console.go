package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/agent-console/internal/aggregation"
	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/feed"
	"github.com/wolfman30/agent-console/internal/resolution"
	"github.com/wolfman30/agent-console/internal/suggestions"
	"github.com/wolfman30/agent-console/pkg/logging"
)

const maxFeedBody = 4 << 20

// ConversationReader is the registry surface the console reads.
type ConversationReader interface {
	Get(ctx context.Context, id string) (conversations.Conversation, error)
	List(ctx context.Context, filter conversations.ListFilter) ([]conversations.Conversation, error)
}

// SuggestionViews are the aggregation projections served to the console.
type SuggestionViews interface {
	FlattenAll(ctx context.Context, priority *suggestions.Priority) ([]aggregation.FlatSuggestion, error)
	GroupBatchable(ctx context.Context) ([]aggregation.BatchGroup, error)
	Individual(ctx context.Context, priority *suggestions.Priority) ([]aggregation.FlatSuggestion, error)
	IndividualFor(ctx context.Context, conversationID string) ([]suggestions.Suggestion, error)
	ByConversation(ctx context.Context, priority *suggestions.Priority) ([]aggregation.ConversationBucket, error)
}

// Resolver executes operator decisions.
type Resolver interface {
	Dismiss(ctx context.Context, conversationID, suggestionID string) (resolution.Outcome, error)
	Accept(ctx context.Context, cmd resolution.AcceptCommand) (resolution.Outcome, error)
	AcceptBatch(ctx context.Context, key aggregation.GroupKey, overrides suggestions.Payload) (resolution.BatchReport, error)
	RecordFeedback(ctx context.Context, suggestionID string, helpful bool) error
}

// OperatorMessenger sends free text typed by the operator.
type OperatorMessenger interface {
	Operator(ctx context.Context, conversationID, content string) (conversations.Message, error)
}

// DocumentApplier seeds conversations and suggestions.
type DocumentApplier interface {
	Apply(ctx context.Context, doc feed.Document, source string) (feed.Result, error)
}

// ConsoleHandler serves the operator console API.
type ConsoleHandler struct {
	conversations ConversationReader
	views         SuggestionViews
	resolver      Resolver
	messenger     OperatorMessenger
	feeder        DocumentApplier
	logger        *logging.Logger
}

// NewConsoleHandler wires the console API. Every collaborator is required.
func NewConsoleHandler(convs ConversationReader, views SuggestionViews, resolver Resolver, messenger OperatorMessenger, feeder DocumentApplier, logger *logging.Logger) *ConsoleHandler {
	if convs == nil || views == nil || resolver == nil || messenger == nil || feeder == nil {
		panic("handlers: console collaborators required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConsoleHandler{
		conversations: convs,
		views:         views,
		resolver:      resolver,
		messenger:     messenger,
		feeder:        feeder,
		logger:        logger,
	}
}

// ConversationSummary is one inbox row.
type ConversationSummary struct {
	ID                 string                 `json:"id"`
	Contact            conversations.Contact  `json:"contact"`
	UnreadCount        int                    `json:"unread_count"`
	Pinned             bool                   `json:"pinned"`
	LastMessage        *conversations.Message `json:"last_message,omitempty"`
	PendingSuggestions int                    `json:"pending_suggestions"`
}

// ConversationDetail is a conversation with its timeline and the
// suggestions the operator resolves from the chat window.
type ConversationDetail struct {
	conversations.Conversation
	Suggestions []suggestions.Suggestion `json:"suggestions"`
}

// SendMessageRequest is the body of an operator free-text send.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// AcceptRequest is the body of an accept. Kind defaults to the suggestion's kind.
type AcceptRequest struct {
	ConversationID string                 `json:"conversation_id,omitempty"`
	Kind           suggestions.ActionKind `json:"action_kind,omitempty"`
	Payload        suggestions.Payload    `json:"payload,omitempty"`
}

// BatchAcceptRequest names a group by its KIND/title key.
type BatchAcceptRequest struct {
	Key     string              `json:"key"`
	Payload suggestions.Payload `json:"payload,omitempty"`
}

// FeedbackRequest is the "was this helpful?" verdict.
type FeedbackRequest struct {
	Helpful *bool `json:"helpful"`
}

// Routes mounts the console API. Mutating routes go through guard.
func (h *ConsoleHandler) Routes(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Get("/conversations", h.ListConversations)
	r.Get("/conversations/{conversationID}", h.GetConversation)
	r.Get("/conversations/{conversationID}/suggestions", h.ConversationSuggestions)
	r.Get("/suggestions", h.ListSuggestions)
	r.Get("/suggestions/by-conversation", h.SuggestionsByConversation)
	r.Get("/suggestions/individual", h.IndividualSuggestions)
	r.Get("/batches", h.ListBatches)

	r.Group(func(r chi.Router) {
		if guard != nil {
			r.Use(guard)
		}
		r.Post("/feed", h.ApplyFeed)
		r.Post("/conversations/{conversationID}/messages", h.SendMessage)
		r.Post("/conversations/{conversationID}/suggestions/{suggestionID}/dismiss", h.Dismiss)
		r.Post("/conversations/{conversationID}/suggestions/{suggestionID}/accept", h.Accept)
		r.Post("/suggestions/{suggestionID}/accept", h.AcceptGlobal)
		r.Post("/suggestions/{suggestionID}/feedback", h.Feedback)
		r.Post("/batches/accept", h.AcceptBatch)
	})
}

// ListConversations returns the inbox, pinned first.
// GET /api/conversations?filter=all|unread|hot|warm&q=
func (h *ConsoleHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	view, err := conversations.ParseListView(r.URL.Query().Get("filter"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	convs, err := h.conversations.List(r.Context(), conversations.ListFilter{View: view, Query: r.URL.Query().Get("q")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pending, err := h.views.ByConversation(r.Context(), nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	counts := make(map[string]int, len(pending))
	for _, b := range pending {
		counts[b.ConversationID] = len(b.Suggestions)
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		row := ConversationSummary{
			ID:                 c.ID,
			Contact:            c.Contact,
			UnreadCount:        c.UnreadCount,
			Pinned:             c.Pinned,
			PendingSuggestions: counts[c.ID],
		}
		if n := len(c.Messages); n > 0 {
			last := c.Messages[n-1]
			row.LastMessage = &last
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out, "total": len(out)})
}

// GetConversation returns one conversation with its timeline.
// GET /api/conversations/{conversationID}
func (h *ConsoleHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Get(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.views.IndividualFor(r.Context(), conv.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if conv.Messages == nil {
		conv.Messages = []conversations.Message{}
	}
	writeJSON(w, http.StatusOK, ConversationDetail{Conversation: conv, Suggestions: list})
}

// ConversationSuggestions returns the individual view for one conversation.
// GET /api/conversations/{conversationID}/suggestions
func (h *ConsoleHandler) ConversationSuggestions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if _, err := h.conversations.Get(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.views.IndividualFor(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "suggestions": list})
}

// ListSuggestions returns the flattened priority-sorted view.
// GET /api/suggestions?priority=HIGH
func (h *ConsoleHandler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	priority, err := priorityParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.views.FlattenAll(r.Context(), priority)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": items, "total": len(items)})
}

// SuggestionsByConversation returns the flattened view bucketed per conversation.
// GET /api/suggestions/by-conversation?priority=
func (h *ConsoleHandler) SuggestionsByConversation(w http.ResponseWriter, r *http.Request) {
	priority, err := priorityParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	buckets, err := h.views.ByConversation(r.Context(), priority)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": buckets})
}

// IndividualSuggestions returns suggestions not absorbed by a batch group.
// GET /api/suggestions/individual?priority=
func (h *ConsoleHandler) IndividualSuggestions(w http.ResponseWriter, r *http.Request) {
	priority, err := priorityParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.views.Individual(r.Context(), priority)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": items, "total": len(items)})
}

// ListBatches returns the promoted batch groups.
// GET /api/batches
func (h *ConsoleHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	groups, err := h.views.GroupBatchable(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": groups})
}

// ApplyFeed seeds or refreshes conversations and suggestions. The body is
// a feed document in JSON, or YAML when the content type says so.
// POST /api/feed
func (h *ConsoleHandler) ApplyFeed(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFeedBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "feed document too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	format := feed.FormatJSON
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "yaml") {
		format = feed.FormatYAML
	}
	doc, err := feed.Decode(body, format)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if doc.Empty() {
		jsonError(w, "document has no conversations or suggestions", http.StatusBadRequest)
		return
	}
	res, err := h.feeder.Apply(r.Context(), doc, "api")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SendMessage appends operator free text to a conversation.
// POST /api/conversations/{conversationID}/messages
func (h *ConsoleHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		jsonError(w, "content is required", http.StatusBadRequest)
		return
	}
	msg, err := h.messenger.Operator(r.Context(), chi.URLParam(r, "conversationID"), content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Dismiss drops a suggestion without a message.
// POST /api/conversations/{conversationID}/suggestions/{suggestionID}/dismiss
func (h *ConsoleHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	out, err := h.resolver.Dismiss(r.Context(), chi.URLParam(r, "conversationID"), chi.URLParam(r, "suggestionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Accept executes a suggestion from the chat window.
// POST /api/conversations/{conversationID}/suggestions/{suggestionID}/accept
func (h *ConsoleHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req AcceptRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	h.accept(w, r, resolution.AcceptCommand{
		ConversationID: chi.URLParam(r, "conversationID"),
		SuggestionID:   chi.URLParam(r, "suggestionID"),
		Kind:           req.Kind,
		Payload:        req.Payload,
	})
}

// AcceptGlobal executes a suggestion from the aggregated views.
// POST /api/suggestions/{suggestionID}/accept
func (h *ConsoleHandler) AcceptGlobal(w http.ResponseWriter, r *http.Request) {
	var req AcceptRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	h.accept(w, r, resolution.AcceptCommand{
		ConversationID: req.ConversationID,
		SuggestionID:   chi.URLParam(r, "suggestionID"),
		Kind:           req.Kind,
		Payload:        req.Payload,
	})
}

func (h *ConsoleHandler) accept(w http.ResponseWriter, r *http.Request, cmd resolution.AcceptCommand) {
	out, err := h.resolver.Accept(r.Context(), cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Feedback records whether a resolved suggestion was helpful.
// POST /api/suggestions/{suggestionID}/feedback
func (h *ConsoleHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Helpful == nil {
		jsonError(w, "helpful is required", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "suggestionID")
	if err := h.resolver.RecordFeedback(r.Context(), id, *req.Helpful); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"suggestion_id": id, "helpful": *req.Helpful})
}

// AcceptBatch accepts every member of a batch group.
// POST /api/batches/accept
func (h *ConsoleHandler) AcceptBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchAcceptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key, err := aggregation.ParseGroupKey(req.Key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.resolver.AcceptBatch(r.Context(), key, req.Payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeError maps domain errors onto status codes. Resolution registry
// misses are checked first since they also wrap ErrConversationNotFound.
func (h *ConsoleHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("console request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		jsonError(w, "internal error", status)
		return
	}
	h.logger.Debug("console request rejected", "error", err, "status", status, "path", r.URL.Path)
	jsonError(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, resolution.ErrRegistryMiss):
		return http.StatusConflict
	case errors.Is(err, resolution.ErrInvalidPayload),
		errors.Is(err, feed.ErrUnknownConversation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, conversations.ErrConversationNotFound),
		errors.Is(err, aggregation.ErrGroupNotFound),
		errors.Is(err, resolution.ErrSuggestionNotResolved):
		return http.StatusNotFound
	case errors.Is(err, aggregation.ErrInvalidGroupKey),
		errors.Is(err, suggestions.ErrInvalidPriority),
		errors.Is(err, conversations.ErrInvalidListView),
		feed.IsPermanent(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func priorityParam(r *http.Request) (*suggestions.Priority, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("priority"))
	if raw == "" {
		return nil, nil
	}
	p, err := suggestions.ParsePriority(raw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body as the zero request.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
