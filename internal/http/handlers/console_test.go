package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agent-console/internal/aggregation"
	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/emitter"
	"github.com/wolfman30/agent-console/internal/feed"
	"github.com/wolfman30/agent-console/internal/http/middleware"
	"github.com/wolfman30/agent-console/internal/ids"
	"github.com/wolfman30/agent-console/internal/resolution"
	"github.com/wolfman30/agent-console/internal/suggestions"
)

type consoleFixture struct {
	router   http.Handler
	registry *conversations.InMemoryRegistry
	store    *suggestions.InMemoryStore
}

func newConsoleFixture(t *testing.T, secret string) *consoleFixture {
	t.Helper()
	ctx := context.Background()

	reg := conversations.NewInMemoryRegistry()
	store := suggestions.NewInMemoryStore()
	feeder := feed.NewFeeder(reg, store, nil)
	_, err := feeder.ApplyFile(ctx, "../../../testdata/seed.json")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "chat_2", []suggestions.Suggestion{{
		ID:         "sugg_3",
		Kind:       suggestions.ActionSendTemplate,
		Title:      "Send Pricing PDF",
		Priority:   suggestions.PriorityMedium,
		Confidence: 88,
		Payload:    suggestions.Payload{suggestions.PayloadTemplateName: "Enterprise_Pricing_v2.pdf"},
	}}))

	projector := aggregation.NewProjector(store, reg)
	em := emitter.New(reg, ids.MustGenerator(1), nil)
	engine := resolution.NewEngine(store, reg, em, projector, nil).
		WithDocumentClassifier(resolution.NewDocumentClassifier([]string{".pdf"}, nil))
	h := NewConsoleHandler(reg, projector, engine, em, feeder, nil)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.Routes(r, middleware.OperatorJWT(secret))
	})
	return &consoleFixture{router: r, registry: reg, store: store}
}

func (f *consoleFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestListConversations(t *testing.T) {
	f := newConsoleFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Conversations []ConversationSummary `json:"conversations"`
		Total         int                   `json:"total"`
	}](t, rec)
	require.Equal(t, 3, resp.Total)
	assert.Equal(t, "chat_1", resp.Conversations[0].ID)
	assert.True(t, resp.Conversations[0].Pinned)
	assert.Equal(t, 2, resp.Conversations[0].PendingSuggestions)
	require.NotNil(t, resp.Conversations[0].LastMessage)
	assert.Equal(t, "m4", resp.Conversations[0].LastMessage.ID)

	rec = f.do(t, http.MethodGet, "/api/conversations?filter=hot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hot := decode[struct {
		Conversations []ConversationSummary `json:"conversations"`
	}](t, rec)
	require.Len(t, hot.Conversations, 1)
	assert.Equal(t, "Zoya Sayed", hot.Conversations[0].Contact.Name)

	rec = f.do(t, http.MethodGet, "/api/conversations?filter=cold", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversationExcludesBatchedSuggestions(t *testing.T) {
	f := newConsoleFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/conversations/chat_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[ConversationDetail](t, rec)
	assert.Len(t, detail.Messages, 4)
	require.Len(t, detail.Suggestions, 1)
	assert.Equal(t, "sugg_1", detail.Suggestions[0].ID)

	rec = f.do(t, http.MethodGet, "/api/conversations/chat_404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/conversations/chat_404/suggestions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSuggestionViews(t *testing.T) {
	f := newConsoleFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/suggestions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[struct {
		Suggestions []aggregation.FlatSuggestion `json:"suggestions"`
	}](t, rec)
	require.Len(t, all.Suggestions, 3)
	assert.Equal(t, "sugg_1", all.Suggestions[0].Suggestion.ID)
	assert.Equal(t, "Zoya Sayed", all.Suggestions[0].ContactName)

	rec = f.do(t, http.MethodGet, "/api/suggestions?priority=high", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	high := decode[struct {
		Total int `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, high.Total)

	rec = f.do(t, http.MethodGet, "/api/suggestions?priority=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/suggestions/individual", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	individual := decode[struct {
		Suggestions []aggregation.FlatSuggestion `json:"suggestions"`
	}](t, rec)
	require.Len(t, individual.Suggestions, 1)
	assert.Equal(t, "sugg_1", individual.Suggestions[0].Suggestion.ID)

	rec = f.do(t, http.MethodGet, "/api/suggestions/by-conversation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	buckets := decode[struct {
		Conversations []aggregation.ConversationBucket `json:"conversations"`
	}](t, rec)
	assert.Len(t, buckets.Conversations, 2)

	rec = f.do(t, http.MethodGet, "/api/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	batches := decode[struct {
		Batches []aggregation.BatchGroup `json:"batches"`
	}](t, rec)
	require.Len(t, batches.Batches, 1)
	assert.Equal(t, "SEND_TEMPLATE/Send Pricing PDF", batches.Batches[0].Key)
	assert.Len(t, batches.Batches[0].Members, 2)
}

func TestAcceptScheduleEndToEnd(t *testing.T) {
	f := newConsoleFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/conversations/chat_1/suggestions/sugg_1/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[resolution.Outcome](t, rec)
	assert.Equal(t, resolution.StatusResolved, out.Status)
	require.NotNil(t, out.Message)
	assert.Equal(t, "Scheduled Call for Tomorrow at 16:00", out.Message.Content)
	assert.Equal(t, conversations.MessageTypeScheduledCall, out.Message.Type)

	msgs, err := f.registry.Messages(context.Background(), "chat_1")
	require.NoError(t, err)
	assert.Equal(t, out.Message.ID, msgs[len(msgs)-1].ID)

	rec = f.do(t, http.MethodPost, "/api/conversations/chat_1/suggestions/sugg_1/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resolution.StatusNotFound, decode[resolution.Outcome](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/suggestions/sugg_1/feedback", map[string]any{"helpful": true})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAcceptGlobalWithOverrides(t *testing.T) {
	f := newConsoleFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/suggestions/sugg_1/accept", AcceptRequest{
		Payload: suggestions.Payload{suggestions.PayloadTime: "17:30", suggestions.PayloadNote: "Bring the proposal"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[resolution.Outcome](t, rec)
	assert.Equal(t, "chat_1", out.ConversationID)
	assert.Equal(t, "Scheduled Call for Tomorrow at 17:30. Note: Bring the proposal", out.Message.Content)
}

func TestAcceptBatch(t *testing.T) {
	f := newConsoleFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/batches/accept", BatchAcceptRequest{Key: "SEND_TEMPLATE/Send Pricing PDF"})
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[resolution.BatchReport](t, rec)
	assert.Equal(t, 2, report.Resolved)
	assert.Zero(t, report.Failed)

	msgs, err := f.registry.Messages(context.Background(), "chat_2")
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	assert.Equal(t, conversations.MessageTypeDocument, last.Type)
	assert.Equal(t, "Enterprise_Pricing_v2.pdf", last.Content)

	rec = f.do(t, http.MethodPost, "/api/batches/accept", BatchAcceptRequest{Key: "SEND_TEMPLATE/Send Pricing PDF"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/batches/accept", BatchAcceptRequest{Key: "no-separator"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptErrorMapping(t *testing.T) {
	f := newConsoleFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, "chat_3", []suggestions.Suggestion{
		{ID: "sugg_msg", Kind: suggestions.ActionSendMessage, Title: "Check in", Priority: suggestions.PriorityLow, Confidence: 60},
	}))

	rec := f.do(t, http.MethodPost, "/api/conversations/chat_3/suggestions/sugg_msg/accept", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	require.NoError(t, f.registry.Delete(ctx, "chat_3"))
	rec = f.do(t, http.MethodPost, "/api/conversations/chat_3/suggestions/sugg_msg/accept", AcceptRequest{
		Payload: suggestions.Payload{suggestions.PayloadMessage: "Checking in!"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, found, err := f.store.Get(ctx, "sugg_msg")
	require.NoError(t, err)
	assert.True(t, found)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/suggestions/sugg_msg/accept", strings.NewReader("{"))
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDismissIsIdempotent(t *testing.T) {
	f := newConsoleFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/conversations/chat_1/suggestions/sugg_2/dismiss", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resolution.StatusDismissed, decode[resolution.Outcome](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/conversations/chat_1/suggestions/sugg_2/dismiss", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resolution.StatusNotFound, decode[resolution.Outcome](t, rec).Status)
}

func TestSendMessage(t *testing.T) {
	f := newConsoleFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/conversations/chat_2/messages", SendMessageRequest{Content: " Happy to help! "})
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := decode[conversations.Message](t, rec)
	assert.Equal(t, conversations.SenderOperator, msg.Sender)
	assert.Equal(t, "Happy to help!", msg.Content)

	rec = f.do(t, http.MethodPost, "/api/conversations/chat_2/messages", SendMessageRequest{Content: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/conversations/chat_404/messages", SendMessageRequest{Content: "hello"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedback(t *testing.T) {
	f := newConsoleFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/suggestions/sugg_2/feedback", map[string]any{"helpful": false})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/suggestions/sugg_2/feedback", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyFeed(t *testing.T) {
	f := newConsoleFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/feed", map[string]any{
		"suggestions": []map[string]any{{
			"conversation_id": "chat_404",
			"suggestions": []map[string]any{{
				"id": "sugg_x", "action_kind": "ESCALATE", "title": "Escalate", "priority": "LOW", "confidence": 40,
			}},
		}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/feed", map[string]any{
		"suggestions": []map[string]any{{
			"conversation_id": "chat_3",
			"suggestions": []map[string]any{{
				"id": "sugg_1", "action_kind": "ESCALATE", "title": "Escalate", "priority": "LOW", "confidence": 40,
			}},
		}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/feed", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	yamlDoc := `
suggestions:
  - conversation_id: chat_3
    suggestions:
      - id: sugg_5
        action_kind: ESCALATE
        title: Escalate to Support
        priority: HIGH
        confidence: 91
`
	req := httptest.NewRequest(http.MethodPost, "/api/feed", strings.NewReader(yamlDoc))
	req.Header.Set("Content-Type", "application/yaml")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, feed.Result{Suggestions: 1}, decode[feed.Result](t, rec))
}

func TestApplyFeedRejectsOversizedBody(t *testing.T) {
	f := newConsoleFixture(t, "")

	body := `{"conversations":[],"notes":"` + strings.Repeat("x", maxFeedBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/feed", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "too large")
}

func TestMutationsRequireOperatorToken(t *testing.T) {
	f := newConsoleFixture(t, "console-secret")

	rec := f.do(t, http.MethodGet, "/api/suggestions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/conversations/chat_1/suggestions/sugg_2/dismiss", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString([]byte("console-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/chat_1/suggestions/sugg_2/dismiss", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{resolution.ErrRegistryMiss, http.StatusConflict},
		{resolution.ErrInvalidPayload, http.StatusUnprocessableEntity},
		{feed.ErrUnknownConversation, http.StatusUnprocessableEntity},
		{conversations.ErrConversationNotFound, http.StatusNotFound},
		{aggregation.ErrGroupNotFound, http.StatusNotFound},
		{resolution.ErrSuggestionNotResolved, http.StatusNotFound},
		{aggregation.ErrInvalidGroupKey, http.StatusBadRequest},
		{suggestions.ErrDuplicateSuggestion, http.StatusBadRequest},
		{errors.New("redis down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
