package emitter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/ids"
)

type recordingObserver struct {
	mu   sync.Mutex
	seen []conversations.Message
}

func (o *recordingObserver) MessageAppended(_ context.Context, _ string, msg conversations.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, msg)
}

func newRegistry(t *testing.T) *conversations.InMemoryRegistry {
	t.Helper()
	reg := conversations.NewInMemoryRegistry()
	require.NoError(t, reg.Upsert(context.Background(), conversations.Conversation{
		ID:      "chat_1",
		Contact: conversations.Contact{ID: "c1", Name: "Zoya Sayed"},
	}))
	return reg
}

func TestEmitAppendsWithClockTimestamp(t *testing.T) {
	reg := newRegistry(t)
	fixed := time.Date(2024, 5, 3, 16, 5, 0, 0, time.UTC)
	obs := &recordingObserver{}
	em := New(reg, ids.MustGenerator(1), nil).
		WithClock(func() time.Time { return fixed }).
		WithObserver(obs)

	msg, err := em.System(context.Background(), "chat_1", "Scheduled Call for Tomorrow at 16:00",
		conversations.MessageTypeScheduledCall, map[string]string{"date": "Tomorrow", "time": "16:00", "note": ""})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, conversations.SenderSystem, msg.Sender)
	assert.Equal(t, "04:05 PM", msg.Timestamp)
	assert.Equal(t, fixed, msg.CreatedAt)
	assert.Equal(t, map[string]string{"date": "Tomorrow", "time": "16:00"}, msg.Payload)

	timeline, err := reg.Messages(context.Background(), "chat_1")
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, msg.ID, timeline[0].ID)

	require.Len(t, obs.seen, 1)
	assert.Equal(t, msg.ID, obs.seen[0].ID)
}

func TestOperatorMessage(t *testing.T) {
	reg := newRegistry(t)
	em := New(reg, ids.MustGenerator(1), nil).WithLayout("15:04")

	msg, err := em.Operator(context.Background(), "chat_1", "Happy to help!")
	require.NoError(t, err)
	assert.Equal(t, conversations.SenderOperator, msg.Sender)
	assert.Equal(t, conversations.MessageTypeText, msg.Type)
	assert.Nil(t, msg.Payload)
	assert.Len(t, msg.Timestamp, len("15:04"))
}

func TestEmitUnknownConversation(t *testing.T) {
	reg := newRegistry(t)
	obs := &recordingObserver{}
	em := New(reg, ids.MustGenerator(1), nil).WithObserver(obs)

	_, err := em.Operator(context.Background(), "chat_404", "hello")
	assert.ErrorIs(t, err, conversations.ErrConversationNotFound)
	assert.Empty(t, obs.seen)
}

func TestRapidFireIDsAreUnique(t *testing.T) {
	reg := newRegistry(t)
	em := New(reg, ids.MustGenerator(1), nil)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		msg, err := em.Operator(ctx, "chat_1", "ping")
		require.NoError(t, err)
		_, dup := seen[msg.ID]
		require.False(t, dup, "duplicate id %s", msg.ID)
		seen[msg.ID] = struct{}{}
	}
}
