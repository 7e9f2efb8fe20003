package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/resolution"
	"github.com/wolfman30/agent-console/pkg/logging"
)

// Event types pushed to connected consoles.
const (
	EventHello             = "hello"
	EventMessageAppended   = "message.appended"
	EventSuggestionRemoved = "suggestion.removed"
	EventSelectActive      = "conversation.selected"
	EventPong              = "pong"
)

// Event is one frame sent to a console.
type Event struct {
	Type           string                 `json:"type"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	SuggestionID   string                 `json:"suggestion_id,omitempty"`
	Status         string                 `json:"status,omitempty"`
	Message        *conversations.Message `json:"message,omitempty"`
	ClientID       string                 `json:"client_id,omitempty"`
	At             time.Time              `json:"at"`
}

// inbound is what a console may send.
type inbound struct {
	Type string `json:"type"` // "ping"
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Event
}

// Hub fans live events out to every connected console. It tracks the
// conversation the operator last focused.
type Hub struct {
	logger *logging.Logger
	buffer int

	mu      sync.RWMutex
	clients map[string]*client
	active  string
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger:  logger,
		buffer:  32,
		clients: make(map[string]*client),
	}
}

// HandleWebSocket upgrades the request and streams events until the client leaves.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(h.serve).ServeHTTP(w, r)
}

func (h *Hub) serve(conn *websocket.Conn) {
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan Event, h.buffer)}

	h.mu.Lock()
	h.clients[c.id] = c
	active := h.active
	h.mu.Unlock()

	h.logger.Info("stream: console connected", "client_id", c.id)
	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		close(c.send)
		h.logger.Debug("stream: console disconnected", "client_id", c.id)
	}()

	if err := websocket.JSON.Send(conn, Event{Type: EventHello, ClientID: c.id, ConversationID: active, At: time.Now().UTC()}); err != nil {
		return
	}

	done := make(chan struct{})
	go h.writeLoop(c, done)
	defer close(done)

	for {
		var msg inbound
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			h.enqueue(c, Event{Type: EventPong, At: time.Now().UTC()})
		}
	}
}

func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(c.conn, ev); err != nil {
				h.logger.Debug("stream: send failed", "client_id", c.id, "error", err)
				return
			}
		}
	}
}

// enqueue drops the frame when the client is too slow to keep up.
func (h *Hub) enqueue(c *client, ev Event) {
	select {
	case c.send <- ev:
	default:
		h.logger.Warn("stream: client buffer full, dropping event", "client_id", c.id, "type", ev.Type)
	}
}

// Broadcast sends ev to every connected console.
func (h *Hub) Broadcast(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, ev)
	}
}

// Clients returns the number of connected consoles.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Active returns the conversation last selected through SelectActive.
func (h *Hub) Active() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// MessageAppended implements emitter.Observer.
func (h *Hub) MessageAppended(_ context.Context, conversationID string, msg conversations.Message) {
	h.Broadcast(Event{Type: EventMessageAppended, ConversationID: conversationID, Message: &msg})
}

// SelectActive implements resolution.ViewSwitcher.
func (h *Hub) SelectActive(_ context.Context, conversationID string) {
	h.mu.Lock()
	h.active = conversationID
	h.mu.Unlock()
	h.Broadcast(Event{Type: EventSelectActive, ConversationID: conversationID})
}

// SuggestionRemoved implements resolution.RemovalObserver.
func (h *Hub) SuggestionRemoved(_ context.Context, conversationID, suggestionID string, status resolution.Status) {
	h.Broadcast(Event{Type: EventSuggestionRemoved, ConversationID: conversationID, SuggestionID: suggestionID, Status: string(status)})
}

var (
	_ resolution.ViewSwitcher    = (*Hub)(nil)
	_ resolution.RemovalObserver = (*Hub)(nil)
)
