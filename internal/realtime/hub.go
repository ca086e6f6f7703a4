package realtime

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Events receives the lifecycle and inbound messages of clients. Calls come
// from the client's read goroutine.
type Events interface {
	Connected(c *Client)
	Disconnected(c *Client)
	Message(c *Client, msg WSMessage)
}

// Envelope is an event travelling between instances. An empty User means
// every client of the scene.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	User  string          `json:"user,omitempty"`
	At    int64           `json:"at"`
}

// Bridge carries events to the other instances of the scene.
type Bridge interface {
	Publish(env Envelope) error
	Subscribe(fn func(Envelope)) (cancel func(), err error)
}

// Hub maintains the WebSocket connections of one scene.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
	bridge  Bridge
	events  Events
	unsub   func()
}

// NewHub creates a hub. bridge may be nil for a single instance.
func NewHub(logger *zap.Logger, bridge Bridge) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		bridge:  bridge,
	}
}

// SetEvents installs the client event handler. Must be called before the
// first connection.
func (h *Hub) SetEvents(e Events) {
	h.mu.Lock()
	h.events = e
	h.mu.Unlock()
}

// Start subscribes to events from other instances.
func (h *Hub) Start() error {
	if h.bridge == nil {
		return nil
	}
	cancel, err := h.bridge.Subscribe(h.deliver)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.unsub = cancel
	h.mu.Unlock()
	return nil
}

// Stop ends the bridge subscription.
func (h *Hub) Stop() {
	h.mu.Lock()
	unsub := h.unsub
	h.unsub = nil
	h.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Register adds a client to the scene.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	events := h.events
	h.mu.Unlock()
	h.logger.Debug("client joined scene", zap.String("client_id", c.ID), zap.String("user", c.User))
	if events != nil {
		events.Connected(c)
	}
}

// Unregister removes a client from the scene.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	events := h.events
	h.mu.Unlock()
	if !ok {
		return
	}
	h.logger.Debug("client left scene", zap.String("client_id", c.ID), zap.String("user", c.User))
	if events != nil {
		events.Disconnected(c)
	}
}

func (h *Hub) message(c *Client, msg WSMessage) {
	h.mu.RLock()
	events := h.events
	h.mu.RUnlock()
	if events != nil {
		events.Message(c, msg)
	}
}

// Broadcast sends an event to every local client.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.send(WSMessage{Event: event, Data: data}, "")
}

// SendToUser sends an event to every connection of user on any instance.
// With a bridge the event goes through it only, so the subscriber delivers it
// once everywhere including here.
func (h *Hub) SendToUser(user, event string, payload any) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	if h.bridge != nil {
		err := h.bridge.Publish(Envelope{Event: event, Data: data, User: user, At: time.Now().UnixMilli()})
		if err == nil {
			return
		}
		h.logger.Warn("bridge publish failed, delivering locally", zap.String("event", event), zap.Error(err))
	}
	h.send(WSMessage{Event: event, Data: data}, user)
}

func (h *Hub) deliver(env Envelope) {
	h.send(WSMessage{Event: env.Event, Data: env.Data}, env.User)
}

// send delivers msg to local clients, all of them when user is empty.
func (h *Hub) send(msg WSMessage, user string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if user != "" && !c.Is(user) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client buffer full, dropping event", zap.String("client_id", c.ID), zap.String("event", msg.Event))
		}
	}
}

// Count returns the number of local connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Users returns the distinct users connected locally, sorted.
func (h *Hub) Users() []string {
	h.mu.RLock()
	users := make([]string, 0, len(h.clients))
	for _, c := range h.clients {
		users = append(users, c.User)
	}
	h.mu.RUnlock()
	slices.Sort(users)
	return slices.Compact(users)
}

func encode(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
