package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenParser resolves a conversation token to its conversation id.
type TokenParser interface {
	ParseConversationToken(token string) (uuid.UUID, error)
}

// InboundHandler receives frames the widget sends to the server.
type InboundHandler interface {
	HandleClientMessage(conversationID uuid.UUID, data []byte) error
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Hub fans conversation events out to every socket of that conversation.
// Events arrive over Redis pub/sub so any instance can publish them.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*conn
	cancelFuncs map[uuid.UUID]context.CancelFunc
	redisClient *redis.Client
	tokens      TokenParser
	inbound     InboundHandler
	log         logrus.FieldLogger
}

func NewHub(redisClient *redis.Client, tokens TokenParser, inbound InboundHandler, log logrus.FieldLogger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*conn),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		redisClient: redisClient,
		tokens:      tokens,
		inbound:     inbound,
		log:         log,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := h.tokens.ParseConversationToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &conn{ws: ws}
	h.registerConnection(conversationID, c)

	go h.readLoop(conversationID, c)
}

func (h *Hub) readLoop(conversationID uuid.UUID, c *conn) {
	defer h.unregisterConnection(conversationID, c)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if h.inbound == nil {
			continue
		}
		if err := h.inbound.HandleClientMessage(conversationID, data); err != nil {
			h.log.WithError(err).WithField("conversation_id", conversationID).Warn("Dropped client message")
		}
	}
}

func (h *Hub) registerConnection(conversationID uuid.UUID, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conversationID] = append(h.connections[conversationID], c)

	// Start pub/sub subscription if this is the first connection for this conversation
	if len(h.connections[conversationID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[conversationID] = cancel
		go h.subscribeToPubSub(ctx, conversationID)
	}

	h.log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"connections":     len(h.connections[conversationID]),
	}).Info("WebSocket connected")
}

func (h *Hub) unregisterConnection(conversationID uuid.UUID, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.ws.Close()

	conns := h.connections[conversationID]
	for i, existing := range conns {
		if existing == c {
			h.connections[conversationID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[conversationID]) == 0 {
		delete(h.connections, conversationID)
		if cancel, ok := h.cancelFuncs[conversationID]; ok {
			cancel()
			delete(h.cancelFuncs, conversationID)
		}
	}

	h.log.WithField("conversation_id", conversationID).Info("WebSocket disconnected")
}

func (h *Hub) subscribeToPubSub(ctx context.Context, conversationID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, Channel(conversationID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(conversationID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(conversationID uuid.UUID, data []byte) {
	h.mu.RLock()
	conns := append([]*conn(nil), h.connections[conversationID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.log.WithError(err).WithField("conversation_id", conversationID).Debug("WebSocket write failed")
		}
	}
}

// Close drops every socket and subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conns := range h.connections {
		for _, c := range conns {
			c.ws.Close()
		}
		delete(h.connections, id)
	}
	for id, cancel := range h.cancelFuncs {
		cancel()
		delete(h.cancelFuncs, id)
	}
}
