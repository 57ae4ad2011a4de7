package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"membership-registry/internal/domain"
	"membership-registry/internal/observability"
	"membership-registry/internal/rpc"
)

// HubConfig configures WebSocket connection handling.
type HubConfig struct {
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a connection may stay silent (no pong or message).
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing one message.
	WriteTimeout time.Duration
	// SendBuffer is the number of queued messages per connection. A connection
	// whose queue is full is dropped.
	SendBuffer int
	// CheckOrigin is passed to the upgrader. Nil allows same-origin only.
	CheckOrigin func(r *http.Request) bool
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   256,
	}
}

// Hub serves membership event subscriptions over WebSocket and implements
// runtime.EventPublisher.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
	conns  map[*wsConn]struct{}
	closed bool
}

type subscription struct {
	id     uint64
	conn   *wsConn
	filter rpc.SubscribeFilter
}

type wsConn struct {
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// enqueue queues msg for writing. Returns false if the queue is full or the
// connection is closed.
func (c *wsConn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// NewHub creates a new Hub.
func NewHub(config HubConfig, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultHubConfig().SendBuffer
	}
	return &Hub{
		config:   config,
		upgrader: websocket.Upgrader{CheckOrigin: config.CheckOrigin},
		logger:   logger,
		subs:     make(map[uint64]*subscription),
		conns:    make(map[*wsConn]struct{}),
	}
}

// ServeHTTP upgrades the request and serves subscriptions until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws upgrade: %v", err)
		return
	}

	conn := &wsConn{
		ws:   ws,
		send: make(chan []byte, h.config.SendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ws.Close()
		return
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(conn)
	h.readLoop(conn)
}

// Publish pushes events to every matching subscription.
func (h *Hub) Publish(events []*domain.MembershipEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*wsConn
	for _, ev := range events {
		for _, sub := range h.subs {
			if !sub.filter.Matches(ev) {
				continue
			}
			msg, err := notification(sub.id, ev)
			if err != nil {
				h.logger.Printf("encode notification: %v", err)
				continue
			}
			if !sub.conn.enqueue(msg) {
				slow = append(slow, sub.conn)
				continue
			}
			observability.RecordWSMessageSent()
		}
	}

	for _, conn := range slow {
		h.dropLocked(conn)
	}
}

// Subscriptions returns the number of active subscriptions.
func (h *Hub) Subscriptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every client. The hub rejects new connections afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.conns {
		h.dropLocked(conn)
	}
}

func notification(subID uint64, ev *domain.MembershipEvent) ([]byte, error) {
	result, err := json.Marshal(rpc.EventNotification{
		Context: rpc.Context{Slot: ev.Slot},
		Value:   ev,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(rpc.Notification{
		JSONRPC: rpc.Version,
		Method:  rpc.MethodMembershipNotification,
		Params:  rpc.NotificationParams{Subscription: subID, Result: result},
	})
}

func (h *Hub) readLoop(conn *wsConn) {
	defer h.drop(conn)

	if h.config.ReadTimeout > 0 {
		conn.ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		conn.ws.SetPongHandler(func(string) error {
			return conn.ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		})
	}

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Printf("ws read: %v", err)
			}
			return
		}
		if h.config.ReadTimeout > 0 {
			conn.ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		}

		resp := h.handleMessage(conn, data)
		msg, err := json.Marshal(resp)
		if err != nil {
			h.logger.Printf("encode ws response: %v", err)
			continue
		}
		if !conn.enqueue(msg) {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *wsConn) {
	var ping <-chan time.Time
	if h.config.PingInterval > 0 {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-conn.done:
			return
		case msg := <-conn.send:
			h.setWriteDeadline(conn)
			if err := conn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.drop(conn)
				return
			}
		case <-ping:
			h.setWriteDeadline(conn)
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(conn)
				return
			}
		}
	}
}

func (h *Hub) setWriteDeadline(conn *wsConn) {
	if h.config.WriteTimeout > 0 {
		conn.ws.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	}
}

func (h *Hub) handleMessage(conn *wsConn, data []byte) rpc.Response {
	var req rpc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse(nil, rpc.NewError(rpc.CodeParseError, "parse request: %v", err))
	}
	if req.JSONRPC != rpc.Version {
		return errorResponse(req.ID, rpc.NewError(rpc.CodeInvalidRequest, "invalid request"))
	}

	var result any
	switch req.Method {
	case rpc.MethodMembershipSubscribe:
		var filter rpc.SubscribeFilter
		if err := decodeParams(req.Params, 0, &filter); err != nil {
			return errorResponse(req.ID, rpc.FromError(err))
		}
		id, ok := h.subscribe(conn, filter)
		if !ok {
			return errorResponse(req.ID, rpc.NewError(rpc.CodeInternalError, "connection closed"))
		}
		result = id
	case rpc.MethodMembershipUnsubscribe:
		var id uint64
		if err := decodeParams(req.Params, 1, &id); err != nil {
			return errorResponse(req.ID, rpc.FromError(err))
		}
		result = h.unsubscribe(conn, id)
	default:
		return errorResponse(req.ID, rpc.NewError(rpc.CodeMethodNotFound, "method not found: %s", req.Method))
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, rpc.NewError(rpc.CodeInternalError, "marshal result: %v", err))
	}
	return rpc.Response{JSONRPC: rpc.Version, ID: nullID(req.ID), Result: raw}
}

func errorResponse(id json.RawMessage, rpcErr *rpc.Error) rpc.Response {
	return rpc.Response{JSONRPC: rpc.Version, ID: nullID(id), Error: rpcErr}
}

// subscribe registers a subscription for conn. It fails once conn has been
// dropped, so a request racing a disconnect cannot leave an orphan behind.
func (h *Hub) subscribe(conn *wsConn, filter rpc.SubscribeFilter) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn]; !ok {
		return 0, false
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = &subscription{id: id, conn: conn, filter: filter}
	observability.UpdateWSSubscriptions(len(h.subs))
	return id, true
}

// unsubscribe removes a subscription owned by conn.
func (h *Hub) unsubscribe(conn *wsConn, id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok || sub.conn != conn {
		return false
	}
	delete(h.subs, id)
	observability.UpdateWSSubscriptions(len(h.subs))
	return true
}

func (h *Hub) drop(conn *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(conn)
}

func (h *Hub) dropLocked(conn *wsConn) {
	if _, ok := h.conns[conn]; !ok {
		return
	}
	delete(h.conns, conn)
	for id, sub := range h.subs {
		if sub.conn == conn {
			delete(h.subs, id)
		}
	}
	observability.UpdateWSSubscriptions(len(h.subs))
	conn.close()
}
