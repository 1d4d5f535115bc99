package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"go.uber.org/multierr"

	"github.com/example/signaling-coordinator/modules/coordinator"
)

const shutdownFlushTimeout = 2 * time.Second

// Conn is the write side of a client connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Envelope is the JSON frame exchanged with clients.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client represents a connected websocket client. The connection may only be
// handed back to the transport after Done is closed.
type Client struct {
	ID   string
	conn Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// Close closes the underlying connection once. Pending writes fail fast.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Done is closed when the client's writer has exited and no longer touches
// the connection.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Hub owns the outbound side of every connection. Each client has a bounded
// queue drained by its own writer goroutine, so Dispatch never waits on the
// network.
type Hub struct {
	clients   map[string]*Client // connID -> Client
	queueSize int
	closed    bool
	mu        sync.RWMutex
	writers   sync.WaitGroup
	done      chan struct{}
	logger    types.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Compile-time interface check
var _ coordinator.Dispatcher = (*Hub)(nil)

// NewHub creates a new Hub with per-client queues of queueSize messages.
func NewHub(queueSize int, logger types.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		clients:   make(map[string]*Client),
		queueSize: queueSize,
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, then notifies and closes every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.logger.Info("Hub shutting down", "clients", h.ClientCount())
	if err := h.closeAllClients(); err != nil {
		h.logger.Warn("Errors while closing clients", "error", err)
	}
	close(h.done)
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// Register adds a client and starts its writer.
func (h *Hub) Register(id string, conn Conn) *Client {
	client := &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, h.queueSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		_ = client.Close()
		close(client.done)
		return client
	}
	if old, ok := h.clients[id]; ok {
		close(old.send)
	}
	h.clients[id] = client
	h.writers.Add(1)
	go h.writePump(client)

	h.logger.Debug("Client registered", "connID", id)
	return client
}

// Unregister removes a client and stops its writer after the queue drains.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(client.send)
		h.logger.Debug("Client unregistered", "connID", id)
	}
}

// Dispatch encodes each delivery once and enqueues it for its recipients.
// A full queue drops the message for that recipient only.
func (h *Hub) Dispatch(deliveries []coordinator.Delivery) {
	for _, d := range deliveries {
		data, err := encode(d.Type, d.Payload, d.Error)
		if err != nil {
			h.logger.Error("Failed to encode message", "type", d.Type, "error", err)
			continue
		}
		h.mu.RLock()
		for _, connID := range d.ConnIDs {
			if client, ok := h.clients[connID]; ok {
				h.enqueue(client, d.Type, data)
			}
		}
		h.mu.RUnlock()
	}
}

// SendTo enqueues a single message for one client.
func (h *Hub) SendTo(connID, msgType string, payload any) {
	h.Dispatch([]coordinator.Delivery{{ConnIDs: []string{connID}, Type: msgType, Payload: payload}})
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(client *Client, msgType string, data []byte) {
	select {
	case client.send <- data:
	default:
		h.dropped.Add(1)
		h.logger.Warn("Send queue full, dropping message", "connID", client.ID, "type", msgType)
	}
}

func (h *Hub) writePump(client *Client) {
	defer h.writers.Done()
	defer close(client.done)
	for data := range client.send {
		if client.isClosed() {
			h.dropped.Add(1)
			continue
		}
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("Failed to send to client", "connID", client.ID, "error", err)
			continue
		}
		h.sent.Add(1)
	}
}

// closeAllClients queues a shutdown notice for every client, waits briefly
// for writers to flush and closes the connections.
func (h *Hub) closeAllClients() error {
	notice, err := encode(coordinator.TypeServerShutdown, struct {
		Message string `json:"message"`
	}{Message: "server is shutting down"}, "")
	if err != nil {
		return err
	}

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.closed = true
	for _, client := range clients {
		h.enqueue(client, coordinator.TypeServerShutdown, notice)
		close(client.send)
	}
	h.mu.Unlock()

	flushed := make(chan struct{})
	go func() {
		h.writers.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-time.After(shutdownFlushTimeout):
		h.logger.Warn("Timeout flushing client queues")
	}

	var errs error
	for _, client := range clients {
		errs = multierr.Append(errs, client.Close())
	}
	return errs
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Counters returns the number of messages written and dropped so far.
func (h *Hub) Counters() (sent, dropped uint64) {
	return h.sent.Load(), h.dropped.Load()
}

func encode(msgType string, payload any, errMsg string) ([]byte, error) {
	env := Envelope{Type: msgType, Error: errMsg}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
