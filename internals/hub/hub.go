package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/feastline/livetrack/internals/auth"
	"github.com/feastline/livetrack/internals/domain"
)

// OrderHub fans tracking updates and order changes out to the websocket
// clients watching a single order.
type OrderHub struct {
	OrderID     string
	mu          sync.RWMutex
	clients     map[*WSClient]struct{}
	lastUpdate  *domain.TrackingUpdate
	lastCourier *domain.CourierPosition
}

func NewHub(orderID string) *OrderHub {

	return &OrderHub{
		OrderID: orderID,
		clients: make(map[*WSClient]struct{}),
	}
}

func (h *OrderHub) AddClient(c *WSClient) {

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *OrderHub) RemoveClient(c *WSClient) {

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *OrderHub) Broadcast(msg any, filter func(*WSClient) bool) {

	b, _ := json.Marshal(msg)

	h.mu.RLock()
	for c := range h.clients {

		if filter == nil || filter(c) {
			c.Send(b)
		}
	}

	h.mu.RUnlock()
}

// SetLastUpdate remembers the most recent simulated tracking update so a
// client connecting mid-run gets the current state immediately.
func (h *OrderHub) SetLastUpdate(u domain.TrackingUpdate) {
	h.mu.Lock()
	h.lastUpdate = &u
	h.mu.Unlock()
}

func (h *OrderHub) LastUpdate() *domain.TrackingUpdate {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastUpdate
}

// SetCourierLoc remembers the last externally reported courier position.
// When set it supersedes the simulated position for display.
func (h *OrderHub) SetCourierLoc(pos domain.CourierPosition) {
	h.mu.Lock()
	h.lastCourier = &pos
	h.mu.Unlock()
}

func (h *OrderHub) CourierLoc() *domain.CourierPosition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastCourier
}

// Registry owns the per-order hubs. It is constructed once by the host
// process and passed to whatever needs fan-out.
type Registry struct {
	mu   sync.Mutex
	hubs map[string]*OrderHub
}

func NewRegistry() *Registry {
	return &Registry{hubs: make(map[string]*OrderHub)}
}

func (r *Registry) GetOrCreate(orderID string) *OrderHub {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hubs[orderID]; ok {
		return h
	}
	h := NewHub(orderID)
	r.hubs[orderID] = h
	return h
}

func (r *Registry) Drop(orderID string) {
	r.mu.Lock()
	delete(r.hubs, orderID)
	r.mu.Unlock()
}

type WSClient struct {
	conn *websocket.Conn
	role auth.Role
	hub  *OrderHub
	mu   sync.Mutex
}

func NewWSClient(conn *websocket.Conn, role auth.Role, h *OrderHub) *WSClient {

	return &WSClient{
		conn: conn,
		role: role,
		hub:  h,
	}
}

func (c *WSClient) Send(b []byte) {

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = c.conn.Write(ctx, websocket.MessageText, b)

}

func (c *WSClient) Role() auth.Role { return c.role }

func (c *WSClient) SendJSON(msg any) {

	b, _ := json.Marshal(msg)
	c.Send(b)
}
