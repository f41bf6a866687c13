package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/feastline/livetrack/internals/auth"
	"github.com/feastline/livetrack/internals/domain"
	"github.com/feastline/livetrack/internals/hub"
	"github.com/feastline/livetrack/internals/notify"
)

const (
	msgOrder        = "order"
	msgTracking     = "tracking"
	msgCourierLoc   = "courier_loc"
	msgNotification = "notification"
)

// wsEnvelope is the single message shape on the tracking websocket.
type wsEnvelope struct {
	Type         string                  `json:"type"`
	Order        *domain.Order           `json:"order,omitempty"`
	Tracking     *domain.TrackingUpdate  `json:"tracking,omitempty"`
	Courier      *domain.CourierPosition `json:"courier,omitempty"`
	Notification *notify.Notification    `json:"notification,omitempty"`
}

func (s *Server) handleWS(c *gin.Context) {
	// Accept JWT from Authorization header OR from `?token=` for browser clients
	claims, err := s.tokens.ParseFromRequest(c.Request)
	if err != nil {
		if tok := c.Query("token"); tok != "" {
			claims, err = s.tokens.Parse(tok)
		}
	}
	if err != nil {
		c.String(401, "unauthorized")
		return
	}

	// Order ID (supports wildcard route /ws/*orderID)
	orderID := strings.TrimPrefix(c.Param("orderID"), "/")
	if orderID == "" || orderID != claims.OrderID {
		c.String(403, "order mismatch")
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true}) // TODO: use OriginPatterns in prod
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(1 << 20)

	h := s.hubs.GetOrCreate(orderID)
	client := hub.NewWSClient(conn, claims.Role, h)
	h.AddClient(client)
	defer h.RemoveClient(client)

	// On connect, push the current state: the order document, the last
	// simulated update and any real courier position.
	if o, ok := s.store.Get(orderID); ok {
		client.SendJSON(wsEnvelope{Type: msgOrder, Order: &o})
	}
	if u := h.LastUpdate(); u != nil {
		client.SendJSON(wsEnvelope{Type: msgTracking, Tracking: u})
	}
	if pos := h.CourierLoc(); pos != nil {
		client.SendJSON(wsEnvelope{Type: msgCourierLoc, Courier: pos})
	}

	done := make(chan struct{})
	defer close(done)

	// Pipe live order-document snapshots (status changes, courier position
	// persisted by the store) to this client.
	snapshots, cancelWatch := s.store.Watch(orderID)
	defer cancelWatch()
	go func() {
		for {
			select {
			case <-done:
				return
			case o, ok := <-snapshots:
				if !ok {
					return
				}
				client.SendJSON(wsEnvelope{Type: msgOrder, Order: &o})
			}
		}
	}()

	// Keepalive pings
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = conn.Ping(ctx)
				cancel()
			}
		}
	}()

	// Read loop: couriers may stream real positions; everyone else only listens.
	for {
		mt, data, err := conn.Read(context.Background())
		if err != nil {
			break
		}
		if mt != websocket.MessageText {
			continue
		}
		var m struct {
			Type string `json:"type"`
			courierLocMsg
		}
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		if m.Type != msgCourierLoc || claims.Role != auth.RoleCourier {
			continue
		}
		pos := domain.CourierPosition{
			LatLng:   domain.LatLng{Lat: m.Lat, Lng: m.Lng},
			SpeedKmh: m.Speed,
			Heading:  m.Heading,
			At:       tsOrNow(m.AtMs),
		}
		if !pos.Valid() {
			continue
		}
		s.applyCourierLoc(orderID, pos)
	}
}
