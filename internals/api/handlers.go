package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feastline/livetrack/internals/auth"
	"github.com/feastline/livetrack/internals/domain"
)

type createOrderReq struct {
	CustomerName      string         `json:"customer_name"`
	RestaurantAddress string         `json:"restaurant_address,omitempty"`
	DeliveryAddress   string         `json:"delivery_address,omitempty"`
	RestaurantLoc     *domain.LatLng `json:"restaurant_loc,omitempty"`
	DeliveryLoc       *domain.LatLng `json:"delivery_loc,omitempty"`
	Status            domain.Phase   `json:"status,omitempty"`
}

type createOrderResp struct {
	OrderID         string `json:"order_id"`
	CustomerToken   string `json:"customer_token"`
	RestaurantToken string `json:"restaurant_token"`
	CourierToken    string `json:"courier_token"`
	WSURL           string `json:"ws_url"`
}

// resolveLoc prefers raw coordinates and falls back to geocoding the address.
func (s *Server) resolveLoc(c *gin.Context, loc *domain.LatLng, address string) (*domain.LatLng, bool) {
	if loc != nil {
		if !loc.Valid() {
			c.String(http.StatusBadRequest, "bad coords")
			return nil, false
		}
		return loc, true
	}
	if address == "" {
		return nil, true
	}
	if s.geocoder == nil {
		c.String(http.StatusBadRequest, "geocoding disabled, coordinates required")
		return nil, false
	}
	p, err := s.geocoder.Geocode(c.Request.Context(), address)
	if err != nil {
		s.log.Error("geocoding failed", "address", address, "error", err)
		c.String(http.StatusBadGateway, "geocoding failed")
		return nil, false
	}
	return &p, true
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "bad json")
		return
	}
	if req.CustomerName == "" {
		c.String(http.StatusBadRequest, "customer_name required")
		return
	}

	status := req.Status
	if status == "" {
		status = domain.PhasePreparing
	}
	switch status {
	case domain.PhasePreparing, domain.PhaseReady, domain.PhaseDelivering:
	default:
		c.String(http.StatusBadRequest, "invalid initial status")
		return
	}

	restaurantLoc, ok := s.resolveLoc(c, req.RestaurantLoc, req.RestaurantAddress)
	if !ok {
		return
	}
	deliveryLoc, ok := s.resolveLoc(c, req.DeliveryLoc, req.DeliveryAddress)
	if !ok {
		return
	}

	id := uuid.NewString()
	now := time.Now()
	order := &domain.Order{
		ID:                id,
		CustomerName:      req.CustomerName,
		RestaurantAddress: req.RestaurantAddress,
		DeliveryAddress:   req.DeliveryAddress,
		RestaurantLoc:     restaurantLoc,
		DeliveryLoc:       deliveryLoc,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.store.Create(order)

	// Missing coordinates are rejected by the engine without error; the
	// order still exists and tracking can begin later via a status update.
	s.engine.StartTracking(domain.TrackedOrder{
		ID:         id,
		Restaurant: restaurantLoc,
		Delivery:   deliveryLoc,
		Status:     status,
	}, s.trackingObserver(id))

	custTok, _ := s.tokens.Make(id, auth.RoleCustomer, s.tokenTTL)
	restTok, _ := s.tokens.Make(id, auth.RoleRestaurant, s.tokenTTL)
	courTok, _ := s.tokens.Make(id, auth.RoleCourier, s.tokenTTL)

	c.JSON(http.StatusOK, createOrderResp{
		OrderID:         id,
		CustomerToken:   custTok,
		RestaurantToken: restTok,
		CourierToken:    courTok,
		WSURL:           "ws://" + c.Request.Host + "/v1/ws/" + id,
	})
}

// authorize parses the bearer token and checks it matches the order in the path.
func (s *Server) authorize(c *gin.Context) (*auth.Claims, bool) {
	claims, err := s.tokens.ParseFromRequest(c.Request)
	if err != nil {
		c.String(http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	if c.Param("orderID") != claims.OrderID {
		c.String(http.StatusForbidden, "order mismatch")
		return nil, false
	}
	return claims, true
}

func (s *Server) handleGetOrder(c *gin.Context) {
	if _, ok := s.authorize(c); !ok {
		return
	}
	if o, ok := s.store.Get(c.Param("orderID")); ok {
		c.JSON(http.StatusOK, o)
		return
	}
	c.Status(http.StatusNotFound)
}

type statusReq struct {
	Status domain.Phase `json:"status"`
}

// Restaurant advances the order status. Cancellation stops the simulation;
// a cancelled order is only ever expressed on the order document, the
// engine never emits it.
func (s *Server) handlePostStatus(c *gin.Context) {
	claims, ok := s.authorize(c)
	if !ok {
		return
	}
	if claims.Role != auth.RoleRestaurant {
		c.String(http.StatusForbidden, "restaurant role required")
		return
	}

	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "bad json")
		return
	}

	id := c.Param("orderID")
	if err := s.store.UpdateStatus(id, req.Status); err != nil {
		c.String(http.StatusConflict, err.Error())
		return
	}

	if req.Status == domain.PhaseCancelled {
		s.engine.StopTracking(id)
		s.notifier.Forget(id)
	}
	c.Status(http.StatusNoContent)
}

type courierLocMsg struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Speed   float64 `json:"speed,omitempty"`
	Heading float64 `json:"heading,omitempty"`
	AtMs    int64   `json:"at_ms,omitempty"`
}

func tsOrNow(ms int64) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Now()
}

// Courier posts a real position (REST fallback for the websocket path).
// An externally reported position supersedes the simulated one for display.
func (s *Server) handlePostCourierLoc(c *gin.Context) {
	claims, ok := s.authorize(c)
	if !ok {
		return
	}
	if claims.Role != auth.RoleCourier {
		c.String(http.StatusForbidden, "courier role required")
		return
	}

	var m courierLocMsg
	if err := c.ShouldBindJSON(&m); err != nil {
		c.String(http.StatusBadRequest, "bad json")
		return
	}

	pos := domain.CourierPosition{
		LatLng:   domain.LatLng{Lat: m.Lat, Lng: m.Lng},
		SpeedKmh: m.Speed,
		Heading:  m.Heading,
		At:       tsOrNow(m.AtMs),
	}
	if !pos.Valid() {
		c.String(http.StatusBadRequest, "bad coords")
		return
	}

	id := c.Param("orderID")
	if !s.applyCourierLoc(id, pos) {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) applyCourierLoc(orderID string, pos domain.CourierPosition) bool {
	if err := s.store.SetCourierPosition(orderID, pos); err != nil {
		return false
	}
	h := s.hubs.GetOrCreate(orderID)
	h.SetCourierLoc(pos)
	h.Broadcast(wsEnvelope{Type: msgCourierLoc, Courier: &pos}, nil)
	return true
}

// handleGetRoute returns the driving polyline for map display. The route is
// purely visual and independent of the simulated courier position.
func (s *Server) handleGetRoute(c *gin.Context) {
	if _, ok := s.authorize(c); !ok {
		return
	}
	o, ok := s.store.Get(c.Param("orderID"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	if o.RestaurantLoc == nil || o.DeliveryLoc == nil {
		c.String(http.StatusConflict, "order has no coordinates")
		return
	}
	if s.geocoder == nil {
		c.String(http.StatusServiceUnavailable, "routing disabled")
		return
	}

	route, err := s.geocoder.Directions(c.Request.Context(), *o.RestaurantLoc, *o.DeliveryLoc)
	if err != nil {
		s.log.Error("directions failed", "order_id", o.ID, "error", err)
		c.String(http.StatusBadGateway, "routing failed")
		return
	}
	c.JSON(http.StatusOK, route)
}
