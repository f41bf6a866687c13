package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/feastline/livetrack/internals/auth"
	"github.com/feastline/livetrack/internals/domain"
	"github.com/feastline/livetrack/internals/geocode"
	"github.com/feastline/livetrack/internals/hub"
	"github.com/feastline/livetrack/internals/notify"
	"github.com/feastline/livetrack/internals/store"
	"github.com/feastline/livetrack/internals/tracking"
)

// Geocoder is the slice of the geocoding client the API layer needs.
// Nil when no API key is configured; orders then require raw coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (domain.LatLng, error)
	Directions(ctx context.Context, origin, dest domain.LatLng) (*geocode.Route, error)
}

// Server wires the order store, the tracking engine and the per-order hubs
// behind the HTTP and websocket surface.
type Server struct {
	log      *slog.Logger
	store    *store.OrderStore
	engine   *tracking.Engine
	hubs     *hub.Registry
	tokens   *auth.Tokens
	notifier *notify.Notifier
	geocoder Geocoder
	tokenTTL time.Duration
}

func NewServer(
	log *slog.Logger,
	st *store.OrderStore,
	engine *tracking.Engine,
	hubs *hub.Registry,
	tokens *auth.Tokens,
	notifier *notify.Notifier,
	geocoder Geocoder,
	tokenTTL time.Duration,
) *Server {
	if tokenTTL <= 0 {
		tokenTTL = 4 * time.Hour
	}
	return &Server{
		log:      log,
		store:    st,
		engine:   engine,
		hubs:     hubs,
		tokens:   tokens,
		notifier: notifier,
		geocoder: geocoder,
		tokenTTL: tokenTTL,
	}
}

// HubNotificationSink broadcasts notifications to the order's websocket
// clients so tracking views can surface them with sound/vibration cues.
func HubNotificationSink(hubs *hub.Registry) notify.SinkFunc {
	return func(_ context.Context, n notify.Notification) error {
		hubs.GetOrCreate(n.OrderID).Broadcast(wsEnvelope{Type: msgNotification, Notification: &n}, nil)
		return nil
	}
}

// trackingObserver is the engine observer for one order: it fans updates out
// to websocket clients, feeds the notifier and finalizes the order document
// on the terminal update.
func (s *Server) trackingObserver(orderID string) tracking.UpdateFunc {
	h := s.hubs.GetOrCreate(orderID)
	return func(u domain.TrackingUpdate) {
		h.SetLastUpdate(u)
		h.Broadcast(wsEnvelope{Type: msgTracking, Tracking: &u}, nil)
		s.notifier.Observe(u)

		if u.Phase == domain.PhaseDelivered && u.DistanceRemainingMeters == 0 {
			err := s.store.UpdateStatus(orderID, domain.PhaseDelivered)
			if err != nil && !errors.Is(err, domain.ErrInvalidStatusTransition) {
				s.log.Error("failed to finalize order", "order_id", orderID, "error", err)
			}
			s.notifier.Forget(orderID)
		}
	}
}
