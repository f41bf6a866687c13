// Package tracking simulates a courier run from the restaurant to the
// delivery address and streams position/ETA updates to a registered observer.
// The courier position is synthetic, not GPS-derived.
package tracking

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/feastline/livetrack/internals/domain"
)

// UpdateFunc receives tracking updates. Updates for one order are delivered
// sequentially from that order's session goroutine.
type UpdateFunc func(domain.TrackingUpdate)

// Option configures an Engine.
type Option func(*Engine)

// WithTickInterval overrides the 2 second simulation tick.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithClock overrides the wall clock. Tick deltas are computed from
// consecutive readings, so tests can compress simulated time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand overrides the random source feeding the traffic model.
// The source must return values in [0, 1).
func WithRand(r func() float64) Option {
	return func(e *Engine) { e.rand = r }
}

// Engine owns the set of active tracking sessions, keyed by order id.
// At most one session per order is active at any time.
type Engine struct {
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time
	rand     func() float64

	mu       sync.Mutex
	sessions map[string]*session
}

func New(log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		log:      log,
		interval: 2 * time.Second,
		now:      time.Now,
		rand:     rand.Float64,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartTracking begins a simulation for the order and registers onUpdate as
// its sole observer. An order missing either coordinate is rejected without
// error and no session is created. A session already running for the same
// order id is stopped and replaced.
func (e *Engine) StartTracking(order domain.TrackedOrder, onUpdate UpdateFunc) {
	if order.Restaurant == nil || order.Delivery == nil {
		e.log.Warn("tracking not started, order missing coordinates",
			"order_id", order.ID,
			"has_restaurant", order.Restaurant != nil,
			"has_delivery", order.Delivery != nil,
		)
		return
	}

	s := newSession(order, onUpdate, e.now())

	e.mu.Lock()
	prev := e.sessions[order.ID]
	e.sessions[order.ID] = s
	e.mu.Unlock()

	if prev != nil {
		prev.stop()
	}

	e.log.Info("tracking started",
		"order_id", order.ID,
		"status", string(order.Status),
		"distance_km", s.totalKm,
		"duration_s", s.durationSec,
	)

	go e.run(s)
}

// StopTracking cancels the active session for the order, if any. When it
// returns, the observer will receive no further updates. It must not be
// called from inside the observer callback for the same order.
func (e *Engine) StopTracking(orderID string) {
	e.mu.Lock()
	s, ok := e.sessions[orderID]
	if ok {
		delete(e.sessions, orderID)
	}
	e.mu.Unlock()

	if !ok {
		return
	}
	s.stop()
	e.log.Info("tracking stopped", "order_id", orderID)
}

// IsTracking reports whether a session is currently active for the order.
func (e *Engine) IsTracking(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[orderID]
	return ok
}

// StopAll cancels every active session. Used at shutdown.
func (e *Engine) StopAll() {
	e.mu.Lock()
	stopped := make([]*session, 0, len(e.sessions))
	for id, s := range e.sessions {
		stopped = append(stopped, s)
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	for _, s := range stopped {
		s.stop()
	}
	if len(stopped) > 0 {
		e.log.Info("all tracking stopped", "sessions", len(stopped))
	}
}

func (e *Engine) run(s *session) {
	t := time.NewTicker(e.interval)
	defer t.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-t.C:
			u := s.advance(e.now(), e.rand)
			if !s.deliver(u) {
				return
			}
			if s.progress >= 1 {
				s.deliver(s.terminal(e.now()))
				e.remove(s)
				s.stop()
				e.log.Info("delivery completed", "order_id", s.order.ID)
				return
			}
		}
	}
}

// remove drops the session from the registry unless it was already replaced.
func (e *Engine) remove(s *session) {
	e.mu.Lock()
	if cur, ok := e.sessions[s.order.ID]; ok && cur == s {
		delete(e.sessions, s.order.ID)
	}
	e.mu.Unlock()
}
