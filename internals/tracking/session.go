package tracking

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/feastline/livetrack/internals/domain"
	"github.com/feastline/livetrack/internals/geo"
)

const (
	// 25 km/h city-traffic assumption, expressed in km per second.
	baseSpeedKmPerSec = 25.0 / 3600
	// Travel time buffer on top of the straight-line estimate.
	travelBuffer = 1.2

	prepSecondsPreparing = 600.0
	prepSecondsReady     = 120.0

	// Chance per tick that the courier is briefly stopped.
	stopChance = 0.05
)

// session holds the closed-over state of one simulated delivery run.
// All mutable fields are touched only by the owning goroutine; stop
// coordination goes through the quit channel and the stopped flag.
type session struct {
	order    domain.TrackedOrder
	onUpdate UpdateFunc

	// Constants for the lifetime of the session.
	totalKm     float64
	durationSec float64
	speedKmh    float64
	heading     float64

	progress float64
	lastTick time.Time

	quit      chan struct{}
	stopOnce  sync.Once
	stopped   atomic.Bool
	deliverMu sync.Mutex
}

func newSession(order domain.TrackedOrder, onUpdate UpdateFunc, start time.Time) *session {
	totalKm := geo.Haversine(*order.Restaurant, *order.Delivery)

	prep := 0.0
	switch order.Status {
	case domain.PhasePreparing:
		prep = prepSecondsPreparing
	case domain.PhaseReady:
		prep = prepSecondsReady
	}
	duration := prep + totalKm/baseSpeedKmPerSec*travelBuffer

	speed := 0.0
	if duration > 0 {
		speed = totalKm / duration * 3600
	}

	return &session{
		order:       order,
		onUpdate:    onUpdate,
		totalKm:     totalKm,
		durationSec: duration,
		speedKmh:    speed,
		heading:     geo.Bearing(*order.Restaurant, *order.Delivery),
		lastTick:    start,
		quit:        make(chan struct{}),
	}
}

// advance moves the simulation forward by the wall-clock time elapsed since
// the previous tick and returns the update for this tick.
func (s *session) advance(now time.Time, rand func() float64) domain.TrackingUpdate {
	dt := now.Sub(s.lastTick).Seconds()
	s.lastTick = now
	if dt < 0 {
		dt = 0
	}

	if s.totalKm == 0 {
		// Restaurant and delivery point coincide, nothing to travel.
		s.progress = 1
	} else {
		s.progress += baseSpeedKmPerSec * trafficMultiplier(s.progress, rand) * dt / s.totalKm
		if s.progress > 1 {
			s.progress = 1
		}
	}

	return s.update(now)
}

func (s *session) update(now time.Time) domain.TrackingUpdate {
	pos := geo.Wobble(geo.Interpolate(*s.order.Restaurant, *s.order.Delivery, s.progress), s.progress)

	remainKm := s.totalKm * (1 - s.progress)
	remainSec := s.durationSec * (1 - s.progress)

	return domain.TrackingUpdate{
		OrderID: s.order.ID,
		Position: domain.CourierPosition{
			LatLng:   pos,
			SpeedKmh: s.speedKmh,
			Heading:  s.heading,
			At:       now,
		},
		ETA:                     now.Add(time.Duration(remainSec * float64(time.Second))),
		DistanceRemainingMeters: remainKm * 1000,
		Phase:                   phaseFor(s.progress),
	}
}

// terminal is the final update of a completed run.
func (s *session) terminal(now time.Time) domain.TrackingUpdate {
	u := s.update(now)
	u.Phase = domain.PhaseDelivered
	u.DistanceRemainingMeters = 0
	return u
}

// deliver invokes the observer unless the session has been stopped.
// Delivery and stop are serialized so that once stop returns, no further
// callback can begin.
func (s *session) deliver(u domain.TrackingUpdate) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.stopped.Load() {
		return false
	}
	s.onUpdate(u)
	return true
}

// stop marks the session dead and waits for any in-flight delivery to finish.
func (s *session) stop() {
	s.stopped.Store(true)
	// Taking deliverMu blocks until an in-flight callback returns.
	s.deliverMu.Lock()
	s.deliverMu.Unlock()
	s.stopOnce.Do(func() { close(s.quit) })
}

// phaseFor derives the delivery phase from route progress. Once the session
// is running, progress is authoritative for the surfaced phase; the
// caller-supplied order status only influences the duration estimate.
func phaseFor(progress float64) domain.Phase {
	switch {
	case progress < 0.10:
		return domain.PhasePreparing
	case progress < 0.15:
		return domain.PhaseReady
	case progress < 0.95:
		return domain.PhaseDelivering
	default:
		return domain.PhaseDelivered
	}
}

// trafficMultiplier scales the base courier speed for one tick. Two mid-route
// bands simulate heavy and moderate traffic; a small chance per tick halts
// the courier entirely.
func trafficMultiplier(progress float64, rand func() float64) float64 {
	if rand() < stopChance {
		return 0
	}
	switch {
	case progress > 0.2 && progress < 0.4:
		return 0.6 + 0.3*rand()
	case progress > 0.6 && progress < 0.7:
		return 0.8 + 0.2*rand()
	default:
		return 0.9 + 0.2*rand()
	}
}
