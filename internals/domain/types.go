package domain

import (
	"errors"
	"math"
	"time"
)

// LatLng is a geographic coordinate in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) Valid() bool {

	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) && p.Lat <= 90 && p.Lat >= -90 && p.Lng <= 180 && p.Lng >= -180

}

// Phase is the delivery phase of an order. The tracking engine only ever
// emits the first four; cancellation is set externally on the order document.
type Phase string

const (
	PhasePreparing  Phase = "preparing"
	PhaseReady      Phase = "ready"
	PhaseDelivering Phase = "delivering"
	PhaseDelivered  Phase = "delivered"
	PhaseCancelled  Phase = "cancelled"
)

// CourierPosition is one emitted courier location sample.
type CourierPosition struct {
	LatLng
	SpeedKmh float64   `json:"speed_kmh"`
	Heading  float64   `json:"heading"`
	At       time.Time `json:"at"`
}

// TrackedOrder is the immutable input to one tracking session.
type TrackedOrder struct {
	ID         string
	Restaurant *LatLng
	Delivery   *LatLng
	Status     Phase
}

// TrackingUpdate is emitted by the tracking engine once per tick.
// Remaining distance is in meters; the engine works in kilometers internally.
type TrackingUpdate struct {
	OrderID                 string          `json:"order_id"`
	Position                CourierPosition `json:"position"`
	ETA                     time.Time       `json:"eta"`
	DistanceRemainingMeters float64         `json:"distance_remaining_m"`
	Phase                   Phase           `json:"phase"`
}

// Order is the order document shared by the store, the API and the
// tracking views.
type Order struct {
	ID                string           `json:"id"`
	CustomerName      string           `json:"customer_name"`
	RestaurantAddress string           `json:"restaurant_address,omitempty"`
	DeliveryAddress   string           `json:"delivery_address,omitempty"`
	RestaurantLoc     *LatLng          `json:"restaurant_loc,omitempty"`
	DeliveryLoc       *LatLng          `json:"delivery_loc,omitempty"`
	Status            Phase            `json:"status"`
	Courier           *CourierPosition `json:"courier,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

var ErrInvalidStatusTransition = errors.New("invalid status transition")

// CanTransitionTo reports whether the order status may move to next.
// Delivery phases are strictly forward-only; cancellation is allowed from
// any non-terminal status.
func (o *Order) CanTransitionTo(next Phase) bool {
	valid := map[Phase][]Phase{
		PhasePreparing:  {PhaseReady, PhaseDelivering, PhaseCancelled},
		PhaseReady:      {PhaseDelivering, PhaseCancelled},
		PhaseDelivering: {PhaseDelivered, PhaseCancelled},
		PhaseDelivered:  {},
		PhaseCancelled:  {},
	}

	for _, s := range valid[o.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// TransitionTo applies a status transition, updating the timestamp.
func (o *Order) TransitionTo(next Phase) error {
	if !o.CanTransitionTo(next) {
		return ErrInvalidStatusTransition
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	return nil
}
