// Package notify derives one-shot notifications from the tracking stream:
// "courier nearby" when the ETA first drops under five minutes and
// "order arrived" when the delivery completes.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/feastline/livetrack/internals/domain"
)

type Kind string

const (
	KindNearby  Kind = "courier_nearby"
	KindArrived Kind = "order_arrived"
)

// Notification is the payload handed to every sink. Sound and vibration are
// hints for clients that support audio cues and the vibration API.
type Notification struct {
	OrderID string    `json:"order_id"`
	Kind    Kind      `json:"kind"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Sound   string    `json:"sound,omitempty"`
	Vibrate []int     `json:"vibrate,omitempty"`
	At      time.Time `json:"at"`
}

// Sink delivers a notification somewhere. Sink errors are logged, never fatal.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

const nearbyThreshold = 5 * time.Minute

type firedState struct {
	nearby  bool
	arrived bool
}

// Notifier tracks per-order one-shot state. Safe for concurrent use.
type Notifier struct {
	log   *slog.Logger
	sinks []Sink

	mu    sync.Mutex
	fired map[string]*firedState
}

func New(log *slog.Logger, sinks ...Sink) *Notifier {
	return &Notifier{
		log:   log,
		sinks: sinks,
		fired: make(map[string]*firedState),
	}
}

// Observe inspects one tracking update and fires any notification whose
// condition first became true. Each kind fires at most once per order.
func (n *Notifier) Observe(u domain.TrackingUpdate) {
	remaining := u.ETA.Sub(u.Position.At)

	n.mu.Lock()
	st := n.fired[u.OrderID]
	if st == nil {
		st = &firedState{}
		n.fired[u.OrderID] = st
	}

	var out []Notification
	if !st.nearby && remaining > 0 && remaining <= nearbyThreshold {
		st.nearby = true
		out = append(out, Notification{
			OrderID: u.OrderID,
			Kind:    KindNearby,
			Title:   "Your courier is nearby",
			Body:    "Your order arrives in about 5 minutes.",
			Sound:   "nearby",
			Vibrate: []int{200, 100, 200},
			At:      u.Position.At,
		})
	}
	if !st.arrived && u.Phase == domain.PhaseDelivered {
		st.arrived = true
		out = append(out, Notification{
			OrderID: u.OrderID,
			Kind:    KindArrived,
			Title:   "Order delivered",
			Body:    "Enjoy your meal!",
			Sound:   "arrival",
			Vibrate: []int{400},
			At:      u.Position.At,
		})
	}
	n.mu.Unlock()

	for _, note := range out {
		n.send(note)
	}
}

// Forget drops the one-shot state for an order once it is finished.
func (n *Notifier) Forget(orderID string) {
	n.mu.Lock()
	delete(n.fired, orderID)
	n.mu.Unlock()
}

func (n *Notifier) send(note Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, sink := range n.sinks {
		if err := sink.Notify(ctx, note); err != nil {
			n.log.Error("notification sink failed",
				"order_id", note.OrderID,
				"kind", string(note.Kind),
				"error", err,
			)
		}
	}
	n.log.Info("notification sent", "order_id", note.OrderID, "kind", string(note.Kind))
}
