package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/feastline/livetrack/internals/domain"
)

type recordingSink struct {
	mu    sync.Mutex
	notes []Notification
}

func (s *recordingSink) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	s.notes = append(s.notes, n)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) byKind(k Kind) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, n := range s.notes {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func update(orderID string, remaining time.Duration, phase domain.Phase) domain.TrackingUpdate {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.TrackingUpdate{
		OrderID:  orderID,
		Position: domain.CourierPosition{At: at},
		ETA:      at.Add(remaining),
		Phase:    phase,
	}
}

func TestNearbyFiresOnceWhenETADropsUnderThreshold(t *testing.T) {
	sink := &recordingSink{}
	n := New(testLogger(), sink)

	n.Observe(update("o1", 20*time.Minute, domain.PhaseDelivering))
	if got := sink.byKind(KindNearby); len(got) != 0 {
		t.Fatalf("nearby fired at 20 min out: %v", got)
	}

	n.Observe(update("o1", 4*time.Minute, domain.PhaseDelivering))
	n.Observe(update("o1", 3*time.Minute, domain.PhaseDelivering))
	n.Observe(update("o1", 2*time.Minute, domain.PhaseDelivering))

	if got := sink.byKind(KindNearby); len(got) != 1 {
		t.Fatalf("nearby fired %d times, want 1", len(got))
	}
}

func TestNearbyRequiresPositiveRemaining(t *testing.T) {
	sink := &recordingSink{}
	n := New(testLogger(), sink)

	n.Observe(update("o1", 0, domain.PhaseDelivering))
	if got := sink.byKind(KindNearby); len(got) != 0 {
		t.Fatal("nearby fired with zero remaining time")
	}
}

func TestArrivedFiresOnceOnDelivered(t *testing.T) {
	sink := &recordingSink{}
	n := New(testLogger(), sink)

	n.Observe(update("o1", 10*time.Minute, domain.PhaseDelivering))
	n.Observe(update("o1", 0, domain.PhaseDelivered))
	n.Observe(update("o1", 0, domain.PhaseDelivered))

	got := sink.byKind(KindArrived)
	if len(got) != 1 {
		t.Fatalf("arrived fired %d times, want 1", len(got))
	}
	if got[0].Sound != "arrival" {
		t.Fatalf("arrival sound = %q", got[0].Sound)
	}
}

func TestOrdersTrackedIndependently(t *testing.T) {
	sink := &recordingSink{}
	n := New(testLogger(), sink)

	n.Observe(update("o1", 3*time.Minute, domain.PhaseDelivering))
	n.Observe(update("o2", 3*time.Minute, domain.PhaseDelivering))

	if got := sink.byKind(KindNearby); len(got) != 2 {
		t.Fatalf("nearby fired %d times for two orders, want 2", len(got))
	}
}

func TestForgetResetsState(t *testing.T) {
	sink := &recordingSink{}
	n := New(testLogger(), sink)

	n.Observe(update("o1", 3*time.Minute, domain.PhaseDelivering))
	n.Forget("o1")
	n.Observe(update("o1", 3*time.Minute, domain.PhaseDelivering))

	if got := sink.byKind(KindNearby); len(got) != 2 {
		t.Fatalf("nearby fired %d times after Forget, want 2", len(got))
	}
}

func TestSinkErrorsDoNotStopOtherSinks(t *testing.T) {
	failing := SinkFunc(func(context.Context, Notification) error {
		return errors.New("broker down")
	})
	sink := &recordingSink{}
	n := New(testLogger(), failing, sink)

	n.Observe(update("o1", 3*time.Minute, domain.PhaseDelivering))

	if got := sink.byKind(KindNearby); len(got) != 1 {
		t.Fatalf("second sink got %d notifications, want 1", len(got))
	}
}
