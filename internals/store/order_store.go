// Package store holds the in-memory order documents. Persistence proper is
// delegated to the backing platform; this store implements the subset the
// tracking views need: point reads, equality queries and live subscriptions
// that push a full order snapshot on every change.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/feastline/livetrack/internals/domain"
)

var ErrNotFound = errors.New("order not found")

type OrderStore struct {
	mu       sync.RWMutex
	m        map[string]*domain.Order
	watchers map[string]map[int]chan domain.Order
	nextID   int
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		m:        make(map[string]*domain.Order),
		watchers: make(map[string]map[int]chan domain.Order),
	}
}

func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	s.m[o.ID] = o
	s.mu.Unlock()
}

func (s *OrderStore) Get(id string) (domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.m[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// ListByStatus returns all orders currently in the given status.
func (s *OrderStore) ListByStatus(status domain.Phase) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.m {
		if o.Status == status {
			out = append(out, *o)
		}
	}
	return out
}

// UpdateStatus applies a status transition and notifies watchers.
func (s *OrderStore) UpdateStatus(id string, next domain.Phase) error {
	s.mu.Lock()
	o, ok := s.m[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if err := o.TransitionTo(next); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := *o
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// SetCourierPosition records an externally reported courier position.
// When present it supersedes the simulated position for display.
func (s *OrderStore) SetCourierPosition(id string, pos domain.CourierPosition) error {
	s.mu.Lock()
	o, ok := s.m[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	o.Courier = &pos
	o.UpdatedAt = time.Now()
	snap := *o
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Watch subscribes to changes of one order. Every change pushes a full
// snapshot; the channel keeps only the latest unread snapshot. The returned
// cancel func releases the subscription and closes the channel.
func (s *OrderStore) Watch(id string) (<-chan domain.Order, func()) {
	ch := make(chan domain.Order, 1)

	s.mu.Lock()
	s.nextID++
	wid := s.nextID
	if s.watchers[id] == nil {
		s.watchers[id] = make(map[int]chan domain.Order)
	}
	s.watchers[id][wid] = ch
	if o, ok := s.m[id]; ok {
		ch <- *o
	}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		ws := s.watchers[id]
		if c, ok := ws[wid]; ok {
			delete(ws, wid)
			if len(ws) == 0 {
				delete(s.watchers, id)
			}
			close(c)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *OrderStore) notify(snap domain.Order) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers[snap.ID] {
		// Latest-wins: drop the stale buffered snapshot if unread.
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
