package location

import (
	"context"
	"errors"
	"sync"

	"github.com/turku-citybike/racks/internal/geo"
)

// ErrCompleted is returned when sending to a subject that already failed
var ErrCompleted = errors.New("location: stream already completed")

const subscriberBuffer = 8

// Subject is an in-memory location stream that replays its current value
// to new subscribers. Values are pushed with Send, the stream ends with Fail.
type Subject struct {
	mu      sync.Mutex
	current *geo.Coordinate
	failure Failure
	subs    map[int]chan Event
	nextID  int
}

// NewSubject creates a subject with no current value
func NewSubject() *Subject {
	return &Subject{subs: make(map[int]chan Event)}
}

// Subscribe implements Source
func (s *Subject) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	s.mu.Lock()
	if s.failure != "" {
		ch <- Event{Failure: s.failure}
		close(ch)
		s.mu.Unlock()
		return ch
	}
	if s.current != nil {
		c := *s.current
		ch <- Event{Coordinate: &c}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}()

	return ch
}

// Send publishes a new coordinate to all subscribers
func (s *Subject) Send(c geo.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != "" {
		return ErrCompleted
	}
	s.current = &c
	for _, sub := range s.subs {
		v := c
		offer(sub, Event{Coordinate: &v})
	}
	return nil
}

// Fail ends the stream for every subscriber
func (s *Subject) Fail(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != "" {
		return
	}
	s.failure = f
	s.current = nil
	for id, sub := range s.subs {
		offer(sub, Event{Failure: f})
		close(sub)
		delete(s.subs, id)
	}
}

// Reset clears a terminal failure so that new subscriptions work again
func (s *Subject) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = ""
}

// Current returns the last coordinate sent, if any
func (s *Subject) Current() (geo.Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return geo.Coordinate{}, false
	}
	return *s.current, true
}

// Failed reports the terminal failure, if any
func (s *Subject) Failed() Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// offer delivers ev without blocking. A slow subscriber loses its oldest
// pending event; only the latest position matters.
func offer(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
