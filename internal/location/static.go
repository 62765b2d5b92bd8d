package location

import (
	"context"

	"github.com/turku-citybike/racks/internal/geo"
)

// Static is a source with a fixed position. Without a coordinate it
// behaves like a device with location services turned off.
type Static struct {
	coordinate *geo.Coordinate
}

// NewStatic creates a static source; c may be nil
func NewStatic(c *geo.Coordinate) *Static {
	if c != nil {
		v := *c
		c = &v
	}
	return &Static{coordinate: c}
}

// Subscribe implements Source
func (s *Static) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 1)
	if s.coordinate == nil {
		ch <- Event{Failure: LocationDisabled}
		close(ch)
		return ch
	}

	c := *s.coordinate
	ch <- Event{Coordinate: &c}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}
