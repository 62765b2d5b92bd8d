// Package location models the user's position as a stream:
// subscribe, then zero or more coordinate events, then an optional terminal failure.
package location

import (
	"context"
	"fmt"
	"strings"

	"github.com/turku-citybike/racks/internal/geo"
)

// Failure is the terminal error of a location stream
type Failure string

const (
	NotAuthorized    Failure = "not_authorized"
	LocationDisabled Failure = "location_disabled"
)

func (f Failure) Error() string {
	switch f {
	case NotAuthorized:
		return "location: not authorized"
	case LocationDisabled:
		return "location: services disabled"
	default:
		return "location: " + string(f)
	}
}

// ParseFailure accepts the wire names of failure kinds
func ParseFailure(s string) (Failure, error) {
	switch Failure(strings.ToLower(strings.TrimSpace(s))) {
	case NotAuthorized:
		return NotAuthorized, nil
	case LocationDisabled:
		return LocationDisabled, nil
	default:
		return "", fmt.Errorf("unknown location failure %q", s)
	}
}

// Event is one element of a location stream. An event with a non-empty
// Failure is terminal; the channel is closed right after it.
type Event struct {
	Coordinate *geo.Coordinate
	Failure    Failure
}

// Terminal reports whether the event ends the stream
func (e Event) Terminal() bool {
	return e.Failure != ""
}

// Source delivers location events until ctx is cancelled or a failure ends the stream
type Source interface {
	Subscribe(ctx context.Context) <-chan Event
}
