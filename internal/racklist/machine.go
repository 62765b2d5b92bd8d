package racklist

import (
	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/geo"
	"github.com/turku-citybike/racks/internal/location"
)

// Machine is the list state machine. It is not safe for concurrent use;
// the Controller drives it from a single goroutine.
type Machine struct {
	state           State
	issued          uint64
	coordinate      *geo.Coordinate
	locationFailure location.Failure
}

// NewMachine starts in Uninitialized
func NewMachine() *Machine {
	return &Machine{state: Uninitialized{}}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Coordinate returns the latest known user position, retained across states
func (m *Machine) Coordinate() *geo.Coordinate {
	if m.coordinate == nil {
		return nil
	}
	c := *m.coordinate
	return &c
}

// LocationFailure returns the failure that ended the location stream, if any
func (m *Machine) LocationFailure() location.Failure {
	return m.locationFailure
}

// Items derives the ordered list for the current state
func (m *Machine) Items() []Item {
	return Derive(m.state)
}

// BeginFetch moves to Loading and returns the sequence number of the new
// fetch. Every fetch issued earlier is superseded.
func (m *Machine) BeginFetch() uint64 {
	m.issued++
	m.state = Loading{}
	return m.issued
}

// Latest returns the sequence number of the most recently issued fetch
func (m *Machine) Latest() uint64 {
	return m.issued
}

// CompleteFetch applies the result of fetch seq. Results of superseded
// fetches are ignored and false is returned.
func (m *Machine) CompleteFetch(seq uint64, dir *citybike.Directory, err error) bool {
	if seq != m.issued {
		return false
	}
	if _, loading := m.state.(Loading); !loading {
		// already applied
		return false
	}

	if err != nil {
		m.state = Failed{Err: err}
		return true
	}
	m.state = Loaded{Directory: dir, Coordinate: m.Coordinate()}
	return true
}

// UpdateCoordinate records the user position. A loaded list is re-ordered;
// in any other state the position is kept for the next successful fetch.
// Reapplying the current position reports no change.
func (m *Machine) UpdateCoordinate(c geo.Coordinate) bool {
	if m.coordinate != nil && *m.coordinate == c && m.locationFailure == "" {
		return false
	}
	m.coordinate = &c
	m.locationFailure = ""

	if loaded, ok := m.state.(Loaded); ok {
		m.state = Loaded{Directory: loaded.Directory, Coordinate: m.Coordinate()}
	}
	return true
}

// LocationFailed drops the user position. A list sorted by distance falls
// back to name order; the state never becomes Failed because of location.
func (m *Machine) LocationFailed(f location.Failure) bool {
	if m.locationFailure == f && m.coordinate == nil {
		return false
	}
	m.coordinate = nil
	m.locationFailure = f

	if loaded, ok := m.state.(Loaded); ok && loaded.Coordinate != nil {
		m.state = Loaded{Directory: loaded.Directory}
	}
	return true
}
