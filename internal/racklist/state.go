// Package racklist holds the presentation state of the rack list and derives
// the ordered items a renderer shows from it.
package racklist

import (
	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/geo"
)

// State names as reported to renderers
const (
	StateUninitialized      = "uninitialized"
	StateLoading            = "loading"
	StateLoaded             = "loaded"
	StateLoadedWithLocation = "loaded_with_location"
	StateFailed             = "failed"
)

// State is one of Uninitialized, Loading, Loaded or Failed
type State interface {
	Name() string
	isState()
}

// Uninitialized holds before the first fetch is issued
type Uninitialized struct{}

// Loading holds while the latest issued fetch is outstanding
type Loading struct{}

// Loaded holds the racks of the last applied fetch. A nil Coordinate means
// no user position is known and the list is ordered by name.
type Loaded struct {
	Directory  *citybike.Directory
	Coordinate *geo.Coordinate
}

// Failed holds the error of the last applied fetch
type Failed struct {
	Err error
}

func (Uninitialized) Name() string { return StateUninitialized }
func (Loading) Name() string       { return StateLoading }
func (Failed) Name() string        { return StateFailed }

func (s Loaded) Name() string {
	if s.Coordinate != nil {
		return StateLoadedWithLocation
	}
	return StateLoaded
}

func (Uninitialized) isState() {}
func (Loading) isState()       {}
func (Loaded) isState()        {}
func (Failed) isState()        {}
