package racklist

import (
	"sort"

	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/geo"
)

// Item is either a RackItem or an ErrorItem
type Item interface {
	isItem()
}

// RackItem is one row of the list. DistanceMeters is set when the list
// was ordered by distance from the user.
type RackItem struct {
	Rack           citybike.Rack
	DistanceMeters *float64
}

// ErrorItem replaces the whole list when the fetch failed
type ErrorItem struct {
	Message string
}

func (RackItem) isItem()  {}
func (ErrorItem) isItem() {}

// Derive produces the ordered list for a state. It has no side effects.
func Derive(s State) []Item {
	switch st := s.(type) {
	case Loaded:
		if st.Directory == nil {
			return []Item{}
		}
		if st.Coordinate == nil {
			return byName(st.Directory.Racks)
		}
		return byDistance(st.Directory.Racks, *st.Coordinate)
	case Failed:
		return []Item{ErrorItem{Message: citybike.UserMessage(st.Err)}}
	default:
		return []Item{}
	}
}

// byName orders racks by name, byte-wise; equal names keep feed order
func byName(racks []citybike.Rack) []Item {
	sorted := make([]citybike.Rack, len(racks))
	copy(sorted, racks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	items := make([]Item, len(sorted))
	for i, r := range sorted {
		items[i] = RackItem{Rack: r}
	}
	return items
}

// byDistance orders racks by distance from origin, then by name
func byDistance(racks []citybike.Rack, origin geo.Coordinate) []Item {
	type ranked struct {
		rack     citybike.Rack
		distance float64
	}

	rankedRacks := make([]ranked, len(racks))
	for i, r := range racks {
		rankedRacks[i] = ranked{rack: r, distance: geo.Distance(origin, r.Coordinate)}
	}
	sort.SliceStable(rankedRacks, func(i, j int) bool {
		a, b := rankedRacks[i], rankedRacks[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.rack.Name < b.rack.Name
	})

	items := make([]Item, len(rankedRacks))
	for i, r := range rankedRacks {
		d := r.distance
		items[i] = RackItem{Rack: r.rack, DistanceMeters: &d}
	}
	return items
}
