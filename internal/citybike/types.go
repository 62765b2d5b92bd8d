package citybike

import "github.com/turku-citybike/racks/internal/geo"

// Rack represents a single city bike docking station
type Rack struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Coordinate    geo.Coordinate `json:"coordinate"`
	ClassicBikes  int            `json:"classicBikes"`
	ElectricBikes int            `json:"electricBikes"`
	EmptySlots    int            `json:"emptySlots"`
}

// Capacity is the total number of docks at the rack
func (r Rack) Capacity() int {
	return r.ClassicBikes + r.ElectricBikes + r.EmptySlots
}

// AvailableBikes counts bikes of both kinds
func (r Rack) AvailableBikes() int {
	return r.ClassicBikes + r.ElectricBikes
}

// Directory is the snapshot of all racks returned by one fetch.
// Racks keep the order in which they appeared in the feed.
type Directory struct {
	Racks      []Rack
	Generated  int64
	LastUpdate int64

	byID map[string]int
}

// NewDirectory builds a directory from racks in feed order.
// A later rack with an already seen ID replaces the earlier one in place.
func NewDirectory(racks []Rack, generated, lastUpdate int64) *Directory {
	d := &Directory{
		Racks:      make([]Rack, 0, len(racks)),
		Generated:  generated,
		LastUpdate: lastUpdate,
		byID:       make(map[string]int, len(racks)),
	}
	for _, r := range racks {
		d.add(r)
	}
	return d
}

func (d *Directory) add(r Rack) {
	if i, ok := d.byID[r.ID]; ok {
		d.Racks[i] = r
		return
	}
	d.byID[r.ID] = len(d.Racks)
	d.Racks = append(d.Racks, r)
}

// Rack looks up a rack by ID
func (d *Directory) Rack(id string) (Rack, bool) {
	if d == nil {
		return Rack{}, false
	}
	i, ok := d.byID[id]
	if !ok {
		return Rack{}, false
	}
	return d.Racks[i], true
}

// Len returns the number of racks
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Racks)
}
