package citybike

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/turku-citybike/racks/internal/geo"
)

// wireRack mirrors one entry of the feed's racks object.
// Pointer fields let the decoder tell a missing field from a zero value.
type wireRack struct {
	ID            *string  `json:"id"`
	Name          *string  `json:"name"`
	Lat           *float64 `json:"lat"`
	Lon           *float64 `json:"lon"`
	ClassicBikes  *int     `json:"bikes_avail_classic"`
	ElectricBikes *int     `json:"bikes_avail_electric"`
	EmptySlots    *int     `json:"slots_avail"`
}

func (w wireRack) rack() (Rack, error) {
	switch {
	case w.ID == nil:
		return Rack{}, missingField("id")
	case w.Name == nil:
		return Rack{}, missingField("name")
	case w.Lat == nil:
		return Rack{}, missingField("lat")
	case w.Lon == nil:
		return Rack{}, missingField("lon")
	case w.ClassicBikes == nil:
		return Rack{}, missingField("bikes_avail_classic")
	case w.ElectricBikes == nil:
		return Rack{}, missingField("bikes_avail_electric")
	case w.EmptySlots == nil:
		return Rack{}, missingField("slots_avail")
	}

	if *w.ClassicBikes < 0 || *w.ElectricBikes < 0 || *w.EmptySlots < 0 {
		return Rack{}, fmt.Errorf("negative count (classic=%d electric=%d slots=%d)",
			*w.ClassicBikes, *w.ElectricBikes, *w.EmptySlots)
	}

	coord := geo.Coordinate{Latitude: *w.Lat, Longitude: *w.Lon}
	if !coord.Valid() {
		return Rack{}, fmt.Errorf("coordinate out of range %v", coord)
	}

	return Rack{
		ID:            *w.ID,
		Name:          *w.Name,
		Coordinate:    coord,
		ClassicBikes:  *w.ClassicBikes,
		ElectricBikes: *w.ElectricBikes,
		EmptySlots:    *w.EmptySlots,
	}, nil
}

func missingField(name string) error {
	return fmt.Errorf("missing field %q", name)
}

// Decode reads a feed payload of the form
//
//	{"racks": {"<id>": {...}, ...}, "generated": <int>, "lastupdate": <int>}
//
// The racks object is read token by token so racks keep their feed order.
// Any deviation from the schema is reported as a *DecodeError.
func Decode(r io.Reader) (*Directory, error) {
	d := json.NewDecoder(r)

	if err := expectDelim(d, '{'); err != nil {
		return nil, &DecodeError{Cause: fmt.Errorf("response: %w", err)}
	}

	var (
		racks      []Rack
		sawRacks   bool
		generated  *int64
		lastUpdate *int64
	)

	for d.More() {
		key, err := readKey(d)
		if err != nil {
			return nil, &DecodeError{Cause: err}
		}

		switch key {
		case "racks":
			racks, err = decodeRacks(d)
			sawRacks = true
		case "generated":
			generated, err = decodeTimestamp(d, key)
		case "lastupdate":
			lastUpdate, err = decodeTimestamp(d, key)
		default:
			var skip json.RawMessage
			err = d.Decode(&skip)
		}
		if err != nil {
			return nil, &DecodeError{Cause: err}
		}
	}

	if err := expectDelim(d, '}'); err != nil {
		return nil, &DecodeError{Cause: fmt.Errorf("response: %w", err)}
	}
	if _, err := d.Token(); err != io.EOF {
		return nil, &DecodeError{Cause: errors.New("response: unexpected data after object")}
	}

	switch {
	case !sawRacks:
		return nil, &DecodeError{Cause: missingField("racks")}
	case generated == nil:
		return nil, &DecodeError{Cause: missingField("generated")}
	case lastUpdate == nil:
		return nil, &DecodeError{Cause: missingField("lastupdate")}
	}

	return NewDirectory(racks, *generated, *lastUpdate), nil
}

func decodeRacks(d *json.Decoder) ([]Rack, error) {
	if err := expectDelim(d, '{'); err != nil {
		return nil, fmt.Errorf("racks: %w", err)
	}

	var racks []Rack
	for d.More() {
		key, err := readKey(d)
		if err != nil {
			return nil, fmt.Errorf("racks: %w", err)
		}

		var w wireRack
		if err := d.Decode(&w); err != nil {
			return nil, fmt.Errorf("rack %q: %w", key, err)
		}
		rack, err := w.rack()
		if err != nil {
			return nil, fmt.Errorf("rack %q: %w", key, err)
		}
		racks = append(racks, rack)
	}

	if err := expectDelim(d, '}'); err != nil {
		return nil, fmt.Errorf("racks: %w", err)
	}
	return racks, nil
}

func decodeTimestamp(d *json.Decoder, key string) (*int64, error) {
	var v *int64
	if err := d.Decode(&v); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if v == nil {
		return nil, fmt.Errorf("%s: null value", key)
	}
	return v, nil
}

func expectDelim(d *json.Decoder, want json.Delim) error {
	tok, err := d.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(d *json.Decoder) (string, error) {
	tok, err := d.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}
