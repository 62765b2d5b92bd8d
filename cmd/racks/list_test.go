package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/turku-citybike/racks/internal/api"
	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/geo"
)

type stubFetcher struct {
	dir *citybike.Directory
	err error
}

func (s stubFetcher) Fetch(ctx context.Context) (*citybike.Directory, error) {
	return s.dir, s.err
}

func stubDirectory() *citybike.Directory {
	return citybike.NewDirectory([]citybike.Rack{
		{ID: "2", Name: "Beta", Coordinate: geo.Coordinate{Latitude: 60.46, Longitude: 22.26}, ClassicBikes: 1, EmptySlots: 9},
		{ID: "1", Name: "Alpha", Coordinate: geo.Coordinate{Latitude: 60.45, Longitude: 22.25}, ClassicBikes: 3, ElectricBikes: 2, EmptySlots: 5},
	}, 1700000000, 1700000000)
}

func TestPrintListTable(t *testing.T) {
	tests := []struct {
		name     string
		origin   *geo.Coordinate
		expected []string
	}{
		{"by name", nil, []string{"Alpha", "Beta"}},
		{"by distance", &geo.Coordinate{Latitude: 60.4599, Longitude: 22.2599}, []string{"Beta", "Alpha"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := printList(context.Background(), &out, stubFetcher{dir: stubDirectory()}, tt.origin, false); err != nil {
				t.Fatalf("printList: %v", err)
			}

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			if len(lines) != 3 {
				t.Fatalf("expected header and 2 rows, got %q", out.String())
			}
			for i, name := range tt.expected {
				if !strings.HasPrefix(lines[i+1], name) {
					t.Errorf("row %d: expected %s, got %q", i, name, lines[i+1])
				}
			}
		})
	}
}

func TestPrintListFailure(t *testing.T) {
	var out bytes.Buffer
	fetcher := stubFetcher{err: &citybike.DecodeError{Cause: errors.New("missing racks")}}

	err := printList(context.Background(), &out, fetcher, nil, false)
	if !errors.Is(err, errFetchFailed) {
		t.Fatalf("expected errFetchFailed, got %v", err)
	}
	if !strings.Contains(out.String(), citybike.MessageDecode) {
		t.Errorf("expected %q in output, got %q", citybike.MessageDecode, out.String())
	}
}

func TestPrintListJSON(t *testing.T) {
	var out bytes.Buffer
	origin := geo.Coordinate{Latitude: 60.451, Longitude: 22.251}

	if err := printList(context.Background(), &out, stubFetcher{dir: stubDirectory()}, &origin, true); err != nil {
		t.Fatalf("printList: %v", err)
	}

	var resp api.ListResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if resp.Count != 2 || resp.Items[0].Rack.Name != "Alpha" || resp.Items[0].Rack.Distance != "120 m" {
		t.Errorf("unexpected response %+v", resp)
	}
}
