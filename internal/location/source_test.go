package location

import (
	"context"
	"testing"
	"time"

	"github.com/turku-citybike/racks/internal/geo"
)

func receive(t *testing.T, ch <-chan Event) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for location event")
		return Event{}, false
	}
}

func TestSubjectReplaysCurrentValue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSubject()
	if err := s.Send(geo.Coordinate{Latitude: 60.45, Longitude: 22.25}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	ch := s.Subscribe(ctx)
	ev, ok := receive(t, ch)
	if !ok || ev.Coordinate == nil {
		t.Fatalf("expected replayed coordinate, got %+v (open=%v)", ev, ok)
	}
	if ev.Coordinate.Latitude != 60.45 {
		t.Errorf("latitude = %f, expected 60.45", ev.Coordinate.Latitude)
	}

	s.Send(geo.Coordinate{Latitude: 60.46, Longitude: 22.26})
	ev, _ = receive(t, ch)
	if ev.Coordinate == nil || ev.Coordinate.Latitude != 60.46 {
		t.Errorf("expected second coordinate, got %+v", ev)
	}
}

func TestSubjectFailIsTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSubject()
	ch := s.Subscribe(ctx)
	s.Fail(NotAuthorized)

	ev, ok := receive(t, ch)
	if !ok || ev.Failure != NotAuthorized {
		t.Fatalf("expected NotAuthorized, got %+v (open=%v)", ev, ok)
	}
	if _, ok := receive(t, ch); ok {
		t.Error("channel should be closed after a terminal event")
	}

	if err := s.Send(geo.Coordinate{Latitude: 1, Longitude: 1}); err != ErrCompleted {
		t.Errorf("Send after Fail = %v, expected ErrCompleted", err)
	}

	// late subscribers see the failure immediately
	late := s.Subscribe(ctx)
	if ev, _ := receive(t, late); ev.Failure != NotAuthorized {
		t.Errorf("late subscriber got %+v", ev)
	}

	s.Reset()
	if err := s.Send(geo.Coordinate{Latitude: 1, Longitude: 1}); err != nil {
		t.Errorf("Send after Reset failed: %v", err)
	}
}

func TestSubjectCancelClosesChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSubject()
	ch := s.Subscribe(ctx)
	cancel()

	if _, ok := receive(t, ch); ok {
		t.Error("expected closed channel after cancel")
	}
}

func TestSubjectSlowSubscriberKeepsLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSubject()
	ch := s.Subscribe(ctx)
	for i := 0; i < subscriberBuffer*3; i++ {
		s.Send(geo.Coordinate{Latitude: float64(i), Longitude: 0})
	}

	var last Event
	for len(ch) > 0 {
		last = <-ch
	}
	want := float64(subscriberBuffer*3 - 1)
	if last.Coordinate == nil || last.Coordinate.Latitude != want {
		t.Errorf("last buffered event = %+v, expected latitude %v", last, want)
	}
}

func TestStatic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	withCoord := NewStatic(&geo.Coordinate{Latitude: 60.451, Longitude: 22.251})
	ev, ok := receive(t, withCoord.Subscribe(ctx))
	if !ok || ev.Coordinate == nil || ev.Coordinate.Longitude != 22.251 {
		t.Errorf("static coordinate event = %+v", ev)
	}

	without := NewStatic(nil)
	ch := without.Subscribe(ctx)
	ev, _ = receive(t, ch)
	if ev.Failure != LocationDisabled {
		t.Errorf("expected LocationDisabled, got %+v", ev)
	}
	if _, ok := receive(t, ch); ok {
		t.Error("expected closed channel after failure")
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		payload string
		failure Failure
		lat     float64
		wantErr bool
	}{
		{payload: `{"lat": 60.45, "lon": 22.25}`, lat: 60.45},
		{payload: `{"failure": "not_authorized"}`, failure: NotAuthorized},
		{payload: `{"failure": "LOCATION_DISABLED"}`, failure: LocationDisabled},
		{payload: `{"failure": "nope"}`, wantErr: true},
		{payload: `{"lat": 60.45}`, wantErr: true},
		{payload: `{"lat": 100, "lon": 0}`, wantErr: true},
		{payload: `not json`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.payload, func(t *testing.T) {
			ev, err := ParseMessage([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", ev)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMessage failed: %v", err)
			}
			if ev.Failure != tc.failure {
				t.Errorf("failure = %q, expected %q", ev.Failure, tc.failure)
			}
			if tc.failure == "" && (ev.Coordinate == nil || ev.Coordinate.Latitude != tc.lat) {
				t.Errorf("coordinate = %+v, expected lat %v", ev.Coordinate, tc.lat)
			}
		})
	}
}
