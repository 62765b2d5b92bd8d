package racklist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/geo"
	"github.com/turku-citybike/racks/internal/location"
)

const waitTimeout = 2 * time.Second

type fetchReply struct {
	dir *citybike.Directory
	err error
}

type fetchCall struct {
	ctx   context.Context
	reply chan fetchReply
}

// blockingFetcher hands every call to the test, which decides when and how it completes
type blockingFetcher struct {
	calls chan *fetchCall
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{calls: make(chan *fetchCall, 8)}
}

func (f *blockingFetcher) Fetch(ctx context.Context) (*citybike.Directory, error) {
	call := &fetchCall{ctx: ctx, reply: make(chan fetchReply, 1)}
	select {
	case f.calls <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-call.reply:
		return r.dir, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *blockingFetcher) next(t *testing.T) *fetchCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for fetch")
		return nil
	}
}

type recordingArchive struct {
	mu    sync.Mutex
	saved []*citybike.Directory
	done  chan struct{}
}

func (a *recordingArchive) SaveDirectory(ctx context.Context, polledAt time.Time, dir *citybike.Directory) (string, error) {
	a.mu.Lock()
	a.saved = append(a.saved, dir)
	a.mu.Unlock()
	a.done <- struct{}{}
	return "snapshot-1", nil
}

func startController(t *testing.T, fetcher Fetcher, source location.Source, opts Options) (*Controller, <-chan View) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	c := NewController(fetcher, source, opts)
	views, unsubscribe := c.Subscribe()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		c.Run(ctx)
	}()
	t.Cleanup(func() {
		unsubscribe()
		cancel()
		<-stopped
	})
	return c, views
}

func waitForView(t *testing.T, views <-chan View, match func(View) bool) View {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case v, ok := <-views:
			if !ok {
				t.Fatal("view channel closed")
			}
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for view")
			return View{}
		}
	}
}

func inState(name string) func(View) bool {
	return func(v View) bool { return v.State == name }
}

func TestControllerInitialLoadThenLocation(t *testing.T) {
	fetcher := newBlockingFetcher()
	subject := location.NewSubject()
	c, views := startController(t, fetcher, subject, Options{})

	fetcher.next(t).reply <- fetchReply{dir: sampleDirectory()}

	v := waitForView(t, views, inState(StateLoaded))
	if names := rackNames(t, v.Items); !equalNames(names, []string{"Alpha", "Beta"}) {
		t.Errorf("expected [Alpha Beta], got %v", names)
	}
	if v.Directory == nil || v.Directory.Len() != 2 {
		t.Error("expected view to carry the loaded directory")
	}
	if v.FetchedAt.IsZero() {
		t.Error("expected FetchedAt to be set")
	}
	if v.Latency.Count != 1 {
		t.Errorf("expected 1 latency sample, got %d", v.Latency.Count)
	}

	if err := subject.Send(geo.Coordinate{Latitude: 60.4599, Longitude: 22.2599}); err != nil {
		t.Fatalf("send: %v", err)
	}
	v = waitForView(t, views, inState(StateLoadedWithLocation))
	if names := rackNames(t, v.Items); !equalNames(names, []string{"Beta", "Alpha"}) {
		t.Errorf("expected [Beta Alpha], got %v", names)
	}

	if snap := c.Snapshot(); snap.Version != v.Version {
		t.Errorf("expected snapshot version %d, got %d", v.Version, snap.Version)
	}
}

func TestControllerCoordinateBeforeFirstFetch(t *testing.T) {
	fetcher := newBlockingFetcher()
	subject := location.NewSubject()
	subject.Send(geo.Coordinate{Latitude: 60.4599, Longitude: 22.2599})

	_, views := startController(t, fetcher, subject, Options{})
	fetcher.next(t).reply <- fetchReply{dir: sampleDirectory()}

	v := waitForView(t, views, inState(StateLoadedWithLocation))
	if names := rackNames(t, v.Items); !equalNames(names, []string{"Beta", "Alpha"}) {
		t.Errorf("expected [Beta Alpha], got %v", names)
	}
}

func TestControllerRefreshSupersedesOutstandingFetch(t *testing.T) {
	fetcher := newBlockingFetcher()
	c, views := startController(t, fetcher, location.NewSubject(), Options{})

	first := fetcher.next(t)
	c.Refresh()
	second := fetcher.next(t)

	select {
	case <-first.ctx.Done():
	case <-time.After(waitTimeout):
		t.Error("expected superseded fetch to be cancelled")
	}

	first.reply <- fetchReply{dir: citybike.NewDirectory([]citybike.Rack{{ID: "x", Name: "Stale"}}, 1, 1)}
	second.reply <- fetchReply{dir: sampleDirectory()}

	v := waitForView(t, views, func(v View) bool {
		if v.State != StateLoaded {
			return false
		}
		if names := rackNames(t, v.Items); len(names) == 1 && names[0] == "Stale" {
			t.Fatal("superseded fetch was applied")
		}
		return true
	})
	if names := rackNames(t, v.Items); !equalNames(names, []string{"Alpha", "Beta"}) {
		t.Errorf("expected [Alpha Beta], got %v", names)
	}
}

func TestControllerFetchFailure(t *testing.T) {
	fetcher := newBlockingFetcher()
	c, views := startController(t, fetcher, location.NewSubject(), Options{})

	fetcher.next(t).reply <- fetchReply{err: &citybike.TransportError{Cause: errors.New("connection refused")}}

	v := waitForView(t, views, inState(StateFailed))
	if len(v.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(v.Items))
	}
	if item, ok := v.Items[0].(ErrorItem); !ok || item.Message != citybike.MessageTransport {
		t.Errorf("expected error item %q, got %#v", citybike.MessageTransport, v.Items[0])
	}
	if citybike.Kind(v.LastError) != citybike.KindTransport {
		t.Errorf("expected transport error, got %v", v.LastError)
	}

	// recovers on the next refresh
	c.Refresh()
	fetcher.next(t).reply <- fetchReply{dir: sampleDirectory()}
	v = waitForView(t, views, inState(StateLoaded))
	if v.LastError != nil {
		t.Errorf("expected error to be cleared, got %v", v.LastError)
	}
}

func TestControllerLocationFailure(t *testing.T) {
	fetcher := newBlockingFetcher()
	subject := location.NewSubject()
	subject.Send(geo.Coordinate{Latitude: 60.4599, Longitude: 22.2599})

	c, views := startController(t, fetcher, subject, Options{})
	fetcher.next(t).reply <- fetchReply{dir: sampleDirectory()}
	waitForView(t, views, inState(StateLoadedWithLocation))

	subject.Fail(location.LocationDisabled)
	v := waitForView(t, views, inState(StateLoaded))
	if v.LocationFailure != location.LocationDisabled {
		t.Errorf("expected %s, got %s", location.LocationDisabled, v.LocationFailure)
	}
	if names := rackNames(t, v.Items); !equalNames(names, []string{"Alpha", "Beta"}) {
		t.Errorf("expected [Alpha Beta], got %v", names)
	}

	// a new subscription picks up positions again after the failure is cleared
	subject.Reset()
	subject.Send(geo.Coordinate{Latitude: 60.4599, Longitude: 22.2599})
	c.ResubscribeLocation()
	v = waitForView(t, views, inState(StateLoadedWithLocation))
	if v.LocationFailure != "" {
		t.Errorf("expected failure to be cleared, got %s", v.LocationFailure)
	}
}

func TestControllerArchivesSuccessfulFetches(t *testing.T) {
	fetcher := newBlockingFetcher()
	archive := &recordingArchive{done: make(chan struct{}, 1)}
	_, views := startController(t, fetcher, location.NewSubject(), Options{Archive: archive})

	dir := sampleDirectory()
	fetcher.next(t).reply <- fetchReply{dir: dir}
	waitForView(t, views, inState(StateLoaded))

	select {
	case <-archive.done:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for archive")
	}
	archive.mu.Lock()
	defer archive.mu.Unlock()
	if len(archive.saved) != 1 || archive.saved[0] != dir {
		t.Errorf("expected the fetched directory to be archived, got %v", archive.saved)
	}
}

func TestControllerAutoRefresh(t *testing.T) {
	fetcher := newBlockingFetcher()
	startController(t, fetcher, location.NewSubject(), Options{Interval: 20 * time.Millisecond})

	fetcher.next(t).reply <- fetchReply{dir: sampleDirectory()}
	fetcher.next(t).reply <- fetchReply{dir: sampleDirectory()}
}

func TestControllerSubscribeAfterStop(t *testing.T) {
	fetcher := newBlockingFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	c := NewController(fetcher, location.NewSubject(), Options{})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		c.Run(ctx)
	}()

	call := fetcher.next(t)
	cancel()
	<-stopped

	select {
	case <-call.ctx.Done():
	case <-time.After(waitTimeout):
		t.Error("expected outstanding fetch to be cancelled on stop")
	}

	views, unsubscribe := c.Subscribe()
	defer unsubscribe()

	v, ok := <-views
	if !ok || v.State != StateLoading {
		t.Fatalf("expected final loading view, got %+v (open=%v)", v, ok)
	}
	select {
	case _, ok := <-views:
		if ok {
			t.Error("expected channel to be closed after the final view")
		}
	case <-time.After(waitTimeout):
		t.Fatal("channel left open after controller stopped")
	}
}

func TestControllerViewVersionsIncrease(t *testing.T) {
	fetcher := newBlockingFetcher()
	subject := location.NewSubject()
	c, views := startController(t, fetcher, subject, Options{})

	fetcher.next(t).reply <- fetchReply{dir: sampleDirectory()}
	for i := 0; i < 5; i++ {
		subject.Send(geo.Coordinate{Latitude: 60.45 + float64(i)/1000, Longitude: 22.25})
		c.Refresh()
		fetcher.next(t).reply <- fetchReply{dir: sampleDirectory()}
	}

	var last uint64
	waitForView(t, views, func(v View) bool {
		if v.Version <= last {
			t.Fatalf("view version %d delivered after %d", v.Version, last)
		}
		last = v.Version
		return v.Version == c.Snapshot().Version && v.State != StateLoading
	})
}

func TestWelfordState(t *testing.T) {
	var w WelfordState
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Update(v)
	}
	if w.Mean != 5 {
		t.Errorf("expected mean 5, got %f", w.Mean)
	}
	if got := w.StdDev(); got < 1.999 || got > 2.001 {
		t.Errorf("expected stddev 2, got %f", got)
	}

	var single WelfordState
	single.Update(10)
	if single.StdDev() != 0 {
		t.Errorf("expected 0 stddev for one sample, got %f", single.StdDev())
	}
}
