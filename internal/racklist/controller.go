package racklist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/geo"
	"github.com/turku-citybike/racks/internal/location"
)

const (
	eventBuffer    = 32
	viewBuffer     = 4
	archiveTimeout = 10 * time.Second
)

// Fetcher retrieves the rack directory
type Fetcher interface {
	Fetch(ctx context.Context) (*citybike.Directory, error)
}

// Archiver persists successfully fetched directories
type Archiver interface {
	SaveDirectory(ctx context.Context, polledAt time.Time, dir *citybike.Directory) (string, error)
}

// Options configures a Controller
type Options struct {
	// Interval between automatic refreshes; zero disables them
	Interval time.Duration
	Archive  Archiver
	Logger   *zap.Logger
}

// View is what renderers consume: the derived items plus the context they were derived in
type View struct {
	Version         uint64
	State           string
	Items           []Item
	Directory       *citybike.Directory
	Coordinate      *geo.Coordinate
	LocationFailure location.Failure
	LastError       error
	FetchedAt       time.Time
	Latency         LatencyStats
}

type refreshRequest struct{}

type resubscribeRequest struct{}

type fetchResult struct {
	seq     uint64
	dir     *citybike.Directory
	err     error
	elapsed time.Duration
}

// Controller serializes every state change of the list on one goroutine.
// Fetches run on their own goroutines and post their result back tagged
// with the sequence number they were issued under.
type Controller struct {
	fetcher  Fetcher
	source   location.Source
	archive  Archiver
	interval time.Duration
	logger   *zap.Logger

	events chan interface{}
	done   chan struct{}

	// owned by the Run goroutine
	machine     *Machine
	cancelFetch context.CancelFunc
	lastErr     error
	fetchedAt   time.Time
	latency     WelfordState

	mu   sync.RWMutex
	view View

	// subMu also orders view stores with their fan-out
	subMu      sync.Mutex
	subs       map[int]chan View
	nextSub    int
	subsClosed bool
}

// NewController wires a fetcher and a location source to a fresh Machine
func NewController(fetcher Fetcher, source location.Source, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		fetcher:  fetcher,
		source:   source,
		archive:  opts.Archive,
		interval: opts.Interval,
		logger:   logger,
		events:   make(chan interface{}, eventBuffer),
		done:     make(chan struct{}),
		machine:  NewMachine(),
		subs:     make(map[int]chan View),
	}
	c.view = View{State: StateUninitialized, Items: []Item{}}
	return c
}

// Run loads the list and processes events until ctx is cancelled
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	locCtx, locCancel := context.WithCancel(ctx)
	locations := c.source.Subscribe(locCtx)
	defer func() { locCancel() }()

	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	c.startFetch(ctx)

	for {
		select {
		case <-ctx.Done():
			if c.cancelFetch != nil {
				c.cancelFetch()
			}
			c.closeSubscribers()
			c.logger.Info("rack list controller stopped")
			return nil

		case ev := <-c.events:
			switch e := ev.(type) {
			case refreshRequest:
				c.startFetch(ctx)
			case fetchResult:
				c.applyFetch(ctx, e)
			case resubscribeRequest:
				locCancel()
				locCtx, locCancel = context.WithCancel(ctx)
				locations = c.source.Subscribe(locCtx)
				c.logger.Debug("location stream resubscribed")
			}

		case ev, ok := <-locations:
			if !ok {
				locations = nil
				continue
			}
			c.applyLocation(ev)
			if ev.Terminal() {
				locations = nil
			}

		case <-tick:
			c.startFetch(ctx)
		}
	}
}

// Refresh requests a new fetch, superseding any outstanding one
func (c *Controller) Refresh() {
	c.post(refreshRequest{})
}

// ResubscribeLocation restarts the location stream, e.g. after permission was granted
func (c *Controller) ResubscribeLocation() {
	c.post(resubscribeRequest{})
}

// Snapshot returns the latest view
func (c *Controller) Snapshot() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Subscribe returns a channel receiving the current view and every later one.
// Call the returned function to unsubscribe. Once Run has returned the
// channel holds the final view and is closed.
func (c *Controller) Subscribe() (<-chan View, func()) {
	ch := make(chan View, viewBuffer)

	c.subMu.Lock()
	if c.subsClosed {
		ch <- c.Snapshot()
		close(ch)
		c.subMu.Unlock()
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	offerView(ch, c.Snapshot())
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Controller) post(ev interface{}) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) startFetch(ctx context.Context) {
	if c.cancelFetch != nil {
		c.cancelFetch()
	}

	seq := c.machine.BeginFetch()
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel
	c.logger.Debug("fetch started", zap.Uint64("seq", seq))
	c.publish()

	go func() {
		started := time.Now()
		dir, err := c.fetcher.Fetch(fetchCtx)
		c.post(fetchResult{seq: seq, dir: dir, err: err, elapsed: time.Since(started)})
	}()
}

func (c *Controller) applyFetch(ctx context.Context, r fetchResult) {
	if !c.machine.CompleteFetch(r.seq, r.dir, r.err) {
		c.logger.Debug("ignoring superseded fetch",
			zap.Uint64("seq", r.seq),
			zap.Uint64("latest", c.machine.Latest()),
		)
		return
	}
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}

	if r.err != nil {
		c.lastErr = r.err
		c.logger.Warn("fetch failed",
			zap.String("kind", string(citybike.Kind(r.err))),
			zap.Error(r.err),
		)
		c.publish()
		return
	}

	c.lastErr = nil
	c.fetchedAt = time.Now().UTC()
	c.latency.Update(float64(r.elapsed) / float64(time.Millisecond))
	c.logger.Info("racks updated",
		zap.Int("racks", r.dir.Len()),
		zap.Int64("lastupdate", r.dir.LastUpdate),
		zap.Duration("elapsed", r.elapsed),
	)
	c.publish()

	if c.archive != nil {
		go c.archiveDirectory(ctx, c.fetchedAt, r.dir)
	}
}

func (c *Controller) archiveDirectory(ctx context.Context, polledAt time.Time, dir *citybike.Directory) {
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	snapshotID, err := c.archive.SaveDirectory(ctx, polledAt, dir)
	if err != nil {
		c.logger.Error("failed to archive racks", zap.Error(err))
		return
	}
	c.logger.Debug("racks archived", zap.String("snapshot_id", snapshotID))
}

func (c *Controller) applyLocation(ev location.Event) {
	var changed bool
	switch {
	case ev.Terminal():
		changed = c.machine.LocationFailed(ev.Failure)
		if changed {
			c.logger.Info("location unavailable, ordering by name", zap.String("failure", string(ev.Failure)))
		}
	case ev.Coordinate != nil:
		changed = c.machine.UpdateCoordinate(*ev.Coordinate)
	}
	if changed {
		c.publish()
	}
}

func (c *Controller) publish() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.mu.Lock()
	view := View{
		Version:         c.view.Version + 1,
		State:           c.machine.State().Name(),
		Items:           c.machine.Items(),
		Coordinate:      c.machine.Coordinate(),
		LocationFailure: c.machine.LocationFailure(),
		LastError:       c.lastErr,
		FetchedAt:       c.fetchedAt,
		Latency:         c.latency.latency(),
	}
	if loaded, ok := c.machine.State().(Loaded); ok {
		view.Directory = loaded.Directory
	}
	c.view = view
	c.mu.Unlock()

	for _, sub := range c.subs {
		offerView(sub, view)
	}
}

func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subsClosed = true
	for id, sub := range c.subs {
		close(sub)
		delete(c.subs, id)
	}
}

// offerView never blocks the loop; a lagging subscriber skips to newer views
func offerView(ch chan View, v View) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
