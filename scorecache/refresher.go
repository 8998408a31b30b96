package scorecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/channelqueue"
)

var ErrRunning = errors.New("refresher already running")

// State is the phase of the refresh cycle a Refresher is in.
type State int32

const (
	// Idle means no refresh is in progress.
	Idle State = iota
	// Fetching means the source is being fetched.
	Fetching
	// Installing means a fetched snapshot is being installed.
	Installing
	// Skipping means a failed fetch is being recorded and the current
	// snapshot kept.
	Skipping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Installing:
		return "installing"
	case Skipping:
		return "skipping"
	}
	return "unknown"
}

// RefreshEvent describes one completed refresh, successful or not.
type RefreshEvent struct {
	// Start is when the refresh began.
	Start time.Time
	// Duration is how long the refresh took.
	Duration time.Duration
	// Count is the number of scores installed. It is zero if Err is set.
	Count int
	// Err is a *FetchError if the refresh failed.
	Err error
}

// Status is a summary of the refresher's history.
type Status struct {
	State       State
	LastAttempt time.Time
	LastSuccess time.Time
	LastErr     error
	Successes   uint64
	Failures    uint64
}

// Refresher keeps a Cache up to date by periodically fetching the complete
// score dataset from a Source and replacing the cache snapshot with it.
type Refresher struct {
	cache        *Cache
	source       Source
	clock        clock.Clock
	fetchTimeout time.Duration
	refreshIn    time.Duration
	preloadedAt  time.Time

	state     atomic.Int32
	running   atomic.Bool
	writeLock chan struct{}

	statusMutex sync.Mutex
	status      Status

	eventsMutex sync.Mutex
	eventChans  []chan<- RefreshEvent

	metrics *refreshMetrics
}

// NewRefresher creates a Refresher that installs scores from src into cache.
func NewRefresher(cache *Cache, src Source, options ...Option) (*Refresher, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return nil, errors.New("nil cache")
	}
	if src == nil {
		return nil, errors.New("no score source")
	}

	r := &Refresher{
		cache:        cache,
		source:       src,
		clock:        opts.clock,
		fetchTimeout: opts.fetchTimeout,
		refreshIn:    opts.refreshIn,
		writeLock:    make(chan struct{}, 1),
		metrics:      newRefreshMetrics(),
	}

	if opts.preload {
		r.preloadedAt = r.clock.Now()
		_ = r.Refresh(context.Background())
	}

	return r, nil
}

// Run refreshes the cache immediately, and then again every refresh interval,
// until ctx is canceled. If the Refresher was preloaded, the first refresh is
// instead one interval after the preload. Run returns the context error once
// ctx is canceled, or ErrRunning if Run is already running.
//
// Failed refreshes do not stop Run.
func (r *Refresher) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer r.running.Store(false)

	if !r.preloadedAt.IsZero() {
		if r.refreshIn == 0 {
			<-ctx.Done()
			return ctx.Err()
		}
		if err := r.wait(ctx, r.untilNext(r.preloadedAt), nil); err != nil {
			return err
		}
	}

	for {
		event := r.refresh(ctx)
		if ctx.Err() != nil {
			r.notify(event)
			return ctx.Err()
		}
		if r.refreshIn == 0 {
			r.notify(event)
			<-ctx.Done()
			return ctx.Err()
		}
		if err := r.wait(ctx, r.untilNext(event.Start), &event); err != nil {
			return err
		}
	}
}

// Refresh performs one refresh immediately. It waits for any refresh that is
// already in progress to finish first. The returned error is a *FetchError if
// the fetch failed, in which case the cache is unchanged.
func (r *Refresher) Refresh(ctx context.Context) error {
	event := r.refresh(ctx)
	r.notify(event)
	return event.Err
}

// OnRefresh creates a channel that receives an event after every refresh,
// and adds that channel to the list of channels to notify. The channel is
// unbounded so a slow reader never delays refreshes.
//
// Calling the returned cancel function removes the channel from the list of
// channels to notify and closes it, after any queued events are read.
func (r *Refresher) OnRefresh() (<-chan RefreshEvent, context.CancelFunc) {
	cq := channelqueue.New[RefreshEvent](-1)
	ch := cq.In()

	r.eventsMutex.Lock()
	r.eventChans = append(r.eventChans, ch)
	r.eventsMutex.Unlock()

	var once sync.Once
	cncl := func() {
		once.Do(func() {
			r.eventsMutex.Lock()
			defer r.eventsMutex.Unlock()
			for i, c := range r.eventChans {
				if c == ch {
					r.eventChans[i] = r.eventChans[len(r.eventChans)-1]
					r.eventChans[len(r.eventChans)-1] = nil
					r.eventChans = r.eventChans[:len(r.eventChans)-1]
					break
				}
			}
			close(ch)
		})
	}
	return cq.Out(), cncl
}

// State returns the current phase of the refresh cycle.
func (r *Refresher) State() State {
	return State(r.state.Load())
}

// Status returns a summary of past refreshes.
func (r *Refresher) Status() Status {
	r.statusMutex.Lock()
	st := r.status
	r.statusMutex.Unlock()
	st.State = r.State()
	return st
}

func (r *Refresher) refresh(ctx context.Context) RefreshEvent {
	if ctx.Err() == nil {
		select {
		case r.writeLock <- struct{}{}:
		case <-ctx.Done():
		}
	}
	if ctx.Err() != nil {
		return RefreshEvent{
			Start: r.clock.Now(),
			Err:   &FetchError{Source: r.source.String(), Err: ctx.Err()},
		}
	}
	defer func() {
		<-r.writeLock
	}()

	event := RefreshEvent{
		Start: r.clock.Now(),
	}

	r.state.Store(int32(Fetching))
	records, err := r.fetch(ctx)
	if err != nil {
		r.state.Store(int32(Skipping))
		event.Err = &FetchError{Source: r.source.String(), Err: err}
		log.Errorw("Cannot fetch scores, keeping current snapshot", "err", err, "source", r.source,
			"cached", r.cache.Len())
	} else {
		r.state.Store(int32(Installing))
		m := BuildSnapshot(records)
		r.cache.Replace(m)
		event.Count = len(m)
	}
	event.Duration = r.clock.Since(event.Start)

	r.statusMutex.Lock()
	r.status.LastAttempt = event.Start
	if event.Err != nil {
		r.status.LastErr = event.Err
		r.status.Failures++
	} else {
		r.status.LastSuccess = event.Start
		r.status.LastErr = nil
		r.status.Successes++
	}
	r.statusMutex.Unlock()

	r.metrics.recordRefresh(ctx, event.Duration, event.Err)
	r.state.Store(int32(Idle))

	if event.Err == nil {
		log.Infow("Installed score snapshot", "scores", event.Count, "records", len(records),
			"elapsed", event.Duration.String())
	}
	return event
}

func (r *Refresher) fetch(ctx context.Context) ([]ScoreRecord, error) {
	if r.fetchTimeout == 0 {
		return r.source.FetchAll(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	return r.source.FetchAll(ctx)
}

// untilNext returns the time remaining until one refresh interval after
// start. A refresh that ran longer than the interval gives 0.
func (r *Refresher) untilNext(start time.Time) time.Duration {
	wait := r.refreshIn - r.clock.Since(start)
	if wait < 0 {
		return 0
	}
	return wait
}

// wait blocks for d or until ctx is canceled. If event is not nil, observers
// are notified of it once the timer is set, so that an observer that
// advances a mock clock after receiving the event fires the timer.
func (r *Refresher) wait(ctx context.Context, d time.Duration, event *RefreshEvent) error {
	if d == 0 {
		if event != nil {
			r.notify(*event)
		}
		return ctx.Err()
	}
	timer := r.clock.Timer(d)
	defer timer.Stop()
	if event != nil {
		r.notify(*event)
	}
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) notify(event RefreshEvent) {
	r.eventsMutex.Lock()
	defer r.eventsMutex.Unlock()
	for _, ch := range r.eventChans {
		ch <- event
	}
}
