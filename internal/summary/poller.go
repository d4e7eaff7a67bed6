// Package summary keeps the latest aggregate session summary from the
// classification service, refreshed on a timer while a session runs and on
// demand.
package summary

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/gait.report/internal/classifier"
	"github.com/banshee-data/gait.report/internal/monitoring"
	"github.com/banshee-data/gait.report/internal/timeutil"
)

var logf = monitoring.Component("summary")

// DefaultInterval is the polling period while a session is active.
const DefaultInterval = 5 * time.Second

// Fetcher fetches one summary. *classifier.Client satisfies it.
type Fetcher interface {
	Summary(ctx context.Context) (classifier.Summary, error)
}

// Snapshot is a summary and the time it was fetched.
type Snapshot struct {
	classifier.Summary
	FetchedAt time.Time `json:"fetched_at"`
}

// Poller owns the summary timer. All fetches happen on the Run goroutine, so
// at most one request is in flight.
type Poller struct {
	fetch    Fetcher
	clock    timeutil.Clock
	interval time.Duration
	observer func(Snapshot, error)

	wake chan struct{}

	mu         sync.Mutex
	active     bool
	refresh    bool
	generation uint64
	latest     *Snapshot
	failures   int
}

// NewPoller creates a Poller. A non-positive interval uses DefaultInterval.
func NewPoller(f Fetcher, clock timeutil.Clock, interval time.Duration) *Poller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetch:    f,
		clock:    clock,
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// SetObserver installs fn, called on the Run goroutine after every fetch with
// either the new snapshot or the error. Call it before Run.
func (p *Poller) SetObserver(fn func(Snapshot, error)) {
	p.observer = fn
}

// SetActive turns periodic polling on or off.
func (p *Poller) SetActive(active bool) {
	p.mu.Lock()
	p.active = active
	p.mu.Unlock()
	p.nudge()
}

// Refresh asks for one fetch as soon as possible. Repeated calls before the
// fetch happens coalesce.
func (p *Poller) Refresh() {
	p.mu.Lock()
	p.refresh = true
	p.mu.Unlock()
	p.nudge()
}

// Latest returns the last fetched summary, if any.
func (p *Poller) Latest() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return Snapshot{}, false
	}
	return *p.latest, true
}

// Clear forgets the current summary. A fetch already in flight is discarded.
func (p *Poller) Clear() {
	p.mu.Lock()
	p.latest = nil
	p.generation++
	p.mu.Unlock()
}

// Failures returns the number of failed fetches since the last success.
func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *Poller) nudge() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is done. The timer only exists while the poller is
// active and is released on return.
func (p *Poller) Run(ctx context.Context) error {
	var (
		ticker timeutil.Ticker
		tickC  <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		p.mu.Lock()
		active, refresh := p.active, p.refresh
		p.refresh = false
		p.mu.Unlock()

		switch {
		case active && ticker == nil:
			ticker = p.clock.NewTicker(p.interval)
			tickC = ticker.C()
		case !active && ticker != nil:
			ticker.Stop()
			ticker, tickC = nil, nil
		}

		if refresh {
			p.poll(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.wake:
		case <-tickC:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	p.mu.Lock()
	gen := p.generation
	p.mu.Unlock()

	s, err := p.fetch.Summary(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.mu.Lock()
		p.failures++
		p.mu.Unlock()
		logf("failed to fetch session summary, keeping last known: %v", err)
		if p.observer != nil {
			p.observer(Snapshot{}, err)
		}
		return
	}

	snap := Snapshot{Summary: s, FetchedAt: p.clock.Now()}
	p.mu.Lock()
	p.failures = 0
	stale := gen != p.generation
	if !stale {
		p.latest = &snap
	}
	p.mu.Unlock()

	if stale {
		return
	}
	if p.observer != nil {
		p.observer(snap, nil)
	}
}
