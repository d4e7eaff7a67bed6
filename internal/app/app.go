// Package app wires the motion source, the classification service, the
// session tracker and the summary poller into one pipeline, and implements
// the start, end and reset commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/banshee-data/gait.report/internal/classifier"
	"github.com/banshee-data/gait.report/internal/health"
	"github.com/banshee-data/gait.report/internal/journal"
	"github.com/banshee-data/gait.report/internal/monitoring"
	"github.com/banshee-data/gait.report/internal/motion"
	"github.com/banshee-data/gait.report/internal/session"
	"github.com/banshee-data/gait.report/internal/summary"
	"github.com/banshee-data/gait.report/internal/timeutil"
)

var logf = monitoring.Component("app")

// Service is the remote classification service. *classifier.Client
// satisfies it.
type Service interface {
	Predict(ctx context.Context, features [3]float64) (classifier.Result, error)
	Summary(ctx context.Context) (classifier.Summary, error)
	Reset(ctx context.Context) error
}

// Options configure an App. Zero values take defaults.
type Options struct {
	Thresholds      session.Thresholds
	TickInterval    time.Duration
	SummaryInterval time.Duration
	MaxInflight     int64
	Clock           timeutil.Clock
	// Journal and Health are optional.
	Journal *journal.Journal
	Health  *health.Reporter
}

// Stats counts what happened to the samples read from the source.
type Stats struct {
	SamplesSeen  uint64 `json:"samples_seen"`
	Ignored      uint64 `json:"ignored"`
	Dispatched   uint64 `json:"dispatched"`
	Dropped      uint64 `json:"dropped"`
	Failures     uint64 `json:"failures"`
	JournalDrops uint64 `json:"journal_drops"`
	Inflight     int64  `json:"inflight"`
}

type journalEntry struct {
	runID   string
	seq     uint64
	result  *classifier.Result
	segment session.Segment
	outcome journal.Outcome
}

// App owns the pipeline. Create it with New and drive it with Run.
type App struct {
	source  motion.Source
	service Service
	tracker *session.Tracker
	poller  *summary.Poller
	journal *journal.Journal
	health  *health.Reporter

	sem         *semaphore.Weighted
	maxInflight int64
	seq         atomic.Uint64
	journalQ    chan journalEntry

	seen, ignored, dispatched, dropped, failures, journalDrops atomic.Uint64
	inflight                                                   atomic.Int64

	// dispatchMu orders sequence assignment against End and Reset.
	dispatchMu sync.Mutex

	notifyMu  sync.Mutex
	notifiers map[string]chan struct{}
	notifyID  uint64

	commandMu sync.Mutex
}

// New builds an App. Nothing runs until Run is called.
func New(src motion.Source, svc Service, opts Options) *App {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Thresholds == (session.Thresholds{}) {
		opts.Thresholds = session.DefaultThresholds()
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 4
	}

	a := &App{
		source:      src,
		service:     svc,
		tracker:     session.NewTracker(opts.Thresholds, opts.Clock, opts.TickInterval),
		poller:      summary.NewPoller(svc, opts.Clock, opts.SummaryInterval),
		journal:     opts.Journal,
		health:      opts.Health,
		sem:         semaphore.NewWeighted(opts.MaxInflight),
		maxInflight: opts.MaxInflight,
		journalQ:    make(chan journalEntry, 256),
		notifiers:   make(map[string]chan struct{}),
	}
	a.tracker.SetObserver(a.observeTransition)
	a.poller.SetObserver(a.observeSummary)
	return a
}

// Run starts the tracker, the summary poller, the journal writer and the
// sample dispatch loop, and blocks until ctx is done. In-flight predictions
// are awaited before it returns.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logf("%s stopped: %v", name, err)
			}
		}()
	}
	run("tracker", a.tracker.Run)
	run("summary poller", a.poller.Run)
	run("journal writer", a.writeJournal)
	run("state fan-out", a.forwardState)

	a.dispatch(ctx)

	// wait for outstanding predictions before stopping the tracker loop
	if err := a.sem.Acquire(context.Background(), a.maxInflight); err == nil {
		a.sem.Release(a.maxInflight)
	}
	wg.Wait()
	return ctx.Err()
}

func (a *App) dispatch(ctx context.Context) {
	id, samples := a.source.Subscribe()
	defer a.source.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				logf("motion source closed")
				<-ctx.Done()
				return
			}
			a.handleSample(ctx, s)
		}
	}
}

func (a *App) handleSample(ctx context.Context, s motion.Sample) {
	a.seen.Add(1)

	a.dispatchMu.Lock()
	if !a.tracker.Snapshot().SessionOpen {
		a.dispatchMu.Unlock()
		a.ignored.Add(1)
		return
	}
	if !a.sem.TryAcquire(1) {
		a.dispatchMu.Unlock()
		a.dropped.Add(1)
		return
	}
	seq := a.seq.Add(1)
	a.dispatchMu.Unlock()

	a.dispatched.Add(1)
	a.inflight.Add(1)
	go func() {
		defer a.sem.Release(1)
		defer a.inflight.Add(-1)

		res, err := a.service.Predict(ctx, s.Features())
		a.observeHealth(err)
		if err != nil {
			if ctx.Err() == nil {
				a.failures.Add(1)
				logf("prediction seq=%d failed: %v", seq, err)
			}
			return
		}
		// Submit only fails once ctx is done
		a.tracker.Submit(ctx, session.Classified{Seq: seq, Result: res})
	}()
}

func (a *App) observeHealth(err error) {
	if a.health != nil {
		a.health.Observe(err)
	}
}

// observeTransition runs on the tracker goroutine and must not block.
func (a *App) observeTransition(e session.Event, tr session.Transition, s session.State) {
	if a.journal == nil {
		return
	}
	// the run is read now; End clears it before the writer catches up
	run := a.journal.CurrentRun()
	if c, ok := e.(session.Classified); ok && !tr.Stale {
		res := c.Result
		a.enqueueJournal(journalEntry{runID: run, seq: c.Seq, result: &res})
	}
	if tr.Closed.Kind != session.KindNone {
		a.enqueueJournal(journalEntry{runID: run, segment: tr.Closed, outcome: journal.OutcomeOf(tr)})
	}
}

func (a *App) enqueueJournal(e journalEntry) {
	select {
	case a.journalQ <- e:
	default:
		a.journalDrops.Add(1)
	}
}

func (a *App) drainJournalQueue() {
	for {
		select {
		case <-a.journalQ:
		default:
			return
		}
	}
}

func (a *App) writeJournal(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-a.journalQ:
			var err error
			if e.result != nil {
				err = a.journal.RecordClassification(ctx, e.runID, e.seq, *e.result)
			} else {
				err = a.journal.RecordSegment(ctx, e.runID, e.segment, e.outcome)
			}
			if err != nil && ctx.Err() == nil {
				logf("journal write failed: %v", err)
			}
		}
	}
}

func (a *App) observeSummary(_ summary.Snapshot, err error) {
	a.observeHealth(err)
	a.notify()
}

// forwardState turns tracker updates into change notifications.
func (a *App) forwardState(ctx context.Context) error {
	id, states := a.tracker.Subscribe()
	defer a.tracker.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-states:
			if !ok {
				return nil
			}
			a.notify()
		}
	}
}

// Subscribe returns a channel that is signalled whenever the tracker state or
// the summary changes. Signals coalesce; read Snapshot and Summary for the
// current values.
func (a *App) Subscribe() (string, <-chan struct{}) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	a.notifyID++
	id := fmt.Sprintf("n%d", a.notifyID)
	ch := make(chan struct{}, 1)
	a.notifiers[id] = ch
	return id, ch
}

func (a *App) Unsubscribe(id string) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	if ch, ok := a.notifiers[id]; ok {
		close(ch)
		delete(a.notifiers, id)
	}
}

func (a *App) notify() {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	for _, ch := range a.notifiers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Snapshot returns the current tracker state.
func (a *App) Snapshot() session.State {
	return a.tracker.Snapshot()
}

// Summary returns the last summary fetched from the service.
func (a *App) Summary() (summary.Snapshot, bool) {
	return a.poller.Latest()
}

// Stats returns the pipeline counters.
func (a *App) Stats() Stats {
	return Stats{
		SamplesSeen:  a.seen.Load(),
		Ignored:      a.ignored.Load(),
		Dispatched:   a.dispatched.Load(),
		Dropped:      a.dropped.Load(),
		Failures:     a.failures.Load(),
		JournalDrops: a.journalDrops.Load(),
		Inflight:     a.inflight.Load(),
	}
}

// Health returns the classifier reachability, or false when no reporter is
// configured.
func (a *App) Health() (health.Status, bool) {
	if a.health == nil {
		return health.Status{}, false
	}
	return a.health.Status(), true
}

// RecentConfidences returns recent confidences from the journal, or nil when
// no journal is configured.
func (a *App) RecentConfidences(ctx context.Context, n int) ([]float64, error) {
	if a.journal == nil {
		return nil, nil
	}
	return a.journal.RecentConfidences(ctx, n)
}

// closeSession applies the event built by mk with a floor covering every
// sequence number handed out so far. No sample is dispatched between reading
// the floor and the closed state taking effect.
func (a *App) closeSession(ctx context.Context, mk func(floor uint64) session.Event) (session.State, error) {
	a.dispatchMu.Lock()
	defer a.dispatchMu.Unlock()
	return a.tracker.Apply(ctx, mk(a.seq.Load()))
}

// Start opens a session: samples are classified from now on and the summary
// is polled.
func (a *App) Start(ctx context.Context) error {
	a.commandMu.Lock()
	defer a.commandMu.Unlock()

	if a.journal != nil {
		if _, err := a.journal.BeginRun(ctx); err != nil {
			logf("failed to begin journal run: %v", err)
		}
	}
	if _, err := a.tracker.Apply(ctx, session.Start{}); err != nil {
		return err
	}
	a.poller.SetActive(true)
	a.poller.Refresh()
	logf("session started")
	return nil
}

// End closes the session. The active segment is closed as if a non-walking,
// non-running result had arrived, and predictions still in flight are
// dropped when they return.
func (a *App) End(ctx context.Context) error {
	a.commandMu.Lock()
	defer a.commandMu.Unlock()

	if _, err := a.closeSession(ctx, func(floor uint64) session.Event {
		return session.End{Floor: floor}
	}); err != nil {
		return err
	}
	if a.journal != nil {
		if err := a.journal.EndRun(ctx); err != nil && !errors.Is(err, journal.ErrNoRun) {
			logf("failed to end journal run: %v", err)
		}
	}
	a.poller.SetActive(false)
	a.poller.Refresh()
	logf("session ended")
	return nil
}

// Reset asks the service to drop its session data, then clears the local
// state, the displayed summary and the journal. Local state is reset even
// when the remote call fails; that error is returned.
func (a *App) Reset(ctx context.Context) error {
	a.commandMu.Lock()
	defer a.commandMu.Unlock()

	remoteErr := a.service.Reset(ctx)
	a.observeHealth(remoteErr)
	if remoteErr != nil {
		logf("remote session reset failed, resetting locally: %v", remoteErr)
	}

	// results for samples already dispatched belong to the old session
	if _, err := a.closeSession(ctx, func(floor uint64) session.Event {
		return session.Reset{Floor: floor}
	}); err != nil {
		return err
	}
	a.poller.SetActive(false)
	a.poller.Clear()
	if a.journal != nil {
		a.drainJournalQueue()
		if err := a.journal.Clear(ctx); err != nil {
			logf("failed to clear journal: %v", err)
		}
	}
	a.notify()
	logf("session reset")

	if remoteErr != nil {
		return fmt.Errorf("remote reset failed: %w", remoteErr)
	}
	return nil
}
