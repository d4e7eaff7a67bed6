package session

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/banshee-data/gait.report/internal/monitoring"
	"github.com/banshee-data/gait.report/internal/timeutil"
)

var logf = monitoring.Component("session")

// Observer is called from the tracker loop after every applied event.
// It must not block and must not call back into the Tracker.
type Observer func(e Event, tr Transition, s State)

type envelope struct {
	event Event
	reply chan State
}

// Tracker serializes events through Step. Every event, including ticks, is
// processed to completion before the next one is taken off the queue.
type Tracker struct {
	th        Thresholds
	clock     timeutil.Clock
	tickEvery time.Duration
	events    chan envelope
	observer  Observer

	mu    sync.Mutex
	state State

	subscriberMu sync.Mutex
	subscribers  map[string]chan State
}

// NewTracker creates a Tracker. tickEvery is the wall-clock length of one
// elapsed second and is normally time.Second.
func NewTracker(th Thresholds, clock timeutil.Clock, tickEvery time.Duration) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if tickEvery <= 0 {
		tickEvery = time.Second
	}
	return &Tracker{
		th:          th,
		clock:       clock,
		tickEvery:   tickEvery,
		events:      make(chan envelope, 64),
		subscribers: make(map[string]chan State),
	}
}

// SetObserver installs fn as the transition observer. Call it before Run.
func (t *Tracker) SetObserver(fn Observer) {
	t.observer = fn
}

// Submit queues e without waiting for it to be applied.
func (t *Tracker) Submit(ctx context.Context, e Event) error {
	select {
	case t.events <- envelope{event: e}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply queues e and waits until it has been applied, returning the resulting
// state.
func (t *Tracker) Apply(ctx context.Context, e Event) (State, error) {
	reply := make(chan State, 1)
	select {
	case t.events <- envelope{event: e, reply: reply}:
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe returns a channel that receives the latest state after every
// applied event. Slow readers only ever see the most recent state.
func (t *Tracker) Subscribe() (string, <-chan State) {
	b := make([]byte, 8)
	crand.Read(b)
	id := hex.EncodeToString(b)

	ch := make(chan State, 1)
	t.subscriberMu.Lock()
	t.subscribers[id] = ch
	t.subscriberMu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (t *Tracker) Unsubscribe(id string) {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

// Run processes events until ctx is done. The elapsed ticker exists only while
// a segment is active and is restarted whenever a new segment opens.
func (t *Tracker) Run(ctx context.Context) error {
	var (
		ticker timeutil.Ticker
		tickC  <-chan time.Time
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer stopTicker()

	for {
		var (
			e     Event
			reply chan State
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-t.events:
			e, reply = env.event, env.reply
		case <-tickC:
			e = Tick{}
		}

		s, tr := t.apply(e)

		if tr.Opened != KindNone || s.Active.Kind == KindNone {
			stopTicker()
		}
		if s.Active.Kind != KindNone && ticker == nil {
			ticker = t.clock.NewTicker(t.tickEvery)
			tickC = ticker.C()
		}

		if reply != nil {
			reply <- s
		}
		t.publish(s)
	}
}

func (t *Tracker) apply(e Event) (State, Transition) {
	t.mu.Lock()
	s, tr := Step(t.th, t.state, e)
	t.state = s
	t.mu.Unlock()

	switch {
	case tr.Stale:
		logf("dropped stale result seq=%d (last applied %d)", e.(Classified).Seq, s.LastSeq)
	case tr.Committed:
		logf("%s session completed after %ds", tr.Closed.Kind, tr.Closed.ElapsedSeconds)
	case tr.Discarded:
		logf("%s segment discarded after %ds, switched to %s", tr.Closed.Kind, tr.Closed.ElapsedSeconds, tr.Opened)
	case tr.Closed.Kind != KindNone:
		logf("%s segment ended after %ds, below threshold", tr.Closed.Kind, tr.Closed.ElapsedSeconds)
	case tr.Reset:
		logf("session state reset")
	}
	if tr.WarningRaised {
		logf("persistent warning raised after %d consecutive unknown results", s.ConsecutiveUnknownCount)
	}

	if t.observer != nil {
		t.observer(e, tr, s)
	}
	return s, tr
}

func (t *Tracker) publish(s State) {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	for _, ch := range t.subscribers {
		select {
		case ch <- s:
		default:
			// replace the unread state with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
