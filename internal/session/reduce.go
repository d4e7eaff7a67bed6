package session

import "github.com/banshee-data/gait.report/internal/classifier"

// Event is anything the tracker consumes.
type Event interface {
	isEvent()
}

// Classified carries one prediction. Seq is assigned when the sample is
// dispatched; zero means unsequenced and is always applied.
type Classified struct {
	Seq    uint64
	Result classifier.Result
}

// Tick is one elapsed second of the active segment.
type Tick struct{}

// Reset clears counters and the active segment. Floor raises the stale
// threshold so results for requests issued before the reset are dropped.
type Reset struct {
	Floor uint64
}

// Start opens a session.
type Start struct{}

// End closes the session, closing any active segment as a "neither" result
// would. Floor raises the stale threshold like Reset's, so results for
// samples dispatched while the session was open cannot reopen a segment.
type End struct {
	Floor uint64
}

func (Classified) isEvent() {}
func (Tick) isEvent()       {}
func (Reset) isEvent()      {}
func (Start) isEvent()      {}
func (End) isEvent()        {}

// Transition describes what Step did, for logging and the journal.
type Transition struct {
	// Stale is set when a Classified event was ignored.
	Stale bool
	// Opened is the kind of a segment started by this event.
	Opened Kind
	// Closed is the segment ended by this event, as it was when it ended.
	Closed Segment
	// Committed is set when Closed met its threshold and was counted.
	Committed bool
	// Discarded is set when Closed was replaced by the other activity and
	// therefore not counted regardless of its length.
	Discarded bool
	// WarningRaised is set on the event that turned the persistent warning on.
	WarningRaised bool
	Reset         bool
}

// Reduce applies e to s and returns the new state.
func Reduce(th Thresholds, s State, e Event) State {
	next, _ := Step(th, s, e)
	return next
}

// Step applies e to s. It has no side effects.
func Step(th Thresholds, s State, e Event) (State, Transition) {
	var tr Transition

	switch ev := e.(type) {
	case Classified:
		if ev.Seq != 0 && ev.Seq <= s.LastSeq {
			tr.Stale = true
			return s, tr
		}
		if ev.Seq > s.LastSeq {
			s.LastSeq = ev.Seq
		}
		res := ev.Result
		s.Last = &res
		s.Processed++

		switch res.Movement {
		case classifier.MovementWalking:
			s, tr = enter(s, tr, KindWalking)
		case classifier.MovementRunning:
			s, tr = enter(s, tr, KindRunning)
		default:
			s, tr = closeActive(th, s, tr)
		}

		wasWarning := s.PersistentWarningActive
		if res.Movement == classifier.MovementUnknown {
			s.ConsecutiveUnknownCount++
		} else {
			s.ConsecutiveUnknownCount = 0
		}
		s.PersistentWarningActive = s.ConsecutiveUnknownCount >= th.UnknownWarningCount
		tr.WarningRaised = s.PersistentWarningActive && !wasWarning

	case Tick:
		if s.Active.Kind != KindNone {
			s.Active.ElapsedSeconds++
		}

	case Reset:
		floor := s.LastSeq
		if ev.Floor > floor {
			floor = ev.Floor
		}
		s = State{LastSeq: floor}
		tr.Reset = true

	case Start:
		s.SessionOpen = true

	case End:
		if ev.Floor > s.LastSeq {
			s.LastSeq = ev.Floor
		}
		s.SessionOpen = false
		s, tr = closeActive(th, s, tr)
	}

	return s, tr
}

// enter starts a segment of kind k unless one is already running. A segment of
// the other kind is discarded without being counted.
func enter(s State, tr Transition, k Kind) (State, Transition) {
	if s.Active.Kind == k {
		return s, tr
	}
	if s.Active.Kind != KindNone {
		tr.Closed = s.Active
		tr.Discarded = true
	}
	s.Active = Segment{Kind: k}
	tr.Opened = k
	return s, tr
}

// closeActive ends the active segment, counting it if it reached its
// threshold.
func closeActive(th Thresholds, s State, tr Transition) (State, Transition) {
	if s.Active.Kind == KindNone {
		return s, tr
	}
	tr.Closed = s.Active
	if s.Active.ElapsedSeconds >= th.minimum(s.Active.Kind) {
		tr.Committed = true
		switch s.Active.Kind {
		case KindWalking:
			s.WalkingSessionsCompleted++
		case KindRunning:
			s.RunningSessionsCompleted++
		}
	}
	s.Active = Segment{}
	return s, tr
}
