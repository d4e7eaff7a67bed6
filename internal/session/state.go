// Package session turns the stream of per-sample movement classifications into
// walking/running segments, completed-session counters and the persistent
// unknown-movement warning.
//
// The rules live in Step, a pure function over State. Tracker feeds Step from a
// single event queue and owns the one-second elapsed-time ticker.
package session

import (
	"github.com/banshee-data/gait.report/internal/classifier"
)

// Kind is the activity of a segment.
type Kind int

const (
	KindNone Kind = iota
	KindWalking
	KindRunning
)

func (k Kind) String() string {
	switch k {
	case KindWalking:
		return "walking"
	case KindRunning:
		return "running"
	default:
		return "none"
	}
}

// Segment is the in-progress activity. Kind == KindNone means no segment, so
// walking and running can never both be active.
type Segment struct {
	Kind           Kind `json:"kind"`
	ElapsedSeconds int  `json:"elapsed_seconds"`
}

// Counters are the session statistics. They only grow between resets.
type Counters struct {
	WalkingSessionsCompleted int  `json:"walking_sessions_completed"`
	RunningSessionsCompleted int  `json:"running_sessions_completed"`
	ConsecutiveUnknownCount  int  `json:"consecutive_unknown_count"`
	PersistentWarningActive  bool `json:"persistent_warning_active"`
}

// Thresholds configure Step.
type Thresholds struct {
	WalkingSeconds      int
	RunningSeconds      int
	UnknownWarningCount int
}

// DefaultThresholds returns 60 s walking, 120 s running and a warning after 8
// consecutive unknown results.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WalkingSeconds:      60,
		RunningSeconds:      120,
		UnknownWarningCount: 8,
	}
}

func (th Thresholds) minimum(k Kind) int {
	switch k {
	case KindWalking:
		return th.WalkingSeconds
	case KindRunning:
		return th.RunningSeconds
	}
	return 0
}

// State is the complete tracker state. Values are copied, never shared; the
// Result behind Last is treated as immutable.
type State struct {
	Active Segment `json:"active"`
	Counters

	// SessionOpen is set by Start and cleared by End or Reset.
	SessionOpen bool `json:"session_open"`

	// Last is the most recently applied classification, nil after a reset.
	Last *classifier.Result `json:"last,omitempty"`

	// LastSeq is the highest sequence number applied so far. Results with a
	// lower or equal non-zero sequence are stale.
	LastSeq uint64 `json:"last_seq"`

	// Processed counts applied classifications since the last reset.
	Processed int `json:"processed"`
}

// IsWalking reports whether a walking segment is active.
func (s State) IsWalking() bool { return s.Active.Kind == KindWalking }

// IsRunning reports whether a running segment is active.
func (s State) IsRunning() bool { return s.Active.Kind == KindRunning }
