// Package dashboard renders the tracker state and the last fetched summary
// for the browser, and forwards the start, end and reset commands.
package dashboard

import (
	"fmt"
	"time"

	"github.com/banshee-data/gait.report/internal/session"
	"github.com/banshee-data/gait.report/internal/summary"
)

// PersistentWarning is shown when the tracker raises its own warning and the
// service did not send one.
const PersistentWarning = "Sensing persistent unknown movement. Are you okay?"

// View is everything the page displays. It is computed from state and holds
// no logic of its own.
type View struct {
	SessionOpen bool   `json:"session_open"`
	Movement    string `json:"movement"`
	Label       string `json:"label"`
	Confidence  string `json:"confidence"`
	Warning     string `json:"warning,omitempty"`

	Walking        bool `json:"walking"`
	WalkingSeconds int  `json:"walking_seconds"`
	Running        bool `json:"running"`
	RunningSeconds int  `json:"running_seconds"`

	WalkingSessionsCompleted int  `json:"walking_sessions_completed"`
	RunningSessionsCompleted int  `json:"running_sessions_completed"`
	ConsecutiveUnknownCount  int  `json:"consecutive_unknown_count"`
	PersistentWarningActive  bool `json:"persistent_warning_active"`

	Summary SummaryView `json:"summary"`
}

// SummaryView is the service summary with absent values shown as zero.
type SummaryView struct {
	WalkingTime        float64    `json:"walking_time"`
	RunningTime        float64    `json:"running_time"`
	IrregularMovements int        `json:"irregular_movements"`
	SessionDuration    float64    `json:"session_duration"`
	WalkingSessions    int        `json:"walking_sessions"`
	RunningSessions    int        `json:"running_sessions"`
	FetchedAt          *time.Time `json:"fetched_at,omitempty"`
}

// Project builds the View for s and the last summary. ok is false when no
// summary has been fetched since start or the last reset.
func Project(s session.State, snap summary.Snapshot, ok bool) View {
	v := View{
		SessionOpen:              s.SessionOpen,
		Confidence:               "N/A",
		Walking:                  s.IsWalking(),
		Running:                  s.IsRunning(),
		WalkingSessionsCompleted: s.WalkingSessionsCompleted,
		RunningSessionsCompleted: s.RunningSessionsCompleted,
		ConsecutiveUnknownCount:  s.ConsecutiveUnknownCount,
		PersistentWarningActive:  s.PersistentWarningActive,
	}

	switch s.Active.Kind {
	case session.KindWalking:
		v.WalkingSeconds = s.Active.ElapsedSeconds
	case session.KindRunning:
		v.RunningSeconds = s.Active.ElapsedSeconds
	}

	if r := s.Last; r != nil {
		v.Movement = r.MovementRaw
		if v.Movement == "" {
			v.Movement = r.Movement.String()
		}
		v.Label = r.Label
		if len(r.Probabilities) > 0 {
			v.Confidence = fmt.Sprintf("%.2f%%", r.Confidence()*100)
		}
		v.Warning = r.Warning
	}
	if v.Warning == "" && s.PersistentWarningActive {
		v.Warning = PersistentWarning
	}

	if ok {
		fetched := snap.FetchedAt
		v.Summary = SummaryView{
			WalkingTime:        snap.TotalWalkingTime,
			RunningTime:        snap.TotalRunningTime,
			IrregularMovements: snap.TotalIrregularMovements,
			SessionDuration:    snap.SessionDuration,
			WalkingSessions:    snap.TotalWalkingSessions,
			RunningSessions:    snap.TotalRunningSessions,
			FetchedAt:          &fetched,
		}
	}
	return v
}
