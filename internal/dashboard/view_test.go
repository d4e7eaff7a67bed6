package dashboard

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/gait.report/internal/classifier"
	"github.com/banshee-data/gait.report/internal/session"
	"github.com/banshee-data/gait.report/internal/summary"
)

func TestProject(t *testing.T) {
	fetched := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	snap := summary.Snapshot{
		Summary: classifier.Summary{
			TotalWalkingTime:        120,
			TotalRunningTime:        30.5,
			TotalIrregularMovements: 4,
			SessionDuration:         600,
			TotalWalkingSessions:    2,
			TotalRunningSessions:    1,
		},
		FetchedAt: fetched,
	}

	tests := []struct {
		name  string
		state session.State
		snap  summary.Snapshot
		ok    bool
		want  View
	}{
		{
			name:  "empty",
			state: session.State{},
			want:  View{Confidence: "N/A"},
		},
		{
			name: "walking with prediction",
			state: session.State{
				Active:      session.Segment{Kind: session.KindWalking, ElapsedSeconds: 42},
				SessionOpen: true,
				Counters:    session.Counters{WalkingSessionsCompleted: 1},
				Last: &classifier.Result{
					Label:         "1",
					Movement:      classifier.MovementWalking,
					MovementRaw:   "Walking",
					Probabilities: []float64{0.125, 0.875},
				},
			},
			want: View{
				SessionOpen:              true,
				Movement:                 "Walking",
				Label:                    "1",
				Confidence:               "87.50%",
				Walking:                  true,
				WalkingSeconds:           42,
				WalkingSessionsCompleted: 1,
			},
		},
		{
			name: "running elapsed",
			state: session.State{
				Active: session.Segment{Kind: session.KindRunning, ElapsedSeconds: 7},
				Last:   &classifier.Result{Movement: classifier.MovementRunning, Probabilities: []float64{1}},
			},
			want: View{
				Movement:       "Running",
				Confidence:     "100.00%",
				Running:        true,
				RunningSeconds: 7,
			},
		},
		{
			name: "no probabilities",
			state: session.State{
				Last: &classifier.Result{Movement: classifier.MovementOther, MovementRaw: "Jogging"},
			},
			want: View{Movement: "Jogging", Confidence: "N/A"},
		},
		{
			name: "local persistent warning",
			state: session.State{
				Counters: session.Counters{ConsecutiveUnknownCount: 8, PersistentWarningActive: true},
				Last:     &classifier.Result{Movement: classifier.MovementUnknown, MovementRaw: "Unknown Movement", Probabilities: []float64{0.3, 0.3, 0.4}},
			},
			want: View{
				Movement:                "Unknown Movement",
				Confidence:              "40.00%",
				Warning:                 PersistentWarning,
				ConsecutiveUnknownCount: 8,
				PersistentWarningActive: true,
			},
		},
		{
			name: "service warning wins",
			state: session.State{
				Counters: session.Counters{ConsecutiveUnknownCount: 9, PersistentWarningActive: true},
				Last:     &classifier.Result{Movement: classifier.MovementUnknown, MovementRaw: "Unknown", Warning: "are you okay?"},
			},
			want: View{
				Movement:                "Unknown",
				Confidence:              "N/A",
				Warning:                 "are you okay?",
				ConsecutiveUnknownCount: 9,
				PersistentWarningActive: true,
			},
		},
		{
			name:  "summary present",
			state: session.State{},
			snap:  snap,
			ok:    true,
			want: View{
				Confidence: "N/A",
				Summary: SummaryView{
					WalkingTime:        120,
					RunningTime:        30.5,
					IrregularMovements: 4,
					SessionDuration:    600,
					WalkingSessions:    2,
					RunningSessions:    1,
					FetchedAt:          &fetched,
				},
			},
		},
		{
			name:  "stale summary ignored when not ok",
			state: session.State{},
			snap:  snap,
			ok:    false,
			want:  View{Confidence: "N/A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Project(tt.state, tt.snap, tt.ok)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Project() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
