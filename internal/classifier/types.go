// Package classifier is the client for the remote movement classification
// service: per-sample predictions, the aggregate session summary, and the
// remote session reset.
package classifier

import (
	"strings"

	"gonum.org/v1/gonum/floats"
)

// MovementType is the coarse movement class reported for a sample.
type MovementType int

const (
	MovementOther MovementType = iota
	MovementWalking
	MovementRunning
	MovementIrregular
	MovementUnknown
)

func (m MovementType) String() string {
	switch m {
	case MovementWalking:
		return "Walking"
	case MovementRunning:
		return "Running"
	case MovementIrregular:
		return "Irregular"
	case MovementUnknown:
		return "Unknown"
	default:
		return "Other"
	}
}

// ParseMovementType maps the service's movement_type string onto a
// MovementType. The service labels low-confidence samples "Unknown Movement";
// that and the bare "Unknown" are both MovementUnknown. Classes the tracker has
// no rule for (Jogging, Sitting, ...) are MovementOther.
func ParseMovementType(s string) MovementType {
	switch strings.TrimSpace(s) {
	case "Walking":
		return MovementWalking
	case "Running":
		return MovementRunning
	case "Irregular":
		return MovementIrregular
	case "Unknown", "Unknown Movement":
		return MovementUnknown
	default:
		return MovementOther
	}
}

// Result is one classification returned by /predict. It is immutable once
// decoded.
type Result struct {
	Label         string       `json:"label"`
	Movement      MovementType `json:"-"`
	MovementRaw   string       `json:"movement_type"`
	Probabilities []float64    `json:"probabilities"`
	Warning       string       `json:"warning,omitempty"`
	UnknownCount  int          `json:"unknown_movement_count"`
}

// Confidence returns the largest class probability, or 0 when none were sent.
func (r Result) Confidence() float64 {
	if len(r.Probabilities) == 0 {
		return 0
	}
	return floats.Max(r.Probabilities)
}

// Summary is the aggregate snapshot owned by the remote service. The client
// only displays the last one fetched.
type Summary struct {
	TotalWalkingTime        float64 `json:"total_walking_time"`
	TotalRunningTime        float64 `json:"total_running_time"`
	TotalIrregularMovements int     `json:"total_irregular_movements"`
	SessionDuration         float64 `json:"session_duration"`
	TotalWalkingSessions    int     `json:"total_walking_sessions"`
	TotalRunningSessions    int     `json:"total_running_sessions"`
}
