package journal

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ConfidenceStats summarises recent classification confidences.
type ConfidenceStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"p50"`
	P85    float64 `json:"p85"`
	P98    float64 `json:"p98"`
}

// ConfidenceStats computes statistics over the last n confidences. With no
// data every field is zero.
func (j *Journal) ConfidenceStats(ctx context.Context, n int) (ConfidenceStats, error) {
	values, err := j.RecentConfidences(ctx, n)
	if err != nil {
		return ConfidenceStats{}, err
	}
	return summarise(values), nil
}

func summarise(values []float64) ConfidenceStats {
	if len(values) == 0 {
		return ConfidenceStats{}
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return ConfidenceStats{
		Count:  len(values),
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P85:    stat.Quantile(0.85, stat.Empirical, sorted, nil),
		P98:    stat.Quantile(0.98, stat.Empirical, sorted, nil),
	}
}
