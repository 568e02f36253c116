package telemetry

import (
	"sort"

	"github.com/Carmen-Shannon/cytosim-go/common"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FieldStats summarizes one concentration field snapshot.
type FieldStats struct {
	TotalMass float64 // sum over all voxels
	Mean      float64
	Max       float64
	P50       float64
	P90       float64
}

// ComputeFieldStats computes summary statistics for a field snapshot.
// An empty field yields all zeros.
func ComputeFieldStats(field []float32) FieldStats {
	if len(field) == 0 {
		return FieldStats{}
	}

	vals := common.Float64s(field)
	s := FieldStats{
		TotalMass: floats.Sum(vals),
		Mean:      stat.Mean(vals, nil),
		Max:       floats.Max(vals),
	}

	// Quantile requires sorted input; vals is our own copy.
	sort.Float64s(vals)
	s.P50 = stat.Quantile(0.5, stat.Empirical, vals, nil)
	s.P90 = stat.Quantile(0.9, stat.Empirical, vals, nil)
	return s
}
