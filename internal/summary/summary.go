// Package summary condenses ratio samples into order statistics and fixed histogram buckets.
package summary

import (
	"math"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/montanaflynn/stats"

	"github.com/mickamy/cardest/internal/errs"
)

// Stats describes the distribution of a sample collection.
type Stats struct {
	Count  int     `json:"count"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

// Summarize returns the median, 95th percentile and maximum of values.
func Summarize(values []float64) (Stats, error) {
	if len(values) == 0 {
		return Stats{}, errors.Wrap(errs.ErrEmptyInput, "summarize")
	}
	data := stats.Float64Data(values)

	median, err := stats.Median(data)
	if err != nil {
		return Stats{}, errors.Wrap(err, "summarize: median")
	}
	maximum, err := stats.Max(data)
	if err != nil {
		return Stats{}, errors.Wrap(err, "summarize: max")
	}
	return Stats{
		Count:  len(values),
		Median: median,
		P95:    Percentile(values, 95),
		Max:    maximum,
	}, nil
}

// Percentile interpolates linearly between the two closest ranks, so that
// Percentile(v, 50) equals the median. p is clamped to [0, 100]; an empty
// input yields NaN.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	p = math.Max(0, math.Min(100, p))
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
