package summary

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/mickamy/cardest/internal/errs"
)

// Edges are the fixed time-ratio bucket boundaries.
var Edges = []float64{0.3, 0.9, 1.1, 2, 10, 100, math.Inf(1)}

// Labels name the buckets delimited by Edges.
var Labels = []string{"0.3-0.9", "0.9-1.1", "1.1-2", "2-10", "10-100", ">100"}

// Bucket is one histogram interval.
type Bucket struct {
	Label   string  `json:"label"`
	Low     float64 `json:"low"`
	High    float64 `json:"high"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Histogram counts values into the fixed buckets. Intervals are half-open
// [low, high) except the last, which also holds +Inf. Values below the first
// edge and NaNs fall in no bucket but still count towards the denominator,
// so the percentages may add up to less than 100.
func Histogram(values []float64) ([]Bucket, error) {
	if len(values) == 0 {
		return nil, errors.Wrap(errs.ErrEmptyInput, "histogram")
	}

	buckets := make([]Bucket, len(Labels))
	for i := range buckets {
		buckets[i] = Bucket{Label: Labels[i], Low: Edges[i], High: Edges[i+1]}
	}

	for _, v := range values {
		if idx := bucketIndex(v); idx >= 0 {
			buckets[idx].Count++
		}
	}

	total := float64(len(values))
	for i := range buckets {
		buckets[i].Percent = float64(buckets[i].Count) / total * 100
	}
	return buckets, nil
}

func bucketIndex(v float64) int {
	if math.IsNaN(v) || v < Edges[0] {
		return -1
	}
	last := len(Edges) - 2
	for i := 0; i < last; i++ {
		if v < Edges[i+1] {
			return i
		}
	}
	return last
}
