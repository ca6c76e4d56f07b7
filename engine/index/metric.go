// Package index is an in-memory exact nearest-neighbour index over embedded
// corpus rows.
package index

import (
	"strings"

	"github.com/WessleyAI/issuesim/engine/domain"
)

// Metric selects how distance between two vectors is measured.
type Metric string

const (
	// MetricDot ranks by inner product; distance is the negated product.
	MetricDot Metric = "dot"
	// MetricL2 ranks by squared euclidean distance.
	MetricL2 Metric = "l2"
)

// ParseMetric parses a configured metric name. Empty means MetricDot.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dot", "ip", "inner_product":
		return MetricDot, nil
	case "l2", "euclidean":
		return MetricL2, nil
	default:
		return "", domain.NewValidationError("metric", s, domain.ErrUnknownMetric)
	}
}

// distance is the native, ascending-is-closer measure for m.
func (m Metric) distance(a, b []float32) float32 {
	switch m {
	case MetricL2:
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return sum
	default:
		var dot float32
		for i := range a {
			dot += a[i] * b[i]
		}
		return -dot
	}
}

// Score converts a native distance into a relevance score where higher is
// more similar: the inner product for MetricDot, the negated squared
// distance for MetricL2.
func (m Metric) Score(distance float32) float32 {
	return -distance
}
