package clean

import (
	"fmt"
	"math"

	"github.com/cognicore/refine/pkg/refine/record"
)

// Unbounded disables the upper word-count bound of a QualityFilter.
const Unbounded = -1

// QualityFilter admits records whose word count lies in [min, max].
//
// Very short samples bias training and very long ones are noisy or blow
// memory limits, so both ends are configurable.
type QualityFilter struct {
	min int
	max int
}

// NewQualityFilter creates a filter with inclusive word-count bounds. A
// max of Unbounded means no upper bound; other negative bounds are errors.
func NewQualityFilter(min, max int) (*QualityFilter, error) {
	switch {
	case max == Unbounded:
		max = math.MaxInt
	case max < 0:
		return nil, fmt.Errorf("%w: max_length %d is negative", ErrConfig, max)
	}
	if min < 0 {
		return nil, fmt.Errorf("%w: min_length %d is negative", ErrConfig, min)
	}
	if min > max {
		return nil, fmt.Errorf("%w: min_length %d exceeds max_length %d", ErrConfig, min, max)
	}
	return &QualityFilter{min: min, max: max}, nil
}

// Name implements Step.
func (q *QualityFilter) Name() string { return "QualityFilter" }

// Admit reports whether rec passes the length bounds.
func (q *QualityFilter) Admit(rec record.Record) bool {
	n := WordCount(record.Text(rec, ""))
	return q.min <= n && n <= q.max
}

// Process implements Step.
func (q *QualityFilter) Process(rec record.Record) (record.Record, bool) {
	if !record.Valid(rec) || !q.Admit(rec) {
		return nil, false
	}
	return rec, true
}

// Config implements Step. An unbounded max is reported as nil.
func (q *QualityFilter) Config() map[string]any {
	var max any = q.max
	if q.max == math.MaxInt {
		max = nil
	}
	return map[string]any{
		"min_length": q.min,
		"max_length": max,
	}
}
