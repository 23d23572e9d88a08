// Package clean provides the cleaning stages of a refine pipeline.
//
// Every stage satisfies Step. Transformers always return a record; filters
// return ok == false to drop one. Stages are built once and shared: all of
// them are safe for concurrent use, and only DuplicateRemover keeps state
// between calls.
package clean

import (
	"errors"

	"github.com/cognicore/refine/pkg/refine/record"
)

// ErrConfig marks a stage configuration that can never work.
var ErrConfig = errors.New("invalid step configuration")

// Step is one configured unit of transformation or filtering.
type Step interface {
	// Name identifies the stage in logs and run statistics.
	Name() string
	// Process transforms or filters one record. ok is false when the record
	// must be dropped. A returned record has the same shape as the input.
	Process(rec record.Record) (out record.Record, ok bool)
	// Config reports the static configuration of the stage.
	Config() map[string]any
}

// OrderSensitive is implemented by steps whose decision for one record
// depends on the records processed before it. Such steps see a batch one
// record at a time, in input order.
type OrderSensitive interface {
	OrderSensitive() bool
}

// StepFunc adapts a function to the Step interface. It carries no
// configuration.
type StepFunc struct {
	Label string
	Fn    func(rec record.Record) (record.Record, bool)
}

// Name implements Step.
func (f StepFunc) Name() string { return f.Label }

// Process implements Step.
func (f StepFunc) Process(rec record.Record) (record.Record, bool) {
	if !record.Valid(rec) {
		return nil, false
	}
	return f.Fn(rec)
}

// Config implements Step.
func (f StepFunc) Config() map[string]any { return map[string]any{} }
