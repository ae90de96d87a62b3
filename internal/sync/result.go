package sync

import (
	"fmt"

	"go.uber.org/multierr"
)

// Verb is the store call an operation ended up making.
type Verb string

// Store calls.
const (
	VerbCreate          Verb = "create"
	VerbOverwrite       Verb = "overwrite"
	VerbDelete          Verb = "delete"
	VerbDeleteDirectory Verb = "delete-dir"
)

// Operation identifies one write of a sync.
type Operation struct {
	// Target is "markdown", a slot name, an attachment key or "resources".
	Target string
	Path   string
	Verb   Verb
}

func (o Operation) String() string {
	if o.Path == "" {
		return fmt.Sprintf("%s %s", o.Verb, o.Target)
	}
	return fmt.Sprintf("%s %s (%s)", o.Verb, o.Target, o.Path)
}

// Failure is an operation the store rejected.
type Failure struct {
	Operation
	Err error
}

// Skip is an operation that was not attempted.
type Skip struct {
	Operation
	Reason error
}

// Result gathers the outcome of every operation of a sync. It is only built
// once all of them have finished.
type Result struct {
	Succeeded []Operation
	Failed    []Failure
	Skipped   []Skip
}

// OK reports whether no operation failed.
func (r *Result) OK() bool {
	return len(r.Failed) == 0
}

// Err combines the failures, nil when there are none.
func (r *Result) Err() error {
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, fmt.Errorf("%s: %w", f.Operation, f.Err))
	}
	return err
}

// outcome is what a single branch of the fan-out reports.
type outcome struct {
	op   Operation
	err  error
	skip error
}

func (r *Result) add(o outcome) {
	switch {
	case o.err != nil:
		r.Failed = append(r.Failed, Failure{Operation: o.op, Err: o.err})
	case o.skip != nil:
		r.Skipped = append(r.Skipped, Skip{Operation: o.op, Reason: o.skip})
	default:
		r.Succeeded = append(r.Succeeded, o.op)
	}
}
