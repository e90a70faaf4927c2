package engine

import "fmt"

// RecursionLimitError reports a delegation chain deeper than the configured
// maximum.
type RecursionLimitError struct {
	Worker string
	Depth  int
	Limit  int
}

func (e RecursionLimitError) Error() string {
	return fmt.Sprintf("calling worker %q would reach depth %d, limit is %d", e.Worker, e.Depth, e.Limit)
}

// DelegationError reports a call_worker target missing from the caller's
// allow-list. The target definition is never loaded in this case.
type DelegationError struct {
	Parent string
	Target string
}

func (e DelegationError) Error() string {
	return fmt.Sprintf("worker %q is not in the allow-list of %q", e.Target, e.Parent)
}

// NoModelError reports a worker invocation with no model anywhere in the
// resolution chain: the definition declares none, the caller carries none,
// and no host default is configured.
type NoModelError struct {
	Worker string
}

func (e NoModelError) Error() string {
	return fmt.Sprintf("worker %q has no model: none declared, none inherited, no host default", e.Worker)
}

// OutputError wraps a final-output failure, typically a schema violation.
type OutputError struct {
	Worker string
	Err    error
}

func (e OutputError) Error() string {
	return fmt.Sprintf("worker %q output rejected: %v", e.Worker, e.Err)
}

func (e OutputError) Unwrap() error { return e.Err }
