// Package validate is the validation/state-derivation engine: for each
// newly ingested block it reconstructs the pre-state each solution reads,
// runs the block's predicates against it, records any failures, and
// advances a progress marker — all driven by the store's change notifier
// rather than polling.
package validate

import (
	"context"

	"github.com/essential-contributions/essential-node/foundation/hash"
)

// Outcome is the per-block result of a validation pass.
type Outcome struct {
	BlockNumber uint64
	BlockID     int64
	// FailedSetIndices lists the solution_set_index values that failed their
	// predicate checks, within block order; empty means every set passed.
	FailedSetIndices []uint64
}

// Valid reports whether every solution set in the block passed.
func (o Outcome) Valid() bool {
	return len(o.FailedSetIndices) == 0
}

// StateView is the pre-state a predicate reads from: every (contractAddr,
// key) lookup resolves to the value visible immediately before the solution
// being checked is applied.
type StateView interface {
	Get(ctx context.Context, contractAddr hash.Address, key []byte) ([]byte, bool, error)
}

// Predicate is the opaque external interpreter a solution's predicate
// bytecode is checked against. Implementations are expected to be pure
// functions of their inputs.
type Predicate interface {
	// Check evaluates bytecode against a solution's pre-state view, decision
	// variables and predicate data, returning nil if the solution is
	// accepted or a non-nil error (not necessarily an *errs.Error) if
	// rejected. The returned error's text is recorded for operators but is
	// not itself part of the chain's durable state — only pass/fail is.
	Check(ctx context.Context, bytecode []byte, contractAddr hash.Address, view StateView, decVars, predData [][]byte) error
}
