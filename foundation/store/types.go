// Package store is the relational block/state store: a persistent,
// content-addressed record of blocks, solution sets, solutions, mutations,
// decision variables and predicates, with schema-enforced invariants and
// parametric queries supporting recursive chain walks.
package store

import (
	"time"

	"github.com/essential-contributions/essential-node/foundation/hash"
)

// Timestamp is a (seconds, nanoseconds) pair, nanoseconds always in
// [0, 1_000_000_000).
type Timestamp struct {
	Secs  uint64
	Nanos uint32
}

// FromTime converts a time.Time into the store's (seconds, nanoseconds)
// representation, truncating to second/nanosecond precision.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Secs: uint64(t.Unix()), Nanos: uint32(t.Nanosecond())}
}

// GenesisParent is the sentinel parent block id referenced by the genesis
// block; no real block is ever assigned id 0.
const GenesisParent int64 = 0

// Block is a unit of chain progression: an ordered list of solution sets,
// identified by the content address of its own fields (including its
// parent's address and the ordered content addresses of its solution sets).
type Block struct {
	ID            int64
	Address       hash.Address
	ParentBlockID int64
	Number        uint64
	Timestamp     Timestamp
	SolutionSets  []SolutionSetRef
}

// SolutionSetRef is a solution set's membership in a block: its position and
// the solution set it refers to.
type SolutionSetRef struct {
	SolutionSetIndex uint64
	SolutionSet      SolutionSet
}

// SolutionSet is an ordered group of solutions applied atomically.
type SolutionSet struct {
	ID          int64
	ContentHash hash.Address
	Solutions   []Solution
}

// Solution is a declared change to a contract: mutations it wants to apply,
// gated by a predicate that must accept them given the solution's declared
// inputs.
type Solution struct {
	ID             int64
	SolutionSetID  int64
	SolutionIndex  uint64
	ContractAddr   hash.Address
	PredicateAddr  hash.Address
	Mutations      []Mutation
	DecVars        []DecVar
	PredData       []PredData
	PubVars        []PubVar
}

// Mutation is a (key, value) write attached to a solution, scoped to the
// solution's contract.
type Mutation struct {
	ID            int64
	SolutionID    int64
	MutationIndex uint64
	Key           []byte
	Value         []byte
}

// DecVar is an immutable decision-variable input to a solution's predicate.
type DecVar struct {
	ID           int64
	SolutionID   int64
	DecVarIndex  uint64
	Value        []byte
}

// PredData is an immutable, user-provided predicate argument, analogous to
// DecVar but supplied directly rather than derived from chain state.
type PredData struct {
	ID             int64
	SolutionID     int64
	PredDataIndex  uint64
	Value          []byte
}

// PubVar is a value a solution publishes, as opposed to Mutation which
// writes contract state. Pub vars are stored and listed with their solution;
// they are not passed to predicate checks.
type PubVar struct {
	ID           int64
	SolutionID   int64
	PubVarIndex  uint64
	Value        []byte
}

// Contract is a deployed predicate bundle.
type Contract struct {
	ID          int64
	ContentHash hash.Address
	Salt        []byte
	CreatedAt   Timestamp
	Predicates  []Predicate
}

// Predicate is an opaque bytecode program that accepts or rejects a
// solution given its pre-state view, decision variables and predicate data.
type Predicate struct {
	ID          int64
	ContentHash hash.Address
	Bytecode    []byte
}

// FailedSet records that a block's solution set failed its predicate
// checks.
type FailedSet struct {
	BlockID       int64
	SolutionSetID int64
}

// ValidationProgress points at the latest block whose predicate checks have
// been evaluated, pass or fail.
type ValidationProgress struct {
	BlockID     int64
	BlockNumber uint64
}

// StateValue is the result of a state query: the raw bytes found and the
// block number at which they were written.
type StateValue struct {
	Value       []byte
	BlockNumber uint64
}
