package validate

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/essential-contributions/essential-node/foundation/hash"
	"github.com/essential-contributions/essential-node/foundation/notify"
	"github.com/essential-contributions/essential-node/foundation/store"
)

// Opcodes and interpreter mirroring foundation/validate/refpredicate, kept
// local to this test file because refpredicate imports this package (it
// can't also be imported from an internal test file here without creating
// an import cycle).
const (
	refpredicateOpAccept           byte = 0x00
	refpredicateOpReject           byte = 0x01
	refpredicateOpRequireKeyEquals byte = 0x02
)

type refpredicateInterpreter struct{}

func (refpredicateInterpreter) Check(ctx context.Context, bytecode []byte, contractAddr hash.Address, view StateView, decVars, predData [][]byte) error {
	if len(bytecode) == 0 {
		return fmt.Errorf("refpredicate: empty bytecode")
	}

	switch op := bytecode[0]; op {
	case refpredicateOpAccept:
		return nil
	case refpredicateOpReject:
		return fmt.Errorf("refpredicate: rejected by OpReject")
	case refpredicateOpRequireKeyEquals:
		key, err := refpredicateDecodeKey(bytecode[1:])
		if err != nil {
			return err
		}
		if len(predData) == 0 {
			return fmt.Errorf("refpredicate: OpRequireKeyEquals needs pred_data[0]")
		}
		value, ok, err := view.Get(ctx, contractAddr, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("refpredicate: key not found")
		}
		if !bytes.Equal(value, predData[0]) {
			return fmt.Errorf("refpredicate: value mismatch")
		}
		return nil
	default:
		return fmt.Errorf("refpredicate: unrecognised opcode %#x", op)
	}
}

func refpredicateDecodeKey(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("refpredicate: truncated key length")
	}
	n := binary.BigEndian.Uint32(b)
	if uint32(len(b)-4) < n {
		return nil, fmt.Errorf("refpredicate: truncated key")
	}
	return b[4 : 4+n], nil
}

const (
	success = "✓"
	failed  = "✗"
)

func encodeKey(key []byte) []byte {
	b := make([]byte, 4+len(key))
	binary.BigEndian.PutUint32(b, uint32(len(key)))
	copy(b[4:], key)
	return b
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.InMemoryDBPath, 2)
	if err != nil {
		t.Fatalf("\t%s\topening store: %v", failed, err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func mustHash(t *testing.T, seed string) hash.Address {
	t.Helper()
	addr, err := hash.Of(seed)
	if err != nil {
		t.Fatalf("\t%s\thashing %q: %v", failed, seed, err)
	}
	return addr
}

func Test_SweepValidatesPassingBlock(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	contractAddr := mustHash(t, "contract")
	predicateAddr := mustHash(t, "predicate")

	if err := st.InsertContract(ctx, store.Contract{
		ContentHash: contractAddr,
		Predicates:  []store.Predicate{{ContentHash: predicateAddr, Bytecode: []byte{refpredicateOpAccept}}},
	}); err != nil {
		t.Fatalf("\t%s\tinserting contract: %v", failed, err)
	}

	genesis := store.Block{
		Address: mustHash(t, "genesis"),
		Number:  0,
		SolutionSets: []store.SolutionSetRef{{
			SolutionSetIndex: 0,
			SolutionSet: store.SolutionSet{
				ContentHash: mustHash(t, "genesis-set"),
				Solutions: []store.Solution{{
					ContractAddr:  contractAddr,
					PredicateAddr: predicateAddr,
					Mutations:     []store.Mutation{{Key: []byte("k"), Value: []byte("v")}},
				}},
			},
		}},
	}
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\tinserting genesis: %v", failed, err)
	}

	stream := New(Config{}, st, refpredicateInterpreter{}, notify.New(), notify.New(), zap.NewNop().Sugar())
	n, err := stream.sweep(ctx)
	if err != nil {
		t.Fatalf("\t%s\tsweep returned error: %v", failed, err)
	}
	if n != 1 {
		t.Fatalf("\t%s\tgot %d checked blocks, expected 1", failed, n)
	}

	outcome := stream.Latest()
	if !outcome.Valid() {
		t.Fatalf("\t%s\texpected the block to pass, failed sets: %v", failed, outcome.FailedSetIndices)
	}
	t.Logf("\t%s\tpassing block recorded with no failed sets", success)

	vp, ok, err := st.GetValidationProgress(ctx)
	if err != nil || !ok || vp.BlockNumber != 0 {
		t.Fatalf("\t%s\tunexpected validation progress: %+v ok=%v err=%v", failed, vp, ok, err)
	}
}

func Test_SweepRecordsFailedSet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	contractAddr := mustHash(t, "contract")
	predicateAddr := mustHash(t, "predicate")

	if err := st.InsertContract(ctx, store.Contract{
		ContentHash: contractAddr,
		Predicates:  []store.Predicate{{ContentHash: predicateAddr, Bytecode: []byte{refpredicateOpReject}}},
	}); err != nil {
		t.Fatalf("\t%s\tinserting contract: %v", failed, err)
	}

	genesis := store.Block{
		Address: mustHash(t, "genesis"),
		Number:  0,
		SolutionSets: []store.SolutionSetRef{{
			SolutionSetIndex: 0,
			SolutionSet: store.SolutionSet{
				ContentHash: mustHash(t, "genesis-set"),
				Solutions: []store.Solution{{
					ContractAddr:  contractAddr,
					PredicateAddr: predicateAddr,
					Mutations:     []store.Mutation{{Key: []byte("k"), Value: []byte("v")}},
				}},
			},
		}},
	}
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\tinserting genesis: %v", failed, err)
	}

	stream := New(Config{}, st, refpredicateInterpreter{}, notify.New(), notify.New(), zap.NewNop().Sugar())
	if _, err := stream.sweep(ctx); err != nil {
		t.Fatalf("\t%s\tsweep returned error: %v", failed, err)
	}

	outcome := stream.Latest()
	if outcome.Valid() || len(outcome.FailedSetIndices) != 1 || outcome.FailedSetIndices[0] != 0 {
		t.Fatalf("\t%s\texpected set 0 to fail, got %+v", failed, outcome)
	}
	t.Logf("\t%s\tfailing predicate recorded as a failed set, not an error", success)

	// Progress still advances past a block with a failed set: failure is a
	// normal outcome, not a retryable infrastructure error.
	vp, ok, err := st.GetValidationProgress(ctx)
	if err != nil || !ok || vp.BlockNumber != 0 {
		t.Fatalf("\t%s\tunexpected validation progress: %+v ok=%v err=%v", failed, vp, ok, err)
	}

	genesisID, _, err := st.GetBlockID(ctx, genesis.Address)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}
	failedSets, err := st.GetFailedSets(ctx, genesisID)
	if err != nil || len(failedSets) != 1 {
		t.Fatalf("\t%s\texpected one persisted failed_block row, got %v err=%v", failed, failedSets, err)
	}
}

// Test_SweepAppliesStoredPredDataAndDecVars guards against the predicate
// being checked against empty dec_vars/pred_data regardless of what the
// solution actually stored: it round-trips a solution's pred_data through
// the store and into a predicate (OpRequireKeyEquals) that only passes if
// the pred_data it receives matches what was inserted.
func Test_SweepAppliesStoredPredDataAndDecVars(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	contractAddr := mustHash(t, "contract")
	genesisPredicateAddr := mustHash(t, "genesis-predicate")
	checkPredicateAddr := mustHash(t, "check-predicate")

	checkBytecode := append([]byte{refpredicateOpRequireKeyEquals}, encodeKey([]byte("k"))...)

	if err := st.InsertContract(ctx, store.Contract{
		ContentHash: contractAddr,
		Predicates: []store.Predicate{
			{ContentHash: genesisPredicateAddr, Bytecode: []byte{refpredicateOpAccept}},
			{ContentHash: checkPredicateAddr, Bytecode: checkBytecode},
		},
	}); err != nil {
		t.Fatalf("\t%s\tinserting contract: %v", failed, err)
	}

	genesis := store.Block{
		Address: mustHash(t, "genesis"),
		Number:  0,
		SolutionSets: []store.SolutionSetRef{{
			SolutionSetIndex: 0,
			SolutionSet: store.SolutionSet{
				ContentHash: mustHash(t, "genesis-set"),
				Solutions: []store.Solution{{
					ContractAddr:  contractAddr,
					PredicateAddr: genesisPredicateAddr,
					Mutations:     []store.Mutation{{Key: []byte("k"), Value: []byte("v-pre")}},
				}},
			},
		}},
	}
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\tinserting genesis: %v", failed, err)
	}
	genesisID, _, err := st.GetBlockID(ctx, genesis.Address)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}

	child := store.Block{
		Address:       mustHash(t, "child"),
		ParentBlockID: genesisID,
		Number:        1,
		SolutionSets: []store.SolutionSetRef{{
			SolutionSetIndex: 0,
			SolutionSet: store.SolutionSet{
				ContentHash: mustHash(t, "child-set"),
				Solutions: []store.Solution{{
					ContractAddr:  contractAddr,
					PredicateAddr: checkPredicateAddr,
					DecVars:       []store.DecVar{{DecVarIndex: 0, Value: []byte("unused")}},
					PredData:      []store.PredData{{PredDataIndex: 0, Value: []byte("v-pre")}},
				}},
			},
		}},
	}
	if err := st.InsertBlock(ctx, child); err != nil {
		t.Fatalf("\t%s\tinserting child: %v", failed, err)
	}

	stream := New(Config{}, st, refpredicateInterpreter{}, notify.New(), notify.New(), zap.NewNop().Sugar())
	if _, err := stream.sweep(ctx); err != nil {
		t.Fatalf("\t%s\tsweep returned error: %v", failed, err)
	}

	outcome := stream.Latest()
	if !outcome.Valid() {
		t.Fatalf("\t%s\texpected child block to pass using its stored pred_data, failed sets: %v", failed, outcome.FailedSetIndices)
	}
	t.Logf("\t%s\tsweep fed the solution's stored dec_vars/pred_data to its predicate, not empty slices", success)
}
