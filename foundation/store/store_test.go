package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/hash"
)

const (
	success = "✓"
	failed  = "✗"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), InMemoryDBPath, 2)
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

func mutationBlock(t *testing.T, seed string, number uint64, parentID int64, contractAddr, predicateAddr hash.Address, key, value []byte) Block {
	t.Helper()
	return Block{
		Address:       mustHash(t, seed),
		ParentBlockID: parentID,
		Number:        number,
		Timestamp:     Timestamp{Secs: number, Nanos: 0},
		SolutionSets: []SolutionSetRef{
			{
				SolutionSetIndex: 0,
				SolutionSet: SolutionSet{
					ContentHash: mustHash(t, seed+"-set"),
					Solutions: []Solution{
						{
							SolutionIndex: 0,
							ContractAddr:  contractAddr,
							PredicateAddr: predicateAddr,
							Mutations:     []Mutation{{MutationIndex: 0, Key: key, Value: value}},
						},
					},
				},
			},
		},
	}
}

func Test_GenesisOnly(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	contractAddr := mustHash(t, "contract")
	predicateAddr := mustHash(t, "predicate")

	genesis := mutationBlock(t, "genesis", 0, GenesisParent, contractAddr, predicateAddr, []byte("k"), []byte("v1"))
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\tinserting genesis: %v", failed, err)
	}

	num, ok, err := st.GetLatestBlockNumber(ctx)
	if err != nil || !ok || num != 0 {
		t.Fatalf("\t%s\tunexpected latest block number: %d ok=%v err=%v", failed, num, ok, err)
	}
	t.Logf("\t%s\tgenesis-only store has latest block number 0", success)
}

func Test_SingleWriteIsQueryable(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	contractAddr := mustHash(t, "contract")
	predicateAddr := mustHash(t, "predicate")

	genesis := mutationBlock(t, "genesis", 0, GenesisParent, contractAddr, predicateAddr, []byte("k"), []byte("v1"))
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\tinserting genesis: %v", failed, err)
	}
	genesisID, ok, err := st.GetBlockID(ctx, genesis.Address)
	if err != nil || !ok {
		t.Fatalf("\t%s\tlooking up genesis id: %v", failed, err)
	}

	sv, ok, err := st.GetOptimisticState(ctx, genesisID, contractAddr, []byte("k"))
	if err != nil {
		t.Fatalf("\t%s\tquerying state: %v", failed, err)
	}
	if !ok || string(sv.Value) != "v1" {
		t.Fatalf("\t%s\tgot value %q ok=%v, expected v1", failed, sv.Value, ok)
	}
	t.Logf("\t%s\tsingle write is queryable immediately after insertion", success)
}

func Test_FinalizeAndRequery(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	contractAddr := mustHash(t, "contract")
	predicateAddr := mustHash(t, "predicate")

	genesis := mutationBlock(t, "genesis", 0, GenesisParent, contractAddr, predicateAddr, []byte("k"), []byte("v1"))
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\tinserting genesis: %v", failed, err)
	}

	if _, _, found, _ := st.GetLatestFinalizedBlock(ctx); found {
		t.Fatalf("\t%s\texpected no finalized block yet", failed)
	}

	if err := st.FinalizeBlock(ctx, genesis.Address); err != nil {
		t.Fatalf("\t%s\tfinalizing genesis: %v", failed, err)
	}

	addr, number, found, err := st.GetLatestFinalizedBlock(ctx)
	if err != nil || !found || addr != genesis.Address || number != 0 {
		t.Fatalf("\t%s\tunexpected finalized tip: addr=%v number=%d found=%v err=%v", failed, addr, number, found, err)
	}

	sv, ok, err := st.GetFinalizedState(ctx, contractAddr, []byte("k"), 0, 0)
	if err != nil || !ok || string(sv.Value) != "v1" {
		t.Fatalf("\t%s\tfinalized state query failed: %v ok=%v err=%v", failed, sv.Value, ok, err)
	}
	t.Logf("\t%s\tfinalized tip is queryable via finalized state", success)

	if err := st.FinalizeBlock(ctx, genesis.Address); !errs.Is(err, errs.Integrity) {
		t.Fatalf("\t%s\tre-finalizing should be an integrity error, got %v", failed, err)
	}
	t.Logf("\t%s\tdouble-finalization rejected", success)
}

func Test_FinalizedStateRespectsBound(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	contractAddr := mustHash(t, "contract")
	predicateAddr := mustHash(t, "predicate")

	genesis := mutationBlock(t, "genesis", 0, GenesisParent, contractAddr, predicateAddr, []byte("k"), []byte("v0"))
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\tinserting genesis: %v", failed, err)
	}
	genesisID, _, err := st.GetBlockID(ctx, genesis.Address)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}

	child := mutationBlock(t, "child", 1, genesisID, contractAddr, predicateAddr, []byte("k"), []byte("v1"))
	if err := st.InsertBlock(ctx, child); err != nil {
		t.Fatalf("\t%s\tinserting child: %v", failed, err)
	}

	if err := st.FinalizeBlock(ctx, genesis.Address); err != nil {
		t.Fatalf("\t%s\tfinalizing genesis: %v", failed, err)
	}
	if err := st.FinalizeBlock(ctx, child.Address); err != nil {
		t.Fatalf("\t%s\tfinalizing child: %v", failed, err)
	}

	sv, ok, err := st.GetFinalizedState(ctx, contractAddr, []byte("k"), 1, 0)
	if err != nil || !ok || string(sv.Value) != "v1" {
		t.Fatalf("\t%s\tbound at tip: got %q ok=%v err=%v, expected v1", failed, sv.Value, ok, err)
	}
	t.Logf("\t%s\tbound at the finalized tip sees the tip's mutation", success)

	sv, ok, err = st.GetFinalizedState(ctx, contractAddr, []byte("k"), 0, 0)
	if err != nil || !ok || string(sv.Value) != "v0" {
		t.Fatalf("\t%s\tbound below tip: got %q ok=%v err=%v, expected v0", failed, sv.Value, ok, err)
	}
	t.Logf("\t%s\tbound below the finalized tip only sees mutations at or before the bound", success)
}

func Test_ForkResolution(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	contractAddr := mustHash(t, "contract")
	predicateAddr := mustHash(t, "predicate")

	genesis := mutationBlock(t, "genesis", 0, GenesisParent, contractAddr, predicateAddr, []byte("k"), []byte("v0"))
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\tinserting genesis: %v", failed, err)
	}
	genesisID, _, err := st.GetBlockID(ctx, genesis.Address)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}

	branchA := mutationBlock(t, "branch-a", 1, genesisID, contractAddr, predicateAddr, []byte("k"), []byte("va"))
	branchB := mutationBlock(t, "branch-b", 1, genesisID, contractAddr, predicateAddr, []byte("k"), []byte("vb"))
	if err := st.InsertBlock(ctx, branchA); err != nil {
		t.Fatalf("\t%s\tinserting branch A: %v", failed, err)
	}
	if err := st.InsertBlock(ctx, branchB); err != nil {
		t.Fatalf("\t%s\tinserting branch B: %v", failed, err)
	}

	idA, _, err := st.GetBlockID(ctx, branchA.Address)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}
	idB, _, err := st.GetBlockID(ctx, branchB.Address)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}

	svA, _, err := st.GetOptimisticState(ctx, idA, contractAddr, []byte("k"))
	if err != nil || string(svA.Value) != "va" {
		t.Fatalf("\t%s\tbranch A state incorrect: %v err=%v", failed, svA.Value, err)
	}
	svB, _, err := st.GetOptimisticState(ctx, idB, contractAddr, []byte("k"))
	if err != nil || string(svB.Value) != "vb" {
		t.Fatalf("\t%s\tbranch B state incorrect: %v err=%v", failed, svB.Value, err)
	}
	t.Logf("\t%s\tdivergent branches resolve to independent optimistic state", success)

	if err := st.FinalizeBlock(ctx, branchA.Address); err != nil {
		t.Fatalf("\t%s\tfinalizing branch A: %v", failed, err)
	}

	unfinalized, err := st.ListUnfinalizedDescendants(ctx, genesisID)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}
	found := false
	for _, id := range unfinalized {
		if id == idB {
			found = true
		}
	}
	if !found {
		t.Fatalf("\t%s\texpected branch B to remain an unfinalized descendant", failed)
	}
	t.Logf("\t%s\tlosing branch remains queryable but unfinalized", success)
}

func Test_InsertBlockIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	contractAddr := mustHash(t, "contract")
	predicateAddr := mustHash(t, "predicate")

	genesis := mutationBlock(t, "genesis", 0, GenesisParent, contractAddr, predicateAddr, []byte("k"), []byte("v1"))
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\tfirst insert: %v", failed, err)
	}
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\tsecond insert should be a no-op, got error: %v", failed, err)
	}

	blocks, err := st.ListBlocks(ctx, 0, 1, 10, 0)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}
	if len(blocks) != 1 {
		t.Fatalf("\t%s\tgot %d blocks, expected 1 after replay", failed, len(blocks))
	}
	t.Logf("\t%s\treplaying an already-stored block left the store unchanged", success)
}

func Test_ValidationProgressAndFailedSets(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	contractAddr := mustHash(t, "contract")
	predicateAddr := mustHash(t, "predicate")

	genesis := mutationBlock(t, "genesis", 0, GenesisParent, contractAddr, predicateAddr, []byte("k"), []byte("v1"))
	if err := st.InsertBlock(ctx, genesis); err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}
	genesisID, _, err := st.GetBlockID(ctx, genesis.Address)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}

	unchecked, err := st.ListUncheckedBlocks(ctx, 0, ^uint64(0), 10)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}
	if len(unchecked) != 1 {
		t.Fatalf("\t%s\tgot %d unchecked blocks, expected 1", failed, len(unchecked))
	}

	if err := st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := RecordFailedSet(ctx, tx, genesisID, unchecked[0].SolutionSets[0].SolutionSet.ID); err != nil {
			return err
		}
		return SetValidationProgress(ctx, tx, genesisID, genesis.Number)
	}); err != nil {
		t.Fatalf("\t%s\trecording validation outcome: %v", failed, err)
	}

	unchecked2, err := st.ListUncheckedBlocks(ctx, 0, ^uint64(0), 10)
	if err != nil {
		t.Fatalf("\t%s\t%v", failed, err)
	}
	if len(unchecked2) != 0 {
		t.Fatalf("\t%s\tgot %d unchecked blocks after progress advanced, expected 0", failed, len(unchecked2))
	}

	vp, ok, err := st.GetValidationProgress(ctx)
	if err != nil || !ok || vp.BlockID != genesisID {
		t.Fatalf("\t%s\tunexpected validation progress: %+v ok=%v err=%v", failed, vp, ok, err)
	}

	failedSets, err := st.GetFailedSets(ctx, genesisID)
	if err != nil || len(failedSets) != 1 {
		t.Fatalf("\t%s\texpected one failed set, got %v err=%v", failed, failedSets, err)
	}

	t.Logf("\t%s\tvalidation progress and failed_block reflect the recorded outcome", success)
}
