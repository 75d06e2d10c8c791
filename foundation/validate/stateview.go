package validate

import (
	"context"

	"github.com/essential-contributions/essential-node/foundation/hash"
	"github.com/essential-contributions/essential-node/foundation/store"
)

// storeStateView is the StateView backing production validation: it
// resolves reads through GetOptimisticStateBefore, scoped to the block and
// solution-set index currently being checked.
type storeStateView struct {
	st             *store.Store
	blockID        int64
	beforeSetIndex uint64
}

func newStateView(st *store.Store, blockID int64, beforeSetIndex uint64) *storeStateView {
	return &storeStateView{st: st, blockID: blockID, beforeSetIndex: beforeSetIndex}
}

func (v *storeStateView) Get(ctx context.Context, contractAddr hash.Address, key []byte) ([]byte, bool, error) {
	sv, ok, err := v.st.GetOptimisticStateBefore(ctx, v.blockID, v.beforeSetIndex, contractAddr, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return sv.Value, true, nil
}
