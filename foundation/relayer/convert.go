package relayer

import (
	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/hash"
	"github.com/essential-contributions/essential-node/foundation/store"
)

func convertBlockRecord(rec blockRecord) (blk store.Block, parentAddr hash.Address, err error) {
	blk.Address, err = hash.ParseAddress(rec.BlockAddress)
	if err != nil {
		return store.Block{}, hash.Address{}, errs.New(errs.Upstream, "parsing block_address", err)
	}
	if rec.Number != 0 {
		parentAddr, err = hash.ParseAddress(rec.ParentBlockAddress)
		if err != nil {
			return store.Block{}, hash.Address{}, errs.New(errs.Upstream, "parsing parent_block_address", err)
		}
	}
	blk.Number = rec.Number
	blk.Timestamp = store.Timestamp{Secs: rec.TimestampSecs, Nanos: rec.TimestampNanos}

	for i, setRec := range rec.SolutionSets {
		set, err := convertSolutionSetRecord(setRec)
		if err != nil {
			return store.Block{}, hash.Address{}, err
		}
		blk.SolutionSets = append(blk.SolutionSets, store.SolutionSetRef{
			SolutionSetIndex: uint64(i),
			SolutionSet:      set,
		})
	}
	return blk, parentAddr, nil
}

func convertSolutionSetRecord(rec solutionSetRecord) (store.SolutionSet, error) {
	contentHash, err := hash.ParseAddress(rec.ContentHash)
	if err != nil {
		return store.SolutionSet{}, errs.New(errs.Upstream, "parsing solution set content_hash", err)
	}

	set := store.SolutionSet{ContentHash: contentHash}
	for i, solRec := range rec.Solutions {
		sol, err := convertSolutionRecord(uint64(i), solRec)
		if err != nil {
			return store.SolutionSet{}, err
		}
		set.Solutions = append(set.Solutions, sol)
	}
	return set, nil
}

func convertSolutionRecord(index uint64, rec solutionRecord) (store.Solution, error) {
	contractAddr, err := hash.ParseAddress(rec.ContractAddr)
	if err != nil {
		return store.Solution{}, errs.New(errs.Upstream, "parsing contract_addr", err)
	}
	predicateAddr, err := hash.ParseAddress(rec.PredicateAddr)
	if err != nil {
		return store.Solution{}, errs.New(errs.Upstream, "parsing predicate_addr", err)
	}

	sol := store.Solution{
		SolutionIndex: index,
		ContractAddr:  contractAddr,
		PredicateAddr: predicateAddr,
	}
	for i, m := range rec.Mutations {
		sol.Mutations = append(sol.Mutations, store.Mutation{MutationIndex: uint64(i), Key: m.Key, Value: m.Value})
	}
	for i, v := range rec.DecVars {
		sol.DecVars = append(sol.DecVars, store.DecVar{DecVarIndex: uint64(i), Value: v})
	}
	for i, v := range rec.PredData {
		sol.PredData = append(sol.PredData, store.PredData{PredDataIndex: uint64(i), Value: v})
	}
	for i, v := range rec.PubVars {
		sol.PubVars = append(sol.PubVars, store.PubVar{PubVarIndex: uint64(i), Value: v})
	}
	return sol, nil
}

func convertContractRecord(rec contractRecord) (store.Contract, error) {
	contentHash, err := hash.ParseAddress(rec.ContentHash)
	if err != nil {
		return store.Contract{}, errs.New(errs.Upstream, "parsing contract content_hash", err)
	}

	c := store.Contract{
		ContentHash: contentHash,
		Salt:        rec.Salt,
		CreatedAt:   store.Timestamp{Secs: rec.CreatedAtSecs, Nanos: rec.CreatedAtNanos},
	}
	for _, p := range rec.Predicates {
		predHash, err := hash.ParseAddress(p.ContentHash)
		if err != nil {
			return store.Contract{}, errs.New(errs.Upstream, "parsing predicate content_hash", err)
		}
		c.Predicates = append(c.Predicates, store.Predicate{ContentHash: predHash, Bytecode: p.Bytecode})
	}
	return c, nil
}
