package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/hash"
)

const ancestorChainCTE = `
WITH RECURSIVE chain(id, number, parent_id) AS (
	SELECT id, number, parent_block_id FROM block WHERE id = ?
	UNION ALL
	SELECT b.id, b.number, b.parent_block_id FROM block b JOIN chain c ON b.id = c.parent_id
)`

// latestMutationQuery finds the most recent mutation to (contract_addr, key)
// visible by walking the ancestor chain of a given block, breaking ties
// within a block by solution_set_index then solution_index (later wins).
const latestMutationQuery = ancestorChainCTE + `
SELECT c.number, m.value
FROM chain c
JOIN block_solution_set bss ON bss.block_id = c.id
JOIN solution_set ss ON ss.id = bss.solution_set_id
JOIN solution sol ON sol.solution_set_id = ss.id AND sol.contract_addr = ?
JOIN mutation m ON m.solution_id = sol.id AND m.key = ?
ORDER BY c.number DESC, bss.solution_set_index DESC, sol.solution_index DESC
LIMIT 1`

// GetOptimisticState reads the value of (contractAddr, key) as seen from
// atBlockID's own branch, walking back through parents without regard to
// finalization. Every solution set of atBlockID itself is included; the
// validation stream's pre-state uses GetOptimisticStateBefore instead.
func (s *Store) GetOptimisticState(ctx context.Context, atBlockID int64, contractAddr hash.Address, key []byte) (StateValue, bool, error) {
	return s.queryLatestMutation(ctx, atBlockID, contractAddr, key)
}

// latestMutationBeforeQuery is latestMutationQuery restricted, for the
// block the walk starts at only, to solution sets strictly before
// beforeSetIndex. Ancestor blocks are unrestricted: their entire content has
// already happened from the perspective of a set being validated within the
// starting block.
const latestMutationBeforeQuery = ancestorChainCTE + `
SELECT c.number, m.value
FROM chain c
JOIN block_solution_set bss ON bss.block_id = c.id
JOIN solution_set ss ON ss.id = bss.solution_set_id
JOIN solution sol ON sol.solution_set_id = ss.id AND sol.contract_addr = ?
JOIN mutation m ON m.solution_id = sol.id AND m.key = ?
WHERE c.id != ? OR bss.solution_set_index < ?
ORDER BY c.number DESC, bss.solution_set_index DESC, sol.solution_index DESC
LIMIT 1`

// GetOptimisticStateBefore reads the value of (contractAddr, key) as visible
// to a solution set at beforeSetIndex within block atBlockID: every mutation
// in atBlockID's own solution sets with index < beforeSetIndex, plus the
// full ancestor chain below atBlockID. This is the pre-state view the
// validation stream constructs for each solution it checks.
func (s *Store) GetOptimisticStateBefore(ctx context.Context, atBlockID int64, beforeSetIndex uint64, contractAddr hash.Address, key []byte) (StateValue, bool, error) {
	var sv StateValue
	found := false
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var number uint64
		var value []byte
		err := conn.QueryRowContext(ctx, latestMutationBeforeQuery,
			atBlockID, contractAddr.Bytes(), key, atBlockID, beforeSetIndex,
		).Scan(&number, &value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		sv = StateValue{Value: value, BlockNumber: number}
		return nil
	})
	if err != nil {
		return StateValue{}, false, errs.New(errs.Storage, "querying pre-state", err)
	}
	return sv, found, nil
}

// latestFinalizedMutationQuery is latestMutationQuery restricted to the
// finalized chain anchored at a given finalized block and bound
// lexicographically by (block_number, solution_set_index): ancestor blocks
// of the anchor are unrestricted (their number is necessarily < the bound),
// the anchor block itself is restricted to solution sets at or before
// boundSolutionSetIndex.
const latestFinalizedMutationQuery = ancestorChainCTE + `
SELECT c.number, m.value
FROM chain c
JOIN block_solution_set bss ON bss.block_id = c.id
JOIN solution_set ss ON ss.id = bss.solution_set_id
JOIN solution sol ON sol.solution_set_id = ss.id AND sol.contract_addr = ?
JOIN mutation m ON m.solution_id = sol.id AND m.key = ?
WHERE c.number < ? OR (c.number = ? AND bss.solution_set_index <= ?)
ORDER BY c.number DESC, bss.solution_set_index DESC, sol.solution_index DESC
LIMIT 1`

// GetFinalizedState reads the value of (contractAddr, key) as of the
// finalized chain, bound to mutations whose (block_number,
// solution_set_index) tuple is lexicographically at or before
// (boundBlockNumber, boundSolutionSetIndex). The anchor is the
// highest-numbered finalized block at or below boundBlockNumber; if no
// finalized block qualifies, the query reports absent.
func (s *Store) GetFinalizedState(ctx context.Context, contractAddr hash.Address, key []byte, boundBlockNumber, boundSolutionSetIndex uint64) (StateValue, bool, error) {
	var anchorID int64
	found := false
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		err := conn.QueryRowContext(ctx, `
			SELECT block_id FROM finalized_block WHERE block_number <= ? ORDER BY block_number DESC LIMIT 1`,
			boundBlockNumber,
		).Scan(&anchorID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return StateValue{}, false, err
	}
	if !found {
		return StateValue{}, false, nil
	}

	var sv StateValue
	matched := false
	err = s.withConn(ctx, func(conn *sql.Conn) error {
		var number uint64
		var value []byte
		err := conn.QueryRowContext(ctx, latestFinalizedMutationQuery,
			anchorID, contractAddr.Bytes(), key, boundBlockNumber, boundBlockNumber, boundSolutionSetIndex,
		).Scan(&number, &value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		matched = true
		sv = StateValue{Value: value, BlockNumber: number}
		return nil
	})
	if err != nil {
		return StateValue{}, false, errs.New(errs.Storage, "querying finalized state", err)
	}
	return sv, matched, nil
}

func (s *Store) queryLatestMutation(ctx context.Context, atBlockID int64, contractAddr hash.Address, key []byte) (StateValue, bool, error) {
	var sv StateValue
	found := false
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var number uint64
		var value []byte
		err := conn.QueryRowContext(ctx, latestMutationQuery, atBlockID, contractAddr.Bytes(), key).Scan(&number, &value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		sv = StateValue{Value: value, BlockNumber: number}
		return nil
	})
	if err != nil {
		return StateValue{}, false, errs.New(errs.Storage, "querying state", err)
	}
	return sv, found, nil
}
