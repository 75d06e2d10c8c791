package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/hash"
)

// InsertBlock inserts block and every row it owns (block_solution_set,
// solution, mutation, dec_var, pred_data, pub_var) in a single transaction.
// If a block with the same address already exists, the call is a silent
// no-op — replaying an already-stored block leaves the store byte-identical.
func (s *Store) InsertBlock(ctx context.Context, b Block) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM block WHERE block_address = ?`, b.Address.Bytes()).Scan(&existingID)
		if err == nil {
			return nil // already stored; idempotent no-op.
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.Storage, "checking for existing block", err)
		}

		if b.ParentBlockID != GenesisParent {
			var parentNumber uint64
			err := tx.QueryRowContext(ctx, `SELECT number FROM block WHERE id = ?`, b.ParentBlockID).Scan(&parentNumber)
			if errors.Is(err, sql.ErrNoRows) {
				return errs.New(errs.Integrity, fmt.Sprintf("parent block %d not found", b.ParentBlockID), nil)
			}
			if err != nil {
				return errs.New(errs.Storage, "fetching parent block", err)
			}
			if b.Number != parentNumber+1 {
				return errs.New(errs.Integrity, fmt.Sprintf("block number %d is not parent number %d + 1", b.Number, parentNumber), nil)
			}
		} else if b.Number != 0 {
			return errs.New(errs.Integrity, "genesis block must have number 0", nil)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO block (block_address, parent_block_id, number, timestamp_secs, timestamp_nanos)
			VALUES (?, ?, ?, ?, ?)`,
			b.Address.Bytes(), b.ParentBlockID, b.Number, b.Timestamp.Secs, b.Timestamp.Nanos,
		)
		if err != nil {
			return errs.New(errs.Storage, "inserting block", err)
		}
		blockID, err := res.LastInsertId()
		if err != nil {
			return errs.New(errs.Storage, "reading inserted block id", err)
		}

		for _, ref := range b.SolutionSets {
			setID, isNew, err := upsertSolutionSet(ctx, tx, ref.SolutionSet.ContentHash)
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO block_solution_set (block_id, solution_set_id, solution_set_index)
				VALUES (?, ?, ?)`,
				blockID, setID, ref.SolutionSetIndex,
			); err != nil {
				return errs.New(errs.Storage, "inserting block_solution_set", err)
			}

			if !isNew {
				continue
			}

			for _, sol := range ref.SolutionSet.Solutions {
				if err := insertSolution(ctx, tx, setID, sol); err != nil {
					return err
				}
			}
		}

		return nil
	})
}

func upsertSolutionSet(ctx context.Context, tx *sql.Tx, contentHash hash.Address) (id int64, isNew bool, err error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO solution_set (content_hash) VALUES (?)`, contentHash.Bytes())
	if err != nil {
		return 0, false, errs.New(errs.Storage, "inserting solution_set", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, errs.New(errs.Storage, "reading inserted solution_set id", err)
		}
		return id, true, nil
	}
	err = tx.QueryRowContext(ctx, `SELECT id FROM solution_set WHERE content_hash = ?`, contentHash.Bytes()).Scan(&id)
	if err != nil {
		return 0, false, errs.New(errs.Storage, "looking up solution_set", err)
	}
	return id, false, nil
}

func insertSolution(ctx context.Context, tx *sql.Tx, solutionSetID int64, sol Solution) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO solution (solution_set_id, solution_index, contract_addr, predicate_addr)
		VALUES (?, ?, ?, ?)`,
		solutionSetID, sol.SolutionIndex, sol.ContractAddr.Bytes(), sol.PredicateAddr.Bytes(),
	)
	if err != nil {
		return errs.New(errs.Storage, "inserting solution", err)
	}
	solutionID, err := res.LastInsertId()
	if err != nil {
		return errs.New(errs.Storage, "reading inserted solution id", err)
	}

	for _, m := range sol.Mutations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mutation (solution_id, mutation_index, key, value)
			VALUES (?, ?, ?, ?)`,
			solutionID, m.MutationIndex, m.Key, m.Value,
		); err != nil {
			return errs.New(errs.Storage, "inserting mutation", err)
		}
	}

	for _, dv := range sol.DecVars {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dec_var (solution_id, dec_var_index, value)
			VALUES (?, ?, ?)`,
			solutionID, dv.DecVarIndex, dv.Value,
		); err != nil {
			return errs.New(errs.Storage, "inserting dec_var", err)
		}
	}

	for _, pd := range sol.PredData {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pred_data (solution_id, pred_data_index, value)
			VALUES (?, ?, ?)`,
			solutionID, pd.PredDataIndex, pd.Value,
		); err != nil {
			return errs.New(errs.Storage, "inserting pred_data", err)
		}
	}

	for _, pv := range sol.PubVars {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pub_var (solution_id, pub_var_index, value)
			VALUES (?, ?, ?)`,
			solutionID, pv.PubVarIndex, pv.Value,
		); err != nil {
			return errs.New(errs.Storage, "inserting pub_var", err)
		}
	}

	return nil
}

// GetBlockNumber fetches the number of the block with the given address.
func (s *Store) GetBlockNumber(ctx context.Context, addr hash.Address) (uint64, bool, error) {
	var number uint64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT number FROM block WHERE block_address = ?`, addr.Bytes())
		return row.Scan(&number)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return number, true, nil
}

// GetBlockID fetches the internal id of the block with the given address.
func (s *Store) GetBlockID(ctx context.Context, addr hash.Address) (int64, bool, error) {
	var id int64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT id FROM block WHERE block_address = ?`, addr.Bytes())
		return row.Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// GetLatestBlockNumber returns the highest block number in the store.
func (s *Store) GetLatestBlockNumber(ctx context.Context) (uint64, bool, error) {
	var number sql.NullInt64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, `SELECT MAX(number) FROM block`)
		return row.Scan(&number)
	})
	if err != nil {
		return 0, false, err
	}
	if !number.Valid {
		return 0, false, nil
	}
	return uint64(number.Int64), true, nil
}

// ListBlocks lists blocks with number in [start, end), ordered by
// (number, block_address, solution_set_index), with their full solution
// tree populated: solution sets, solutions, and each solution's mutations,
// dec_vars, pred_data and pub_vars. limit and offset count blocks. An end
// above math.MaxInt64 is treated as math.MaxInt64.
func (s *Store) ListBlocks(ctx context.Context, start, end uint64, limit, offset int64) ([]Block, error) {
	if end > math.MaxInt64 {
		end = math.MaxInt64
	}
	if start > end {
		start = end
	}
	blocksByID := map[int64]*Block{}
	var order []int64

	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT b.id, b.block_address, b.parent_block_id, b.number, b.timestamp_secs, b.timestamp_nanos,
			       bss.solution_set_index, ss.id, ss.content_hash,
			       sol.id, sol.solution_index, sol.contract_addr, sol.predicate_addr
			FROM (
				SELECT * FROM block
				WHERE number >= ? AND number < ?
				ORDER BY number ASC, block_address ASC
				LIMIT ? OFFSET ?
			) b
			LEFT JOIN block_solution_set bss ON bss.block_id = b.id
			LEFT JOIN solution_set ss ON ss.id = bss.solution_set_id
			LEFT JOIN solution sol ON sol.solution_set_id = ss.id
			ORDER BY b.number ASC, b.block_address ASC, bss.solution_set_index ASC, sol.solution_index ASC`,
			start, end, limit, offset,
		)
		if err != nil {
			return err
		}

		setsByID := map[int64]*SolutionSet{}

		for rows.Next() {
			var (
				blockID, parentID            int64
				addrBytes                    []byte
				number, secs                 uint64
				nanos                        uint32
				setIndex, setID              sql.NullInt64
				setHash                      []byte
				solID, solIndex              sql.NullInt64
				contractAddr, predicateAddr  []byte
			)
			if err := rows.Scan(&blockID, &addrBytes, &parentID, &number, &secs, &nanos,
				&setIndex, &setID, &setHash, &solID, &solIndex, &contractAddr, &predicateAddr); err != nil {
				return err
			}

			blk, ok := blocksByID[blockID]
			if !ok {
				addr, err := hash.FromBytes(addrBytes)
				if err != nil {
					return err
				}
				blk = &Block{
					ID:            blockID,
					Address:       addr,
					ParentBlockID: parentID,
					Number:        number,
					Timestamp:     Timestamp{Secs: secs, Nanos: nanos},
				}
				blocksByID[blockID] = blk
				order = append(order, blockID)
			}

			if !setID.Valid {
				continue
			}

			set, ok := setsByID[setID.Int64]
			if !ok {
				ch, err := hash.FromBytes(setHash)
				if err != nil {
					return err
				}
				set = &SolutionSet{ID: setID.Int64, ContentHash: ch}
				setsByID[setID.Int64] = set
				blk.SolutionSets = append(blk.SolutionSets, SolutionSetRef{
					SolutionSetIndex: uint64(setIndex.Int64),
					SolutionSet:      *set,
				})
			}

			if solID.Valid {
				ca, err := hash.FromBytes(contractAddr)
				if err != nil {
					return err
				}
				pa, err := hash.FromBytes(predicateAddr)
				if err != nil {
					return err
				}
				sol := Solution{
					ID:            solID.Int64,
					SolutionSetID: setID.Int64,
					SolutionIndex: uint64(solIndex.Int64),
					ContractAddr:  ca,
					PredicateAddr: pa,
				}
				// Re-find the ref we just appended/owned for this set and append the solution.
				for i := range blk.SolutionSets {
					if blk.SolutionSets[i].SolutionSet.ID == setID.Int64 {
						blk.SolutionSets[i].SolutionSet.Solutions = append(blk.SolutionSets[i].SolutionSet.Solutions, sol)
						break
					}
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		return loadSolutionChildren(ctx, conn, blocksByID)
	})
	if err != nil {
		return nil, err
	}

	blocks := make([]Block, 0, len(order))
	for _, id := range order {
		blocks = append(blocks, *blocksByID[id])
	}
	return blocks, nil
}

// loadSolutionChildren populates every solution reachable from blocksByID
// with its mutations, dec_vars, pred_data and pub_vars, each loaded with one
// query across every solution id in the batch rather than one query per
// solution.
func loadSolutionChildren(ctx context.Context, conn *sql.Conn, blocksByID map[int64]*Block) error {
	solutionsByID := map[int64]*Solution{}
	for _, blk := range blocksByID {
		for i := range blk.SolutionSets {
			sols := blk.SolutionSets[i].SolutionSet.Solutions
			for k := range sols {
				solutionsByID[sols[k].ID] = &blk.SolutionSets[i].SolutionSet.Solutions[k]
			}
		}
	}
	if len(solutionsByID) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(solutionsByID))
	for id := range solutionsByID {
		ids = append(ids, id)
	}

	if err := attachMutations(ctx, conn, ids, solutionsByID); err != nil {
		return err
	}
	if err := attachDecVars(ctx, conn, ids, solutionsByID); err != nil {
		return err
	}
	if err := attachPredData(ctx, conn, ids, solutionsByID); err != nil {
		return err
	}
	if err := attachPubVars(ctx, conn, ids, solutionsByID); err != nil {
		return err
	}
	return nil
}

func solutionIDArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func attachMutations(ctx context.Context, conn *sql.Conn, ids []int64, solutionsByID map[int64]*Solution) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, solution_id, mutation_index, key, value
		FROM mutation
		WHERE solution_id IN (%s)
		ORDER BY solution_id, mutation_index`, placeholders(len(ids))),
		solutionIDArgs(ids)...,
	)
	if err != nil {
		return errs.New(errs.Storage, "loading mutations", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Mutation
		if err := rows.Scan(&m.ID, &m.SolutionID, &m.MutationIndex, &m.Key, &m.Value); err != nil {
			return errs.New(errs.Storage, "scanning mutation", err)
		}
		if sol, ok := solutionsByID[m.SolutionID]; ok {
			sol.Mutations = append(sol.Mutations, m)
		}
	}
	return rows.Err()
}

func attachDecVars(ctx context.Context, conn *sql.Conn, ids []int64, solutionsByID map[int64]*Solution) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, solution_id, dec_var_index, value
		FROM dec_var
		WHERE solution_id IN (%s)
		ORDER BY solution_id, dec_var_index`, placeholders(len(ids))),
		solutionIDArgs(ids)...,
	)
	if err != nil {
		return errs.New(errs.Storage, "loading dec_vars", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dv DecVar
		if err := rows.Scan(&dv.ID, &dv.SolutionID, &dv.DecVarIndex, &dv.Value); err != nil {
			return errs.New(errs.Storage, "scanning dec_var", err)
		}
		if sol, ok := solutionsByID[dv.SolutionID]; ok {
			sol.DecVars = append(sol.DecVars, dv)
		}
	}
	return rows.Err()
}

func attachPredData(ctx context.Context, conn *sql.Conn, ids []int64, solutionsByID map[int64]*Solution) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, solution_id, pred_data_index, value
		FROM pred_data
		WHERE solution_id IN (%s)
		ORDER BY solution_id, pred_data_index`, placeholders(len(ids))),
		solutionIDArgs(ids)...,
	)
	if err != nil {
		return errs.New(errs.Storage, "loading pred_data", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pd PredData
		if err := rows.Scan(&pd.ID, &pd.SolutionID, &pd.PredDataIndex, &pd.Value); err != nil {
			return errs.New(errs.Storage, "scanning pred_data", err)
		}
		if sol, ok := solutionsByID[pd.SolutionID]; ok {
			sol.PredData = append(sol.PredData, pd)
		}
	}
	return rows.Err()
}

func attachPubVars(ctx context.Context, conn *sql.Conn, ids []int64, solutionsByID map[int64]*Solution) error {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, solution_id, pub_var_index, value
		FROM pub_var
		WHERE solution_id IN (%s)
		ORDER BY solution_id, pub_var_index`, placeholders(len(ids))),
		solutionIDArgs(ids)...,
	)
	if err != nil {
		return errs.New(errs.Storage, "loading pub_vars", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pv PubVar
		if err := rows.Scan(&pv.ID, &pv.SolutionID, &pv.PubVarIndex, &pv.Value); err != nil {
			return errs.New(errs.Storage, "scanning pub_var", err)
		}
		if sol, ok := solutionsByID[pv.SolutionID]; ok {
			sol.PubVars = append(sol.PubVars, pv)
		}
	}
	return rows.Err()
}

// ListBlocksByTime lists blocks whose (timestamp_secs, timestamp_nanos) lies
// in [start, end), paginated.
func (s *Store) ListBlocksByTime(ctx context.Context, startSecs uint64, startNanos uint32, endSecs uint64, endNanos uint32, limit, offset int64) ([]Block, error) {
	// Each match is located by its number and its position, by address, among
	// all blocks at that number, so that fork siblings are fetched separately.
	type blockPos struct {
		number uint64
		pos    int64
	}
	var positions []blockPos
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT number, (SELECT COUNT(*) FROM block b2 WHERE b2.number = block.number AND b2.block_address < block.block_address)
			FROM block
			WHERE (timestamp_secs, timestamp_nanos) >= (?, ?)
			  AND (timestamp_secs, timestamp_nanos) < (?, ?)
			ORDER BY number ASC, block_address ASC
			LIMIT ? OFFSET ?`,
			startSecs, startNanos, endSecs, endNanos, limit, offset,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p blockPos
			if err := rows.Scan(&p.number, &p.pos); err != nil {
				return err
			}
			positions = append(positions, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	var blocks []Block
	for _, p := range positions {
		bs, err := s.ListBlocks(ctx, p.number, p.number+1, 1, p.pos)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, bs...)
	}
	return blocks, nil
}

// ListUnfinalizedDescendants recursively walks down parent pointers from the
// given block id, returning every descendant that has not been finalized.
func (s *Store) ListUnfinalizedDescendants(ctx context.Context, blockID int64) ([]int64, error) {
	var ids []int64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			WITH RECURSIVE descendants(id) AS (
				SELECT id FROM block WHERE parent_block_id = ?
				UNION ALL
				SELECT b.id FROM block b
				JOIN descendants d ON b.parent_block_id = d.id
			)
			SELECT d.id FROM descendants d
			WHERE d.id NOT IN (SELECT block_id FROM finalized_block)
			ORDER BY d.id`,
			blockID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}
