package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/essential-contributions/essential-node/foundation/errs"
)

// GetValidationProgress returns the block most recently checked by the
// validation stream, if any have been checked yet.
func (s *Store) GetValidationProgress(ctx context.Context) (ValidationProgress, bool, error) {
	var vp ValidationProgress
	found := false
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		err := conn.QueryRowContext(ctx, `SELECT block_id, block_number FROM validation_progress WHERE id = 1`).Scan(&vp.BlockID, &vp.BlockNumber)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return vp, found, err
}

// SetValidationProgress records blockID/blockNumber as the latest checked
// block, as part of the same transaction as the checks it follows.
func SetValidationProgress(ctx context.Context, tx *sql.Tx, blockID int64, blockNumber uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO validation_progress (id, block_id, block_number) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET block_id = excluded.block_id, block_number = excluded.block_number`,
		blockID, blockNumber,
	)
	if err != nil {
		return errs.New(errs.Storage, "updating validation_progress", err)
	}
	return nil
}

// RecordFailedSet records that solutionSetID within blockID failed its
// predicate checks, as part of the same transaction as the check.
func RecordFailedSet(ctx context.Context, tx *sql.Tx, blockID, solutionSetID int64) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO failed_block (block_id, solution_set_id) VALUES (?, ?)`, blockID, solutionSetID)
	if err != nil {
		return errs.New(errs.Storage, "inserting failed_block", err)
	}
	return nil
}

// WithTx exposes the store's transaction helper to callers (the validation
// stream) that need to perform several writes — predicate checks, a
// failed_block insert, a validation_progress update — atomically per block.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withTx(ctx, fn)
}

// ListUncheckedBlocks lists blocks with number in [start, end) that are
// numbered above the block recorded in validation_progress, ordered by number
// ascending, capped at limit blocks. Blocks at or below that number, fork
// siblings of the recorded block included, are not listed.
func (s *Store) ListUncheckedBlocks(ctx context.Context, start, end uint64, limit int64) ([]Block, error) {
	vp, hasProgress, err := s.GetValidationProgress(ctx)
	if err != nil {
		return nil, err
	}
	if hasProgress && vp.BlockNumber+1 > start {
		start = vp.BlockNumber + 1
	}
	if start >= end {
		return nil, nil
	}
	return s.ListBlocks(ctx, start, end, limit, 0)
}

// GetFailedSets lists the solution sets that failed their predicate checks
// within blockID.
func (s *Store) GetFailedSets(ctx context.Context, blockID int64) ([]int64, error) {
	var ids []int64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT solution_set_id FROM failed_block WHERE block_id = ? ORDER BY solution_set_id`, blockID)
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
