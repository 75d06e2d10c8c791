package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/hash"
)

// FinalizeBlock marks the block with the given address as finalized at its
// number. Unlike block/contract insertion, finalizing an already-finalized
// number is an error, not a no-op — finalization is a one-way, one-shot
// commitment, and a second call at the same number with a different block
// indicates a caller bug, not a safe replay.
func (s *Store) FinalizeBlock(ctx context.Context, addr hash.Address) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var blockID int64
		var number uint64
		err := tx.QueryRowContext(ctx, `SELECT id, number FROM block WHERE block_address = ?`, addr.Bytes()).Scan(&blockID, &number)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.Integrity, "finalizing unknown block", nil)
		}
		if err != nil {
			return errs.New(errs.Storage, "looking up block to finalize", err)
		}

		var existingBlockID int64
		err = tx.QueryRowContext(ctx, `SELECT block_id FROM finalized_block WHERE block_number = ?`, number).Scan(&existingBlockID)
		if err == nil {
			if existingBlockID == blockID {
				return errs.New(errs.Integrity, "block already finalized", nil)
			}
			return errs.New(errs.Integrity, "block number already finalized by a different block", nil)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.Storage, "checking existing finalization", err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO finalized_block (block_number, block_id) VALUES (?, ?)`, number, blockID); err != nil {
			return errs.New(errs.Storage, "inserting finalized_block", err)
		}
		return nil
	})
}

// GetLatestFinalizedBlock returns the address and number of the
// highest-numbered finalized block, if any.
func (s *Store) GetLatestFinalizedBlock(ctx context.Context) (hash.Address, uint64, bool, error) {
	var addr hash.Address
	var number uint64
	found := false
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var addrBytes []byte
		err := conn.QueryRowContext(ctx, `
			SELECT b.block_address, fb.block_number
			FROM finalized_block fb
			JOIN block b ON b.id = fb.block_id
			ORDER BY fb.block_number DESC
			LIMIT 1`,
		).Scan(&addrBytes, &number)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		addr, err = hash.FromBytes(addrBytes)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return hash.Address{}, 0, false, err
	}
	return addr, number, found, nil
}

// IsFinalized reports whether block_number already has a finalized block.
func (s *Store) IsFinalized(ctx context.Context, blockNumber uint64) (bool, error) {
	var exists bool
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM finalized_block WHERE block_number = ?)`, blockNumber).Scan(&exists)
	})
	return exists, err
}
