package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/hash"
	"github.com/essential-contributions/essential-node/foundation/store"
)

const blockStream = "blocks"

// syncBlocksOnce opens one streamed request against subscribe-blocks,
// resuming from the durable cursor (or the latest finalized block, or
// genesis), and ingests records until the stream ends or errors. It returns
// the number of blocks committed before returning.
func (r *Relayer) syncBlocksOnce(ctx context.Context) (int, error) {
	prevAddr, havePrev, nextNumber, err := r.resumeBlocks(ctx)
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/subscribe-blocks?start_block=%d", r.cfg.Endpoint, nextNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errs.New(errs.Upstream, "building block stream request", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, errs.New(errs.Cancelled, "block stream cancelled", ctx.Err())
		}
		return 0, errs.New(errs.Upstream, "opening block stream", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errs.New(errs.Upstream, fmt.Sprintf("block stream returned status %d", resp.StatusCode), nil)
	}

	dec := json.NewDecoder(resp.Body)
	committed := 0

	for {
		if ctx.Err() != nil {
			return committed, errs.New(errs.Cancelled, "block stream cancelled", ctx.Err())
		}

		var rec blockRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return committed, nil
			}
			if ctx.Err() != nil {
				return committed, errs.New(errs.Cancelled, "block stream cancelled", ctx.Err())
			}
			return committed, errs.New(errs.Upstream, "decoding block record", err)
		}

		blk, parentAddr, err := convertBlockRecord(rec)
		if err != nil {
			return committed, err
		}

		// A block already in the store is a replay: skip it without counting
		// it, and follow it as the tip so the next record's parent check holds.
		_, stored, err := r.store.GetBlockID(ctx, blk.Address)
		if err != nil {
			return committed, errs.New(errs.Storage, "looking up block", err)
		}
		if stored {
			prevAddr, havePrev = blk.Address, true
			continue
		}

		if havePrev && parentAddr != prevAddr {
			return committed, errs.New(errs.Integrity, "block's parent address does not match the expected tip", nil)
		}

		if blk.Number == 0 {
			blk.ParentBlockID = store.GenesisParent
		} else {
			id, ok, err := r.store.GetBlockID(ctx, parentAddr)
			if err != nil {
				return committed, errs.New(errs.Storage, "looking up parent block", err)
			}
			if !ok {
				return committed, errs.New(errs.Integrity, "parent block not found in store", nil)
			}
			blk.ParentBlockID = id
		}

		if err := r.store.InsertBlock(ctx, blk); err != nil {
			return committed, err
		}
		if err := r.store.SetRelayerProgress(ctx, blockStream, blk.Address, true, blk.Number); err != nil {
			return committed, err
		}

		r.blocks.Notify(r.blocks.Version() + 1)
		prevAddr, havePrev = blk.Address, true
		committed++
	}
}

// resumeBlocks determines where the block stream should (re)start: the
// durable relayer cursor if one exists, else the latest finalized block,
// else genesis.
func (r *Relayer) resumeBlocks(ctx context.Context) (addr hash.Address, have bool, nextNumber uint64, err error) {
	rc, found, err := r.store.GetRelayerProgress(ctx, blockStream)
	if err != nil {
		return hash.Address{}, false, 0, err
	}
	if found && rc.HasCursor {
		return rc.Cursor, true, rc.CursorNumber + 1, nil
	}

	finalizedAddr, finalizedNumber, found, err := r.store.GetLatestFinalizedBlock(ctx)
	if err != nil {
		return hash.Address{}, false, 0, err
	}
	if found {
		return finalizedAddr, true, finalizedNumber + 1, nil
	}

	return hash.Address{}, false, 0, nil
}
