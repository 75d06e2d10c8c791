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
)

const contractStream = "contracts"

// syncContractsOnce is the contract-registry analogue of syncBlocksOnce.
// Contract registrations have no chain structure to verify, so each record
// is simply inserted (insert-or-ignore, content-addressed) and the cursor
// advanced by the upstream's own monotonic sequence number.
func (r *Relayer) syncContractsOnce(ctx context.Context) (int, error) {
	_, nextSeq, err := r.resumeContracts(ctx)
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/subscribe-contracts?start=%d", r.cfg.Endpoint, nextSeq)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errs.New(errs.Upstream, "building contract stream request", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, errs.New(errs.Cancelled, "contract stream cancelled", ctx.Err())
		}
		return 0, errs.New(errs.Upstream, "opening contract stream", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errs.New(errs.Upstream, fmt.Sprintf("contract stream returned status %d", resp.StatusCode), nil)
	}

	dec := json.NewDecoder(resp.Body)
	committed := 0

	for {
		if ctx.Err() != nil {
			return committed, errs.New(errs.Cancelled, "contract stream cancelled", ctx.Err())
		}

		var rec contractRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return committed, nil
			}
			if ctx.Err() != nil {
				return committed, errs.New(errs.Cancelled, "contract stream cancelled", ctx.Err())
			}
			return committed, errs.New(errs.Upstream, "decoding contract record", err)
		}

		c, err := convertContractRecord(rec)
		if err != nil {
			return committed, err
		}

		if err := r.store.InsertContract(ctx, c); err != nil {
			return committed, err
		}
		if err := r.store.SetRelayerProgress(ctx, contractStream, hash.Address{}, false, rec.Seq); err != nil {
			return committed, err
		}

		committed++
	}
}

func (r *Relayer) resumeContracts(ctx context.Context) (hash.Address, uint64, error) {
	rc, found, err := r.store.GetRelayerProgress(ctx, contractStream)
	if err != nil {
		return hash.Address{}, 0, err
	}
	if !found {
		return hash.Address{}, 0, nil
	}
	return hash.Address{}, rc.CursorNumber + 1, nil
}
