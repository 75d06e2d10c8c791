// Package relayer streams blocks and contract registrations from an
// upstream builder's HTTP API into the store, with resumable,
// exactly-once-insert semantics. Two independent, restartable workers —
// one per stream — run until their context is cancelled.
package relayer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/notify"
	"github.com/essential-contributions/essential-node/foundation/store"
)

// Config configures a Relayer.
type Config struct {
	// Endpoint is the upstream builder's base URL, e.g. "http://builder:8080".
	Endpoint string
	// InitialBackoff and MaxBackoff bound the exponential backoff applied
	// between worker restarts after an error.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// HTTPClient is used for both streams. A zero value uses http.DefaultClient.
	HTTPClient *http.Client
}

// Relayer owns the two streaming workers and the state they need to restart
// without losing their place.
type Relayer struct {
	cfg    Config
	store  *store.Store
	blocks *notify.Broadcaster
	log    *zap.SugaredLogger
	client *http.Client

	mu              sync.Mutex
	lastBlockErr    error
	lastContractErr error
}

// New constructs a Relayer. blocks is notified, with a version one above its
// current one, every time the block worker commits a new block.
func New(cfg Config, st *store.Store, blocks *notify.Broadcaster, log *zap.SugaredLogger) *Relayer {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Relayer{cfg: cfg, store: st, blocks: blocks, log: log, client: client}
}

// Run starts both workers and blocks until ctx is cancelled and they have
// both exited.
func (r *Relayer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.runWorker(ctx, "blocks", r.syncBlocksOnce, r.setLastBlockErr)
	}()
	go func() {
		defer wg.Done()
		r.runWorker(ctx, "contracts", r.syncContractsOnce, r.setLastContractErr)
	}()
	wg.Wait()
}

// LastBlockError returns the most recent error observed by the block
// worker, or nil. It never stops the worker; callers use it for telemetry.
func (r *Relayer) LastBlockError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastBlockErr
}

// LastContractError is the contract-stream analogue of LastBlockError.
func (r *Relayer) LastContractError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastContractErr
}

func (r *Relayer) setLastBlockErr(err error) {
	r.mu.Lock()
	r.lastBlockErr = err
	r.mu.Unlock()
}

func (r *Relayer) setLastContractErr(err error) {
	r.mu.Lock()
	r.lastContractErr = err
	r.mu.Unlock()
}

// runWorker drives one stream's sync loop: run a pass, record any error,
// back off, repeat, resetting the backoff whenever a pass makes progress.
func (r *Relayer) runWorker(ctx context.Context, name string, once func(context.Context) (int, error), setErr func(error)) {
	traceID := uuid.New().String()
	r.log.Infow("relayer worker starting", "stream", name, "trace_id", traceID)

	b := backoff.NewExponentialBackOff()
	if r.cfg.InitialBackoff > 0 {
		b.InitialInterval = r.cfg.InitialBackoff
	}
	if r.cfg.MaxBackoff > 0 {
		b.MaxInterval = r.cfg.MaxBackoff
	}
	b.MaxElapsedTime = 0 // never give up; this is a long-lived worker, not a single operation.

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := once(ctx)
		if err != nil && errs.Is(err, errs.Cancelled) {
			return
		}
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			setErr(err)
			r.log.Errorw("relayer stream error", "stream", name, "trace_id", traceID, "error", err)
		} else {
			setErr(nil)
		}

		if n > 0 {
			b.Reset()
			continue
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = b.MaxInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}
