package validate

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/essential-contributions/essential-node/foundation/errs"
	"github.com/essential-contributions/essential-node/foundation/notify"
	"github.com/essential-contributions/essential-node/foundation/store"
)

// Config configures a Stream.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Stream walks unchecked blocks, validates them, and publishes their
// outcomes. It wakes on every notification from blocks (fired by the
// relayer on commit) and also sweeps once at startup to catch up on
// anything ingested while the stream wasn't running.
type Stream struct {
	cfg       Config
	store     *store.Store
	predicate Predicate
	blocks    *notify.Broadcaster
	outcomes  *notify.Broadcaster
	log       *zap.SugaredLogger

	mu       sync.Mutex
	latest   Outcome
	lastErr  error
	history  []Outcome
}

// New constructs a Stream. blocks is the notifier the relayer fires on
// commit; outcomes is notified, with a version one above its current one,
// every time a block finishes validating, pass or fail.
func New(cfg Config, st *store.Store, predicate Predicate, blocks, outcomes *notify.Broadcaster, log *zap.SugaredLogger) *Stream {
	return &Stream{cfg: cfg, store: st, predicate: predicate, blocks: blocks, outcomes: outcomes, log: log}
}

// Run drives the stream until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) {
	sub := s.blocks.Subscribe()
	lastSeen := uint64(0)

	b := backoff.NewExponentialBackOff()
	if s.cfg.InitialBackoff > 0 {
		b.InitialInterval = s.cfg.InitialBackoff
	}
	if s.cfg.MaxBackoff > 0 {
		b.MaxInterval = s.cfg.MaxBackoff
	}
	b.MaxElapsedTime = 0

	for {
		n, err := s.sweep(ctx)
		if err != nil {
			if errs.Is(err, errs.Cancelled) || ctx.Err() != nil {
				return
			}
			s.setLastErr(err)
			s.log.Errorw("validation sweep error", "error", err)
			wait := b.NextBackOff()
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
			continue
		}
		s.setLastErr(nil)
		if n > 0 {
			b.Reset()
			continue
		}

		var waitErr error
		lastSeen, waitErr = sub.Wait(ctx, lastSeen)
		if waitErr != nil {
			return
		}
	}
}

// sweep processes every unchecked block currently in the store and returns
// how many it checked.
func (s *Stream) sweep(ctx context.Context) (int, error) {
	const batchSize = 256
	checked := 0

	for {
		if ctx.Err() != nil {
			return checked, errs.New(errs.Cancelled, "validation sweep cancelled", ctx.Err())
		}

		blocks, err := s.store.ListUncheckedBlocks(ctx, 0, ^uint64(0), batchSize)
		if err != nil {
			return checked, err
		}
		if len(blocks) == 0 {
			return checked, nil
		}

		for _, blk := range blocks {
			if ctx.Err() != nil {
				return checked, errs.New(errs.Cancelled, "validation sweep cancelled", ctx.Err())
			}
			outcome, err := s.validateBlock(ctx, blk)
			if err != nil {
				return checked, err
			}
			s.recordOutcome(outcome)
			s.outcomes.Notify(s.outcomes.Version() + 1)
			checked++
		}
	}
}

// validateBlock checks every solution in every solution set of blk, records
// any failures, and advances validation_progress, all within one
// transaction.
func (s *Stream) validateBlock(ctx context.Context, blk store.Block) (Outcome, error) {
	outcome := Outcome{BlockNumber: blk.Number, BlockID: blk.ID}

	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, ref := range blk.SolutionSets {
			setFailed := false
			for _, sol := range ref.SolutionSet.Solutions {
				predicate, ok, err := s.lookupPredicate(ctx, sol)
				if err != nil {
					return err
				}
				if !ok {
					return errs.New(errs.Integrity, "predicate bytecode not found for solution", nil)
				}

				view := newStateView(s.store, blk.ID, ref.SolutionSetIndex)
				decVars := valuesOf(sol.DecVars, func(d store.DecVar) []byte { return d.Value })
				predData := valuesOf(sol.PredData, func(d store.PredData) []byte { return d.Value })

				if err := s.predicate.Check(ctx, predicate, sol.ContractAddr, view, decVars, predData); err != nil {
					s.log.Infow("predicate check failed", "block_number", blk.Number, "solution_set_index", ref.SolutionSetIndex, "solution_index", sol.SolutionIndex, "error", err)
					setFailed = true
					break
				}
			}
			if setFailed {
				if err := store.RecordFailedSet(ctx, tx, blk.ID, ref.SolutionSet.ID); err != nil {
					return err
				}
				outcome.FailedSetIndices = append(outcome.FailedSetIndices, ref.SolutionSetIndex)
			}
		}
		return store.SetValidationProgress(ctx, tx, blk.ID, blk.Number)
	})
	if err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

func (s *Stream) lookupPredicate(ctx context.Context, sol store.Solution) ([]byte, bool, error) {
	c, ok, err := s.store.GetContract(ctx, sol.ContractAddr)
	if err != nil || !ok {
		return nil, false, err
	}
	for _, p := range c.Predicates {
		if p.ContentHash == sol.PredicateAddr {
			return p.Bytecode, true, nil
		}
	}
	return nil, false, nil
}

func valuesOf[T any](items []T, get func(T) []byte) [][]byte {
	out := make([][]byte, len(items))
	for i, it := range items {
		out[i] = get(it)
	}
	return out
}

func (s *Stream) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// LastError returns the most recent infrastructure error observed by the
// stream, or nil. Predicate failures are not errors in this sense; see
// Latest for those.
func (s *Stream) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Stream) recordOutcome(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = o
	s.history = append(s.history, o)
	if len(s.history) > 1024 {
		s.history = s.history[len(s.history)-1024:]
	}
}

// Latest returns the most recently produced outcome.
func (s *Stream) Latest() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}
