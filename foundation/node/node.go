// Package node is the node facade: it owns the store, the block-change
// notifier, and the relayer and validation-stream workers, and presents a
// single lifecycle (start/shutdown) over all of them.
package node

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/essential-contributions/essential-node/foundation/notify"
	"github.com/essential-contributions/essential-node/foundation/relayer"
	"github.com/essential-contributions/essential-node/foundation/store"
	"github.com/essential-contributions/essential-node/foundation/validate"
)

// Config configures a Node.
type Config struct {
	// DBPath is passed through to store.Open; store.InMemoryDBPath selects
	// an in-memory database.
	DBPath string
	// PoolCapacity bounds the connection pool. If <= 0, it defaults to the
	// number of CPUs.
	PoolCapacity int

	RelayerEnabled    bool
	ValidationEnabled bool
	Relayer           relayer.Config
	Validation        validate.Config

	Predicate validate.Predicate

	// ShutdownTimeout bounds how long Shutdown waits for the workers to
	// exit on their own before returning anyway.
	ShutdownTimeout time.Duration

	Log *zap.SugaredLogger
}

// Node is the running node: its store, notifiers, and the workers reading
// from and writing to them.
type Node struct {
	cfg      Config
	store    *store.Store
	blocks   *notify.Broadcaster
	outcomes *notify.Broadcaster

	relayer *relayer.Relayer
	stream  *validate.Stream

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start opens the store, creates its schema, and spawns the enabled
// workers, each observing its own slice of ctx's cancellation.
func Start(ctx context.Context, cfg Config) (*Node, error) {
	capacity := cfg.PoolCapacity
	if capacity <= 0 {
		capacity = runtime.NumCPU()
		if capacity < 1 {
			capacity = 1
		}
	}

	st, err := store.Open(ctx, cfg.DBPath, capacity)
	if err != nil {
		return nil, fmt.Errorf("starting node: %w", err)
	}

	log := cfg.Log
	if log == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("starting node: building default logger: %w", err)
		}
		log = logger.Sugar()
	}

	n := &Node{
		cfg:      cfg,
		store:    st,
		blocks:   notify.New(),
		outcomes: notify.New(),
	}

	relayerCtx, cancelRelayer := context.WithCancel(ctx)
	streamCtx, cancelStream := context.WithCancel(ctx)
	n.cancel = func() {
		cancelRelayer()
		cancelStream()
	}

	if cfg.RelayerEnabled {
		n.relayer = relayer.New(cfg.Relayer, st, n.blocks, log)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.relayer.Run(relayerCtx)
		}()
	}

	if cfg.ValidationEnabled {
		predicate := cfg.Predicate
		if predicate == nil {
			n.cancel()
			st.Close()
			return nil, fmt.Errorf("starting node: validation enabled with no predicate interpreter configured")
		}
		n.stream = validate.New(cfg.Validation, st, predicate, n.blocks, n.outcomes, log)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.stream.Run(streamCtx)
		}()
	}

	return n, nil
}

// Store returns a handle to the underlying store for issuing read
// transactions and, in test or admin-tool contexts, writes.
func (n *Node) Store() *store.Store {
	return n.store
}

// Blocks returns a subscription to the block-change notifier, fired after
// every block the relayer commits.
func (n *Node) Blocks() *notify.Subscription {
	return n.blocks.Subscribe()
}

// Outcomes returns a subscription to the validation-outcome notifier, fired
// after every block the validation stream finishes checking.
func (n *Node) Outcomes() *notify.Subscription {
	return n.outcomes.Subscribe()
}

// LatestOutcome returns the most recently produced validation outcome, the
// zero value if validation is disabled or none has been produced yet.
func (n *Node) LatestOutcome() validate.Outcome {
	if n.stream == nil {
		return validate.Outcome{}
	}
	return n.stream.Latest()
}

// Shutdown cancels both workers and waits for them to exit, up to
// cfg.ShutdownTimeout, then closes the store regardless.
func (n *Node) Shutdown() error {
	n.cancel()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	timeout := n.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
	case <-time.After(timeout):
	}

	n.blocks.Close()
	n.outcomes.Close()
	return n.store.Close()
}
