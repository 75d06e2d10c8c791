package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"

	"github.com/essential-contributions/essential-node/foundation/logger"
	"github.com/essential-contributions/essential-node/foundation/node"
	"github.com/essential-contributions/essential-node/foundation/relayer"
	"github.com/essential-contributions/essential-node/foundation/validate"
	"github.com/essential-contributions/essential-node/foundation/validate/refpredicate"
)

// build is the git version of this program. It can be set at build time with -ldflags "-X main.build=<version>".
var build = "develop"

func main() {
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Store struct {
			DBPath       string `conf:"default:zblock/node.db"`
			PoolCapacity int    `conf:"default:0"`
		}
		Relayer struct {
			Enabled        bool          `conf:"default:true"`
			Endpoint       string        `conf:"default:http://localhost:8080"`
			InitialBackoff time.Duration `conf:"default:500ms"`
			MaxBackoff     time.Duration `conf:"default:1m"`
		}
		Validation struct {
			Enabled        bool          `conf:"default:true"`
			InitialBackoff time.Duration `conf:"default:500ms"`
			MaxBackoff     time.Duration `conf:"default:1m"`
		}
		Shutdown struct {
			Timeout time.Duration `conf:"default:20s"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "essential-node core",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Node Support

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := node.Start(ctx, node.Config{
		DBPath:            cfg.Store.DBPath,
		PoolCapacity:      cfg.Store.PoolCapacity,
		RelayerEnabled:    cfg.Relayer.Enabled,
		ValidationEnabled: cfg.Validation.Enabled,
		Relayer: relayer.Config{
			Endpoint:       cfg.Relayer.Endpoint,
			InitialBackoff: cfg.Relayer.InitialBackoff,
			MaxBackoff:     cfg.Relayer.MaxBackoff,
		},
		Validation: validate.Config{
			InitialBackoff: cfg.Validation.InitialBackoff,
			MaxBackoff:     cfg.Validation.MaxBackoff,
		},
		Predicate:       refpredicate.Interpreter{},
		ShutdownTimeout: cfg.Shutdown.Timeout,
		Log:             log,
	})
	if err != nil {
		return fmt.Errorf("starting node: %w", err)
	}

	log.Infow("startup", "status", "node started", "db_path", cfg.Store.DBPath)

	// =========================================================================
	// Shutdown Support

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdown
	log.Infow("shutdown", "status", "shutdown started", "signal", sig)
	defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

	if err := n.Shutdown(); err != nil {
		return fmt.Errorf("could not stop node gracefully: %w", err)
	}

	return nil
}
