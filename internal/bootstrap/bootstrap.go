// Package bootstrap validates configuration, prepares the package
// directory and control pipe, constructs the manager core and the IPC
// ingress, runs first-load, and starts the dispatch loop.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/huitest/liota/internal/command"
	"github.com/huitest/liota/internal/config"
	"github.com/huitest/liota/internal/ingress"
	"github.com/huitest/liota/internal/manager"
	"github.com/huitest/liota/internal/metrics"
	"github.com/huitest/liota/internal/pkgtypes"
)

// Agent bundles the constructed manager, ingress, and the errgroup
// supervising their worker goroutines into one explicit value, in place
// of module-level globals for the queue, the lock, and the core handle.
type Agent struct {
	Manager *manager.Manager
	Queue   chan command.Command

	group  *errgroup.Group
	cancel context.CancelFunc
}

// Bootstrapper guards a single initialization attempt with a create-once
// field scoped to the value itself: each Bootstrapper is idempotent on
// repeat Run calls, but distinct Bootstrapper values (as tests construct
// per case) are fully independent of one another.
type Bootstrapper struct {
	once   sync.Once
	agent  *Agent
	errRes error
}

// Run validates configPath, prepares the package directory and pipe,
// builds the Agent, runs first-load, and starts both workers. Re-invoking
// Run on the same Bootstrapper is idempotent: later calls return the
// result of the first call.
func (b *Bootstrapper) Run(ctx context.Context, configPath string, loader pkgtypes.Loader, log *slog.Logger, metricsSource metrics.Source) (*Agent, error) {
	b.once.Do(func() {
		b.agent, b.errRes = run(ctx, configPath, loader, log, metricsSource)
	})
	return b.agent, b.errRes
}

func run(ctx context.Context, configPath string, loader pkgtypes.Loader, log *slog.Logger, metricsSource metrics.Source) (*Agent, error) {
	if log == nil {
		log = slog.Default()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := ensurePackageDir(cfg.PackageDir); err != nil {
		return nil, fmt.Errorf("configuration-invalid: %w", err)
	}
	if err := ensurePipe(cfg.PipePath); err != nil {
		return nil, fmt.Errorf("configuration-invalid: %w", err)
	}

	var opts []manager.Option
	if metricsSource != nil {
		opts = append(opts, manager.WithMetrics(metricsSource))
	}
	mgr := manager.New(cfg.PackageDir, loader, log, opts...)

	if err := mgr.FirstLoad(ctx); err != nil {
		return nil, fmt.Errorf("first-load failed, dispatch loop will not start: %w", err)
	}

	// Bounded at 256 rather than unbounded: a sustained backlog this deep
	// means the dispatch loop is falling behind operator input, and
	// surfacing backpressure on the ingress producer is preferable to an
	// ever-growing in-memory queue. See DESIGN.md for the accepted
	// deviation from a strictly unbounded FIFO.
	queue := make(chan command.Command, 256)
	in := ingress.New(cfg.PipePath, log, queue)

	runCtx, cancel := context.WithCancel(ctx)
	group, runCtx := errgroup.WithContext(runCtx)

	workerAlive := func() bool { return runCtx.Err() == nil }
	mgr.RegisterWorker(manager.Worker{Name: "core", Identifier: "core", Kind: "dispatch-loop", Alive: workerAlive})
	mgr.RegisterWorker(manager.Worker{Name: "ingress", Identifier: "ingress", Kind: "ipc-ingress", Alive: workerAlive})

	group.Go(func() error {
		for {
			select {
			case <-runCtx.Done():
				return runCtx.Err()
			case cmd, ok := <-queue:
				if !ok {
					return nil
				}
				mgr.ObserveQueueDepth(len(queue))
				mgr.Dispatch(runCtx, cmd)
			}
		}
	})
	group.Go(func() error {
		return in.Run(runCtx)
	})

	return &Agent{Manager: mgr, Queue: queue, group: group, cancel: cancel}, nil
}

// Wait blocks until either worker returns, then cancels the other and
// returns the first non-context-cancellation error, if any.
func (a *Agent) Wait() error {
	err := a.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown cancels both workers.
func (a *Agent) Shutdown() {
	a.cancel()
}

func ensurePackageDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("package path %q is not a directory", dir)
		}
		if _, err := os.ReadDir(dir); err != nil {
			return fmt.Errorf("could not access package path %q: %w", dir, err)
		}
		return nil
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create package path %q: %w", dir, err)
		}
		return nil
	default:
		return fmt.Errorf("could not access package path %q: %w", dir, err)
	}
}

func ensurePipe(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode()&os.ModeNamedPipe == 0 {
			return fmt.Errorf("pipe path %q exists, but it is not a pipe", path)
		}
		return nil
	case os.IsNotExist(err):
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("could not create directory for messenger pipe: %w", err)
			}
		}
		if err := syscall.Mkfifo(path, 0o600); err != nil {
			return fmt.Errorf("could not create messenger pipe %q: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("could not access messenger pipe %q: %w", path, err)
	}
}
