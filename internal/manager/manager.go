// Package manager implements the package manager core: the single-owner
// state machine that loads, unloads, reloads, and updates extension
// packages, driven by commands taken off a queue under a single global
// lock.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/huitest/liota/internal/command"
	"github.com/huitest/liota/internal/digest"
	"github.com/huitest/liota/internal/metrics"
	"github.com/huitest/liota/internal/pkgtypes"
	"github.com/huitest/liota/internal/record"
	"github.com/huitest/liota/internal/registry"
)

// Worker describes one active concurrent worker for "list threads" /
// "stat threads" introspection.
type Worker struct {
	Name       string
	Identifier string
	Kind       string
	Alive      func() bool
}

// Manager is the package manager core. All loaded-map and registry
// mutation happens under mu, including the recursion inside load and
// unload: a whole cascade runs within one lock acquisition, never
// releasing it mid-recursion.
type Manager struct {
	mu sync.Mutex

	packageDir string
	loader     pkgtypes.Loader
	log        *slog.Logger
	metrics    metrics.Source
	registry   *registry.Registry
	loaded     map[string]*record.Record

	workers map[string]Worker
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithMetrics injects a metric-collection subsystem for stat commands.
func WithMetrics(src metrics.Source) Option {
	return func(m *Manager) { m.metrics = src }
}

// New constructs a Manager. packageDir is the flat directory holding
// package artifacts; loader materializes modules from artifact files.
// "package_conf" is pre-registered with packageDir so packages can look
// their own install directory up through the same registry they publish
// resources into.
func New(packageDir string, loader pkgtypes.Loader, log *slog.Logger, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		packageDir: packageDir,
		loader:     loader,
		log:        log,
		metrics:    metrics.NoopSource{},
		registry:   registry.New(),
		loaded:     make(map[string]*record.Record),
		workers:    make(map[string]Worker),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.registry.Register("package_conf", packageDir, ""); err != nil {
		// Cannot happen on a fresh registry, but keep this non-fatal and
		// logged rather than panicking a constructor.
		m.log.Error("failed to pre-register package_conf", "error", err)
	}
	return m
}

// RegisterWorker records an active concurrent worker for introspection
// commands, and updates the worker-pool gauges to reflect the spawn.
// Safe to call before or after the dispatch loop starts.
func (m *Manager) RegisterWorker(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[w.Name] = w
	m.reportPoolLocked()
}

// ObserveQueueDepth records the current command-queue backlog. Callers
// running the dispatch loop call this once per command taken off the
// queue, so the waiting-queue gauge reflects what's left behind it.
func (m *Manager) ObserveQueueDepth(waiting int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.SetQueueDepths(waiting, 0, 0, len(m.workers))
}

func (m *Manager) reportPoolLocked() {
	alive := 0
	for _, w := range m.workers {
		if w.Alive == nil || w.Alive() {
			alive++
		}
	}
	total := len(m.workers)
	m.metrics.SetPool(alive, alive, total, total)
}

// Dispatch executes one command under the global lock. A failed command
// is logged and abandoned rather than returned to the caller, so one bad
// command never stops the dispatch loop.
func (m *Manager) Dispatch(ctx context.Context, cmd command.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch cmd.Op {
	case command.OpLoad:
		if _, err := m.load(ctx, cmd.Arg, nil, nil); err != nil {
			m.log.Error("load failed", "package", cmd.Arg, "error", err)
		}
	case command.OpUnload:
		if ok, err := m.unload(ctx, cmd.Arg, nil); !ok {
			m.log.Error("unload failed", "package", cmd.Arg, "error", err)
		}
	case command.OpReload:
		if _, ok := m.reload(ctx, cmd.Arg); !ok {
			m.log.Error("reload failed", "package", cmd.Arg)
		}
	case command.OpUpdate:
		if _, ok := m.update(ctx, cmd.Arg); !ok {
			m.log.Error("update failed", "package", cmd.Arg)
		}
	case command.OpDelete, command.OpCheck:
		m.log.Debug("reserved command accepted as no-op", "op", cmd.Op)
	case command.OpList:
		m.list(cmd.Arg)
	case command.OpStat:
		m.stat(cmd.Arg)
	default:
		m.log.Warn("unsupported command dropped", "op", cmd.Op)
	}
}

// Loaded reports whether identifier is currently loaded (test/introspection
// helper; callers must already hold no external lock, this acquires its
// own).
func (m *Manager) Loaded(identifier string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loaded[identifier]
	return ok
}

// Record returns a snapshot copy of identifier's record, if loaded.
func (m *Manager) Record(identifier string) (record.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.loaded[identifier]
	if !ok {
		return record.Record{}, false
	}
	return *rec, true
}

// Registry exposes the underlying resource registry for bootstrap checks
// (e.g. verifying "gateway" was registered by first-load).
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// --- load -------------------------------------------------------------

func (m *Manager) load(ctx context.Context, identifier string, forced *pkgtypes.Extension, checkStack []string) (*record.Record, error) {
	if _, ok := m.loaded[identifier]; ok {
		m.log.Warn("package already loaded", "package", identifier)
		return nil, nil
	}

	ext, path, err := m.resolveArtifact(identifier, forced)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactMissing, identifier, err)
	}

	sum, err := digest.File(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactUnreadable, identifier, err)
	}

	mod, err := m.loader.Load(path, ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleMalformed, identifier, err)
	}

	deps, hasDeps, err := mod.Dependencies()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: malformed dependency list: %v", ErrModuleMalformed, identifier, err)
	}

	if hasDeps && len(deps) > 0 {
		stack := append(append([]string(nil), checkStack...), identifier)
		m.log.Info("package declares dependencies", "package", identifier, "dependencies", deps)
		for _, dep := range deps {
			if contains(stack, dep) {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrDependencyCycle, identifier, dep)
			}
			if _, ok := m.loaded[dep]; !ok {
				if _, derr := m.load(ctx, dep, nil, stack); derr != nil {
					m.log.Error("dependency failed to load", "package", identifier, "dependency", dep, "error", derr)
				}
			}
			depRecord, ok := m.loaded[dep]
			if !ok {
				return nil, fmt.Errorf("%s is not loaded, because %s failed to load", identifier, dep)
			}
			depRecord.AddDependent(identifier)
		}
	}

	instance, err := mod.NewInstance()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleMalformed, identifier, err)
	}

	rec := record.New(identifier)
	rec.SetInstance(m.log, instance)

	if err := instance.Run(ctx, m.registry.Scoped(identifier)); err != nil {
		m.log.Error("exception in initialization", "package", identifier, "error", err)
		if errors.Is(err, registry.ErrConflict) {
			return nil, fmt.Errorf("%w: %s: %v", ErrDuplicateResource, identifier, err)
		}
		return nil, fmt.Errorf("%s: run failed: %w", identifier, err)
	}

	rec.Digest = sum
	rec.Extension = ext
	m.loaded[identifier] = rec

	m.log.Info("package loaded", "package", identifier, "extension", ext, "digest", sum.String())
	return rec, nil
}

func (m *Manager) resolveArtifact(identifier string, forced *pkgtypes.Extension) (pkgtypes.Extension, string, error) {
	try := func(ext pkgtypes.Extension) (string, bool) {
		path := filepath.Join(m.packageDir, identifier+"."+string(ext))
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return "", false
		}
		return path, true
	}

	if forced != nil {
		if path, ok := try(*forced); ok {
			return *forced, path, nil
		}
		return "", "", fmt.Errorf("package file not found: %s.%s", identifier, *forced)
	}

	for _, ext := range pkgtypes.Priority {
		if path, ok := try(ext); ok {
			return ext, path, nil
		}
	}
	return "", "", fmt.Errorf("package file not found: %s", identifier)
}

func contains(stack []string, id string) bool {
	for _, s := range stack {
		if s == id {
			return true
		}
	}
	return false
}

// --- unload -------------------------------------------------------------

// trackEntry records one unloaded package's identifier and extension, for
// reload/update to restart in reverse order.
type trackEntry struct {
	ID  string
	Ext pkgtypes.Extension
}

func (m *Manager) unload(ctx context.Context, identifier string, trackList *[]trackEntry) (bool, error) {
	rec, ok := m.loaded[identifier]
	if !ok {
		m.log.Warn("package not loaded", "package", identifier)
		return false, nil
	}

	for _, dependent := range rec.Dependents() {
		if _, stillLoaded := m.loaded[dependent]; stillLoaded {
			ok, err := m.unload(ctx, dependent, trackList)
			if !ok {
				return false, fmt.Errorf("cannot unload %s: dependent %s failed to unload: %w", identifier, dependent, err)
			}
		}
		rec.DelDependent(dependent)
	}

	if rec.Instance == nil {
		return false, fmt.Errorf("%w: %s: instance does not implement package capability", ErrTypeViolation, identifier)
	}

	if len(m.registry.OwnedBy(identifier)) == 0 {
		m.log.Warn("package owns no resources at unload", "package", identifier)
	}
	m.registry.PurgeOwnedBy(identifier)

	m.callCleanUp(ctx, identifier, rec.Instance)

	if trackList != nil {
		*trackList = append(*trackList, trackEntry{ID: identifier, Ext: rec.Extension})
	}

	delete(m.loaded, identifier)
	m.log.Info("package unloaded", "package", identifier)
	return true, nil
}

func (m *Manager) callCleanUp(ctx context.Context, identifier string, instance pkgtypes.Package) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("clean_up panicked", "package", identifier, "panic", r)
		}
	}()
	if err := instance.CleanUp(ctx); err != nil {
		m.log.Error("clean_up failed", "package", identifier, "error", err)
	}
}

// --- reload / update ----------------------------------------------------

func (m *Manager) reload(ctx context.Context, identifier string) (*record.Record, bool) {
	if _, ok := m.loaded[identifier]; !ok {
		m.log.Warn("package not loaded", "package", identifier)
		return nil, false
	}

	var track []trackEntry
	if ok, err := m.unload(ctx, identifier, &track); !ok {
		m.log.Error("reload: unload failed", "package", identifier, "error", err)
		return nil, false
	}

	reverse(track)
	for _, entry := range track {
		if _, ok := m.loaded[entry.ID]; ok {
			continue
		}
		ext := entry.Ext
		if _, err := m.load(ctx, entry.ID, &ext, nil); err != nil {
			m.log.Error("reload: load failed", "package", entry.ID, "error", err)
		}
	}

	rec, ok := m.loaded[identifier]
	return rec, ok
}

func (m *Manager) update(ctx context.Context, identifier string) (*record.Record, bool) {
	if _, ok := m.loaded[identifier]; !ok {
		rec, err := m.load(ctx, identifier, nil, nil)
		if err != nil {
			m.log.Error("update: load failed", "package", identifier, "error", err)
			return nil, false
		}
		return rec, rec != nil
	}

	var track []trackEntry
	if ok, err := m.unload(ctx, identifier, &track); !ok {
		m.log.Error("update: unload failed", "package", identifier, "error", err)
		return nil, false
	}

	reverse(track)
	for _, entry := range track {
		if _, ok := m.loaded[entry.ID]; ok {
			continue
		}
		if _, err := m.load(ctx, entry.ID, nil, nil); err != nil {
			m.log.Error("update: load failed", "package", entry.ID, "error", err)
		}
	}

	rec, ok := m.loaded[identifier]
	return rec, ok
}

func reverse(entries []trackEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}

// --- introspection -------------------------------------------------------

func (m *Manager) list(what string) {
	switch what {
	case "packages", "pkg":
		ids := make([]string, 0, len(m.loaded))
		for id := range m.loaded {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		m.log.Info("list packages", "packages", ids)
	case "resources", "res":
		ids := m.registry.Identifiers()
		sort.Strings(ids)
		m.log.Info("list resources", "resources", ids)
	case "threads", "th":
		names := make([]string, 0, len(m.workers))
		for name, w := range m.workers {
			alive := w.Alive == nil || w.Alive()
			m.log.Info("thread", "name", name, "identifier", w.Identifier, "kind", w.Kind, "alive", alive)
			names = append(names, name)
		}
		sort.Strings(names)
	default:
		m.log.Warn("unknown list parameter", "parameter", what)
	}
}

func (m *Manager) stat(what string) {
	switch what {
	case "metrics", "met":
		snap := m.metrics.Metrics()
		m.log.Info("stat metrics", "waiting", snap.Waiting, "sending", snap.Sending, "collecting", snap.Collecting, "workers", snap.Workers)
	case "collection_threads", "col":
		pool := m.metrics.Pool()
		m.log.Info("stat collection_threads", "working", pool.Working, "alive", pool.Alive, "pool", pool.Pool, "capacity", pool.Capacity)
	case "threads", "th":
		alive := 0
		for _, w := range m.workers {
			if w.Alive == nil || w.Alive() {
				alive++
			}
		}
		m.log.Info("stat threads", "active", alive, "total", len(m.workers))
	default:
		m.log.Warn("unknown stat parameter", "parameter", what)
	}
}
