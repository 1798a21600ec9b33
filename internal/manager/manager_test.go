package manager_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huitest/liota/internal/command"
	"github.com/huitest/liota/internal/manager"
	"github.com/huitest/liota/internal/metrics"
	"github.com/huitest/liota/internal/pkgtypes"
)

// fakeMetricsSource records the last values passed to its Set methods,
// so tests can assert the manager actually reports through them.
type fakeMetricsSource struct {
	queueWaiting, queueWorkers       int
	poolWorking, poolAlive, poolSize int
}

func (f *fakeMetricsSource) Metrics() metrics.Snapshot { return metrics.Snapshot{} }
func (f *fakeMetricsSource) Pool() metrics.PoolSnapshot { return metrics.PoolSnapshot{} }
func (f *fakeMetricsSource) SetQueueDepths(waiting, _, _, workers int) {
	f.queueWaiting, f.queueWorkers = waiting, workers
}
func (f *fakeMetricsSource) SetPool(working, alive, pool, _ int) {
	f.poolWorking, f.poolAlive, f.poolSize = working, alive, pool
}

// testPackage is a scripted pkgtypes.Package used to drive the manager
// through deterministic scenarios without a real loader.
type testPackage struct {
	registerIDs []string
	runErr      error
	cleanUpErr  error
	cleanedUp   bool
}

func (p *testPackage) Run(_ context.Context, r pkgtypes.Registrar) error {
	for _, id := range p.registerIDs {
		if err := r.Register(id, "ref-"+id); err != nil {
			return err
		}
	}
	return p.runErr
}

func (p *testPackage) CleanUp(context.Context) error {
	p.cleanedUp = true
	return p.cleanUpErr
}

type testModule struct {
	deps        []string
	hasDeps     bool
	registerIDs []string
	runErr      error
}

func (m *testModule) Dependencies() ([]string, bool, error) { return m.deps, m.hasDeps, nil }
func (m *testModule) NewInstance() (pkgtypes.Package, error) {
	return &testPackage{registerIDs: m.registerIDs, runErr: m.runErr}, nil
}

// testLoader resolves artifact paths to pre-scripted modules keyed by
// identifier (the path stem).
type testLoader struct {
	modules map[string]*testModule
}

func (l *testLoader) Load(path string, ext pkgtypes.Extension) (pkgtypes.Module, error) {
	stem := strings.TrimSuffix(filepath.Base(path), "."+string(ext))
	mod, ok := l.modules[stem]
	if !ok {
		return nil, fmt.Errorf("no test module registered for %s", stem)
	}
	return mod, nil
}

func touch(t *testing.T, dir, identifier string, ext pkgtypes.Extension) {
	t.Helper()
	path := filepath.Join(dir, identifier+"."+string(ext))
	require.NoError(t, os.WriteFile(path, []byte("artifact"), 0o644))
}

func newTestManager(t *testing.T, loader *testLoader) (*manager.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return manager.New(dir, loader, log), dir
}

func TestCycleDetection(t *testing.T) {
	loader := &testLoader{modules: map[string]*testModule{
		"a": {deps: []string{"b"}, hasDeps: true},
		"b": {deps: []string{"a"}, hasDeps: true},
	}}
	m, dir := newTestManager(t, loader)
	touch(t, dir, "a", pkgtypes.ExtSource)
	touch(t, dir, "b", pkgtypes.ExtSource)

	m.Dispatch(context.Background(), command.Command{Op: command.OpLoad, Arg: "a"})

	require.False(t, m.Loaded("a"))
	require.False(t, m.Loaded("b"))
	require.Equal(t, 1, m.Registry().Len(), "only package_conf should be registered")
}

func TestDependentCascadeUnload(t *testing.T) {
	loader := &testLoader{modules: map[string]*testModule{
		"core": {registerIDs: []string{"core-res"}},
		"leaf": {deps: []string{"core"}, hasDeps: true, registerIDs: []string{"leaf-res"}},
	}}
	m, dir := newTestManager(t, loader)
	touch(t, dir, "core", pkgtypes.ExtSource)
	touch(t, dir, "leaf", pkgtypes.ExtSource)

	ctx := context.Background()
	m.Dispatch(ctx, command.Command{Op: command.OpLoad, Arg: "core"})
	m.Dispatch(ctx, command.Command{Op: command.OpLoad, Arg: "leaf"})
	require.True(t, m.Loaded("core"))
	require.True(t, m.Loaded("leaf"))

	m.Dispatch(ctx, command.Command{Op: command.OpUnload, Arg: "core"})

	require.False(t, m.Loaded("leaf"))
	require.False(t, m.Loaded("core"))
	require.Equal(t, 1, m.Registry().Len(), "only package_conf should remain")
}

func TestSourceOverridesCompiledOnUpdate(t *testing.T) {
	loader := &testLoader{modules: map[string]*testModule{
		"x": {},
	}}
	m, dir := newTestManager(t, loader)
	touch(t, dir, "x", pkgtypes.ExtCompiled)

	ctx := context.Background()
	m.Dispatch(ctx, command.Command{Op: command.OpLoad, Arg: "x"})
	rec, ok := m.Record("x")
	require.True(t, ok)
	require.Equal(t, pkgtypes.ExtCompiled, rec.Extension)

	// x.src now also present.
	touch(t, dir, "x", pkgtypes.ExtSource)

	m.Dispatch(ctx, command.Command{Op: command.OpReload, Arg: "x"})
	rec, ok = m.Record("x")
	require.True(t, ok)
	require.Equal(t, pkgtypes.ExtCompiled, rec.Extension, "reload preserves original extension")

	m.Dispatch(ctx, command.Command{Op: command.OpUpdate, Arg: "x"})
	rec, ok = m.Record("x")
	require.True(t, ok)
	require.Equal(t, pkgtypes.ExtSource, rec.Extension, "update re-probes and prefers source")
}

func TestResourceConflict(t *testing.T) {
	loader := &testLoader{modules: map[string]*testModule{
		"p": {registerIDs: []string{"shared"}},
		"q": {registerIDs: []string{"shared"}},
	}}
	m, dir := newTestManager(t, loader)
	touch(t, dir, "p", pkgtypes.ExtSource)
	touch(t, dir, "q", pkgtypes.ExtSource)

	ctx := context.Background()
	m.Dispatch(ctx, command.Command{Op: command.OpLoad, Arg: "p"})
	m.Dispatch(ctx, command.Command{Op: command.OpLoad, Arg: "q"})

	require.True(t, m.Loaded("p"))
	require.False(t, m.Loaded("q"))
	require.True(t, m.Registry().Has("shared"))
	require.Equal(t, []string{"shared"}, m.Registry().OwnedBy("p"))
}

func TestBatchOrdering(t *testing.T) {
	loader := &testLoader{modules: map[string]*testModule{
		"a": {},
		"b": {},
	}}
	m, dir := newTestManager(t, loader)
	touch(t, dir, "a", pkgtypes.ExtSource)
	touch(t, dir, "b", pkgtypes.ExtSource)

	ctx := context.Background()
	for _, cmd := range []command.Command{
		{Op: command.OpLoad, Arg: "a"},
		{Op: command.OpLoad, Arg: "b"},
		{Op: command.OpUnload, Arg: "a"},
	} {
		m.Dispatch(ctx, cmd)
	}

	require.True(t, m.Loaded("b"))
	require.False(t, m.Loaded("a"))
}

func TestIdempotentLoad(t *testing.T) {
	loader := &testLoader{modules: map[string]*testModule{"a": {}}}
	m, dir := newTestManager(t, loader)
	touch(t, dir, "a", pkgtypes.ExtSource)

	ctx := context.Background()
	m.Dispatch(ctx, command.Command{Op: command.OpLoad, Arg: "a"})
	m.Dispatch(ctx, command.Command{Op: command.OpLoad, Arg: "a"})
	require.True(t, m.Loaded("a"))
}

func TestUnloadCascadesToDependent(t *testing.T) {
	loader := &testLoader{modules: map[string]*testModule{
		"core": {},
		"leaf": {deps: []string{"core"}, hasDeps: true},
	}}
	m, dir := newTestManager(t, loader)
	touch(t, dir, "core", pkgtypes.ExtSource)
	touch(t, dir, "leaf", pkgtypes.ExtSource)

	ctx := context.Background()
	m.Dispatch(ctx, command.Command{Op: command.OpLoad, Arg: "core"})
	m.Dispatch(ctx, command.Command{Op: command.OpLoad, Arg: "leaf"})

	// Directly unloading core cascades into leaf rather than refusing:
	// core never ends up unloaded while leaf remains loaded.
	m.Dispatch(ctx, command.Command{Op: command.OpUnload, Arg: "core"})
	require.False(t, m.Loaded("leaf"))
	require.False(t, m.Loaded("core"))
}

func TestUnknownListAndStatParametersAreNoops(t *testing.T) {
	loader := &testLoader{modules: map[string]*testModule{}}
	m, _ := newTestManager(t, loader)
	ctx := context.Background()
	m.Dispatch(ctx, command.Command{Op: command.OpList, Arg: "bogus"})
	m.Dispatch(ctx, command.Command{Op: command.OpStat, Arg: "bogus"})
	m.Dispatch(ctx, command.Command{Op: command.OpDelete, Arg: "x"})
	m.Dispatch(ctx, command.Command{Op: command.OpCheck})
}

func TestRegisterWorkerReportsPool(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	src := &fakeMetricsSource{}
	m := manager.New(dir, &testLoader{modules: map[string]*testModule{}}, log, manager.WithMetrics(src))

	m.RegisterWorker(manager.Worker{Name: "core", Alive: func() bool { return true }})
	require.Equal(t, 1, src.poolAlive)
	require.Equal(t, 1, src.poolSize)

	m.RegisterWorker(manager.Worker{Name: "ingress", Alive: func() bool { return false }})
	require.Equal(t, 1, src.poolAlive, "only the still-alive worker counts")
	require.Equal(t, 2, src.poolSize, "pool size counts every registered worker")
}

func TestObserveQueueDepthReportsThroughMetrics(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	src := &fakeMetricsSource{}
	m := manager.New(dir, &testLoader{modules: map[string]*testModule{}}, log, manager.WithMetrics(src))
	m.RegisterWorker(manager.Worker{Name: "core", Alive: func() bool { return true }})

	m.ObserveQueueDepth(5)
	require.Equal(t, 5, src.queueWaiting)
	require.Equal(t, 1, src.queueWorkers)
}
