// Package loader provides concrete realizations of pkgtypes.Loader. The
// package manager core depends only on the pkgtypes.Loader interface,
// treating loading as an external collaborator's job: materializing a
// module object from a file and extracting a named class. This package
// supplies the two artifact-bearing realizations plus an in-memory static
// loader used by callers that pre-build modules out of band (most tests,
// and any embedder that wires packages in directly rather than from disk).
package loader

import (
	"fmt"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/huitest/liota/internal/pkgtypes"
)

// constructorSymbol is the module-level exported symbol every compiled
// artifact must provide to obtain a fresh instance without relying on
// reflection over the zero value.
const constructorSymbol = "NewPackageClass"

// dependenciesSymbol is the optional module-level exported symbol listing
// dependency identifiers.
const dependenciesSymbol = "Dependencies"

// FileLoader loads pre-compiled artifacts (pkgtypes.ExtCompiled,
// pkgtypes.ExtOptimizedCompiled) using the standard library's native
// plugin.Open, the closest stdlib equivalent to "materialize a module
// object from a file and extract a named class". Artifacts must be
// built with `go build -buildmode=plugin` and export NewPackageClass
// (func() (pkgtypes.Package, error)) and, optionally, Dependencies
// (func() []string).
type FileLoader struct{}

// Load implements pkgtypes.Loader.
func (FileLoader) Load(path string, ext pkgtypes.Extension) (pkgtypes.Module, error) {
	if ext != pkgtypes.ExtCompiled && ext != pkgtypes.ExtOptimizedCompiled {
		return nil, fmt.Errorf("loader: FileLoader does not handle extension %q", ext)
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: failed to open plugin %s: %w", path, err)
	}

	ctorSym, err := p.Lookup(constructorSymbol)
	if err != nil {
		return nil, fmt.Errorf("loader: %s missing %s: %w", path, constructorSymbol, err)
	}
	ctor, ok := ctorSym.(func() (pkgtypes.Package, error))
	if !ok {
		return nil, fmt.Errorf("loader: %s: %s has unexpected signature", path, constructorSymbol)
	}

	var deps []string
	if depsSym, err := p.Lookup(dependenciesSymbol); err == nil {
		fn, ok := depsSym.(func() []string)
		if !ok {
			return nil, fmt.Errorf("loader: %s: %s has unexpected signature", path, dependenciesSymbol)
		}
		deps = fn()
	}

	return &compiledModule{ctor: ctor, deps: deps, hasDeps: deps != nil}, nil
}

type compiledModule struct {
	ctor    func() (pkgtypes.Package, error)
	deps    []string
	hasDeps bool
}

func (m *compiledModule) NewInstance() (pkgtypes.Package, error) { return m.ctor() }
func (m *compiledModule) Dependencies() ([]string, bool, error) {
	return m.deps, m.hasDeps, nil
}

// StaticLoader resolves artifact stems to pre-built Modules supplied at
// construction time. It never touches disk. Used by tests and by any
// embedder that constructs packages directly rather than loading them
// from compiled artifacts.
type StaticLoader struct {
	modules map[string]pkgtypes.Module
}

// NewStaticLoader returns a StaticLoader seeded with modules, keyed by
// package identifier.
func NewStaticLoader(modules map[string]pkgtypes.Module) *StaticLoader {
	return &StaticLoader{modules: modules}
}

// Load implements pkgtypes.Loader. It derives the identifier from the
// artifact path's stem and ignores ext, since a StaticLoader has no
// per-extension behavior of its own.
func (l *StaticLoader) Load(path string, _ pkgtypes.Extension) (pkgtypes.Module, error) {
	stem := stemOf(path)
	mod, ok := l.modules[stem]
	if !ok {
		return nil, fmt.Errorf("loader: no static module registered for %q", stem)
	}
	return mod, nil
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
