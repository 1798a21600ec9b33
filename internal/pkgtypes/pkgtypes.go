// Package pkgtypes defines the capability contract that every loaded
// package must satisfy, the artifact extension set, and the loader
// boundary the manager is built against. None of the concrete loader
// implementations live here; this package only describes the shapes.
package pkgtypes

import "context"

// Extension identifies one of the recognized on-disk artifact suffixes.
type Extension string

const (
	// ExtSource is a developer-authored source artifact.
	ExtSource Extension = "src"
	// ExtCompiled is a pre-compiled artifact.
	ExtCompiled Extension = "compiled"
	// ExtOptimizedCompiled is an optimized pre-compiled artifact.
	ExtOptimizedCompiled Extension = "compiled_opt"
)

// Priority is the probe order used when no extension is forced: source
// wins over compiled, compiled wins over optimized-compiled.
var Priority = []Extension{ExtSource, ExtCompiled, ExtOptimizedCompiled}

// Registrar is the capability a package's run method is handed: a view of
// the shared resource registry scoped to the loading package's identity.
type Registrar interface {
	Register(id string, ref any) error
	Get(id string) (any, error)
	Has(id string) bool
}

// Package is the capability contract every loaded instance must satisfy:
// initialize against a scoped registry view, and release on unload.
type Package interface {
	Run(ctx context.Context, registrar Registrar) error
	CleanUp(ctx context.Context) error
}

// Module is what a Loader hands back after materializing an artifact. It
// exposes the declared dependency list (if any) and constructs the
// package instance on demand.
type Module interface {
	// NewInstance constructs the module-level PackageClass instance.
	NewInstance() (Package, error)
	// Dependencies returns the module's declared dependency list. ok is
	// false when the module declares no dependencies list at all;
	// malformed lists are reported by returning a non-nil error instead.
	Dependencies() (deps []string, ok bool, err error)
}

// Loader materializes a Module from an artifact file. Concrete
// implementations are an external collaborator per the package
// manager's scope: the core only depends on this interface.
type Loader interface {
	Load(path string, ext Extension) (Module, error)
}
