// Package record holds the value object describing one loaded package.
package record

import (
	"log/slog"
	"time"

	"github.com/huitest/liota/internal/digest"
	"github.com/huitest/liota/internal/pkgtypes"
)

// Record describes one currently loaded package. A Record exists in the
// manager's loaded map if and only if its Instance has had Run complete
// successfully and CleanUp has not yet been invoked.
type Record struct {
	Identifier string
	Extension  pkgtypes.Extension
	Digest     digest.Sum
	Instance   pkgtypes.Package
	LoadedAt   time.Time

	dependents map[string]struct{}
	set        bool
}

// New returns an empty record for identifier; Instance is installed later
// via SetInstance, before the instance's Run is invoked.
func New(identifier string) *Record {
	return &Record{
		Identifier: identifier,
		dependents: make(map[string]struct{}),
	}
}

// SetInstance installs the live instance. It succeeds once; a second call
// is a no-op that logs a warning, since the instance is immutable after
// it is first set.
func (r *Record) SetInstance(log *slog.Logger, instance pkgtypes.Package) {
	if r.set {
		if log != nil {
			log.Warn("package instance already set, ignoring", "package", r.Identifier)
		}
		return
	}
	r.Instance = instance
	r.set = true
}

// AddDependent records that dependent declared a dependency on r. Adding
// a duplicate dependent is a no-op.
func (r *Record) AddDependent(dependent string) {
	if r.dependents == nil {
		r.dependents = make(map[string]struct{})
	}
	r.dependents[dependent] = struct{}{}
}

// DelDependent removes dependent from r's dependent set. Deleting an
// unknown dependent means a caller's bookkeeping is already out of sync
// with this record, so it panics rather than silently no-oping.
func (r *Record) DelDependent(dependent string) {
	if _, ok := r.dependents[dependent]; !ok {
		panic("record: del_dependent on unknown dependent " + dependent)
	}
	delete(r.dependents, dependent)
}

// Dependents returns a snapshot of r's current dependents. Callers must
// mutate via AddDependent/DelDependent, never through the returned slice.
func (r *Record) Dependents() []string {
	out := make([]string, 0, len(r.dependents))
	for d := range r.dependents {
		out = append(out, d)
	}
	return out
}

// HasDependent reports whether dependent is currently recorded.
func (r *Record) HasDependent(dependent string) bool {
	_, ok := r.dependents[dependent]
	return ok
}
