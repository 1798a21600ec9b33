// Package registry implements the shared resource registry that loaded
// packages use to publish and discover opaque references. It is not
// internally synchronized: the manager core serializes all access to it
// under its own lock.
package registry

import (
	"errors"
	"fmt"
)

// ErrConflict is wrapped into the error Register returns when id is already
// registered, so callers can distinguish a naming conflict from other
// registration failures via errors.Is.
var ErrConflict = errors.New("conflict")

// Registry maps resource identifiers to opaque references and tracks
// which package owns each identifier, so an unloaded package's
// registrations can be purged as a group.
type Registry struct {
	resources map[string]any
	ownership map[string][]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		resources: make(map[string]any),
		ownership: make(map[string][]string),
	}
}

// Register inserts ref under id, attributing ownership to pkg when pkg is
// non-empty. It fails without mutation if id is already present.
func (r *Registry) Register(id string, ref any, pkg string) error {
	if _, exists := r.resources[id]; exists {
		return fmt.Errorf("%w: resource %q already registered", ErrConflict, id)
	}
	r.resources[id] = ref
	if pkg != "" {
		r.ownership[pkg] = append(r.ownership[pkg], id)
	}
	return nil
}

// Deregister removes id from resources. It is not required to touch
// ownership; callers that purge an entire package's ownership set do so
// explicitly via PurgeOwnedBy.
func (r *Registry) Deregister(id string) {
	delete(r.resources, id)
}

// Get returns the reference registered under id, failing with "unknown"
// if absent.
func (r *Registry) Get(id string) (any, error) {
	ref, ok := r.resources[id]
	if !ok {
		return nil, fmt.Errorf("unknown resource %q", id)
	}
	return ref, nil
}

// Has reports whether id is currently registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.resources[id]
	return ok
}

// Len returns the number of currently registered resources.
func (r *Registry) Len() int {
	return len(r.resources)
}

// Identifiers returns every currently registered resource identifier, in
// no particular order; callers that need a sorted view (e.g. "list
// resources") sort it themselves.
func (r *Registry) Identifiers() []string {
	out := make([]string, 0, len(r.resources))
	for id := range r.resources {
		out = append(out, id)
	}
	return out
}

// OwnedBy returns a snapshot of the resource identifiers owned by pkg.
func (r *Registry) OwnedBy(pkg string) []string {
	owned := r.ownership[pkg]
	out := make([]string, len(owned))
	copy(out, owned)
	return out
}

// PurgeOwnedBy deregisters every resource owned by pkg and drops the
// ownership entry. It is safe to call when pkg owns nothing.
func (r *Registry) PurgeOwnedBy(pkg string) {
	for _, id := range r.ownership[pkg] {
		r.Deregister(id)
	}
	delete(r.ownership, pkg)
}

// Scoped returns a ScopedView that attributes every registration it
// accepts to pkg.
func (r *Registry) Scoped(pkg string) *ScopedView {
	return &ScopedView{registry: r, pkg: pkg}
}

// ScopedView is a thin façade pairing the registry with one package
// identifier, handed to a package's Run method so every resource it
// registers is attributed to it automatically.
type ScopedView struct {
	registry *Registry
	pkg      string
}

// Register attributes ownership of id to the view's package.
func (v *ScopedView) Register(id string, ref any) error {
	return v.registry.Register(id, ref, v.pkg)
}

// Get delegates to the underlying registry.
func (v *ScopedView) Get(id string) (any, error) {
	return v.registry.Get(id)
}

// Has delegates to the underlying registry.
func (v *ScopedView) Has(id string) bool {
	return v.registry.Has(id)
}
